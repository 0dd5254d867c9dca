package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Tomlord1122/todo-files-backend/internal/domain"
)

// pgCheckViolation is the SQLSTATE for a failed CHECK constraint.
const pgCheckViolation = "23514"

// TodoRepository defines the interface for todo data operations
type TodoRepository interface {
	// Initialize creates or aligns the todos table. Safe to call on every start.
	Initialize(ctx context.Context) error
	ListAll(ctx context.Context) ([]domain.Todo, error)
	Insert(ctx context.Context, todo *domain.Todo) error
	Update(ctx context.Context, id uint, title, description string, completed bool) (*domain.Todo, error)
	Get(ctx context.Context, id uint) (*domain.Todo, error)
	Delete(ctx context.Context, id uint) error
}

// gormTodoRepository implements TodoRepository using GORM
type gormTodoRepository struct {
	db *gorm.DB
}

// NewGormTodoRepository creates a new GORM todo repository
func NewGormTodoRepository(db *gorm.DB) TodoRepository {
	return &gormTodoRepository{db: db}
}

func (r *gormTodoRepository) Initialize(ctx context.Context) error {
	// AutoMigrate only adds missing tables, columns and indexes, so repeated
	// calls are harmless
	if err := r.db.WithContext(ctx).AutoMigrate(&domain.Todo{}); err != nil {
		return fmt.Errorf("migrate todos: %w", err)
	}
	return nil
}

// ListAll returns every todo, newest first.
func (r *gormTodoRepository) ListAll(ctx context.Context) ([]domain.Todo, error) {
	todos := make([]domain.Todo, 0)
	// id breaks ties between rows created in the same microsecond
	result := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&todos)
	if result.Error != nil {
		return nil, fmt.Errorf("list todos: %w", result.Error)
	}
	return todos, nil
}

// Insert adds a new todo; gorm fills ID, CreatedAt and UpdatedAt.
func (r *gormTodoRepository) Insert(ctx context.Context, todo *domain.Todo) error {
	if strings.TrimSpace(todo.Title) == "" {
		return domain.NewValidationError("title required")
	}
	// Create fills in the generated fields on the passed struct
	if err := r.db.WithContext(ctx).Create(todo).Error; err != nil {
		return translate("insert todo", err)
	}
	return nil
}

func (r *gormTodoRepository) Update(ctx context.Context, id uint, title, description string, completed bool) (*domain.Todo, error) {
	if strings.TrimSpace(title) == "" {
		return nil, domain.NewValidationError("title required")
	}

	// Use a map so completed=false is written; Updates skips zero values in structs
	result := r.db.WithContext(ctx).
		Model(&domain.Todo{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"title":       title,
			"description": description,
			"completed":   completed,
			"updated_at":  r.db.NowFunc(),
		})
	if result.Error != nil {
		return nil, translate(fmt.Sprintf("update todo %d", id), result.Error)
	}
	// No row matched: report it instead of inserting one
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("update todo %d: %w", id, domain.ErrNotFound)
	}

	// Re-read so the caller sees the stored timestamps and attachment fields
	return r.Get(ctx, id)
}

func (r *gormTodoRepository) Get(ctx context.Context, id uint) (*domain.Todo, error) {
	var todo domain.Todo
	result := r.db.WithContext(ctx).First(&todo, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("todo %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get todo %d: %w", id, result.Error)
	}
	return &todo, nil
}

// Delete permanently removes a todo; ids are never reused.
func (r *gormTodoRepository) Delete(ctx context.Context, id uint) error {
	// Todo has no DeletedAt field, so this is a hard delete
	result := r.db.WithContext(ctx).Delete(&domain.Todo{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete todo %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("delete todo %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// translate turns schema-level rejections into validation errors.
func translate(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
		return fmt.Errorf("%s: %w", op, domain.NewValidationError("title required"))
	}
	if strings.Contains(err.Error(), "CHECK constraint failed") {
		return fmt.Errorf("%s: %w", op, domain.NewValidationError("title required"))
	}
	return fmt.Errorf("%s: %w", op, err)
}
