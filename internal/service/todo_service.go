package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Tomlord1122/todo-files-backend/internal/domain"
	"github.com/Tomlord1122/todo-files-backend/internal/repository"
	"github.com/Tomlord1122/todo-files-backend/internal/storage"
)

// Attachment is a file submitted together with a new todo.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// CreateTodoRequest holds the data needed to create a new todo
type CreateTodoRequest struct {
	Title       string      `json:"title" validate:"required,max=255"`
	Description string      `json:"description"`
	File        *Attachment `json:"-"`
}

// UpdateTodoRequest replaces the editable fields of a todo. Attachments
// cannot be changed after creation.
type UpdateTodoRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// TodoResponse is the standard representation of a Todo returned by the service.
type TodoResponse struct {
	ID          uint    `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Completed   bool    `json:"completed"`
	FileURL     *string `json:"file_url"`
	FileName    *string `json:"file_name"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// --- Service Interface ---

// TodoService defines the operations for managing todos.
type TodoService interface {
	// CreateTodo stores a new todo. A failed attachment upload does not fail
	// the creation; the todo is stored without the attachment.
	CreateTodo(ctx context.Context, req CreateTodoRequest) (*TodoResponse, error)

	GetTodoByID(ctx context.Context, id uint) (*TodoResponse, error)

	// GetAllTodos returns every todo, newest first.
	GetAllTodos(ctx context.Context) ([]TodoResponse, error)

	UpdateTodo(ctx context.Context, id uint, req UpdateTodoRequest) (*TodoResponse, error)

	// DeleteTodo removes a todo and, best effort, its attachment.
	DeleteTodo(ctx context.Context, id uint) error
}

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	RecordTodoOperation(operation string, err error)
	RecordBlobOperation(operation string, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordTodoOperation(string, error) {}
func (noopRecorder) RecordBlobOperation(string, error) {}

// Options wires the collaborators of the todo service. Repo and Blobs may be
// nil when the database or the bucket is not configured.
type Options struct {
	Repo         repository.TodoRepository
	Blobs        storage.BlobStore
	Logger       *zap.Logger
	Metrics      Recorder
	StoreTimeout time.Duration
}

// --- Service Implementation ---

type todoService struct {
	repo    repository.TodoRepository
	blobs   storage.BlobStore
	log     *zap.Logger
	metrics Recorder
	timeout time.Duration
}

// NewTodoService creates a new instance of todoService.
func NewTodoService(opts Options) TodoService {
	s := &todoService{
		repo:    opts.Repo,
		blobs:   opts.Blobs,
		log:     opts.Logger,
		metrics: opts.Metrics,
		timeout: opts.StoreTimeout,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	return s
}

func (s *todoService) CreateTodo(ctx context.Context, req CreateTodoRequest) (resp *TodoResponse, err error) {
	defer func() { s.metrics.RecordTodoOperation("create", err) }()

	// Validate before touching storage so a bad request has no side effects
	title, err := validateTitle(req.Title)
	if err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, domain.ErrStoreUnavailable
	}

	newTodo := &domain.Todo{
		Title:       title,
		Description: req.Description,
		Completed:   false,
	}

	// The attachment is best effort: a failed upload leaves uploaded nil and
	// the todo is stored without file fields
	var uploaded *storage.UploadResult
	if req.File != nil {
		uploaded = s.uploadAttachment(ctx, req.File)
	}
	if uploaded != nil {
		newTodo.FileURL = &uploaded.URL
		newTodo.FileName = &uploaded.DisplayName
		newTodo.FileKey = &uploaded.Key
	}

	rctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.repo.Insert(rctx, newTodo); err != nil {
		// Remove the blob we just stored, otherwise nothing would reference it
		if uploaded != nil {
			s.removeAttachment(ctx, uploaded.Key)
		}
		return nil, storeError("create todo", err)
	}

	return toResponse(newTodo), nil
}

// uploadAttachment returns nil whenever the file could not be stored; the
// caller then creates the todo without it.
func (s *todoService) uploadAttachment(ctx context.Context, file *Attachment) *storage.UploadResult {
	if s.blobs == nil {
		s.log.Warn("storage not configured, creating todo without attachment",
			zap.String("file_name", file.Name))
		s.metrics.RecordBlobOperation("upload", storage.ErrNotConfigured)
		return nil
	}

	uctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.blobs.Upload(uctx, file.Data, file.Name, file.ContentType)
	s.metrics.RecordBlobOperation("upload", err)
	if err != nil {
		s.log.Warn("attachment upload failed, creating todo without attachment",
			zap.String("file_name", file.Name),
			zap.Int("size", len(file.Data)),
			zap.Error(err))
		return nil
	}
	return res
}

// removeAttachment deletes a blob and only logs failures.
func (s *todoService) removeAttachment(ctx context.Context, ref string) {
	if s.blobs == nil {
		s.log.Warn("storage not configured, attachment left in bucket", zap.String("ref", ref))
		return
	}

	dctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.blobs.Delete(dctx, ref)
	s.metrics.RecordBlobOperation("delete", err)
	if err != nil {
		s.log.Warn("attachment delete failed", zap.String("ref", ref), zap.Error(err))
	}
}

func (s *todoService) GetTodoByID(ctx context.Context, id uint) (resp *TodoResponse, err error) {
	defer func() { s.metrics.RecordTodoOperation("get", err) }()

	if s.repo == nil {
		return nil, domain.ErrStoreUnavailable
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	todo, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storeError("get todo", err)
	}
	return toResponse(todo), nil
}

func (s *todoService) GetAllTodos(ctx context.Context) (responses []TodoResponse, err error) {
	defer func() { s.metrics.RecordTodoOperation("list", err) }()

	if s.repo == nil {
		return nil, domain.ErrStoreUnavailable
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	todos, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, storeError("list todos", err)
	}

	// Always return a non-nil slice so the handler encodes [] rather than null
	responses = make([]TodoResponse, 0, len(todos))
	for i := range todos {
		responses = append(responses, *toResponse(&todos[i]))
	}
	return responses, nil
}

func (s *todoService) UpdateTodo(ctx context.Context, id uint, req UpdateTodoRequest) (resp *TodoResponse, err error) {
	defer func() { s.metrics.RecordTodoOperation("update", err) }()

	title, err := validateTitle(req.Title)
	if err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, domain.ErrStoreUnavailable
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// Attachments are fixed at creation; only the editable fields are written
	updated, err := s.repo.Update(ctx, id, title, req.Description, req.Completed)
	if err != nil {
		return nil, storeError("update todo", err)
	}
	return toResponse(updated), nil
}

func (s *todoService) DeleteTodo(ctx context.Context, id uint) (err error) {
	defer func() { s.metrics.RecordTodoOperation("delete", err) }()

	if s.repo == nil {
		return domain.ErrStoreUnavailable
	}

	// Fetch first to learn whether there is an attachment to clean up
	gctx, cancel := s.withTimeout(ctx)
	existing, err := s.repo.Get(gctx, id)
	cancel()
	if err != nil {
		return storeError("delete todo", err)
	}

	// Blob removal failures are logged inside removeAttachment and never
	// block the row deletion
	if existing.HasAttachment() {
		s.removeAttachment(ctx, existing.AttachmentRef())
	}

	dctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.repo.Delete(dctx, id); err != nil {
		return storeError("delete todo", err)
	}
	return nil
}

func (s *todoService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", domain.NewValidationError("title required")
	}
	if utf8.RuneCountInString(title) > domain.MaxTitleLength {
		return "", domain.NewValidationError("title must be at most %d characters", domain.MaxTitleLength)
	}
	return title, nil
}

// storeError wraps a repository failure, turning deadline overruns into
// ErrStorageTimeout.
func storeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toResponse(todo *domain.Todo) *TodoResponse {
	return &TodoResponse{
		ID:          todo.ID,
		Title:       todo.Title,
		Description: todo.Description,
		Completed:   todo.Completed,
		FileURL:     todo.FileURL,
		FileName:    todo.FileName,
		CreatedAt:   todo.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   todo.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
