package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Tomlord1122/todo-files-backend/internal/config"
	"github.com/Tomlord1122/todo-files-backend/internal/logging"
)

// ErrNotConfigured is returned by New when DATABASE_URL is empty.
var ErrNotConfigured = errors.New("database not configured")

// Service exposes the gorm handle plus lifecycle and health helpers.
type Service interface {
	Health(ctx context.Context) map[string]string
	Close() error
	GetDB() *gorm.DB
}

type service struct {
	db           *gorm.DB
	driver       string
	maxOpenConns int
	log          *zap.Logger
}

// Now is the clock used for row timestamps. Postgres keeps microseconds, so
// values are truncated to keep inserted and re-read rows identical.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// New opens the database named by cfg.DatabaseURL. postgres:// and
// postgresql:// URLs (or key=value DSNs) use the pgx-backed postgres driver;
// sqlite://path, file: URIs and :memory: use sqlite.
func New(cfg *config.Config, log *zap.Logger) (Service, error) {
	if !cfg.DatabaseConfigured() {
		return nil, ErrNotConfigured
	}

	dialector, driver, err := openDialector(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	gormLogger := logger.New(
		logging.StdLogger(log, "gorm"),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormLogger,
		NowFunc: Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpen := cfg.DBMaxOpenConns
	if driver == "sqlite" {
		// one connection keeps :memory: databases shared and avoids SQLITE_BUSY
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(min(cfg.DBMaxIdleConns, maxOpen))
	sqlDB.SetConnMaxLifetime(cfg.DBConnLifetime)

	log.Info("database connected", zap.String("driver", driver))

	return &service{db: db, driver: driver, maxOpenConns: maxOpen, log: log}, nil
}

func openDialector(url string) (gorm.Dialector, string, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Open(url), "postgres", nil
	case strings.HasPrefix(url, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(url, "sqlite://")), "sqlite", nil
	case strings.HasPrefix(url, "file:"), url == ":memory:":
		return sqlite.Open(url), "sqlite", nil
	case strings.Contains(url, "host="):
		return postgres.Open(url), "postgres", nil
	}
	return nil, "", fmt.Errorf("unsupported DATABASE_URL %q", redact(url))
}

// redact drops everything up to the host so credentials never reach logs.
func redact(url string) string {
	if i := strings.LastIndex(url, "@"); i >= 0 {
		if j := strings.Index(url, "://"); j >= 0 && j < i {
			return url[:j+3] + "***" + url[i:]
		}
	}
	return url
}

func (s *service) GetDB() *gorm.DB {
	return s.db
}

// Health pings the database and reports connection pool statistics.
func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	stats := make(map[string]string)
	stats["driver"] = s.driver

	sqlDB, err := s.db.DB()
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("failed to get underlying DB for health check: %v", err)
		s.log.Warn("health check: underlying DB unavailable", zap.Error(err))
		return stats
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		s.log.Warn("health check: db down", zap.Error(err))
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := sqlDB.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if s.maxOpenConns > 1 && dbStats.InUse >= s.maxOpenConns*8/10 {
		stats["message"] = "The database is experiencing heavy load."
	}

	return stats
}

func (s *service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.log.Info("closing database connection pool", zap.String("driver", s.driver))
	return sqlDB.Close()
}
