package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Tomlord1122/todo-files-backend/internal/config"
	"github.com/Tomlord1122/todo-files-backend/internal/database"
	"github.com/Tomlord1122/todo-files-backend/internal/logging"
	"github.com/Tomlord1122/todo-files-backend/internal/metrics"
	"github.com/Tomlord1122/todo-files-backend/internal/service"
	"github.com/Tomlord1122/todo-files-backend/internal/storage"
)

// Dependencies are the collaborators handed to the HTTP layer. DB and Blobs
// are nil when the corresponding store is not configured.
type Dependencies struct {
	TodoService service.TodoService
	DB          database.Service
	Blobs       storage.BlobStore
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
}

type Server struct {
	port          int
	maxUploadSize int64
	corsOrigins   []string

	// the configured flags tell "not configured" apart from "configured but down"
	dbConfigured      bool
	storageConfigured bool

	todoService service.TodoService
	db          database.Service
	blobs       storage.BlobStore
	log         *zap.Logger
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	validator   *requestValidator
	now         func() time.Time
}

func newServer(cfg *config.Config, deps Dependencies) *Server {
	s := &Server{
		port:          cfg.Port,
		maxUploadSize: cfg.MaxUploadSize,
		corsOrigins:   cfg.CORSAllowedOrigins,

		dbConfigured:      cfg.DatabaseConfigured(),
		storageConfigured: cfg.StorageConfigured(),

		todoService: deps.TodoService,
		db:          deps.DB,
		blobs:       deps.Blobs,
		log:         deps.Logger,
		metrics:     deps.Metrics,
		gatherer:    deps.Gatherer,
		validator:   newRequestValidator(),
		now:         time.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	return s
}

// NewServer builds the HTTP server for the todo API.
func NewServer(cfg *config.Config, deps Dependencies) *http.Server {
	appServer := newServer(cfg, deps)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", appServer.port),
		Handler:      appServer.RegisterRoutes(),
		ErrorLog:     logging.StdLogger(appServer.log, "http"),
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
