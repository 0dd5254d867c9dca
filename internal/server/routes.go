package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Tomlord1122/todo-files-backend/internal/domain"
	"github.com/Tomlord1122/todo-files-backend/internal/service"
)

const healthCheckTimeout = 2 * time.Second

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	if s.metrics != nil {
		r.Use(requestMetrics(s.metrics))
	}
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Request-Id"},
		ExposedHeaders:   []string{"Link", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/todos", func(r chi.Router) {
		r.Post("/", s.createTodoHandler)
		r.Get("/", s.getAllTodosHandler)
		r.Get("/{id}", s.getTodoByIDHandler)
		r.Put("/{id}", s.updateTodoHandler)
		r.Delete("/{id}", s.deleteTodoHandler)
	})

	return r
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// healthHandler always answers 200; the services map tells which stores are usable.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Services: map[string]string{
			"database": "not configured",
			"storage":  "not configured",
		},
	}

	switch {
	case s.db != nil:
		resp.Services["database"] = "connected"
		if stats := s.db.Health(ctx); stats["status"] != "up" {
			resp.Services["database"] = "disconnected"
		}
	case s.dbConfigured:
		// DATABASE_URL is set but the connection failed at startup
		resp.Services["database"] = "disconnected"
	}

	switch {
	case s.blobs != nil:
		resp.Services["storage"] = "connected"
		if err := s.blobs.Ping(ctx); err != nil {
			s.log.Warn("health check: storage unreachable", zap.Error(err))
			resp.Services["storage"] = "disconnected"
		}
	case s.storageConfigured:
		resp.Services["storage"] = "disconnected"
	}

	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) createTodoHandler(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseCreateRequest(w, r)
	if err != nil {
		s.respondWithRequestError(w, r, err)
		return
	}

	// Surrounding whitespace is dropped before the length rule is applied
	req.Title = strings.TrimSpace(req.Title)
	if msg, ok := s.validator.Struct(req); !ok {
		respondWithError(w, http.StatusBadRequest, msg)
		return
	}

	todoResp, err := s.todoService.CreateTodo(r.Context(), req)
	if err != nil {
		s.respondWithServiceError(w, r, err, "Failed to create todo")
		return
	}

	respondWithJSON(w, http.StatusCreated, todoResp)
}

func (s *Server) getAllTodosHandler(w http.ResponseWriter, r *http.Request) {
	todos, err := s.todoService.GetAllTodos(r.Context())
	if err != nil {
		s.respondWithServiceError(w, r, err, "Failed to retrieve todos")
		return
	}

	respondWithJSON(w, http.StatusOK, todos)
}

func (s *Server) getTodoByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTodoID(w, r)
	if !ok {
		return
	}

	todo, err := s.todoService.GetTodoByID(r.Context(), id)
	if err != nil {
		s.respondWithServiceError(w, r, err, "Failed to retrieve todo")
		return
	}

	respondWithJSON(w, http.StatusOK, todo)
}

func (s *Server) updateTodoHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTodoID(w, r)
	if !ok {
		return
	}

	var req service.UpdateTodoRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondWithRequestError(w, r, err)
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if msg, ok := s.validator.Struct(req); !ok {
		respondWithError(w, http.StatusBadRequest, msg)
		return
	}

	updatedTodo, err := s.todoService.UpdateTodo(r.Context(), id, req)
	if err != nil {
		s.respondWithServiceError(w, r, err, "Failed to update todo")
		return
	}

	respondWithJSON(w, http.StatusOK, updatedTodo)
}

func (s *Server) deleteTodoHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTodoID(w, r)
	if !ok {
		return
	}

	if err := s.todoService.DeleteTodo(r.Context(), id); err != nil {
		s.respondWithServiceError(w, r, err, "Failed to delete todo")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Todo deleted successfully"})
}

func parseTodoID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid todo ID provided")
		return 0, false
	}
	return uint(id), true
}

func (s *Server) respondWithRequestError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		respondWithError(w, reqErr.status, reqErr.message)
		return
	}
	s.log.Error("error reading request body",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err))
	respondWithError(w, http.StatusInternalServerError, "Error processing request")
}

// respondWithServiceError maps service errors to status codes. Anything
// unrecognised is logged and answered with fallback.
func (s *Server) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondWithError(w, http.StatusBadRequest, validationErr.Message)
	case errors.Is(err, domain.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Todo not found")
	case errors.Is(err, domain.ErrStoreUnavailable):
		if s.dbConfigured {
			respondWithError(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
		respondWithError(w, http.StatusServiceUnavailable, "Database not configured")
	case errors.Is(err, domain.ErrStorageTimeout):
		s.log.Warn("storage timeout",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		respondWithError(w, http.StatusGatewayTimeout, "Storage timed out")
	default:
		s.log.Error(fallback,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error preparing response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
