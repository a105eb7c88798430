package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MJE43/rps-canvas/internal/dispatch"
	"github.com/MJE43/rps-canvas/internal/journal"
	"github.com/MJE43/rps-canvas/internal/webhook"
)

// AppName is reported by GET /.
const AppName = "benchling-rps-app"

const (
	maxWebhookBody = 1 << 20
	requestTimeout = 30 * time.Second
)

// Dispatcher routes a classified event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev webhook.Event) dispatch.Report
}

// Journal records deliveries. A nil Journal disables recording and the
// /deliveries route.
type Journal interface {
	Record(ctx context.Context, d journal.Delivery) (uuid.UUID, error)
	List(ctx context.Context, q journal.Query) ([]journal.Delivery, error)
	Counts(ctx context.Context) (map[string]int64, error)
	Ping(ctx context.Context) error
}

// Server handles HTTP requests
type Server struct {
	dispatcher   Dispatcher
	journal      Journal
	errorHandler *ErrorHandler
	logger       *log.Logger
	startTime    time.Time
	remoteBase   string
}

// Option configures a Server.
type Option func(*Server)

// WithJournal enables delivery recording.
func WithJournal(j Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithLogger overrides the request logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRemoteBase reports the Benchling base URL in health checks.
func WithRemoteBase(base string) Option {
	return func(s *Server) { s.remoteBase = base }
}

// NewServer creates a new API server
func NewServer(d Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		logger:     log.New(os.Stdout, "[API] ", log.LstdFlags|log.LUTC),
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.errorHandler = NewErrorHandler(s.logger)
	return s
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.LoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/", s.handleStatus)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)

	r.Group(func(r chi.Router) {
		r.Use(maxBodyMiddleware(maxWebhookBody))
		r.Post("/webhook", s.handleWebhook)
		// Legacy path some app configurations still point at.
		r.Post("/webhook/canvas", s.handleWebhook)
	})

	r.Get("/deliveries", s.handleDeliveries)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.HandleError(w, r, NewError(ErrTypeNotFound, "Route not found").
			WithRequestID(middleware.GetReqID(r.Context())).
			WithContext("path", r.URL.Path).
			Build(), http.StatusNotFound)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-App-Version", Version)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed error=%q", err)
	}
}
