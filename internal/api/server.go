// Package api provides the thin HTTP and WebSocket surface a front-end or
// CLI submits studies through — an external collaborator (study
// submission, progress streaming, artifact export), not part of the
// backtesting/optimization core itself.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ashgrove-quant/barforge/internal/config"
	"github.com/ashgrove-quant/barforge/internal/observability"
	"github.com/ashgrove-quant/barforge/internal/ohlcv"
	"github.com/ashgrove-quant/barforge/internal/store"
	"github.com/ashgrove-quant/barforge/internal/strategy"
)

// Server is the HTTP/WebSocket surface over the study engine.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	cfg        *config.Config
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader

	clients  map[string]*Client
	manager  *store.Manager
	registry *strategy.Registry
	loader   *ohlcv.Loader
	studies  map[string]*StudyState
	metrics  *observability.Metrics
}

// Client is one connected WebSocket subscriber.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Subs map[string]bool
}

// Message is the envelope every WebSocket frame (request or event) is
// wrapped in.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"` // request, response, event
	Method    string      `json:"method"`
	Payload   interface{} `json:"payload,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewServer builds the API surface over an already-open database
// manager, strategy registry, and CSV loader. metrics may be nil, in
// which case study submission/completion counters are skipped.
func NewServer(logger *zap.Logger, cfg *config.Config, mgr *store.Manager, registry *strategy.Registry, loader *ohlcv.Loader, metrics *observability.Metrics) *Server {
	s := &Server{
		logger:   logger,
		cfg:      cfg,
		router:   mux.NewRouter(),
		clients:  make(map[string]*Client),
		manager:  mgr,
		registry: registry,
		loader:   loader,
		studies:  make(map[string]*StudyState),
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/strategies", s.handleListStrategies).Methods("GET")

	s.router.HandleFunc("/api/v1/studies", s.handleSubmitStudy).Methods("POST")
	s.router.HandleFunc("/api/v1/studies", s.handleListStudies).Methods("GET")
	s.router.HandleFunc("/api/v1/studies/{id}", s.handleGetStudy).Methods("GET")
	s.router.HandleFunc("/api/v1/studies/{id}", s.handleDeleteStudy).Methods("DELETE")
	s.router.HandleFunc("/api/v1/studies/{id}/export", s.handleExportStudy).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start blocks serving HTTP until the listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{s.cfg.Server.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.logger.Info("starting api server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully closes every WebSocket client and shuts down the HTTP
// listener within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"strategies": s.registry.List()})
}

func newStudyID() string { return uuid.NewString() }
