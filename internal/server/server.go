// Package server provides the HTTP and websocket surface over the state
// store, the scheduler and the portfolio book.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"marketpulse/internal/database"
	"marketpulse/internal/domain"
	"marketpulse/internal/events"
	"marketpulse/internal/history"
	"marketpulse/internal/portfolio"
	"marketpulse/internal/store"
)

// Orchestrator is the scheduler surface the HTTP layer needs.
type Orchestrator interface {
	SwitchSymbol(newSymbol domain.Symbol)
	Symbol() domain.Symbol
	Running() bool
	GetCountdown(taskName string) (int, error)
	Countdowns() map[string]int
}

// HistoryReader serves persisted universe observations.
type HistoryReader interface {
	SymbolHistory(symbol domain.Symbol, since time.Time) ([]history.Point, error)
}

// Config holds server construction parameters.
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	Store     *store.Store
	Scheduler Orchestrator
	History   HistoryReader
	Portfolio *portfolio.Service
	Bus       *events.Bus
	Databases []*database.DB
}

// Server is the HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	store     *store.Store
	sched     Orchestrator
	history   HistoryReader
	portfolio *portfolio.Service
	hub       *wsHub
	dataDir   string
	databases []*database.DB
	startedAt time.Time
}

// New creates the HTTP server and wires its routes.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		store:     cfg.Store,
		sched:     cfg.Scheduler,
		history:   cfg.History,
		portfolio: cfg.Portfolio,
		hub:       newWSHub(cfg.Bus, cfg.Log),
		dataDir:   cfg.DataDir,
		databases: cfg.Databases,
		startedAt: time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	// The websocket stream sits outside the request timeout middleware.
	s.router.Get("/ws", s.handleWebSocket)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/symbol", s.handleGetSymbol)
		r.Post("/symbol", s.handleSwitchSymbol)

		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/snapshots", s.handleSnapshots)
		r.Get("/candles", s.handleCandles)
		r.Get("/forecast", s.handleForecast)
		r.Get("/sentiment", s.handleSentiment)
		r.Get("/recommendation", s.handleRecommendation)

		r.Get("/universe", s.handleUniverse)
		r.Get("/universe/stats", s.handleUniverseStats)
		r.Get("/universe/history/{symbol}", s.handleUniverseHistory)

		r.Get("/countdowns", s.handleCountdowns)
		r.Get("/countdown/{task}", s.handleCountdown)

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", s.handlePortfolioPositions)
			r.Get("/summary", s.handlePortfolioSummary)
			r.Post("/buy", s.handlePortfolioBuy)
			r.Post("/sell", s.handlePortfolioSell)
		})

		r.Get("/system/health", s.handleSystemHealth)
	})
}

// Start begins serving. Blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.hub.closeAll()
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
