// Package httpapi serves the gateway's HTTP surface: health checks and a
// websocket bridge that renders stream events as JSON for browser clients.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ismaiel54/unified-trading-gateway/internal/marketdata"
	"github.com/ismaiel54/unified-trading-gateway/internal/observability"
	"github.com/ismaiel54/unified-trading-gateway/internal/userdata"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Server handles health checks and websocket streams
type Server struct {
	router   *mux.Router
	market   *marketdata.Hub
	users    *userdata.Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
	handler  http.Handler
	http     *http.Server
}

// NewServer creates the HTTP API. origins lists allowed CORS origins; "*"
// allows any.
func NewServer(market *marketdata.Hub, users *userdata.Hub, health *observability.HealthChecker, origins []string, logger *zap.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		market: market,
		users:  users,
		logger: logger,
	}
	allowed := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed.OriginAllowed(r)
		},
	}

	if health != nil {
		health.Register(s.router)
	}
	s.router.HandleFunc("/ws/market", s.handleMarketStream)
	s.router.HandleFunc("/ws/user", s.handleUserStream)

	s.handler = allowed.Handler(s.router)
	return s
}

// Handler returns the router wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves HTTP on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for handlers to return
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
