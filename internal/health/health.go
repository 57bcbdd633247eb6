// Package health serves the runtime's HTTP endpoints: /healthz for liveness
// (with a Redis check when the bridge is configured) and /metrics for
// Prometheus scraping.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is implemented by anything whose connectivity gates health,
// such as a *bridge.Bridge.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides the health and metrics endpoints.
type Server struct {
	addr     string
	redis    Pinger
	gatherer prometheus.Gatherer
	logger   *log.Logger

	server   *http.Server
	listener net.Listener
}

// Response is the JSON body of /healthz.
type Response struct {
	Status string `json:"status"`
	Nodes  int    `json:"nodes,omitempty"`
	Redis  string `json:"redis,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NodeCounter reports the number of live nodes.
type NodeCounter func() int

// Options configure a Server. Redis and Nodes are optional.
type Options struct {
	Addr     string
	Redis    Pinger
	Nodes    NodeCounter
	Gatherer prometheus.Gatherer
	Logger   *log.Logger
}

// NewServer creates a health server. It does not listen until Start.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	s := &Server{
		addr:     opts.Addr,
		redis:    opts.Redis,
		gatherer: opts.Gatherer,
		logger:   opts.Logger,
	}
	s.server = &http.Server{
		Handler:      s.Handler(opts.Nodes),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Handler builds the endpoint mux.
func (s *Server) Handler(nodes NodeCounter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.healthCheckHandler(w, r, nodes)
	})
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("[Health] Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz.
// Returns 200 OK when healthy, 503 Service Unavailable when Redis is unreachable.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request, nodes NodeCounter) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := Response{Status: "healthy"}
	if nodes != nil {
		response.Nodes = nodes()
	}

	status := http.StatusOK
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.redis.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			response.Redis = "connected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
