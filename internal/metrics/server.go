package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigil/internal/logging"
)

// Controller is the slice of the orchestrator the server drives.
type Controller interface {
	Pause() bool
	Resume() bool
	Snapshot() any
	Healthy() bool
}

// Server is the operational HTTP endpoint.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *slog.Logger
	done     chan error
}

// NewRouter builds the route table. It is exported for tests and for
// embedding under another mux.
func NewRouter(m *Metrics, ctl Controller) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if ctl != nil && !ctl.Healthy() {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		var body any = map[string]string{}
		if ctl != nil {
			body = ctl.Snapshot()
		}
		writeJSON(w, http.StatusOK, body)
	})
	r.Post("/pause", func(w http.ResponseWriter, _ *http.Request) {
		toggle(w, ctl, "paused", Controller.Pause)
	})
	r.Post("/resume", func(w http.ResponseWriter, _ *http.Request) {
		toggle(w, ctl, "running", Controller.Resume)
	})
	return r
}

func toggle(w http.ResponseWriter, ctl Controller, target string, fn func(Controller) bool) {
	if ctl == nil {
		http.Error(w, "pipeline not available", http.StatusServiceUnavailable)
		return
	}
	if !fn(ctl) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "pipeline cannot transition to " + target})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": target})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Listen binds addr and starts serving in the background. An empty addr
// returns a nil server, which is safe to Shutdown.
func Listen(addr string, m *Metrics, ctl Controller, logger *slog.Logger) (*Server, error) {
	if addr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv: &http.Server{
			Handler:           NewRouter(m, ctl),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logging.NewComponentLogger(logger, "metrics"),
		done:     make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	s.logger.Info("operational server listening",
		logging.String(logging.FieldEventType, "metrics_listening"),
		logging.String("addr", ln.Addr().String()),
	)
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}
