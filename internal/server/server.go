// Package server exposes the credential over a small local HTTP API:
// GET /token returns the current pair, GET /update requests an
// out-of-cycle refresh.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/varjak-dev/potokend/internal/token"
)

// TokenSource is the updater surface the API needs.
type TokenSource interface {
	Get() (token.Credential, bool)
	RequestUpdate() bool
}

const shutdownTimeout = 10 * time.Second

// Server serves the credential API on a single listener.
type Server struct {
	logger *zap.Logger
	source TokenSource
}

// New returns a Server reading from source.
func New(logger *zap.Logger, source TokenSource) *Server {
	return &Server{
		logger: logger.Named("server"),
		source: source,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/update", s.handleUpdate)
	return mux
}

// Run serves the API on addr until ctx is cancelled, then shuts down
// gracefully. The returned error is nil on a clean shutdown.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("API server shutdown error", zap.Error(err))
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, `{"error":"method not allowed"}`)
		return
	}

	cred, ok := s.source.Get()
	if !ok {
		writeJSON(w, http.StatusNotFound, `{"error":"no credential extracted yet"}`)
		return
	}

	writeJSON(w, http.StatusOK, cred.JSON())
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, `{"error":"method not allowed"}`)
		return
	}

	if !s.source.RequestUpdate() {
		writeJSON(w, http.StatusConflict, `{"status":"update already in progress"}`)
		return
	}
	writeJSON(w, http.StatusAccepted, `{"status":"update requested"}`)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
