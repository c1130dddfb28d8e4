package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"meteostation/internal/observation"
	"meteostation/internal/sensor"
)

const (
	httpShutdownTimeout = 5 * time.Second
	httpReadHeaderTO    = 5 * time.Second
)

// healthResponse is the /healthz body.
type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

// observationResponse is the /observation body.
type observationResponse struct {
	State string                   `json:"state"`
	Value *sensor.Reading          `json:"value"`
	Error *observation.ErrorStreak `json:"error"`
}

// observationReader provides cached observation snapshots.
type observationReader interface {
	Read() (observation.Observation, error)
}

// metricsServer runs the exporter HTTP server tied to a lifecycle context.
// Params: listen address, handler, and logger for diagnostics.
// Returns: runnable HTTP server instance.
type metricsServer struct {
	listen string
	ln     net.Listener
	server *http.Server
	logger *slog.Logger
}

// newMetricsServer creates an HTTP server and binds to the listen address.
// Params: listen address in host:port; handler HTTP handler; logger root logger.
// Returns: server instance or bind error.
func newMetricsServer(listen string, handler http.Handler, logger *slog.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", listen, err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: httpReadHeaderTO,
	}

	return &metricsServer{
		listen: listen,
		ln:     ln,
		server: server,
		logger: logger,
	}, nil
}

// addr returns bound listener address.
func (s *metricsServer) addr() string {
	return s.ln.Addr().String()
}

// run starts serving and shuts down on context cancellation.
// Params: ctx lifecycle context.
// Returns: nil on graceful stop; error on early serve failures.
func (s *metricsServer) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.ln)
	}()

	s.logger.Info("metrics server started", slog.String("addr", s.addr()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		err := <-errCh
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("metrics server stopped unexpectedly", slog.String("listen", s.listen), slog.String("error", err.Error()))
		return err
	}
}

// newExporterMux builds the exporter routes.
// Params: metricsPath exposition route; metrics exposition handler; cache observation source.
// Returns: HTTP handler.
func newExporterMux(metricsPath string, metrics http.Handler, cache observationReader) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, metrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !allowRead(w, r) {
			return
		}
		obs, err := cache.Read()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{
				Status: "unavailable",
				State:  "poisoned",
				Error:  "sensor unavailable",
			})
			return
		}

		resp := healthResponse{Status: "ok", State: obs.State().String()}
		code := http.StatusOK
		if !obs.Serving() {
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
	mux.HandleFunc("/observation", func(w http.ResponseWriter, r *http.Request) {
		if !allowRead(w, r) {
			return
		}
		obs, err := cache.Read()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{
				Status: "unavailable",
				State:  "poisoned",
				Error:  "sensor unavailable",
			})
			return
		}
		writeJSON(w, http.StatusOK, observationResponse{
			State: obs.State().String(),
			Value: obs.Value,
			Error: obs.Error,
		})
	})
	return mux
}

// allowRead rejects non GET/HEAD methods.
func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

// writeJSON writes body with status code.
func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
