// Package health publishes sensor availability over the standard gRPC health protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"meteostation/internal/observation"
	"meteostation/internal/sensor"
)

// ServiceName is the health service name reported for the sensor.
const ServiceName = "meteostation.Sensor"

// Source provides the cached observation.
type Source interface {
	Read() (observation.Observation, error)
}

// Reporter mirrors observation availability into a gRPC health server.
// Params: observation source and listen address.
// Returns: reporter instance.
type Reporter struct {
	source   Source
	listener net.Listener
	logger   *slog.Logger
	server   *grpchealth.Server

	mu     sync.Mutex
	status healthpb.HealthCheckResponse_ServingStatus
}

// NewReporter creates a reporter in NOT_SERVING state and binds its listener.
// Params: listen host:port (empty means Run only waits for ctx); source observation cache; logger runtime logger.
// Returns: reporter or bind error.
func NewReporter(listen string, source Source, logger *slog.Logger) (*Reporter, error) {
	r := &Reporter{
		source: source,
		logger: logger,
		server: grpchealth.NewServer(),
		status: healthpb.HealthCheckResponse_UNKNOWN,
	}
	if listen = strings.TrimSpace(listen); listen != "" {
		listener, err := net.Listen("tcp", listen)
		if err != nil {
			return nil, fmt.Errorf("listen %q: %w", listen, err)
		}
		r.listener = listener
	}
	r.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return r, nil
}

// Addr returns the bound listener address, or "" when serving is disabled.
func (r *Reporter) Addr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Close releases a listener that Run never served.
func (r *Reporter) Close() {
	if r.listener != nil {
		_ = r.listener.Close()
	}
}

// Update refreshes status after one read outcome.
// Params: ignored reading and error; status is derived from the observation source.
// Returns: none.
func (r *Reporter) Update(_ sensor.Reading, _ error) {
	r.Refresh()
}

// Refresh re-derives health status from the observation source.
// Params: none.
// Returns: current serving status.
func (r *Reporter) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	obs, err := r.source.Read()
	if err == nil && obs.Serving() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	r.setStatus(status)
	return status
}

// Status returns last published status.
// Params: none.
// Returns: serving status.
func (r *Reporter) Status() healthpb.HealthCheckResponse_ServingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// setStatus publishes status for the sensor service and the server as a whole.
func (r *Reporter) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	r.mu.Lock()
	changed := r.status != status
	r.status = status
	r.mu.Unlock()

	if !changed {
		return
	}
	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(ServiceName, status)
	if r.logger != nil {
		r.logger.Debug("health status changed", slog.String("status", status.String()))
	}
}

// Register attaches the health service to a gRPC server.
// Params: registrar target server.
// Returns: none.
func (r *Reporter) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, r.server)
}

// Run serves gRPC health until ctx is canceled.
// Params: ctx lifecycle context.
// Returns: listen/serve error or nil on graceful stop.
func (r *Reporter) Run(ctx context.Context) error {
	if r.listener == nil {
		<-ctx.Done()
		return nil
	}
	return r.Serve(ctx, r.listener)
}

// Serve serves gRPC health on listener until ctx is canceled.
// Params: ctx lifecycle context; listener accepted connection source.
// Returns: serve error or nil on graceful stop.
func (r *Reporter) Serve(ctx context.Context, listener net.Listener) error {
	server := grpc.NewServer()
	r.Register(server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	if r.logger != nil {
		r.logger.Info("grpc health server started", slog.String("addr", listener.Addr().String()))
	}

	select {
	case <-ctx.Done():
		r.server.Shutdown()
		server.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc health: %w", err)
		}
		return nil
	}
}

// Probe asks a remote health server for the sensor service status.
// Params: ctx lifecycle context; address host:port; timeout call timeout.
// Returns: serving status or connect/rpc error.
func Probe(ctx context.Context, address string, timeout time.Duration) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial %s: %w", address, err)
	}
	defer conn.Close()

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check %s: %w", address, err)
	}
	return resp.GetStatus(), nil
}
