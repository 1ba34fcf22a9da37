package cli

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"entitygraph/internal/adapters/httpapi"
	"entitygraph/internal/config"
	"entitygraph/internal/core"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr  string
	Trace bool

	// ready, when set, receives the bound listener address. Tests use it to
	// learn the port chosen for ":0".
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Long: `Serve the entity graph JSON API under /api/v1, operation metrics at
/metrics (Prometheus text, or expvar JSON with metrics.driver: expvar) and a
liveness probe at /healthz. SIGINT or SIGTERM shuts the server
down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides http.addr)")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "write operation spans as JSON lines to stderr")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	metrics, metricsHandler, err := newMetrics(cfg.Metrics)
	if err != nil {
		return err
	}
	svcOpts := []core.ServiceOption{core.WithMetricsRecorder(metrics)}
	if opts.Trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
	}

	rt, err := openRuntimeWith(ctx, cfg, cmd.ErrOrStderr(), svcOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			rt.logger.Error("close store", "error", cerr)
		}
	}()

	addr := opts.Addr
	if addr == "" {
		addr = rt.cfg.HTTP.Addr
	}
	handler := httpapi.NewHandler(rt.svc,
		httpapi.WithBackupStore(rt.blobs),
		httpapi.WithMetricsHandler(metricsHandler),
		httpapi.WithAccessLog(cmd.ErrOrStderr()),
		httpapi.WithLogger(rt.logger),
	)
	srv := httpapi.NewServer(addr, handler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	rt.logger.Info("serving", "addr", ln.Addr().String(), "storage", rt.cfg.Storage.Driver, "metrics", rt.cfg.Metrics.Driver)
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newMetrics builds the operation recorder and the handler that exposes it.
// Prometheus gets its own registry with the Go and process collectors; expvar
// serves every published variable as JSON.
func newMetrics(cfg config.Metrics) (core.MetricsRecorder, http.Handler, error) {
	if cfg.Driver == config.MetricsExpvar {
		return core.NewExpvarMetricsRecorder(""), expvar.Handler(), nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return nil, nil, err
	}
	return rec, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), nil
}
