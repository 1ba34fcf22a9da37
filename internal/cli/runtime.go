package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"entitygraph/internal/blob"
	"entitygraph/internal/config"
	"entitygraph/internal/core"
	"entitygraph/pkg/domain"
)

// runtime is the wired set of dependencies a command works with.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	store  domain.PersistentStore
	blobs  blob.Store
	svc    *core.Service
}

func openRuntime(ctx context.Context, opts *RootOptions, logOut io.Writer) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return openRuntimeWith(ctx, cfg, logOut)
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// openRuntimeWith wires stores and the service from an already loaded cfg.
func openRuntimeWith(ctx context.Context, cfg *config.Config, logOut io.Writer, svcOpts ...core.ServiceOption) (*runtime, error) {
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}

	engine := core.NewDefaultRulesEngine(cfg.Policy)
	store, err := core.OpenPersistentStore(cfg.Storage, engine, cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = core.CloseStore(store)
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}

	base := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithAuditRecorder(slogAuditRecorder{logger: logger}),
	}
	svc := core.NewService(store, append(base, svcOpts...)...)
	logger.Debug("runtime ready", "storage", cfg.Storage.Driver, "blob", string(blobs.Driver()), "config", cfg.Path())
	return &runtime{cfg: cfg, logger: logger, store: store, blobs: blobs, svc: svc}, nil
}

func (r *runtime) Close() error {
	return core.CloseStore(r.store)
}

// newLogger builds the process slog logger from cfg.
func newLogger(cfg config.Log, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	default:
		return nil, errors.New("log format must be json or text")
	}
}

// slogAuditRecorder writes audit entries as structured log records.
type slogAuditRecorder struct {
	logger *slog.Logger
}

func (a slogAuditRecorder) Record(ctx context.Context, entry core.AuditEntry) {
	attrs := []any{
		"operation", entry.Operation,
		"entity", string(entry.Entity),
		"action", string(entry.Action),
		"entity_id", entry.EntityID,
		"status", string(entry.Status),
		"duration", entry.Duration,
	}
	if entry.Error != "" {
		attrs = append(attrs, "error", entry.Error)
	}
	a.logger.InfoContext(ctx, "audit", slog.Group("audit", attrs...))
}
