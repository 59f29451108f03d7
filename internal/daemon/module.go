// Package daemon composes the wview daemon with fx.
package daemon

import (
	"context"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rlopes/wview/internal/api"
	"github.com/rlopes/wview/internal/bus"
	"github.com/rlopes/wview/internal/config"
	"github.com/rlopes/wview/internal/ingest"
	"github.com/rlopes/wview/internal/lock"
	"github.com/rlopes/wview/internal/logging"
	"github.com/rlopes/wview/internal/metrics"
	"github.com/rlopes/wview/internal/realtime"
	"github.com/rlopes/wview/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved startup options passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRegistry,
			provideMetrics,
			providePipeline,
			provideHub,
			provideConversationHandler,
			provideWebhookHandler,
			provideWSHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	dir := filepath.Dir(cfg.DatabasePath)
	l, err := lock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("data lock acquired", zap.String("dir", dir))
	return l, nil
}

func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", cfg.DatabasePath))
	return db, nil
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func providePipeline(db *store.DB, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *ingest.Pipeline {
	return ingest.New(db, b, m, logger)
}

func provideHub(b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *realtime.Hub {
	return realtime.NewHub(b, m, logger)
}

func provideConversationHandler(db *store.DB, p *ingest.Pipeline, logger *zap.Logger) *api.ConversationHandler {
	return api.NewConversationHandler(db, p, logger)
}

func provideWebhookHandler(p *ingest.Pipeline, logger *zap.Logger) *api.WebhookHandler {
	return api.NewWebhookHandler(p, logger)
}

func provideWSHandler(hub *realtime.Hub, cfg *config.Config, logger *zap.Logger) *api.WSHandler {
	return api.NewWSHandler(hub, cfg.AllowedOrigin, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, hub *realtime.Hub, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			hub.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			hub.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
