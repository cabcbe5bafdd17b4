package app

import (
	"context"
	"fmt"

	"github.com/dshills/datakit/internal/data"
	"github.com/dshills/datakit/internal/history"
	"github.com/dshills/datakit/internal/logging"
	"github.com/dshills/datakit/internal/persist"
	"github.com/dshills/datakit/internal/stores/bindings"
	"github.com/dshills/datakit/internal/stores/entities"
	"github.com/dshills/datakit/internal/stores/preferences"
)

// bootstrapper initializes components in dependency order and releases
// them on failure.
type bootstrapper struct {
	app  *Application
	opts Options
}

func newBootstrapper(app *Application, opts Options) *bootstrapper {
	return &bootstrapper{app: app, opts: opts}
}

func (b *bootstrapper) bootstrap() error {
	steps := []struct {
		component string
		init      func() error
	}{
		{"logger", b.initLogger},
		{"persistence", b.initPersistence},
		{"registry", b.initRegistry},
		{"stores", b.initStores},
		{"scripts", b.initScripts},
	}
	for _, step := range steps {
		if err := step.init(); err != nil {
			b.app.release()
			return &InitError{Component: step.component, Err: err}
		}
	}
	b.app.logger.Debug("application started", "stores", b.app.registry.StoreNames())
	return nil
}

func (b *bootstrapper) initLogger() error {
	if b.opts.Logger != nil {
		b.app.logger = b.opts.Logger
	} else {
		b.app.logger = logging.New(b.app.config.LoggerConfig())
	}
	b.app.metrics = NewMetrics()
	return nil
}

func (b *bootstrapper) initPersistence() error {
	cfg := b.app.config.Persistence
	if !cfg.Enabled {
		return nil
	}
	logger := b.app.logger

	storage, err := persist.NewStorage(cfg.Backend, cfg.Path)
	if err != nil {
		return err
	}
	b.app.storage = storage
	b.app.iface = persist.NewInterface(storage,
		persist.WithStorageKey(cfg.StorageKey),
		persist.WithInterfaceLogger(logger))

	if err := persist.MigrateThirdPartyFeaturePreferences(b.app.iface); err != nil {
		return fmt.Errorf("migrate preferences: %w", err)
	}
	for _, source := range b.opts.MigrateSources {
		if err := persist.MigrateFeaturePreferences(b.app.iface, source); err != nil {
			return fmt.Errorf("migrate preferences of %s: %w", source, err)
		}
	}

	if b.opts.Watch {
		ctx, cancel := context.WithCancel(context.Background())
		if err := b.app.iface.Watch(ctx); err != nil {
			cancel()
			return fmt.Errorf("watch storage: %w", err)
		}
		b.app.stopWatch = cancel
	}

	b.app.debounced = persist.NewDebounced(b.app.iface, cfg.Debounce, logger)
	b.app.plugin = persist.NewPlugin(b.app.debounced, persist.WithPluginLogger(logger))
	logger.Debug("persistence ready", "backend", cfg.Backend, "path", cfg.Path)
	return nil
}

func (b *bootstrapper) initRegistry() error {
	opts := []data.Option{
		data.WithLogger(b.app.logger),
		data.WithSelectorCacheSize(b.app.config.Selectors.CacheSize),
		data.WithInterceptor(b.app.metrics.Interceptor()),
	}
	if b.app.plugin != nil {
		opts = append(opts, data.WithInterceptor(b.app.plugin.Interceptor()))
	}
	b.app.registry = data.NewRegistry(opts...)
	return nil
}

func (b *bootstrapper) initStores() error {
	r := b.app.registry
	if err := preferences.Register(r); err != nil {
		return err
	}

	entityOpts := []entities.Option{
		entities.WithLogger(b.app.logger),
		entities.WithHistory(history.NewManager(history.WithMaxEntries(b.app.config.History.MaxEntries))),
	}
	if b.opts.RecordsDir != "" {
		entityOpts = append(entityOpts, entities.WithFetcher(entities.NewFileFetcher(b.opts.RecordsDir)))
	}
	b.app.entities = entities.New(entityOpts...)
	if err := b.app.entities.Register(r); err != nil {
		return err
	}

	return bindings.Register(r)
}

func (b *bootstrapper) initScripts() error {
	paths := append(append([]string(nil), b.app.config.Scripts.Paths...), b.opts.Scripts...)
	for _, path := range paths {
		if _, err := b.app.LoadScript(path); err != nil {
			return err
		}
	}
	return nil
}
