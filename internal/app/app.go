// Package app wires datakit together: logger, registry, persistence, the
// built-in stores and Lua-scripted stores. It owns their lifecycle.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/datakit/internal/config"
	"github.com/dshills/datakit/internal/data"
	"github.com/dshills/datakit/internal/logging"
	"github.com/dshills/datakit/internal/persist"
	"github.com/dshills/datakit/internal/script"
	"github.com/dshills/datakit/internal/stores/entities"
)

// ShutdownTimeout bounds flushing pending saves on Close.
const ShutdownTimeout = 5 * time.Second

// Application is the central coordinator for datakit components.
type Application struct {
	mu sync.Mutex

	config  *config.Config
	logger  *logging.Logger
	metrics *Metrics

	registry *data.Registry
	entities *entities.Store
	scripts  []*script.Script

	// Persistence chain: storage <- interface <- debouncer <- plugin.
	storage   persist.Storage
	iface     *persist.Interface
	debounced *persist.Debounced
	plugin    *persist.Plugin

	stopWatch context.CancelFunc
	closed    atomic.Bool
}

// Options configures the application.
type Options struct {
	// Config is the loaded configuration. Nil uses config.Default().
	Config *config.Config

	// Logger overrides the logger built from Config.
	Logger *logging.Logger

	// Scripts are Lua store files loaded after Config.Scripts.Paths.
	Scripts []string

	// RecordsDir serves entity records to the core store's resolver from
	// <dir>/<kind>/<name>.json. Empty disables the resolver.
	RecordsDir string

	// Watch invalidates cached persisted data when another process writes
	// the storage.
	Watch bool

	// MigrateSources are stores whose feature preferences are moved into
	// core/preferences at startup.
	MigrateSources []string
}

// New creates an Application and initializes every component. Components
// already initialized are released when a later one fails.
func New(opts Options) (*Application, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	app := &Application{config: opts.Config}
	if err := newBootstrapper(app, opts).bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// Config returns the configuration.
func (app *Application) Config() *config.Config {
	return app.config
}

// Logger returns the application logger.
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// Registry returns the store registry.
func (app *Application) Registry() *data.Registry {
	return app.registry
}

// Entities returns the core entity store.
func (app *Application) Entities() *entities.Store {
	return app.entities
}

// Scripts returns the loaded Lua stores.
func (app *Application) Scripts() []*script.Script {
	app.mu.Lock()
	defer app.mu.Unlock()
	return append([]*script.Script(nil), app.scripts...)
}

// Metrics returns the dispatch metrics.
func (app *Application) Metrics() *Metrics {
	return app.metrics
}

// Persistence returns the storage-key interface, or nil when persistence
// is disabled.
func (app *Application) Persistence() *persist.Interface {
	return app.iface
}

// LoadScript loads a Lua store file and registers it.
func (app *Application) LoadScript(path string) (*script.Script, error) {
	if app.closed.Load() {
		return nil, ErrClosed
	}
	sc, err := script.LoadFile(path,
		script.WithLogger(app.logger),
		script.WithTimeout(app.config.Scripts.Timeout))
	if err != nil {
		return nil, err
	}
	if err := sc.Register(app.registry); err != nil {
		sc.Close()
		return nil, err
	}

	app.mu.Lock()
	app.scripts = append(app.scripts, sc)
	app.mu.Unlock()

	app.logger.Info("script store loaded", "store", sc.Name(), "path", path)
	return sc, nil
}

// Flush writes pending debounced saves.
func (app *Application) Flush(ctx context.Context) error {
	if app.debounced == nil {
		return nil
	}
	return app.debounced.Flush(ctx)
}

// Close flushes pending saves and releases every component. Close is
// idempotent.
func (app *Application) Close() error {
	if !app.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, app.release()...)
	app.logger.Debug("application closed")
	return errors.Join(errs...)
}

// release closes components in reverse dependency order.
func (app *Application) release() []error {
	var errs []error
	if app.stopWatch != nil {
		app.stopWatch()
		app.stopWatch = nil
	}
	if app.registry != nil {
		errs = append(errs, app.registry.Close())
		app.registry = nil
	}

	app.mu.Lock()
	for _, sc := range app.scripts {
		errs = append(errs, sc.Close())
	}
	app.scripts = nil
	app.mu.Unlock()

	if app.debounced != nil {
		errs = append(errs, app.debounced.Close())
		app.debounced = nil
	}
	if app.storage != nil {
		errs = append(errs, app.storage.Close())
		app.storage = nil
	}
	return errs
}
