// Package servhub manages the lifecycle of locally-hosted server
// instances: discovery, start, health supervision, stop and deletion, with
// persisted configuration records kept apart from transient runtime state.
package servhub

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/servhub/internal/config"
	"github.com/loykin/servhub/internal/discovery"
	"github.com/loykin/servhub/internal/events"
	"github.com/loykin/servhub/internal/history"
	"github.com/loykin/servhub/internal/lifecycle"
	"github.com/loykin/servhub/internal/logger"
	"github.com/loykin/servhub/internal/metrics"
	"github.com/loykin/servhub/internal/procctl"
	"github.com/loykin/servhub/internal/record"
	"github.com/loykin/servhub/internal/registry"
	iapi "github.com/loykin/servhub/internal/server"
	"github.com/loykin/servhub/internal/store"
)

// Re-export core types for external consumers. Aliases, so conversions are
// zero-cost.

type ServerRecord = record.ServerRecord

type SettingDescriptor = record.SettingDescriptor

type ServerStatus = lifecycle.ServerStatus

type Status = registry.Status

type StatusError = lifecycle.StatusError

type HistorySink = history.Sink

type StoreConfig = store.Config

type Config = cfg.Config

// Manager is a thin facade over internal/lifecycle.Manager, providing a
// stable public API for embedding.
type Manager struct{ inner *lifecycle.Manager }

// Options configures a Manager built by New.
type Options struct {
	ServersDir string
	LogDir     string
	Store      store.Config
	Log        logger.Config

	// Health-check schedule overrides; zero values use the defaults
	// (10s grace, 5s retry, 5m ceiling).
	HealthGrace   time.Duration
	HealthRetry   time.Duration
	HealthTimeout time.Duration
}

// OptionsFromConfig maps a loaded config file onto Options.
func OptionsFromConfig(c *Config) Options {
	return Options{
		ServersDir:    c.ServersDir,
		LogDir:        c.LogDir,
		Store:         c.Store,
		Log:           c.Log,
		HealthGrace:   c.Health.Grace,
		HealthRetry:   c.Health.Retry,
		HealthTimeout: c.Health.Timeout,
	}
}

// New builds a fully wired Manager: KV store per options, record store
// loaded from it, filesystem scanner and the exec-based process
// controller.
func New(opts Options) (*Manager, error) {
	if opts.Store.Type == "" {
		opts.Store.Type = "memory"
	}
	kv, err := store.CreateStore(opts.Store)
	if err != nil {
		return nil, err
	}
	lg := opts.Log.Setup()
	records := record.NewStore(kv, lg)
	if err := records.Load(context.Background()); err != nil {
		return nil, err
	}
	broker := events.NewBroker()
	mgr := lifecycle.New(lifecycle.Config{
		Records:    records,
		Registry:   registry.New(),
		Scanner:    discovery.NewScanner(opts.ServersDir, lg),
		Controller: procctl.NewExecController(broker, opts.Log, lg),
		Broker:     broker,
		Logger:     lg,
		LogDir:     opts.LogDir,

		HealthGrace:   opts.HealthGrace,
		HealthRetry:   opts.HealthRetry,
		HealthTimeout: opts.HealthTimeout,
	})
	return &Manager{inner: mgr}, nil
}

func (m *Manager) SetHistorySinks(sinks ...HistorySink) { m.inner.SetHistorySinks(sinks...) }
func (m *Manager) Refresh(ctx context.Context) error    { return m.inner.Refresh(ctx) }
func (m *Manager) List() []ServerStatus                 { return m.inner.List() }
func (m *Manager) Start(ctx context.Context, key string) error {
	return m.inner.Start(ctx, key)
}
func (m *Manager) Stop(ctx context.Context, key string) error {
	return m.inner.Stop(ctx, key)
}
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.inner.Delete(ctx, key)
}
func (m *Manager) UpdateSetting(ctx context.Context, key string, partial map[string]any) error {
	return m.inner.UpdateSetting(ctx, key, partial)
}
func (m *Manager) Status(key string) (Status, error) { return m.inner.Status(key) }

// Key derives the instance key for a (name, version) pair.
func Key(name, version string) string { return record.Key(name, version) }

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHTTPServer starts an HTTP server exposing the management API.
func NewHTTPServer(addr, basePath string, m *Manager) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, m.inner)
}

// NewHTTPHandler returns the management API as an http.Handler for
// embedding into an existing server.
func NewHTTPHandler(basePath string, m *Manager) http.Handler {
	return iapi.NewRouter(m.inner, basePath).Handler()
}

// Metrics helpers (public facade).

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return srv.ListenAndServe()
}
