// Package sofi assembles the Social Finance API client: token store, event
// bus, refresh-aware HTTP transport, session manager, and the typed API
// surfaces, wired together from one Config.
package sofi

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/socialfinance/sofi-go/analyses"
	"github.com/socialfinance/sofi-go/client"
	"github.com/socialfinance/sofi-go/events"
	"github.com/socialfinance/sofi-go/internal/config"
	"github.com/socialfinance/sofi-go/internal/metrics"
	"github.com/socialfinance/sofi-go/session"
	"github.com/socialfinance/sofi-go/subscriptions"
	"github.com/socialfinance/sofi-go/tokens"
	"github.com/socialfinance/sofi-go/transport"
	"github.com/socialfinance/sofi-go/users"
)

// Config re-exports the environment configuration type.
type Config = config.Config

// LoadConfig parses the SOFI_* environment variables.
func LoadConfig() (*Config, error) {
	return config.Load()
}

// App is the fully wired client.
type App struct {
	Session       *session.Session
	Users         *users.Service
	Analyses      *analyses.Service
	Subscriptions *subscriptions.Service
	Client        *client.Client
	Store         tokens.Store
	Bus           *events.Bus
}

// Option configures optional App wiring.
type Option func(*appOptions)

type appOptions struct {
	store    tokens.Store
	registry prometheus.Registerer
}

// WithStore substitutes the token store, e.g. a MemoryStore for an
// ephemeral session that must not touch disk.
func WithStore(s tokens.Store) Option {
	return func(o *appOptions) { o.store = s }
}

// WithMetrics registers transport metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *appOptions) { o.registry = reg }
}

// New wires an App from cfg. The returned App owns its event bus; callers
// that care about clean shutdown call Close.
func New(cfg *Config, log zerolog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("[sofi.New] config is required")
	}

	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		fs, err := tokens.NewFileStore(cfg.TokenFile)
		if err != nil {
			return nil, errors.Wrap(err, "[sofi.New] open token store")
		}
		store = fs
	}

	bus := events.NewBus()

	var collector *metrics.Collector
	if o.registry != nil {
		collector = metrics.NewCollector(o.registry)
	}

	tr, err := transport.New(transport.Deps{
		Store:   store,
		Bus:     bus,
		BaseURL: trimOrigin(cfg.APIURL) + client.APIPrefix,
	},
		transport.WithLogger(log),
		transport.WithMetrics(collector),
		transport.WithRateLimit(cfg.RateLimit),
	)
	if err != nil {
		bus.Close()
		return nil, err
	}

	api, err := client.New(cfg.APIURL, &http.Client{Transport: tr, Timeout: cfg.Timeout}, log)
	if err != nil {
		bus.Close()
		return nil, err
	}

	sess, err := session.New(session.Deps{
		API:       api,
		Store:     store,
		Transport: tr,
		Bus:       bus,
	}, session.WithLogger(log))
	if err != nil {
		bus.Close()
		return nil, err
	}

	userSvc, err := users.NewService(api)
	if err != nil {
		bus.Close()
		return nil, err
	}
	analysisSvc, err := analyses.NewService(api)
	if err != nil {
		bus.Close()
		return nil, err
	}
	subSvc, err := subscriptions.NewService(api)
	if err != nil {
		bus.Close()
		return nil, err
	}

	return &App{
		Session:       sess,
		Users:         userSvc,
		Analyses:      analysisSvc,
		Subscriptions: subSvc,
		Client:        api,
		Store:         store,
		Bus:           bus,
	}, nil
}

// Close drains and stops the event bus.
func (a *App) Close() {
	a.Bus.Close()
}

func trimOrigin(origin string) string {
	for len(origin) > 0 && origin[len(origin)-1] == '/' {
		origin = origin[:len(origin)-1]
	}
	return origin
}
