// Package app assembles a client instance from configuration: the storage
// backend, the persistent session store, the router with its guard, the API
// client and the session that ties them together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	bolt "go.etcd.io/bbolt"

	"github.com/jmcleod/ballotbox/api"
	"github.com/jmcleod/ballotbox/config"
	"github.com/jmcleod/ballotbox/router"
	"github.com/jmcleod/ballotbox/session"
	"github.com/jmcleod/ballotbox/storage"
	"github.com/jmcleod/ballotbox/storage/bbolt"
	"github.com/jmcleod/ballotbox/storage/memory"
	"github.com/jmcleod/ballotbox/storage/postgres"
	"github.com/jmcleod/ballotbox/storage/redis"
)

// boltOpenTimeout bounds the wait for the bolt file lock held by another
// process.
const boltOpenTimeout = 2 * time.Second

// Option configures New.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	repo       storage.Repository
	routes     []router.Route
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient replaces the API transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithRepository uses repo instead of opening the configured store. The
// caller keeps ownership of repo.
func WithRepository(repo storage.Repository) Option {
	return func(o *options) { o.repo = repo }
}

// WithRoutes replaces the default route table.
func WithRoutes(routes []router.Route) Option {
	return func(o *options) { o.routes = routes }
}

// App is one assembled client. Independent Apps share nothing.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Store   *session.PersistentStore
	Router  *router.Router
	API     *api.Client
	Session *session.Session

	closers []io.Closer
}

// New builds an App from cfg. The API client's 401 hook and the guard's
// forced logout both resolve to Session.Logout.
func New(cfg config.Config, opts ...Option) (*App, error) {
	o := options{routes: router.DefaultRoutes()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg, Logger: o.logger}

	repo := o.repo
	if repo == nil {
		var closer io.Closer
		var err error
		repo, closer, err = openRepository(cfg)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	var storeOpts []session.StoreOption
	if cfg.SealSecret != "" {
		storeOpts = append(storeOpts, session.WithSealSecret(cfg.SealSecret))
	}
	store, err := session.NewPersistentStore(repo, storeOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating session store: %w", err)
	}
	a.Store = store

	r, err := router.New(o.routes, router.WithLogger(o.logger.With(slog.String("component", "router"))))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building router: %w", err)
	}
	a.Router = r

	clientOpts := []api.Option{
		api.WithLogger(o.logger.With(slog.String("component", "api"))),
		api.WithTimeout(cfg.HTTPTimeout),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(o.httpClient))
	}
	client, err := api.New(cfg.APIBaseURL, store, clientOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building api client: %w", err)
	}
	a.API = client

	sess, err := session.New(store, client, r, session.WithLogger(o.logger.With(slog.String("component", "session"))))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Session = sess
	r.Bind(sess)
	client.OnUnauthorized(sess.Logout)

	return a, nil
}

// Open navigates to the view at path, as if the user had typed it.
func (a *App) Open(path string) (router.Result, error) {
	return a.Router.NavigatePath(path)
}

// Close releases the storage backend and wipes the seal key.
func (a *App) Close() error {
	if a.Store != nil {
		a.Store.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openRepository(cfg config.Config) (storage.Repository, io.Closer, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.NewRepository(), nil, nil
	case config.StoreBolt:
		if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating state dir: %w", err)
		}
		st, err := bbolt.NewRepositoryFromFile(cfg.BoltPath(), &bolt.Options{Timeout: boltOpenTimeout})
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st := redis.NewRepository(client, redis.WithPrefix(cfg.Redis.Prefix), redis.WithTimeout(cfg.HTTPTimeout))
		return st, st, nil
	case config.StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
		defer cancel()
		st, err := postgres.NewRepositoryFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
