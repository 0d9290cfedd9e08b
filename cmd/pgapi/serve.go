package pgapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/pgapi/pkg/config"
	"github.com/edgeflare/pgapi/pkg/events"
	"github.com/edgeflare/pgapi/pkg/httputil"
	mw "github.com/edgeflare/pgapi/pkg/httputil/middleware"
	"github.com/edgeflare/pgapi/pkg/metrics"
	"github.com/edgeflare/pgapi/pkg/pgx"
	"github.com/edgeflare/pgapi/pkg/pgx/schema"
	"github.com/edgeflare/pgapi/pkg/rest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Starts a REST API server that provides CRUD endpoints for PostgreSQL entities`,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("rest.pg.connString", "c", "", "PostgreSQL connection string")
	f.StringP("rest.listenAddr", "l", ":8080", "REST server listen address")
	f.String("rest.baseURL", "", "Path prefix of all endpoints, e.g. /api")
	f.StringSlice("rest.schemas", []string{"public"}, "Schemas to introspect")
	f.Bool("rest.introspect", true, "Expose the tables and views of rest.schemas")
	f.Bool("rest.watchSchema", true, "Reload entities on NOTIFY pgapi, 'reload schema'")
	f.String("metrics.addr", ":9100", "Prometheus metrics listen address")
	f.Bool("metrics.enabled", true, "Serve Prometheus metrics")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, zap.L())
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	pool, err := pgx.NewPool(ctx, pgx.PoolConfig{
		ConnString:  cfg.REST.PG.ConnString,
		MaxConns:    cfg.REST.PG.MaxConns,
		MinConns:    cfg.REST.PG.MinConns,
		PingTimeout: cfg.REST.PG.PingTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	registry, err := loadRegistry(ctx, cfg.REST, pool)
	if err != nil {
		return err
	}
	logger.Info("entities loaded", zap.Strings("entities", registry.Entities()))

	compiler, err := cfg.REST.Compiler()
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg.Events)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	api := rest.New(pgx.NewStore(pool, registry), registry,
		rest.WithLogger(logger),
		rest.WithCompiler(compiler),
		rest.WithHooks(hooks(cfg.REST)),
	)

	router := httputil.NewRouter(
		httputil.WithLogger(logger),
		httputil.WithServerOptions(func(s *http.Server) {
			s.ReadHeaderTimeout = 10 * time.Second
		}),
	)
	router.Use(
		mw.RequestID,
		mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}),
		mw.CORSWithOptions(cfg.REST.CORS),
	)

	base := router.Group(cfg.REST.BaseURL)
	for _, name := range registry.Entities() {
		opts := entityOptions(cfg.REST, name)
		if publisher != nil {
			opts = withEvents(opts, events.Hook(publisher, logger))
		}
		if err := api.Register(base, name, opts); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	if cfg.REST.Introspect && cfg.REST.WatchSchema {
		if err := watchSchema(ctx, &wg, pool, registry, cfg.REST.Schemas, logger); err != nil {
			return err
		}
	}
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.Addr,
			Path:   cfg.Metrics.Path,
			Logger: logger,
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- router.ListenAndServe(cfg.REST.ListenAddr)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	wg.Wait()

	logger.Info("server gracefully stopped")
	return nil
}

func loadRegistry(ctx context.Context, cfg config.RESTConfig, pool *pgxpool.Pool) (*schema.Registry, error) {
	declared := make([]schema.Entity, 0, len(cfg.Entities))
	for _, e := range cfg.Entities {
		declared = append(declared, e.Entity)
	}
	if !cfg.Introspect {
		return schema.NewRegistry(nil, declared...), nil
	}
	tables, err := schema.Load(ctx, pool, cfg.Schemas...)
	if err != nil {
		return nil, fmt.Errorf("introspect schemas: %w", err)
	}
	return schema.NewRegistry(tables, declared...), nil
}

// watchSchema listens for reload notifications on a connection taken out of
// the pool for the lifetime of ctx.
func watchSchema(ctx context.Context, wg *sync.WaitGroup, pool *pgxpool.Pool, registry *schema.Registry, schemas []string, logger *zap.Logger) error {
	pc, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	conn := pc.Hijack()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close(context.Background())

		reload := func(ctx context.Context) error {
			return registry.Reload(ctx, pool, schemas...)
		}
		if err := schema.Watch(ctx, conn, reload, logger); err != nil {
			logger.Error("schema watch stopped", zap.Error(err))
		}
	}()
	return nil
}

func hooks(cfg config.RESTConfig) rest.Hooks {
	var h rest.Hooks
	if len(cfg.BasicAuth) == 0 {
		return h
	}
	auth := mw.VerifyBasicAuth(mw.BasicAuthCreds(cfg.BasicAuth))
	h.Auth = auth
	if len(cfg.Admins) > 0 {
		requireAdmin := mw.RequireUser(cfg.Admins...)
		h.Admin = func(next http.Handler) http.Handler {
			return auth(requireAdmin(next))
		}
	}
	return h
}

func entityOptions(cfg config.RESTConfig, name string) *rest.Options {
	for _, e := range cfg.Entities {
		if e.Name == name {
			opts := e.Options
			return &opts
		}
	}
	return nil
}

// withEvents appends hook to the After hooks of the mutating methods.
func withEvents(opts *rest.Options, hook rest.AfterHook) *rest.Options {
	out := rest.Options{}
	if opts != nil {
		out = *opts
	}
	after := make(map[rest.Method][]rest.AfterHook, len(out.After)+3)
	for m, hs := range out.After {
		after[m] = hs
	}
	for _, m := range []rest.Method{rest.MethodCreate, rest.MethodUpdate, rest.MethodDelete} {
		after[m] = append(after[m], hook)
	}
	out.After = after
	return &out
}

func newPublisher(cfg config.EventsConfig) (events.Publisher, error) {
	var pubs events.Multi
	if cfg.Kafka != nil {
		p, err := events.NewKafkaPublisher(*cfg.Kafka)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if cfg.NATS != nil {
		p, err := events.NewNATSPublisher(*cfg.NATS)
		if err != nil {
			pubs.Close()
			return nil, err
		}
		pubs = append(pubs, p)
	}
	switch len(pubs) {
	case 0:
		return nil, nil
	case 1:
		return pubs[0], nil
	}
	return pubs, nil
}
