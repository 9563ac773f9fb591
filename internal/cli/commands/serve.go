package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/asgardtech/pathsec/internal/api"
	"github.com/asgardtech/pathsec/internal/audit"
	"github.com/asgardtech/pathsec/internal/cli/config"
	"github.com/asgardtech/pathsec/internal/web/auth"
	"github.com/asgardtech/pathsec/internal/web/cache"
	"github.com/asgardtech/pathsec/internal/web/profiling"
	"github.com/asgardtech/pathsec/internal/web/ratelimit"
	"github.com/asgardtech/pathsec/internal/web/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the checks as a JSON HTTP API",
		Long: `Serve every operation as POST /v1/<operation> with a {"input": "..."} body,
POST /v1/batch with {"operation": "...", "inputs": [...]}, and GET /healthz.

The verdict cache, rate limiter, audit trail and bearer token authentication
are enabled through the config file or PATHSEC_* environment variables.`,
		Example: `  # Serve on the configured address
  pathsec serve

  # Override the listen address
  pathsec serve --addr :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Address()
			}

			logger := opts.logger(cfg)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := buildService(ctx, cfg, logger)
			if err != nil {
				return err
			}

			srvCfg := server.DefaultConfig(svc.handler)
			srvCfg.Address = addr
			srvCfg.ReadTimeout = cfg.Server.ReadTimeout
			srvCfg.WriteTimeout = cfg.Server.WriteTimeout
			srvCfg.IdleTimeout = cfg.Server.IdleTimeout
			if cfg.Server.TLSCertFile != "" {
				srvCfg.TLSConfig = &server.TLSConfig{CertFile: cfg.Server.TLSCertFile, KeyFile: cfg.Server.TLSKeyFile}
			}
			if svc.auditDB != nil && cfg.Audit.Driver == "pgx" {
				srvCfg.Database = server.DefaultDatabaseConfig(svc.auditDB)
			}

			srv, err := server.New(srvCfg)
			if err == nil {
				err = srv.Listen()
			}
			if err != nil {
				svc.close(context.Background())
				return err
			}

			gs := server.NewGracefulShutdown(srv, cfg.Server.ShutdownTimeout, logger)
			for _, hook := range svc.hooks {
				gs.RegisterHook(hook)
			}
			if cfg.Server.PprofAddr != "" {
				stopProfiling, err := startProfiling(cfg.Server.PprofAddr, logger)
				if err != nil {
					svc.close(context.Background())
					return err
				}
				gs.RegisterHook(stopProfiling)
			}

			logger.Info("starting pathsec",
				zap.String("version", Version),
				zap.String("addr", addr),
				zap.String("platform", cfg.Engine.Platform),
				zap.String("cache", cfg.Cache.Driver),
				zap.String("ratelimit", cfg.RateLimit.Driver),
				zap.String("audit", cfg.Audit.Driver),
				zap.Bool("auth", svc.authEnabled),
			)
			return gs.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.host and server.port)")
	return cmd
}

// service is the wired HTTP handler and the resources it holds. hooks
// release the resources in reverse order of acquisition.
type service struct {
	handler     http.Handler
	auditDB     *sql.DB
	authEnabled bool
	hooks       []server.ShutdownHook
}

func (s *service) onClose(fn func() error) {
	s.hooks = append(s.hooks, func(context.Context) error { return fn() })
}

func (s *service) close(ctx context.Context) {
	for i := len(s.hooks) - 1; i >= 0; i-- {
		_ = s.hooks[i](ctx)
	}
}

// buildService wires the engine, verdict cache, rate limiter, audit store and
// token service behind the API router
func buildService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *service, err error) {
	svc := &service{}
	defer func() {
		if err != nil {
			svc.close(context.Background())
		}
	}()

	engine, err := cfg.NewEngine()
	if err != nil {
		return nil, err
	}

	apiOpts := api.Options{
		Engine:       engine,
		Logger:       logger,
		MaxBodyBytes: cfg.MaxBodyBytes(),
		MaxBatchSize: cfg.Server.MaxBatchSize,
		Version:      Version,
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.DefaultTTL = cfg.Cache.TTL
	cacheCfg.Prefix = cfg.Cache.Prefix

	var backend cache.Cache
	switch cfg.Cache.Driver {
	case "memory":
		backend = cache.NewMemoryCacheWithConfig(cacheCfg)
	case "redis":
		backend, err = cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Config:   cacheCfg,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect verdict cache to redis: %w", err)
		}
	}
	if backend != nil {
		verdicts := cache.NewVerdicts(backend, engine.Fingerprint(), logger)
		svc.onClose(verdicts.Close)
		apiOpts.Verdicts = verdicts
	}

	if cfg.RateLimit.Driver != "none" {
		var client *redis.Client
		if cfg.RateLimit.Driver == "redis" {
			client, err = dialRedis(ctx, cfg.Redis)
			if err != nil {
				return nil, fmt.Errorf("failed to connect rate limiter to redis: %w", err)
			}
			svc.onClose(client.Close)
		}
		limiter, err := ratelimit.New(ratelimit.Options{
			Driver: cfg.RateLimit.Driver,
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
			Prefix: cfg.Cache.Prefix,
		}, client)
		if err != nil {
			return nil, err
		}
		svc.onClose(limiter.Close)
		apiOpts.Limiter = limiter
	}

	if cfg.Audit.Driver != "none" {
		db, err := audit.Open(cfg.Audit.Driver, cfg.Audit.DSN)
		if err != nil {
			return nil, err
		}
		svc.onClose(db.Close)

		ac := audit.DefaultConfig(db)
		ac.TableName = cfg.Audit.Table
		ac.Retention = cfg.Audit.Retention
		ac.Logger = logger
		store, err := audit.NewStore(ac)
		if err != nil {
			return nil, err
		}
		svc.onClose(store.Close)
		svc.auditDB = db
		apiOpts.Audit = store
	}

	if cfg.Auth.JWTSecret != "" {
		tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return nil, err
		}
		apiOpts.Tokens = tokens
		svc.authEnabled = true
	}

	svc.handler = api.NewRouter(apiOpts)
	return svc, nil
}

// startProfiling serves pprof on addr until the returned hook runs
func startProfiling(addr string, logger *zap.Logger) (server.ShutdownHook, error) {
	cfg := server.DefaultConfig(profiling.Handler())
	cfg.Address = addr
	// CPU profiles and traces stream for their whole duration
	cfg.WriteTimeout = 0

	srv, err := server.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := srv.Listen(); err != nil {
		return nil, fmt.Errorf("profiling listener: %w", err)
	}

	go func() {
		logger.Info("profiling listening", zap.String("addr", srv.Addr()))
		if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("profiling server failed", zap.Error(err))
		}
	}()
	return srv.Shutdown, nil
}

func dialRedis(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
