package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/youchews/youchews-api/internal/auth"
	"github.com/youchews/youchews-api/internal/hydrate"
	"github.com/youchews/youchews-api/internal/recommend"
	"github.com/youchews/youchews-api/internal/scorer"
	"github.com/youchews/youchews-api/internal/store"
)

const defaultSQLitePath = "youchews.db"

// appEnv holds the long-lived dependencies shared by the commands.
type appEnv struct {
	Store   store.Store
	Redis   *redis.Client // may be nil
	Service *recommend.Service
}

func (e *appEnv) Close() {
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the store, migrates it and wires the pipeline.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env.Store, env.Redis = withCache(ctx, st)

	env.Service = recommend.NewService(env.Store, env.Store, initScorer(env.Store),
		hydrate.New(hydrate.Curve{Base: cfg.Recommend.ScoreBase, Step: cfg.Recommend.ScoreStep}),
		recommend.Config{
			RadiusKM:       cfg.Recommend.RadiusKM,
			MaxRadiusKM:    cfg.Recommend.MaxRadiusKM,
			CandidateLimit: cfg.Recommend.CandidateLimit,
			Count:          cfg.Recommend.Count,
			MaxCount:       cfg.Recommend.MaxCount,
			ScorerTimeout:  cfg.Scorer.Timeout(),
			ScorerDriver:   cfg.Scorer.Driver,
		})

	return env, nil
}

// withCache wraps st in the Redis catalog cache when one is configured and
// reachable. The returned client is nil when the cache is off.
func withCache(ctx context.Context, st store.Store) (store.Store, *redis.Client) {
	if cfg.Redis.Addr == "" {
		return st, nil
	}
	rdb, err := store.NewRedis(ctx, store.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		zap.L().Warn("redis unavailable, catalog cache disabled", zap.Error(err))
		return st, nil
	}
	zap.L().Info("catalog cache enabled", zap.String("addr", cfg.Redis.Addr))
	return store.NewCachedStore(st, rdb, cfg.Redis.CatalogTTL(), cfg.Redis.CatalogKeyScale), rdb
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initScorer(src scorer.ContentSource) scorer.Scorer {
	if cfg.Scorer.Driver == "content" {
		zap.L().Info("using in-process content scorer")
		return scorer.NewContentScorer(src)
	}
	zap.L().Info("using external scorer process",
		zap.String("command", cfg.Scorer.Command),
		zap.Strings("args", cfg.Scorer.Args),
		zap.Int("max_concurrent", cfg.Scorer.MaxConcurrent),
	)
	ps := scorer.NewProcessScorer(cfg.Scorer.Command, cfg.Scorer.Args,
		scorer.WithMaxConcurrent(cfg.Scorer.MaxConcurrent))
	if cfg.Scorer.BreakerThreshold <= 0 {
		return ps
	}
	return scorer.NewBreaker(ps, scorer.BreakerConfig{
		FailureThreshold: cfg.Scorer.BreakerThreshold,
		ResetTimeout:     time.Duration(cfg.Scorer.BreakerResetSecs) * time.Second,
	})
}

func initAuthorizer() (*auth.JWTAuthorizer, error) {
	return auth.NewJWTAuthorizer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
}
