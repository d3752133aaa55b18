package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/urfave/cli.v1"

	"github.com/okian/picup/internal/adapters/alist"
	"github.com/okian/picup/internal/adapters/github"
	"github.com/okian/picup/internal/adapters/repository"
	service "github.com/okian/picup/internal/app"
	"github.com/okian/picup/internal/config"
	"github.com/okian/picup/internal/domain/model"
	"github.com/okian/picup/internal/i18n"
	"github.com/okian/picup/pkg/logger"
)

const redisPingTimeout = 5 * time.Second

// env is what every command runs against.
type env struct {
	cfg    *config.Config
	store  repository.Store
	svc    *service.Service
	log    logger.Logger
	closer func()
}

func (e *env) Close() {
	if e.closer != nil {
		e.closer()
	}
}

// loadConfig reads the configuration and applies the global flags.
func loadConfig(ctx context.Context, c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if lvl := c.GlobalString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if loc := c.GlobalString("locale"); loc != "" {
		cfg.Locale = loc
	}
	return cfg, nil
}

// setup initializes logging, the listing store and the upload service.
func setup(ctx context.Context, cfg *config.Config) (*env, error) {
	if err := logger.Init(logger.WithJSON(cfg.LogJSON)); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	e := &env{cfg: cfg, log: log}

	store, closeStore, err := newStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	e.store = store
	e.closer = closeStore

	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithStore(store),
		service.WithTranslator(i18n.New(cfg.Locale)),
	}

	if err := cfg.GitHub.Validate(); err == nil {
		client := github.NewClient(cfg.GitHub.Token,
			github.WithBaseURL(cfg.GitHub.BaseURL),
			github.WithTimeout(cfg.GitHub.Timeout),
			github.WithLogger(log.Named("github")),
		)
		opts = append(opts, service.WithGitHub(client, model.RepoConfig{
			Owner:       cfg.GitHub.Owner,
			Repo:        cfg.GitHub.Repo,
			Branch:      cfg.GitHub.Branch,
			Email:       cfg.GitHub.Email,
			SelectedDir: cfg.GitHub.SelectedDir,
		}))
	} else {
		log.Debug(ctx, "github backend disabled", logger.Error(err))
	}

	if err := cfg.Alist.Validate(); err == nil {
		client := alist.NewClient(cfg.Alist.Server, cfg.Alist.Username, cfg.Alist.Password,
			alist.WithTimeout(cfg.Alist.Timeout),
			alist.WithLogger(log.Named("alist")),
		)
		opts = append(opts, service.WithAlist(client, model.AlistConfig{
			Server:   cfg.Alist.Server,
			Username: cfg.Alist.Username,
			Password: cfg.Alist.Password,
			Path:     cfg.Alist.Path,
		}))
	} else {
		log.Debug(ctx, "alist backend disabled", logger.Error(err))
	}

	e.svc = service.New(opts...)
	return e, nil
}

func newStore(ctx context.Context, cfg config.Store) (repository.Store, func(), error) {
	if cfg.Kind != config.StoreRedis {
		return repository.NewMemoryStore(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}

	store := repository.NewRedisStore(client, repository.WithKeyPrefix(cfg.RedisPrefix))
	return store, func() { _ = store.Close() }, nil
}
