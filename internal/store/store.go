package store

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/blogposts/internal/blog"
	"github.com/2beens/blogposts/internal/config"
	"github.com/2beens/blogposts/internal/store/boltstore"
	"github.com/2beens/blogposts/internal/store/memstore"
	"github.com/2beens/blogposts/internal/store/mongostore"
	"github.com/2beens/blogposts/internal/store/pgstore"
)

type Options struct {
	TracingEnabled bool
}

// Open returns the blog post repo selected by the store driver in cfg.
func Open(ctx context.Context, cfg *config.Config, opts Options) (blog.Repo, error) {
	log.Debugf("opening store, driver: %s", cfg.StoreDriver)

	var (
		repo blog.Repo
		err  error
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		repo, err = openMongo(ctx, cfg, opts)
	case config.StoreDriverPostgres:
		repo, err = openPostgres(ctx, cfg, opts)
	case config.StoreDriverBolt:
		repo, err = openBolt(cfg)
	case config.StoreDriverMemory:
		repo = memstore.New()
	default:
		err = fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func openMongo(ctx context.Context, cfg *config.Config, opts Options) (blog.Repo, error) {
	s, err := mongostore.Open(ctx, mongostore.OpenParams{
		URI:            cfg.DatabaseURL,
		Database:       cfg.DatabaseName,
		TracingEnabled: opts.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("open mongo store: %w", err)
	}
	return s, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, opts Options) (blog.Repo, error) {
	s, err := pgstore.Open(ctx, pgstore.OpenParams{
		ConnString:     cfg.DatabaseURL,
		TracingEnabled: opts.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	return s, nil
}

func openBolt(cfg *config.Config) (blog.Repo, error) {
	s, err := boltstore.Open(cfg.BoltPath)
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	return s, nil
}
