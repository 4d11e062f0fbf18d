package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/blogposts/internal/blog"
	"github.com/2beens/blogposts/internal/config"
	"github.com/2beens/blogposts/internal/logging"
	"github.com/2beens/blogposts/internal/store"
)

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development | test]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	count := flag.Int("count", 10, "number of random posts to insert")
	reset := flag.Bool("reset", false, "delete all the stored posts first")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx, *env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogToStdout: true,
		LogLevel:    cfg.LogLevel,
		Environment: cfg.Environment,
	})

	if *count < 0 {
		log.Fatalf("count must not be negative: %d", *count)
	}

	if err := run(ctx, cfg, *count, *reset); err != nil {
		log.Errorf("seeder failed: %s", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, count int, reset bool) error {
	repo, err := store.Open(ctx, cfg, store.Options{})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := repo.Close(closeCtx); err != nil {
			log.Errorf("close store: %s", err)
		}
	}()

	if reset {
		if err := repo.DeleteAll(ctx); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
		log.Warnln("all stored posts deleted")
	}

	posts, err := blog.Seed(ctx, repo, count)
	for _, p := range posts {
		log.Debugf("seeded post %s: [%s]", p.ID, p.Title)
	}
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	total, err := repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count posts: %w", err)
	}
	log.Infof("seeded %d posts, %d stored in total", len(posts), total)
	return nil
}
