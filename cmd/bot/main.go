package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ilinovom/hh-vacancy-bot/internal/app"
	"github.com/ilinovom/hh-vacancy-bot/internal/config"
	"github.com/ilinovom/hh-vacancy-bot/internal/hh"
	"github.com/ilinovom/hh-vacancy-bot/internal/repository"
	"github.com/ilinovom/hh-vacancy-bot/internal/scheduler"
	"github.com/ilinovom/hh-vacancy-bot/internal/server"
	"github.com/ilinovom/hh-vacancy-bot/internal/service"
	"github.com/ilinovom/hh-vacancy-bot/pkg/mlservice"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo repository.Storage
	if cfg.DatabaseURL != "" {
		repo, err = repository.NewPostgresStorage(ctx, cfg.DatabaseURL)
	} else {
		log.Printf("DATABASE_URL is not set, using local sqlite db %s", cfg.SQLitePath)
		repo, err = repository.NewSQLiteStorage(cfg.SQLitePath)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer repo.Close()

	var seen *redis.Client
	if cfg.RedisURL != "" {
		seen, err = repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal(err)
		}
		defer seen.Close()
	}

	vacancies := service.NewVacancyService(
		repo,
		hh.NewClient(cfg.SearchText, cfg.MaxPages),
		mlservice.NewClient(cfg.MLServiceURL),
		seen,
	)

	sched := scheduler.New(vacancies, cfg.SyncInterval)
	if err := sched.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer sched.Stop()

	application := app.New(cfg, repo, vacancies)
	srv := server.New(cfg.HTTPAddr, repo)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}
