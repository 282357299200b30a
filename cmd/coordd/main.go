// Command coordd runs the work queue consumers and serves the admin API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/enverbisevac/coord/config"
	"github.com/enverbisevac/coord/lock"
	"github.com/enverbisevac/coord/metrics"
	"github.com/enverbisevac/coord/queue"
	storeredis "github.com/enverbisevac/coord/store/redis"
	"github.com/enverbisevac/coord/users"
	userspgx "github.com/enverbisevac/coord/users/pgx"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", os.Getenv("COORD_CONFIG"), "path to the YAML configuration file")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	stdr.SetVerbosity(*verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.LUTC))

	if err := run(*configPath, logger); err != nil {
		logger.Error(err, "coordd failed")
		os.Exit(1)
	}
}

func run(configPath string, logger logr.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logr.NewContext(ctx, logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	s := storeredis.New(client, storeredis.WithOperationTimeout(cfg.Redis.OperationTimeout))
	if err := s.Ping(ctx); err != nil {
		// consumers back off and retry until redis comes up
		logger.Error(err, "redis not reachable at startup", "addr", cfg.Redis.Addr)
	}

	registry := queue.NewRegistry()
	registerHandlers(registry)

	locks := lock.New(s, cfg.Lock.Options()...)
	q := queue.New(s, registry, cfg.Queue.Options()...)

	reg := metrics.NewRegistry()
	metrics.Register(reg)

	srv := &server{
		log:     logger.WithName("http"),
		store:   s,
		queue:   q,
		metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		repo := userspgx.New(pool)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		srv.users = users.NewService(repo, locks, q)
	}

	for _, name := range cfg.Queue.Names {
		q.Start(ctx, name)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("coordd up", "addr", cfg.HTTP.Addr, "queues", cfg.Queue.Names)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "http shutdown")
		}
		return q.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("coordd stopped")
	return err
}
