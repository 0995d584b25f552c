package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appcfg "github.com/gambitlab/gamecore/internal/config"
	"github.com/gambitlab/gamecore/internal/httpapi"
	"github.com/gambitlab/gamecore/internal/match"
	"github.com/gambitlab/gamecore/internal/matchmaking"
	"github.com/gambitlab/gamecore/internal/obslog"
	"github.com/gambitlab/gamecore/internal/realtime"
	"github.com/gambitlab/gamecore/internal/sweep"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("redis connect error: %v", err)
	}
	cancel()

	pub := realtime.NewRedisPublisher(rdb)

	// Without a database the service runs with in-memory ratings and no
	// match archive; fine for development, not for production.
	var ratings match.RatingStore = match.NewMemoryRatingStore()
	var repo *match.Repository
	if cfg.DatabaseURL != "" {
		repo, err = match.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("repository init error: %v", err)
		}
		ratings = repo
	} else {
		obslog.L().Warn("no DATABASE_URL; ratings are in-memory and matches are not archived")
	}

	matches := match.NewManager(rdb, pub, ratings)
	matches.SetTTL(cfg.MatchTTL)
	if repo != nil {
		matches.AttachArchive(repo)
	}

	pairer := matchmaking.NewPairer(rdb, matches)
	api := httpapi.NewServer(pairer, matches)
	gateway := realtime.NewGateway(rdb, cfg.WSAddr)
	sweeper := sweep.New(matches, cfg.SweepInterval)

	rootCtx, stop := context.WithCancel(context.Background())
	go sweeper.Run(rootCtx)
	go func() {
		obslog.L().Info("ws gateway listening", zap.String("addr", cfg.WSAddr))
		if err := gateway.ListenAndServe(); err != nil {
			obslog.L().Error("ws gateway error", zap.Error(err))
		}
	}()
	go func() {
		obslog.L().Info("api listening", zap.String("addr", cfg.ListenAddr))
		if err := api.ListenAndServe(cfg.ListenAddr); err != nil {
			obslog.L().Error("api server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("shutting down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = api.Shutdown(shutdownCtx)
	_ = gateway.Shutdown(shutdownCtx)
	_ = rdb.Close()
	if repo != nil {
		_ = repo.Close()
	}
}
