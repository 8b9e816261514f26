package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/config"
	"uniqsocial/client/internal/devserver"
	"uniqsocial/client/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func setupStorage(cfg config.Server) (storage.Storage, devserver.Broker) {
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		var err error
		rdb, err = storage.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect Redis: %v", err)
		}
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect Redis: %v", err)
		}
	}

	var broker devserver.Broker
	if cfg.DatabaseURL == "" {
		log.Println("INFO: DATABASE_URL not set, using the in-memory store")
		if rdb != nil {
			broker = storage.NewStorageService(nil, rdb)
		}
		return storage.NewMemoryStore(), broker
	}

	db, err := storage.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}
	s := storage.NewStorageService(db, rdb)
	if err := s.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	if rdb != nil {
		broker = s
	}
	log.Println("Database connection established, migrations complete.")
	return s, broker
}

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	pflag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	debug := pflag.Bool("debug", false, "gin debug logging")
	pflag.Parse()

	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, broker := setupStorage(cfg)
	hub := devserver.NewHub(s, broker)
	go hub.Run(ctx)
	go devserver.NewScheduler(s, hub, clock.Real()).Run(ctx)

	tokens := devserver.NewTokenService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	h := devserver.NewHandler(s, tokens, hub, devserver.NewMatcher(s))

	server := &http.Server{
		Addr:           cfg.Addr,
		Handler:        h.Router(),
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("WARNING: shutdown: %v", err)
		}
	}()

	log.Printf("INFO: dev server listening on %s", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
