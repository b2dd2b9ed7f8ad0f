package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/appointix/appointix/internal/api"
	"github.com/appointix/appointix/internal/clinic"
	"github.com/appointix/appointix/internal/config"
	"github.com/appointix/appointix/internal/db"
	redisclient "github.com/appointix/appointix/internal/redis"
)

const version = "1.0.0"

// serverRepository is what the router needs from a store: the repository
// contract plus credential resolution for /login.
type serverRepository interface {
	clinic.Repository
	api.Authenticator
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo   serverRepository
		pgPool *pgxpool.Pool
	)
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			// same spirit as the original: a missing database must not
			// keep the demo from running
			log.Printf("postgres not available, using in-memory fallback: %v", err)
		} else {
			if err := db.Migrate(rootCtx, pgPool); err != nil {
				log.Fatalf("migrate: %v", err)
			}
			defer pgPool.Close()
			repo = clinic.NewPgRepository(pgPool)
			log.Println("connected to Postgres")
		}
	}
	if repo == nil {
		repo = clinic.NewDemoRepository()
		log.Println("serving in-memory demo data, nothing will be persisted")
	}

	locker := redisclient.NewLocalLocker()
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Printf("redis not available, booking locks stay in-process: %v", err)
			rdb = nil
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					log.Printf("error closing redis: %v", err)
				}
			}()
			locker = redisclient.NewRedisBookingLocker(rdb, cfg.LockTTL)
			log.Println("connected to Redis")
		}
	}

	booking := clinic.NewBookingService(repo, locker)

	router := api.NewRouter(api.RouterConfig{
		Repo:    repo,
		Auth:    repo,
		Booking: booking,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
