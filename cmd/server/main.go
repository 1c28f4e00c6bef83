package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/saffron-pos/api/internal/auth"
	"github.com/saffron-pos/api/internal/config"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/events"
	"github.com/saffron-pos/api/internal/logger"
	"github.com/saffron-pos/api/internal/register"
	"github.com/saffron-pos/api/internal/router"
	"github.com/saffron-pos/api/internal/ws"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		zlog.Fatal("ping database", zap.Error(err))
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zlog.Fatal("parse REDIS_URL", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Fatal("ping redis", zap.Error(err))
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	pub := events.NewMulti(zlog, append([]events.Publisher{hub}, brokers(cfg, zlog)...)...)
	defer pub.Close()

	r := router.New(cfg, router.Deps{
		Queries:   database.New(pool),
		Pool:      pool,
		Hub:       hub,
		Publisher: pub,
		Registers: register.NewRedisStore(rdb, cfg.RegisterTTL),
		Sessions:  auth.NewRedisSessionStore(rdb, cfg.SessionTTL),
		Log:       zlog,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown", zap.Error(err))
	}
}

// brokers connects the external event brokers listed in EVENT_BROKERS. A
// broker that cannot be reached is skipped; terminals still get changes
// through the hub.
func brokers(cfg *config.Config, zlog *zap.Logger) []events.Publisher {
	var pubs []events.Publisher

	if cfg.BrokerEnabled("kafka") {
		pubs = append(pubs, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, zlog))
		zlog.Info("kafka publisher enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	if cfg.BrokerEnabled("nats") {
		p, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			zlog.Warn("nats publisher disabled", zap.Error(err))
		} else {
			pubs = append(pubs, p)
			zlog.Info("nats publisher enabled", zap.String("url", cfg.NATSURL))
		}
	}

	if cfg.BrokerEnabled("amqp") {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			zlog.Warn("amqp publisher disabled", zap.Error(err))
		} else {
			pubs = append(pubs, p)
			zlog.Info("amqp publisher enabled")
		}
	}

	return pubs
}
