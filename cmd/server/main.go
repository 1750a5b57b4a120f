package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/internal/alerting"
	"github.com/hbenali/sensor-hub/internal/api"
	"github.com/hbenali/sensor-hub/internal/broadcast"
	"github.com/hbenali/sensor-hub/internal/cache"
	"github.com/hbenali/sensor-hub/internal/ingest"
	"github.com/hbenali/sensor-hub/internal/notify"
	"github.com/hbenali/sensor-hub/internal/queue"
	"github.com/hbenali/sensor-hub/internal/settings"
	"github.com/hbenali/sensor-hub/internal/storage"
	"github.com/hbenali/sensor-hub/internal/weather"
	"github.com/hbenali/sensor-hub/pkg/config"
	"github.com/hbenali/sensor-hub/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format, "sensor-hub")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("starting sensor hub")

	db, err := storage.Connect(cfg.Database.ConnectionString())
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.RunMigrations("migrations"); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}
	zlog.Info("database ready")

	store, err := settings.NewStore(db, settings.Thresholds{
		MaxTemperature: cfg.Alerting.MaxTemperature,
		MinTemperature: cfg.Alerting.MinTemperature,
		LDRThreshold:   cfg.Alerting.LDRThreshold,
	}, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize settings", zap.Error(err))
	}

	engine := alerting.NewEngine(zlog)
	bus := broadcast.New(cfg.Broadcast.SubscriberBacklog, cfg.Broadcast.RecentSize, zlog)

	dispatcher := notify.NewDispatcher(db, zlog,
		notify.NewEmailTransport(&cfg.SMTP),
		notify.NewSMSTransport(&cfg.SMS),
		notify.NewChatTransport(&cfg.Chat),
	)

	opts := ingest.Options{
		Weather:  weather.NewClient(&cfg.Weather, zlog),
		Exporter: storage.NewCSVExporter(cfg.Export.CSVDir),
	}

	var latestGetter api.LatestGetter
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			zlog.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		latest := cache.NewLatestCache(rdb, cfg.Redis.LatestTTL)
		opts.Cache = latest
		latestGetter = latest
		zlog.Info("redis latest-record cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	service := ingest.NewService(db, engine, store, dispatcher, bus, opts, zlog)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Kafka.Enabled() {
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRecords)
		defer producer.Close()

		bridge := queue.NewRecordBridge(producer, bus, zlog)
		bridge.Start(rootCtx)
		defer bridge.Stop()
		zlog.Info("kafka record bridge started",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.TopicRecords))
	}

	if cfg.MQTT.Enabled() {
		source, err := ingest.NewMQTTSource(&cfg.MQTT, service, zlog)
		if err != nil {
			zlog.Fatal("failed to connect to mqtt broker", zap.Error(err))
		}
		if err := source.Start(rootCtx); err != nil {
			zlog.Fatal("failed to subscribe to mqtt readings", zap.Error(err))
		}
		defer source.Stop()
	}

	handler := api.NewHandler(service, db, latestGetter, store, engine, bus, zlog)
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:     api.NewRouter(handler),
		ReadTimeout: 15 * time.Second,
		// No write timeout: websocket connections are long-lived.
	}

	go func() {
		zlog.Info("http server listening", zap.Int("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zlog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http shutdown incomplete", zap.Error(err))
	}

	// Let in-flight notification deliveries finish.
	dispatcher.Wait()
}
