package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"timeclock/internal/api"
	"timeclock/internal/bot"
	"timeclock/internal/config"
	"timeclock/internal/database"
	"timeclock/internal/database/postgres"
	"timeclock/internal/events"
	"timeclock/internal/lock"
	"timeclock/internal/metrics"
	"timeclock/internal/repository"
	"timeclock/internal/service"

	_ "time/tzdata" // policy time zones on hosts without zoneinfo
)

type pingFunc func(ctx context.Context) error

func main() {
	configPath := os.Getenv("TIMECLOCK_CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		fallback := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := cfg.Policy.Build()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid policy")
	}

	repo, pings, closeStore, sqliteDB := openStore(ctx, cfg.Database, &logger)
	defer closeStore()

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		redisLocker := lock.NewRedisLocker(rdb, lock.RedisOptions{
			TTL:     time.Duration(cfg.Redis.LockTTLSeconds) * time.Second,
			MaxWait: time.Duration(cfg.Redis.LockWaitSeconds) * time.Second,
		}, &logger)
		locker = lock.NewFailoverLocker(redisLocker, locker, &logger)
		pings = append(pings, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.Info().Str("addr", cfg.Redis.Address).Msg("Redis user locks enabled")
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	bus := events.NewEventBus(&logger)
	if cfg.Kafka.Enabled {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Topics)
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka publisher error")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn().Err(err).Msg("kafka close error")
			}
		}()
		bus.Subscribe(events.Wildcard, publisher.Handler())
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka forwarding enabled")
	}

	svc := service.NewClockService(repo, locker, bus, policy, cfg.Database.MaxRetries, &logger)

	if configPath == "" {
		configPath = config.DefaultPath
	}
	if err := config.WatchPolicy(ctx, configPath, 30*time.Second, &logger, svc.SetPolicy); err != nil {
		logger.Warn().Err(err).Msg("policy hot-reload disabled")
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error().Err(err).Str("component", name).Msg("component stopped with error")
				stop()
			}
		}()
	}

	run("monitoring", func(ctx context.Context) error {
		return startMonitoringServer(ctx, cfg.Monitoring, pings, &logger)
	})

	if cfg.HTTP.Enabled {
		server := api.NewHTTPServer(cfg.HTTP, cfg.RateLimit, svc, &logger)
		run("http", server.Start)
	}

	if cfg.Telegram.Enabled {
		b, err := bot.New(cfg.Telegram.BotToken, cfg.Telegram.Debug, svc, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create bot error")
		}
		run("telegram", func(ctx context.Context) error {
			b.Start(ctx)
			return nil
		})
	}

	if sqliteDB != nil && cfg.Backup.Enabled {
		backups := database.NewBackupService(sqliteDB, cfg.Backup, &logger)
		run("backup", func(ctx context.Context) error {
			backups.Start(ctx)
			return nil
		})
	}

	logger.Info().
		Str("driver", cfg.Database.Driver).
		Str("timezone", policy.Location.String()).
		Bool("strict_gate", policy.StrictGate).
		Msg("Timeclock started")

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	wg.Wait()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.Log.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(cfg.LogLevel()).With().Timestamp().Logger()
}

// openStore returns the configured repository, its readiness probes, a
// close function and, for SQLite, the handle used by backups.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (repository.ClockRepository, []pingFunc, func(), *database.DB) {
	switch cfg.Driver {
	case "memory":
		logger.Warn().Msg("Using in-memory storage; data is lost on restart")
		return repository.NewMemoryRepository(), nil, func() {}, nil

	case "postgres":
		gdb, err := postgres.Connect(ctx, cfg.DSN, cfg.MaxConns, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open postgres error")
		}
		if err := postgres.RunMigrations(ctx, gdb, logger); err != nil {
			logger.Fatal().Err(err).Msg("postgres migrations error")
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres handle error")
		}
		return postgres.NewClockStore(gdb), []pingFunc{sqlDB.PingContext}, func() { _ = sqlDB.Close() }, nil

	default:
		db, err := database.NewDB(cfg.Path, database.Options{MaxOpenConns: cfg.MaxConns}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open db error")
		}
		return database.NewClockStore(db), []pingFunc{db.PingContext}, func() { _ = db.Close() }, db
	}
}

func startMonitoringServer(ctx context.Context, cfg config.MonitoringConfig, pings []pingFunc, logger *zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctxPing, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		for _, ping := range pings {
			if err := ping(ctxPing); err != nil {
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if cfg.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HealthCheckPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Int("port", cfg.HealthCheckPort).Msg("Monitoring server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
