// Package main runs the prediction market service:
// - HTTP API for market, pool and account operations
// - WebSocket relay of committed market events at /ws
// - Prometheus metrics on a separate listener
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"prediction-market-amm/internal/address"
	"prediction-market-amm/internal/api"
	"prediction-market-amm/internal/auth"
	"prediction-market-amm/internal/clock"
	"prediction-market-amm/internal/config"
	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/engine"
	"prediction-market-amm/internal/events"
	"prediction-market-amm/internal/lock"
	"prediction-market-amm/internal/observability"
	"prediction-market-amm/internal/relay"
	"prediction-market-amm/internal/storage"
	chstore "prediction-market-amm/internal/storage/clickhouse"
	"prediction-market-amm/internal/storage/memory"
	"prediction-market-amm/internal/storage/migrations"
	pgstore "prediction-market-amm/internal/storage/postgres"
)

const relayGaugeInterval = 5 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("PM_CONFIG"), "Path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server stopped")
}

// stores holds the record store and the journal plus their cleanup.
type stores struct {
	records storage.Store
	journal storage.EventStore
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.Backend {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		if cfg.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				s.close()
				return nil, err
			}
		}
		s.records = pgstore.NewStore(pool)
		log.Info().Msg("using postgres record store")
	default:
		s.records = memory.NewStore()
		log.Warn().Msg("using in-memory record store; state is lost on restart")
	}

	if cfg.ClickhouseDSN == "" {
		s.journal = memory.NewEventStore()
		return s, nil
	}

	var conn *chstore.Conn
	var err error
	if cfg.Migrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	} else {
		conn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
	}
	if err != nil {
		s.close()
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = conn.Close() })
	s.journal = chstore.NewEventStore(conn)
	log.Info().Msg("using clickhouse event journal")
	return s, nil
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	st, err := openStores(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(cfg.Metrics.Namespace, reg)

	deriver, err := address.NewDeriver(cfg.Market.ProgramID)
	if err != nil {
		return fmt.Errorf("program id: %w", err)
	}

	hub := relay.NewHub(log)
	fanout := events.NewFanout(log).With("journal", events.NewJournal(st.journal))

	var locker lock.Locker = lock.NewMemory()
	var relaySource <-chan *domain.Event
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}

		locker = lock.NewRedis(rdb, cfg.Redis.LockTTL, cfg.Redis.LockRetry)
		pubsub := events.NewRedis(rdb)
		fanout.With("redis", pubsub)
		// Every instance relays what any instance published.
		if relaySource, err = pubsub.Subscribe(ctx); err != nil {
			return err
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis locks and event fan-out")
	} else {
		fanout.With("relay", hub)
	}

	if cfg.Kafka.Enabled {
		k, err := events.NewKafka(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			Compression:  cfg.Kafka.Compression,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := k.Close(); err != nil {
				log.Warn().Err(err).Msg("close kafka writer")
			}
		}()
		fanout.With("kafka", k)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing events to kafka")
	}

	eng, err := engine.New(engine.Options{
		Store:          st.records,
		Deriver:        deriver,
		Locker:         locker,
		Sink:           fanout,
		Clock:          clock.System{},
		Pricing:        &cfg.Market.Pricing,
		DefaultFeeRate: cfg.Market.DefaultFeeRate,
		Metrics:        metrics,
		Logger:         &log,
	})
	if err != nil {
		return err
	}

	var verifier *auth.Verifier
	if cfg.Server.AuthRequired {
		verifier = auth.NewVerifier(clock.System{}, cfg.Server.MaxClockSkew)
	} else {
		log.Warn().Msg("request signatures disabled; X-PM-Key is trusted as is")
	}

	apiServer := api.New(api.Options{
		Engine:    eng,
		Verifier:  verifier,
		AdminKey:  cfg.Server.AdminKey,
		RateLimit: rate.Limit(cfg.RateLimit.RPS),
		Burst:     cfg.RateLimit.Burst,
		WebSocket: http.HandlerFunc(hub.HandleWS),
		Metrics:   metrics,
		Logger:    &log,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           observability.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(gctx, relaySource)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(relayGaugeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				metrics.RelayClients.Set(float64(hub.ClientCount()))
			}
		}
	})

	for _, srv := range []*http.Server{httpServer, metricsServer} {
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(httpServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
