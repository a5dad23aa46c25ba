// Package main replays the event journal against stored markets and pools
// and reports every divergence.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"prediction-market-amm/internal/config"
	"prediction-market-amm/internal/observability"
	chstore "prediction-market-amm/internal/storage/clickhouse"
	pgstore "prediction-market-amm/internal/storage/postgres"
	"prediction-market-amm/internal/verification"
)

func main() {
	configPath := flag.String("config", os.Getenv("PM_CONFIG"), "Path to YAML config (optional)")
	market := flag.String("market", "", "Verify one market address instead of all")
	output := flag.String("output", "", "Write the Markdown report to this file instead of stdout")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Log.Level, "console", os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	// Only persistent backends have anything to verify
	if cfg.Storage.Backend != "postgres" || cfg.Storage.ClickhouseDSN == "" {
		logger.Fatal().Msg("verification needs storage.backend=postgres and storage.clickhouse_dsn")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := verify(ctx, cfg.Storage, *market, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("verification failed")
	}

	if err := write(report, *output, *outputJSON); err != nil {
		logger.Fatal().Err(err).Msg("write report")
	}

	logger.Info().
		Int("markets", report.TotalMarkets).
		Int("matched", report.MatchedMarkets).
		Int("divergent", report.DivergentMarkets).
		Int("events", report.TotalEvents).
		Msg("verification finished")
	if report.DivergentMarkets > 0 {
		os.Exit(2)
	}
}

func verify(ctx context.Context, cfg config.StorageConfig, market string, log zerolog.Logger) (*verification.VerificationReport, error) {
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	v := verification.NewJournalVerifier(pgstore.NewStore(pool), chstore.NewEventStore(conn))
	if market == "" {
		log.Info().Msg("verifying all markets")
		return v.VerifyAll(ctx)
	}

	log.Info().Str("market", market).Msg("verifying market")
	res, err := v.VerifyMarket(ctx, market)
	if err != nil {
		return nil, err
	}
	report := &verification.VerificationReport{
		TotalMarkets: 1,
		TotalEvents:  res.Events,
		Results:      []verification.VerificationResult{*res},
	}
	if res.Match {
		report.MatchedMarkets = 1
	} else {
		report.DivergentMarkets = 1
	}
	return report, nil
}

func write(report *verification.VerificationReport, path string, asJSON bool) error {
	var out []byte
	if asJSON {
		b, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		out = append(b, '\n')
	} else {
		out = []byte(verification.RenderMarkdown(report, time.Now()))
	}

	if path == "" {
		_, err := os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
