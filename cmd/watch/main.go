// Package main follows the WebSocket relay and prints market events as they
// are committed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/observability"
	"prediction-market-amm/internal/relay"
)

func main() {
	endpoint := flag.String("endpoint", "ws://localhost:8080/ws", "Relay WebSocket endpoint")
	markets := flag.String("markets", "", "Comma-separated market addresses to follow (required)")
	outputJSON := flag.Bool("json", false, "Print raw JSON events")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger, err := observability.NewLogger(*logLevel, "console", os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	list := splitList(*markets)
	if len(list) == 0 {
		logger.Fatal().Msg("--markets is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := watch(ctx, *endpoint, list, *outputJSON, logger); err != nil {
		logger.Fatal().Err(err).Msg("watch failed")
	}
}

func watch(ctx context.Context, endpoint string, markets []string, asJSON bool, log zerolog.Logger) error {
	cfg := relay.DefaultClientConfig()
	client, err := relay.Dial(ctx, endpoint, &cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Subscribe(ctx, markets...); err != nil {
		return err
	}
	log.Info().Str("endpoint", endpoint).Strs("markets", markets).Msg("following")

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-client.Events():
			if !ok {
				return relay.ErrClientClosed
			}
			if asJSON {
				b, err := json.Marshal(e)
				if err != nil {
					return err
				}
				fmt.Println(string(b))
				continue
			}
			fmt.Println(describe(e))
		}
	}
}

func describe(e *domain.Event) string {
	ts := time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339)
	line := fmt.Sprintf("[%s] %-17s market=%s actor=%s seq=%d", ts, e.Type, e.Market, e.Actor, e.Sequence)

	switch e.Type {
	case domain.EventBetPlaced, domain.EventWinningsClaimed:
		line += fmt.Sprintf(" side=%s amount=%d", e.Side, e.Amount)
	case domain.EventSharesBought:
		line += fmt.Sprintf(" side=%s in=%d out=%d fee=%d", e.Side, e.Amount, e.AmountOut, e.Fee)
	case domain.EventSwapExecuted:
		line += fmt.Sprintf(" direction=%s in=%d out=%d fee=%d", e.Direction, e.Amount, e.AmountOut, e.Fee)
	case domain.EventMarketResolved:
		if e.Outcome != nil {
			line += fmt.Sprintf(" outcome=%t", *e.Outcome)
		}
	case domain.EventLiquidityAdded, domain.EventLiquidityRemoved:
		line += fmt.Sprintf(" shares=%d", e.Shares)
	case domain.EventFeesCollected:
		line += fmt.Sprintf(" fees=%d yes=%d no=%d", e.Fee, e.YesAmount, e.NoAmount)
	case domain.EventFeeRateUpdated, domain.EventPoolCreated:
		line += fmt.Sprintf(" fee_rate=%d", e.FeeRate)
	}
	if e.IsPoolEvent() {
		line += fmt.Sprintf(" reserves=%d/%d", e.YesReserves, e.NoReserves)
	}
	return line
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
