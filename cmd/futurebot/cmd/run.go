package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnernvsinjsbt/futurebot/market"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect live candles and maintain multi-timeframe buffers",
	Long: `Run connects to the exchange kline stream for every configured symbol,
backfills each aggregator from historical klines, and then keeps the
multi-timeframe candle buffers current until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := buildStack(cfgFile)
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.client.SyncTime(ctx); err != nil {
			return fmt.Errorf("sync server time: %w", err)
		}

		base, err := market.ParseInterval(s.cfg.Trading.BaseInterval)
		if err != nil {
			return err
		}
		timeframes := make([]market.Interval, 0, len(s.cfg.Trading.Timeframes))
		for _, tf := range s.cfg.Trading.Timeframes {
			iv, err := market.ParseInterval(tf)
			if err != nil {
				return err
			}
			timeframes = append(timeframes, iv)
		}

		errc := make(chan error, len(s.cfg.Trading.Symbols))
		for _, sym := range s.cfg.Trading.Symbols {
			agg, err := market.NewAggregator(sym, base, timeframes, s.cfg.Trading.BufferSize, s.sink)
			if err != nil {
				return err
			}
			if err := backfill(ctx, s, agg); err != nil {
				s.log.Warn("backfill failed, starting from live data only",
					zap.String("symbol", sym), zap.Error(err))
			}

			feed := market.NewFeed(s.cfg.Exchange.WSURL, agg, s.log)
			go func() { errc <- feed.Run(ctx) }()
		}

		s.log.Info("collection running",
			zap.Strings("symbols", s.cfg.Trading.Symbols),
			zap.String("base_interval", base.String()))

		<-ctx.Done()
		s.log.Info("shutting down")
		// Feeds stop on context cancellation; drain one error to observe it.
		select {
		case <-errc:
		case <-time.After(2 * time.Second):
		}
		return nil
	},
}

// backfill seeds the aggregator with history so snapshots are useful
// immediately instead of after hours of live collection.
func backfill(ctx context.Context, s *stack, agg *market.Aggregator) error {
	candles, err := s.client.GetKlines(ctx, agg.Symbol(), agg.Base(), time.Time{}, time.Time{}, s.cfg.Trading.BufferSize)
	if err != nil {
		return err
	}
	applied := 0
	for _, c := range candles {
		if agg.Apply(c) {
			applied++
		}
	}
	s.log.Info("backfill complete",
		zap.String("symbol", agg.Symbol()),
		zap.Int("fetched", len(candles)),
		zap.Int("applied", applied))
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
