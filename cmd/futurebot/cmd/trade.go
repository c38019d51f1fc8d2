package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnernvsinjsbt/futurebot/exchange"
	"github.com/dgnernvsinjsbt/futurebot/executor"
	"github.com/dgnernvsinjsbt/futurebot/risk"
	"github.com/dgnernvsinjsbt/futurebot/signal"
)

var (
	tradeSymbol    string
	tradeDirection string
	tradeEntry     float64
	tradeStop      float64
	tradeTake      float64
	tradeQty       float64
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Place one protected trade (entry + stop-loss + take-profit)",
	Long: `Trade submits a single entry order and attaches protective stop-loss and
take-profit orders. If protection cannot be established the position is
flattened. With --qty 0 the quantity is sized from account equity and the
configured risk percentage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := buildStack(cfgFile)
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.client.SyncTime(ctx); err != nil {
			return fmt.Errorf("sync server time: %w", err)
		}

		dir := signal.Direction(tradeDirection)
		entryType := signal.MarketEntry
		entryPrice := tradeEntry
		if tradeEntry > 0 {
			entryType = signal.LimitEntry
		} else {
			// Market entry: anchor risk sizing on the current price.
			entryPrice, err = s.client.GetTicker(ctx, tradeSymbol)
			if err != nil {
				return err
			}
		}

		sig := signal.Signal{
			Symbol:     tradeSymbol,
			Direction:  dir,
			Entry:      entryType,
			EntryPrice: entryPrice,
			StopLoss:   tradeStop,
			TakeProfit: tradeTake,
			Time:       time.Now().UTC(),
			Reason:     "manual",
		}
		if err := sig.Validate(); err != nil {
			return err
		}

		qty := tradeQty
		if qty == 0 {
			balance, err := s.client.GetBalance(ctx)
			if err != nil {
				return err
			}
			sized := risk.Calculate(risk.Inputs{
				Equity:     balance.Available,
				RiskPct:    s.cfg.Trading.RiskPercent,
				EntryPrice: entryPrice,
				StopPrice:  tradeStop,
			})
			qty = sized.Quantity
			s.log.Info("sized from risk",
				zap.Float64("equity", balance.Available),
				zap.Float64("quantity", qty),
				zap.Float64("risk_amount", sized.RiskAmount))
		}

		positions, err := s.client.GetPositions(ctx, tradeSymbol)
		if err != nil {
			return err
		}
		decision := risk.Evaluate(
			risk.Policy{
				DefaultRiskPct: s.cfg.Trading.RiskPercent,
				MaxRiskPct:     2 * s.cfg.Trading.RiskPercent,
				MaxOpenTrades:  3,
				MinRR:          1.0,
			},
			risk.TradeIntent{
				Symbol:     tradeSymbol,
				Quantity:   qty,
				Entry:      entryPrice,
				Stop:       tradeStop,
				TakeProfit: tradeTake,
			},
			risk.AccountSnapshot{
				Equity:     equityOrFallback(ctx, s),
				OpenTrades: len(positions),
			},
		)
		if !decision.Allowed {
			for _, v := range decision.Violations {
				s.log.Warn("risk check failed", zap.String("code", v.Code), zap.String("msg", v.Msg))
			}
			return fmt.Errorf("trade rejected by risk policy (%d violations)", len(decision.Violations))
		}

		posSide := exchange.Long
		if dir == signal.Short {
			posSide = exchange.Short
		}
		if err := s.client.SetLeverage(ctx, tradeSymbol, posSide, s.cfg.Trading.Leverage); err != nil {
			return err
		}

		exec := executor.New(s.client, s.sink, s.jnl, executor.Config{
			FillWaitAttempts: s.cfg.Executor.FillWaitAttempts,
			FillWaitDelay:    s.cfg.Executor.FillWaitDelay.Std(),
			ProtectAttempts:  s.cfg.Executor.ProtectAttempts,
			ProtectDelay:     s.cfg.Executor.ProtectDelay.Std(),
		})

		pos, err := exec.Execute(ctx, sig, qty)
		if err != nil {
			return err
		}

		fmt.Printf("position %s %s qty=%v entry=%v stop=%v take=%v state=%s\n",
			pos.Symbol, pos.Direction, pos.Quantity, pos.EntryPrice,
			pos.StopLoss.Price, pos.TakeProfit.Price, pos.State)
		return nil
	},
}

func equityOrFallback(ctx context.Context, s *stack) float64 {
	balance, err := s.client.GetBalance(ctx)
	if err != nil {
		return 0
	}
	return balance.Total
}

func init() {
	tradeCmd.Flags().StringVar(&tradeSymbol, "symbol", "", "contract symbol, e.g. BTC-USDT")
	tradeCmd.Flags().StringVar(&tradeDirection, "direction", "", "LONG or SHORT")
	tradeCmd.Flags().Float64Var(&tradeEntry, "entry", 0, "limit entry price (0 = market entry)")
	tradeCmd.Flags().Float64Var(&tradeStop, "stop", 0, "stop-loss price")
	tradeCmd.Flags().Float64Var(&tradeTake, "take", 0, "take-profit price")
	tradeCmd.Flags().Float64Var(&tradeQty, "qty", 0, "quantity (0 = size from risk config)")
	_ = tradeCmd.MarkFlagRequired("symbol")
	_ = tradeCmd.MarkFlagRequired("direction")
	_ = tradeCmd.MarkFlagRequired("stop")
	_ = tradeCmd.MarkFlagRequired("take")
	rootCmd.AddCommand(tradeCmd)
}
