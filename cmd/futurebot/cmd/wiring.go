package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dgnernvsinjsbt/futurebot/config"
	"github.com/dgnernvsinjsbt/futurebot/events"
	"github.com/dgnernvsinjsbt/futurebot/exchange"
	"github.com/dgnernvsinjsbt/futurebot/journal"
	"github.com/dgnernvsinjsbt/futurebot/logger"
)

// stack bundles everything the commands wire up from config.
type stack struct {
	cfg    *config.Config
	log    *zap.Logger
	sink   events.Sink
	client *exchange.Client
	jnl    journal.Journal
}

func buildStack(path string) (*stack, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	budget := exchange.NewRateBudget(map[exchange.Class]exchange.ClassLimit{
		exchange.ClassMarket:  {Requests: cfg.Rate.Market.Requests, Window: cfg.Rate.Market.Window.Std()},
		exchange.ClassTrade:   {Requests: cfg.Rate.Trade.Requests, Window: cfg.Rate.Trade.Window.Std()},
		exchange.ClassAccount: {Requests: cfg.Rate.Account.Requests, Window: cfg.Rate.Account.Window.Std()},
	})
	transport := exchange.NewTransport(cfg.Exchange, budget)
	client := exchange.NewClient(transport)

	var jnl journal.Journal
	switch cfg.Journal.Type {
	case "sqlite":
		jnl, err = journal.NewSQLite(cfg.Journal.DBPath)
	case "csv":
		jnl, err = journal.NewCSV(cfg.Journal.TradesFile)
	default:
		jnl = journal.Nop{}
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &stack{
		cfg:    cfg,
		log:    log,
		sink:   events.NewZapSink(log),
		client: client,
		jnl:    jnl,
	}, nil
}

func (s *stack) close() {
	if err := s.jnl.Close(); err != nil {
		s.log.Warn("journal close failed", zap.Error(err))
	}
	_ = s.log.Sync()
}
