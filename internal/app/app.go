package app

import (
	"context"
	"fmt"

	"finance/internal/auth"
	"finance/internal/config"
	"finance/internal/database"
	"finance/internal/ledger"
	"finance/internal/quote"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// App holds the wired services shared by the server and the admin CLI.
type App struct {
	DB     *sqlx.DB
	Repo   *database.Repo
	Quotes quote.Provider
	Engine *ledger.Engine
	Auth   *auth.Service
}

func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, log); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	quotes, err := NewQuoteProvider(cfg.Quotes, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	repo := database.New(db, log)
	engine := ledger.NewEngine(repo, quotes, log, ledger.Options{
		MaxDeposit:     cfg.Ledger.MaxDeposit,
		QuoteTimeout:   cfg.Quotes.Timeout,
		MaxRetries:     cfg.Ledger.MaxRetries,
		RetryBase:      cfg.Ledger.RetryBase,
		RefreshWorkers: cfg.Ledger.RefreshWorkers,
	})
	authSvc := auth.NewService(repo, log, auth.Options{
		StartingCash: cfg.Ledger.StartingCash,
		SessionTTL:   cfg.Auth.SessionTTL,
		BcryptCost:   cfg.Auth.BcryptCost,
	})
	return &App{DB: db, Repo: repo, Quotes: quotes, Engine: engine, Auth: authSvc}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

func NewQuoteProvider(cfg config.QuoteConfig, log *logrus.Logger) (quote.Provider, error) {
	switch cfg.Provider {
	case config.ProviderIEX:
		return quote.NewIEX(cfg.BaseURL, cfg.APIKey, cfg.Timeout, log), nil
	case config.ProviderSimulated:
		return quote.NewSimulated(cfg.Seed, log), nil
	case config.ProviderStatic:
		prices, err := cfg.StaticPrices()
		if err != nil {
			return nil, err
		}
		return quote.NewStatic(prices), nil
	}
	return nil, fmt.Errorf("unknown quote provider %q", cfg.Provider)
}
