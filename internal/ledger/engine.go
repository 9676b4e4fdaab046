package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finance/internal/database"
	"finance/internal/models"
	"finance/internal/quote"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Store is the persistence the engine needs. WithAccount must run fn in a
// single transaction serialized per account and report lost races as
// database.ErrConflict.
type Store interface {
	GetAccount(ctx context.Context, id string) (models.Account, error)
	GetHolding(ctx context.Context, accountID, symbol string) (models.Holding, error)
	ListHoldings(ctx context.Context, accountID string) ([]models.Holding, error)
	ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error)
	WithAccount(ctx context.Context, accountID string, fn func(*database.AccountTx) error) error
}

type Options struct {
	// MaxDeposit caps a single deposit, in whole dollars.
	MaxDeposit     int64
	QuoteTimeout   time.Duration
	MaxRetries     uint64
	RetryBase      time.Duration
	RefreshWorkers int
}

func DefaultOptions() Options {
	return Options{
		MaxDeposit:     10000,
		QuoteTimeout:   5 * time.Second,
		MaxRetries:     5,
		RetryBase:      10 * time.Millisecond,
		RefreshWorkers: 4,
	}
}

type Engine struct {
	store  Store
	quotes quote.Provider
	log    *logrus.Logger
	opts   Options
	now    func() time.Time
}

func NewEngine(s Store, q quote.Provider, log *logrus.Logger, opts Options) *Engine {
	def := DefaultOptions()
	if opts.MaxDeposit <= 0 {
		opts.MaxDeposit = def.MaxDeposit
	}
	if opts.QuoteTimeout <= 0 {
		opts.QuoteTimeout = def.QuoteTimeout
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = def.RetryBase
	}
	if opts.RefreshWorkers <= 0 {
		opts.RefreshWorkers = def.RefreshWorkers
	}
	return &Engine{
		store:  s,
		quotes: q,
		log:    log,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Receipt describes the state left behind by a successful mutation.
type Receipt struct {
	Transaction models.Transaction `json:"transaction"`
	Cash        decimal.Decimal    `json:"cash"`
	// Holding is nil for deposits and for sells that closed the position.
	Holding *models.Holding `json:"holding,omitempty"`
}

// Quote looks a symbol up with the engine's timeout applied.
func (e *Engine) Quote(ctx context.Context, symbol string) (quote.Quote, error) {
	symbol = quote.Normalize(symbol)
	if symbol == "" {
		return quote.Quote{}, ErrInvalidSymbol
	}
	return e.lookup(ctx, symbol)
}

func (e *Engine) Account(ctx context.Context, accountID string) (models.Account, error) {
	a, err := e.store.GetAccount(ctx, accountID)
	if errors.Is(err, database.ErrNotFound) {
		return models.Account{}, ErrAccountNotFound
	}
	return a, err
}

type lookupResult struct {
	q   quote.Quote
	err error
}

// lookup bounds a provider call by QuoteTimeout even when the provider
// ignores its context.
func (e *Engine) lookup(ctx context.Context, symbol string) (quote.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.QuoteTimeout)
	defer cancel()

	ch := make(chan lookupResult, 1)
	go func() {
		q, err := e.quotes.Lookup(ctx, symbol)
		ch <- lookupResult{q: q, err: err}
	}()

	var res lookupResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		if errors.Is(res.err, quote.ErrNotFound) {
			return quote.Quote{}, ErrInvalidSymbol
		}
		e.log.WithField("symbol", symbol).Warnf("quote lookup failed: %v", res.err)
		return quote.Quote{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, symbol, res.err)
	}
	if !res.q.Price.IsPositive() {
		return quote.Quote{}, ErrInvalidSymbol
	}
	if res.q.Symbol == "" {
		res.q.Symbol = symbol
	}
	return res.q, nil
}

// mutate runs fn as one account-scoped transaction, retrying lost races with
// exponential backoff before giving up with ErrStoreConflict.
func (e *Engine) mutate(ctx context.Context, accountID string, fn func(*database.AccountTx) error) error {
	backoff := retry.WithMaxRetries(e.opts.MaxRetries, retry.NewExponential(e.opts.RetryBase))
	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := e.store.WithAccount(ctx, accountID, fn)
		if errors.Is(err, database.ErrConflict) {
			e.log.WithFields(logrus.Fields{"account": accountID, "attempt": attempts}).Debug("store conflict, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrConflict):
		e.log.WithField("account", accountID).Warnf("giving up after %d conflicting attempts", attempts)
		return fmt.Errorf("%w: account %s after %d attempts", ErrStoreConflict, accountID, attempts)
	case errors.Is(err, database.ErrNotFound):
		return ErrAccountNotFound
	}
	return err
}
