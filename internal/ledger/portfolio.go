package ledger

import (
	"context"
	"errors"

	"finance/internal/database"
	"finance/internal/models"
	"finance/internal/quote"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

type Position struct {
	models.Holding
	// Stale marks a holding whose quote could not be fetched; its price and
	// total are the last stored valuation.
	Stale bool `json:"stale,omitempty"`
}

type Warning struct {
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

type Portfolio struct {
	Cash     decimal.Decimal `json:"cash"`
	Holdings []Position      `json:"holdings"`
	// MarketValue sums the totals refreshed in this pass; stale holdings are
	// left out.
	MarketValue decimal.Decimal `json:"market_value"`
	Total       decimal.Decimal `json:"total"`
	Warnings    []Warning       `json:"warnings,omitempty"`
}

// Refresh revalues every holding of the account at current prices and
// persists the new price and total. A symbol whose lookup fails is skipped
// with a warning instead of failing the whole refresh.
func (e *Engine) Refresh(ctx context.Context, accountID string) (Portfolio, error) {
	holdings, err := e.store.ListHoldings(ctx, accountID)
	if err != nil {
		return Portfolio{}, err
	}
	if len(holdings) == 0 {
		acct, err := e.Account(ctx, accountID)
		if err != nil {
			return Portfolio{}, err
		}
		return Portfolio{Cash: acct.Cash, Holdings: []Position{}, Total: acct.Cash}, nil
	}

	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}
	quotes, failures := e.fetchQuotes(ctx, symbols)

	var out Portfolio
	err = e.mutate(ctx, accountID, func(tx *database.AccountTx) error {
		current, err := tx.Holdings(ctx)
		if err != nil {
			return err
		}
		now := e.now()
		out = Portfolio{Cash: tx.Account().Cash, Holdings: make([]Position, 0, len(current))}
		market := decimal.Zero
		for _, h := range current {
			q, ok := quotes[h.Symbol]
			if !ok {
				msg := "no quote fetched in this refresh"
				if ferr, found := failures[h.Symbol]; found {
					msg = ferr.Error()
				}
				out.Warnings = append(out.Warnings, Warning{Symbol: h.Symbol, Message: msg})
				out.Holdings = append(out.Holdings, Position{Holding: h, Stale: true})
				continue
			}
			h.Price = q.Price
			h.Total = q.Price.Mul(decimal.NewFromInt(h.Shares))
			h.UpdatedAt = now
			if err := tx.UpsertHolding(ctx, h); err != nil {
				return err
			}
			market = market.Add(h.Total)
			out.Holdings = append(out.Holdings, Position{Holding: h})
		}
		out.MarketValue = market
		out.Total = out.Cash.Add(market)
		return nil
	})
	if err != nil {
		return Portfolio{}, err
	}
	for _, w := range out.Warnings {
		e.log.WithFields(logrus.Fields{"account": accountID, "symbol": w.Symbol}).Warnf("refresh skipped: %s", w.Message)
	}
	return out, nil
}

type fetched struct {
	symbol string
	q      quote.Quote
	err    error
}

// fetchQuotes looks each symbol up once, in parallel, and splits the
// results into quotes and per-symbol failures.
func (e *Engine) fetchQuotes(ctx context.Context, symbols []string) (map[string]quote.Quote, map[string]error) {
	p := pool.NewWithResults[fetched]().WithMaxGoroutines(e.opts.RefreshWorkers)
	seen := map[string]bool{}
	for _, sym := range symbols {
		if seen[sym] {
			continue
		}
		seen[sym] = true
		sym := sym
		p.Go(func() fetched {
			q, err := e.lookup(ctx, sym)
			return fetched{symbol: sym, q: q, err: err}
		})
	}

	quotes := map[string]quote.Quote{}
	failures := map[string]error{}
	for _, f := range p.Wait() {
		if f.err != nil {
			failures[f.symbol] = f.err
			continue
		}
		quotes[f.symbol] = f.q
	}
	return quotes, failures
}

// History returns the account's transactions, newest first.
func (e *Engine) History(ctx context.Context, accountID string) ([]models.Transaction, error) {
	if _, err := e.Account(ctx, accountID); err != nil {
		return nil, err
	}
	txs, err := e.store.ListTransactions(ctx, accountID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return txs, nil
}
