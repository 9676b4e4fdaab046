package ledger

import (
	"context"
	"errors"

	"finance/internal/database"
	"finance/internal/models"
	"finance/internal/quote"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Buy debits cash by price × shares, adds the shares to the holding and
// logs a buy, all in one transaction. The price is looked up once.
func (e *Engine) Buy(ctx context.Context, req BuyRequest) (Receipt, error) {
	if req.Shares <= 0 {
		return Receipt{}, ErrInvalidQuantity
	}
	symbol := quote.Normalize(req.Symbol)
	if symbol == "" {
		return Receipt{}, ErrInvalidSymbol
	}
	q, err := e.lookup(ctx, symbol)
	if err != nil {
		return Receipt{}, err
	}
	cost := q.Price.Mul(decimal.NewFromInt(req.Shares))

	var receipt Receipt
	err = e.mutate(ctx, req.AccountID, func(tx *database.AccountTx) error {
		acct := tx.Account()
		if cost.GreaterThan(acct.Cash) {
			return ErrInsufficientFunds
		}
		now := e.now()

		h, err := tx.Holding(ctx, q.Symbol)
		switch {
		case errors.Is(err, database.ErrNotFound):
			h = models.Holding{AccountID: acct.ID, Symbol: q.Symbol, Shares: req.Shares, Total: cost}
		case err != nil:
			return err
		default:
			h.Shares += req.Shares
			h.Total = h.Total.Add(cost)
		}
		h.Price = q.Price
		h.UpdatedAt = now

		cash := acct.Cash.Sub(cost)
		if err := tx.SetCash(ctx, cash); err != nil {
			return err
		}
		if err := tx.UpsertHolding(ctx, h); err != nil {
			return err
		}
		tr, err := tx.Append(ctx, models.Transaction{
			Kind:      models.KindBuy,
			Symbol:    q.Symbol,
			Shares:    req.Shares,
			Price:     q.Price,
			Timestamp: now,
		})
		if err != nil {
			return err
		}
		receipt = Receipt{Transaction: tr, Cash: cash, Holding: &h}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	e.log.WithFields(logrus.Fields{
		"account": req.AccountID,
		"symbol":  q.Symbol,
		"shares":  req.Shares,
		"price":   q.Price.String(),
	}).Info("buy executed")
	return receipt, nil
}

// Sell credits price × shares, shrinks or removes the holding and logs a
// sell. Proceeds are computed once and used for both cash and the log.
func (e *Engine) Sell(ctx context.Context, req SellRequest) (Receipt, error) {
	symbol := quote.Normalize(req.Symbol)
	if symbol == "" {
		return Receipt{}, ErrMissingSymbol
	}
	if req.Shares <= 0 {
		return Receipt{}, ErrInvalidQuantity
	}

	// Ownership is checked before the quote so rejections keep their order;
	// the transaction re-checks it against committed state.
	held, err := e.store.GetHolding(ctx, req.AccountID, symbol)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return Receipt{}, ErrNotOwned
	case err != nil:
		return Receipt{}, err
	case req.Shares > held.Shares:
		return Receipt{}, ErrInsufficientShares
	}

	q, err := e.lookup(ctx, symbol)
	if errors.Is(err, ErrInvalidSymbol) {
		return Receipt{}, ErrQuoteUnavailable
	}
	if err != nil {
		return Receipt{}, err
	}
	proceeds := q.Price.Mul(decimal.NewFromInt(req.Shares))

	var receipt Receipt
	err = e.mutate(ctx, req.AccountID, func(tx *database.AccountTx) error {
		h, err := tx.Holding(ctx, symbol)
		switch {
		case errors.Is(err, database.ErrNotFound):
			return ErrNotOwned
		case err != nil:
			return err
		case req.Shares > h.Shares:
			return ErrInsufficientShares
		}
		now := e.now()

		var remaining *models.Holding
		if h.Shares == req.Shares {
			if err := tx.DeleteHolding(ctx, symbol); err != nil {
				return err
			}
		} else {
			h.Shares -= req.Shares
			h.Price = q.Price
			h.Total = q.Price.Mul(decimal.NewFromInt(h.Shares))
			h.UpdatedAt = now
			if err := tx.UpsertHolding(ctx, h); err != nil {
				return err
			}
			remaining = &h
		}

		cash := tx.Account().Cash.Add(proceeds)
		if err := tx.SetCash(ctx, cash); err != nil {
			return err
		}
		tr, err := tx.Append(ctx, models.Transaction{
			Kind:      models.KindSell,
			Symbol:    symbol,
			Shares:    req.Shares,
			Price:     q.Price,
			Timestamp: now,
		})
		if err != nil {
			return err
		}
		receipt = Receipt{Transaction: tr, Cash: cash, Holding: remaining}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	e.log.WithFields(logrus.Fields{
		"account": req.AccountID,
		"symbol":  symbol,
		"shares":  req.Shares,
		"price":   q.Price.String(),
	}).Info("sell executed")
	return receipt, nil
}

// Deposit credits whole dollars up to the configured per-deposit cap.
func (e *Engine) Deposit(ctx context.Context, req DepositRequest) (Receipt, error) {
	if req.Amount <= 0 {
		return Receipt{}, ErrInvalidAmount
	}
	if req.Amount > e.opts.MaxDeposit {
		return Receipt{}, ErrDepositTooLarge
	}
	amount := decimal.NewFromInt(req.Amount)

	var receipt Receipt
	err := e.mutate(ctx, req.AccountID, func(tx *database.AccountTx) error {
		cash := tx.Account().Cash.Add(amount)
		if err := tx.SetCash(ctx, cash); err != nil {
			return err
		}
		tr, err := tx.Append(ctx, models.Transaction{
			Kind:      models.KindDeposit,
			Price:     amount,
			Timestamp: e.now(),
		})
		if err != nil {
			return err
		}
		receipt = Receipt{Transaction: tr, Cash: cash}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	e.log.WithFields(logrus.Fields{"account": req.AccountID, "amount": req.Amount}).Info("deposit applied")
	return receipt, nil
}

func (e *Engine) MaxDeposit() int64 {
	return e.opts.MaxDeposit
}
