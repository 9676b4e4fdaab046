package database

import (
	"context"

	"finance/internal/id"
	"finance/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// AccountTx is the write surface handed to WithAccount callbacks. Every
// method runs on the enclosing transaction.
type AccountTx struct {
	tx      *sqlx.Tx
	account models.Account
}

// Account returns the claimed account as read at the start of the
// transaction, with Cash reflecting any SetCash made since.
func (t *AccountTx) Account() models.Account {
	return t.account
}

func (t *AccountTx) Holding(ctx context.Context, symbol string) (models.Holding, error) {
	return getHolding(ctx, t.tx, t.account.ID, symbol)
}

func (t *AccountTx) Holdings(ctx context.Context) ([]models.Holding, error) {
	return listHoldings(ctx, t.tx, t.account.ID)
}

func (t *AccountTx) SetCash(ctx context.Context, cash decimal.Decimal) error {
	if cash.IsNegative() {
		return ErrNegativeCash
	}
	q := t.tx.Rebind(`UPDATE accounts SET cash = ? WHERE id = ?`)
	if _, err := t.tx.ExecContext(ctx, q, cash, t.account.ID); err != nil {
		return err
	}
	t.account.Cash = cash
	return nil
}

// UpsertHolding writes the holding row for its symbol. A holding sold down
// to zero must go through DeleteHolding instead.
func (t *AccountTx) UpsertHolding(ctx context.Context, h models.Holding) error {
	if h.Shares <= 0 {
		return ErrNonPositiveShares
	}
	q := t.tx.Rebind(`INSERT INTO holdings (` + holdingColumns + `) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, symbol) DO UPDATE SET
			shares = excluded.shares,
			price = excluded.price,
			total = excluded.total,
			updated_at = excluded.updated_at`)
	_, err := t.tx.ExecContext(ctx, q, t.account.ID, h.Symbol, h.Shares, h.Price, h.Total, h.UpdatedAt.UTC())
	return err
}

func (t *AccountTx) DeleteHolding(ctx context.Context, symbol string) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`DELETE FROM holdings WHERE account_id = ? AND symbol = ?`), t.account.ID, symbol)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Append inserts a transaction log entry and returns it with its assigned id.
func (t *AccountTx) Append(ctx context.Context, tr models.Transaction) (models.Transaction, error) {
	tr.AccountID = t.account.ID
	tr.Timestamp = tr.Timestamp.UTC()
	if tr.ID == "" {
		next, err := id.New(tr.Timestamp)
		if err != nil {
			return models.Transaction{}, err
		}
		tr.ID = next
	}
	row := newTransactionRow(tr)
	q := t.tx.Rebind(`INSERT INTO transactions (` + transactionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := t.tx.ExecContext(ctx, q, row.ID, row.AccountID, row.Kind, row.Symbol, row.Shares, row.Price, row.CreatedAt); err != nil {
		return models.Transaction{}, err
	}
	return tr, nil
}
