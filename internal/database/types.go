package database

import (
	"database/sql"
	"time"

	"finance/internal/models"

	"github.com/shopspring/decimal"
)

// transactionRow mirrors the transactions table, where deposits leave
// symbol and shares NULL.
type transactionRow struct {
	ID        string          `db:"id"`
	AccountID string          `db:"account_id"`
	Kind      string          `db:"kind"`
	Symbol    sql.NullString  `db:"symbol"`
	Shares    sql.NullInt64   `db:"shares"`
	Price     decimal.Decimal `db:"price"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r transactionRow) model() models.Transaction {
	return models.Transaction{
		ID:        r.ID,
		AccountID: r.AccountID,
		Kind:      models.TxKind(r.Kind),
		Symbol:    r.Symbol.String,
		Shares:    r.Shares.Int64,
		Price:     r.Price,
		Timestamp: r.CreatedAt.UTC(),
	}
}

func newTransactionRow(t models.Transaction) transactionRow {
	row := transactionRow{
		ID:        t.ID,
		AccountID: t.AccountID,
		Kind:      string(t.Kind),
		Price:     t.Price,
		CreatedAt: t.Timestamp.UTC(),
	}
	if t.Kind != models.KindDeposit {
		row.Symbol = sql.NullString{String: t.Symbol, Valid: true}
		row.Shares = sql.NullInt64{Int64: t.Shares, Valid: true}
	}
	return row
}
