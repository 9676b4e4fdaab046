package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID        string          `db:"id" json:"account_id"`
	Username  string          `db:"username" json:"username"`
	Hash      string          `db:"hash" json:"-"`
	Cash      decimal.Decimal `db:"cash" json:"cash"`
	Version   int64           `db:"version" json:"-"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type Holding struct {
	AccountID string          `db:"account_id" json:"-"`
	Symbol    string          `db:"symbol" json:"symbol"`
	Shares    int64           `db:"shares" json:"shares"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Total     decimal.Decimal `db:"total" json:"total"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

type TxKind string

const (
	KindDeposit TxKind = "deposit"
	KindBuy     TxKind = "buy"
	KindSell    TxKind = "sell"
)

// Transaction is one immutable entry of the account's log. Symbol and Shares
// are empty for deposits, where Price carries the deposited amount.
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"-"`
	Kind      TxKind          `json:"type"`
	Symbol    string          `json:"symbol,omitempty"`
	Shares    int64           `json:"shares,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"date"`
}

type Session struct {
	Token     string    `db:"token" json:"token"`
	AccountID string    `db:"account_id" json:"account_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}
