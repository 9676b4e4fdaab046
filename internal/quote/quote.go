package quote

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotFound means the provider does not know the symbol.
var ErrNotFound = errors.New("symbol not found")

type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// Provider resolves a ticker symbol to its current price. Implementations
// must be safe for concurrent use and must honor ctx cancellation.
type Provider interface {
	Lookup(ctx context.Context, symbol string) (Quote, error)
}

// Normalize trims and upper-cases a ticker symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
