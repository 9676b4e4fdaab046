package ledger

import (
	"strconv"
	"strings"

	"finance/internal/quote"
)

type BuyRequest struct {
	AccountID string
	Symbol    string
	Shares    int64
}

type SellRequest struct {
	AccountID string
	Symbol    string
	Shares    int64
}

type DepositRequest struct {
	AccountID string
	Amount    int64
}

// ParseBuy turns raw form values into a BuyRequest. The share count is
// checked before the symbol.
func ParseBuy(accountID, symbol, shares string) (BuyRequest, error) {
	n, ok := parseCount(shares)
	if !ok {
		return BuyRequest{}, ErrInvalidQuantity
	}
	sym := quote.Normalize(symbol)
	if sym == "" {
		return BuyRequest{}, ErrInvalidSymbol
	}
	return BuyRequest{AccountID: accountID, Symbol: sym, Shares: n}, nil
}

// ParseSell turns raw form values into a SellRequest, reporting a missing
// symbol before a bad share count.
func ParseSell(accountID, symbol, shares string) (SellRequest, error) {
	sym := quote.Normalize(symbol)
	if sym == "" {
		return SellRequest{}, ErrMissingSymbol
	}
	n, ok := parseCount(shares)
	if !ok {
		return SellRequest{}, ErrInvalidQuantity
	}
	return SellRequest{AccountID: accountID, Symbol: sym, Shares: n}, nil
}

func ParseDeposit(accountID, amount string) (DepositRequest, error) {
	n, ok := parseCount(amount)
	if !ok {
		return DepositRequest{}, ErrInvalidAmount
	}
	return DepositRequest{AccountID: accountID, Amount: n}, nil
}

// parseCount accepts only plain decimal digits denoting a positive integer.
func parseCount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
