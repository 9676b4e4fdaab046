package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBuy(t *testing.T) {
	tests := []struct {
		name           string
		symbol, shares string
		want           BuyRequest
		wantErr        error
	}{
		{"valid", " aapl ", "10", BuyRequest{AccountID: "a", Symbol: "AAPL", Shares: 10}, nil},
		{"non numeric shares", "AAPL", "ten", BuyRequest{}, ErrInvalidQuantity},
		{"fractional shares", "AAPL", "1.5", BuyRequest{}, ErrInvalidQuantity},
		{"signed shares", "AAPL", "+3", BuyRequest{}, ErrInvalidQuantity},
		{"zero shares", "AAPL", "0", BuyRequest{}, ErrInvalidQuantity},
		{"shares checked first", "", "", BuyRequest{}, ErrInvalidQuantity},
		{"missing symbol", "", "3", BuyRequest{}, ErrInvalidSymbol},
		{"overflow", "AAPL", "99999999999999999999", BuyRequest{}, ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBuy("a", tt.symbol, tt.shares)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSell(t *testing.T) {
	tests := []struct {
		name           string
		symbol, shares string
		wantErr        error
	}{
		{"valid", "msft", "2", nil},
		{"missing symbol first", "", "abc", ErrMissingSymbol},
		{"missing shares", "MSFT", "", ErrInvalidQuantity},
		{"negative shares", "MSFT", "-2", ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSell("a", tt.symbol, tt.shares)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr == nil {
				assert.Equal(t, SellRequest{AccountID: "a", Symbol: "MSFT", Shares: 2}, got)
			}
		})
	}
}

func TestParseDeposit(t *testing.T) {
	got, err := ParseDeposit("a", " 250 ")
	assert.NoError(t, err)
	assert.Equal(t, DepositRequest{AccountID: "a", Amount: 250}, got)

	for _, raw := range []string{"", "0", "-1", "12.50", "1e3", "abc"} {
		_, err := ParseDeposit("a", raw)
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
}
