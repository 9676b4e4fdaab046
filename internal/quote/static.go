package quote

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Static serves prices from a fixed table that can be changed at runtime.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	fail   map[string]error
}

func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{prices: map[string]decimal.Decimal{}, fail: map[string]error{}}
	for sym, p := range prices {
		s.prices[Normalize(sym)] = p
	}
	return s
}

func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[Normalize(symbol)] = price
	delete(s.fail, Normalize(symbol))
}

// Fail makes every lookup of symbol return err until the next Set.
func (s *Static) Fail(symbol string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[Normalize(symbol)] = err
}

func (s *Static) Lookup(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	symbol = Normalize(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.fail[symbol]; ok {
		return Quote{}, err
	}
	price, ok := s.prices[symbol]
	if !ok {
		return Quote{}, ErrNotFound
	}
	return Quote{Symbol: symbol, Name: symbol, Price: price}, nil
}
