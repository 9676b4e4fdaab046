package quote

import (
	"context"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Simulated invents prices for any well-formed ticker. The first lookup of a
// symbol draws a price between 50 and 5000; each later lookup moves it by at
// most 2% so portfolios drift between refreshes.
type Simulated struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]decimal.Decimal
	log    *logrus.Logger
}

func NewSimulated(seed int64, log *logrus.Logger) *Simulated {
	return &Simulated{
		rng:    rand.New(rand.NewSource(seed)),
		prices: map[string]decimal.Decimal{},
		log:    log,
	}
}

func (p *Simulated) Lookup(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	symbol = Normalize(symbol)
	if !wellFormed(symbol) {
		return Quote{}, ErrNotFound
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		price = decimal.NewFromFloat(50 + p.rng.Float64()*(5000-50))
		p.log.Debugf("simulated quote seeded %s at %s", symbol, price.StringFixed(2))
	} else {
		drift := decimal.NewFromFloat(1 + (p.rng.Float64()*0.04 - 0.02))
		price = price.Mul(drift)
	}
	price = price.Round(2)
	p.prices[symbol] = price
	return Quote{Symbol: symbol, Name: symbol, Price: price}, nil
}

func wellFormed(symbol string) bool {
	if len(symbol) == 0 || len(symbol) > 5 {
		return false
	}
	for _, r := range symbol {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
