package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultIEXBaseURL = "https://cloud.iexapis.com"

// IEX looks quotes up from an IEX Cloud compatible endpoint:
// GET {base}/stable/stock/{symbol}/quote?token={key}.
type IEX struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logrus.Logger
}

type iexQuote struct {
	Symbol      string          `json:"symbol"`
	CompanyName string          `json:"companyName"`
	LatestPrice decimal.Decimal `json:"latestPrice"`
}

func NewIEX(baseURL, apiKey string, timeout time.Duration, log *logrus.Logger) *IEX {
	if baseURL == "" {
		baseURL = DefaultIEXBaseURL
	}
	return &IEX{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *IEX) Lookup(ctx context.Context, symbol string) (Quote, error) {
	symbol = Normalize(symbol)
	if symbol == "" {
		return Quote{}, ErrNotFound
	}
	endpoint := fmt.Sprintf("%s/stable/stock/%s/quote?%s", c.baseURL, url.PathEscape(symbol), url.Values{"token": {c.apiKey}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Quote{}, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		c.log.Warnf("quote %s: %s %s", symbol, req.URL.Path, resp.Status)
		return Quote{}, fmt.Errorf("quote %s: unexpected status %s", symbol, resp.Status)
	}

	var body iexQuote
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("quote %s: decode: %w", symbol, err)
	}
	if !body.LatestPrice.IsPositive() {
		return Quote{}, ErrNotFound
	}
	q := Quote{Symbol: Normalize(body.Symbol), Name: body.CompanyName, Price: body.LatestPrice}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return q, nil
}
