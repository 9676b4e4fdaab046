package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finance/internal/auth"
	"finance/internal/database"
	"finance/internal/ledger"
	"finance/internal/quote"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type server struct {
	router *gin.Engine
	quotes *quote.Static
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "http.db") + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := database.Open(ctx, database.DriverSQLite, dsn, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	require.NoError(t, database.Migrate(ctx, db, logger))
	repo := database.New(db, logger)

	quotes := quote.NewStatic(map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(150)})
	engine := ledger.NewEngine(repo, quotes, logger, ledger.DefaultOptions())
	authSvc := auth.NewService(repo, logger, auth.Options{StartingCash: 10000, SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost})

	r := gin.New()
	NewHandler(engine, authSvc, logger).Routes(r)
	return &server{router: r, quotes: quotes}
}

func (s *server) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := map[string]any{}
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func (s *server) login(t *testing.T, username string) string {
	t.Helper()
	code, _ := s.do(t, http.MethodPost, "/register", "", gin.H{"username": username, "password": "pw", "confirmation": "pw"})
	require.Equal(t, http.StatusCreated, code)
	code, body := s.do(t, http.MethodPost, "/login", "", gin.H{"username": username, "password": "pw"})
	require.Equal(t, http.StatusOK, code)
	return body["token"].(string)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	code, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestRequiresSession(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/portfolio", "/history", "/account", "/quote/AAPL"} {
		code, _ := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
	}
	code, _ := s.do(t, http.MethodGet, "/portfolio", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestTradingFlow(t *testing.T) {
	s := newServer(t)
	token := s.login(t, "alice")

	code, body := s.do(t, http.MethodGet, "/quote/aapl", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "$150.00", body["price_display"])

	code, body = s.do(t, http.MethodPost, "/buy", token, gin.H{"symbol": "AAPL", "shares": "10"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "$8,500.00", body["cash_display"])

	s.quotes.Set("AAPL", decimal.NewFromInt(160))
	code, body = s.do(t, http.MethodGet, "/portfolio", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "$10,100.00", body["total_display"])
	holdings := body["holdings"].([]any)
	require.Len(t, holdings, 1)
	assert.Equal(t, "$1,600.00", holdings[0].(map[string]any)["total_display"])

	code, body = s.do(t, http.MethodPost, "/sell", token, gin.H{"symbol": "AAPL", "shares": "10"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "$10,100.00", body["cash_display"])
	assert.NotContains(t, body, "holding")

	code, body = s.do(t, http.MethodPost, "/account", token, gin.H{"amount": "500"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "$10,600.00", body["cash_display"])

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
	var history []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 3)
	assert.Equal(t, "deposit", history[0]["type"])
	assert.NotContains(t, history[0], "symbol")
	assert.Equal(t, "sell", history[1]["type"])
	assert.Equal(t, "buy", history[2]["type"])
}

func TestRejectionMessages(t *testing.T) {
	s := newServer(t)
	token := s.login(t, "bob")

	tests := []struct {
		name   string
		path   string
		body   gin.H
		status int
		msg    string
	}{
		{"bad shares", "/buy", gin.H{"symbol": "AAPL", "shares": "ten"}, http.StatusBadRequest, "Invalid number of shares"},
		{"unknown symbol", "/buy", gin.H{"symbol": "ZZZZ", "shares": "1"}, http.StatusBadRequest, "Invalid Ticker Symbol"},
		{"too expensive", "/buy", gin.H{"symbol": "AAPL", "shares": "1000"}, http.StatusBadRequest, "Not Enough Money to Buy"},
		{"sell no symbol", "/sell", gin.H{"shares": "1"}, http.StatusBadRequest, "Please select stock you wish to sell"},
		{"sell not owned", "/sell", gin.H{"symbol": "AAPL", "shares": "1"}, http.StatusBadRequest, "You do not own this stock!"},
		{"deposit invalid", "/account", gin.H{"amount": "12.5"}, http.StatusBadRequest, "Please enter valid amount"},
		{"deposit capped", "/account", gin.H{"amount": "10001"}, http.StatusBadRequest, "Cannot add more than $10,000.00"},
		{"numeric fractional shares", "/buy", gin.H{"symbol": "AAPL", "shares": 1.5}, http.StatusBadRequest, "Invalid number of shares"},
		{"numeric negative shares", "/sell", gin.H{"symbol": "AAPL", "shares": -1}, http.StatusBadRequest, "Invalid number of shares"},
		{"numeric fractional amount", "/account", gin.H{"amount": 12.5}, http.StatusBadRequest, "Please enter valid amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPost, tt.path, token, tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.msg, body["error"])
		})
	}

	code, body := s.do(t, http.MethodGet, "/account", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "$10,000.00", body["cash_display"])
}

func TestQuoteUnavailable(t *testing.T) {
	s := newServer(t)
	token := s.login(t, "erin")
	s.quotes.Fail("AAPL", assert.AnError)

	code, body := s.do(t, http.MethodGet, "/quote/AAPL", token, nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body["error"], "unavailable")
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t)
	token := s.login(t, "carol")

	code, body := s.do(t, http.MethodPost, "/register", "", gin.H{"username": "carol", "password": "x", "confirmation": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "username already taken", body["error"])

	code, _ = s.do(t, http.MethodPost, "/login", "", gin.H{"username": "carol", "password": "nope"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodPost, "/logout", token, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/account", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestFormBodiesAndCookie(t *testing.T) {
	s := newServer(t)
	form := url.Values{"username": {"dave"}, "password": {"pw"}, "confirmation": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	form = url.Values{"username": {"dave"}, "password": {"pw"}}
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req = httptest.NewRequest(http.MethodPost, "/account", strings.NewReader(url.Values{"amount": {"100"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "$10,100.00")
}

func TestTradingFlow_NumericFields(t *testing.T) {
	s := newServer(t)
	token := s.login(t, "frank")

	code, body := s.do(t, http.MethodPost, "/buy", token, gin.H{"symbol": "AAPL", "shares": 10})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "$8,500.00", body["cash_display"])

	code, body = s.do(t, http.MethodPost, "/sell", token, gin.H{"symbol": "AAPL", "shares": 4})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "$9,100.00", body["cash_display"])

	code, body = s.do(t, http.MethodPost, "/account", token, gin.H{"amount": 100})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "$9,200.00", body["cash_display"])

	code, body = s.do(t, http.MethodPost, "/account", token, gin.H{"add": 50})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "$9,250.00", body["cash_display"])
}

func TestDeposit_AddFormField(t *testing.T) {
	s := newServer(t)
	token := s.login(t, "gina")

	req := httptest.NewRequest(http.MethodPost, "/account", strings.NewReader(url.Values{"add": {"250"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "$10,250.00")
}

func TestNumberText_UnmarshalJSON(t *testing.T) {
	var req TradeRequest
	for raw, want := range map[string]NumberText{
		`{"shares":10}`:     "10",
		`{"shares":"10"}`:   "10",
		`{"shares":10.5}`:   "10.5",
		`{"shares":"ten"}`:  "ten",
		`{"shares":null}`:   "",
		`{"symbol":"AAPL"}`: "",
	} {
		req = TradeRequest{}
		require.NoError(t, json.Unmarshal([]byte(raw), &req), raw)
		assert.Equal(t, want, req.Shares, raw)
	}
}
