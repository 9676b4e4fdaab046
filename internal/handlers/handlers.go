package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"finance/internal/auth"
	"finance/internal/display"
	"finance/internal/ledger"
	"finance/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	sessionCookie = "session"
	accountKey    = "account_id"
)

type Handler struct {
	engine *ledger.Engine
	auth   *auth.Service
	log    *logrus.Logger
}

func NewHandler(e *ledger.Engine, a *auth.Service, log *logrus.Logger) *Handler {
	return &Handler{engine: e, auth: a, log: log}
}

// Routes registers every endpoint on r. Trading and account routes require
// a session.
func (h *Handler) Routes(r *gin.Engine) {
	r.Use(h.RequestLogger(), NoCache())
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)

	authed := r.Group("/", h.RequireSession())
	authed.GET("/quote/:symbol", h.GetQuote)
	authed.GET("/portfolio", h.GetPortfolio)
	authed.POST("/buy", h.PostBuy)
	authed.POST("/sell", h.PostSell)
	authed.GET("/account", h.GetAccount)
	authed.POST("/account", h.PostDeposit)
	authed.GET("/history", h.GetHistory)
}

// NoCache stops clients from caching responses that reflect account state.
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Expires", "0")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}

func (h *Handler) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := h.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if id, ok := c.Get(accountKey); ok {
			entry = entry.WithField("account", id)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("request failed")
			return
		}
		entry.Debug("request served")
	}
}

func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, err := h.auth.Resolve(c.Request.Context(), sessionToken(c))
		if err != nil {
			if !errors.Is(err, auth.ErrSessionInvalid) {
				h.log.Errorf("resolve session: %v", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		c.Set(accountKey, accountID)
		c.Next()
	}
}

func sessionToken(c *gin.Context) string {
	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok && token != "" {
		return token
	}
	token, _ := c.Cookie(sessionCookie)
	return token
}

type RegisterRequest struct {
	Username     string `form:"username" json:"username"`
	Password     string `form:"password" json:"password"`
	Confirmation string `form:"confirmation" json:"confirmation"`
}

type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// NumberText keeps a numeric field's raw text so that malformed numbers are
// reported with the ledger's own rejections. JSON clients may send either a
// number or a string.
type NumberText string

func (n *NumberText) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*n = ""
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumberText(s)
	default:
		*n = NumberText(raw)
	}
	return nil
}

type TradeRequest struct {
	Symbol string     `form:"symbol" json:"symbol"`
	Shares NumberText `form:"shares" json:"shares"`
}

// DepositRequest accepts the amount as "amount" or, as the HTML form
// posts it, "add".
type DepositRequest struct {
	Amount NumberText `form:"amount" json:"amount"`
	Add    NumberText `form:"add" json:"add"`
}

func (r DepositRequest) raw() string {
	if r.Amount != "" {
		return string(r.Amount)
	}
	return string(r.Add)
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !h.bind(c, &req) {
		return
	}
	acct, err := h.auth.Register(c.Request.Context(), req.Username, req.Password, req.Confirmation)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, accountView(acct))
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !h.bind(c, &req) {
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, sess.Token, maxAge, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"token": sess.Token, "account_id": sess.AccountID, "expires_at": sess.ExpiresAt})
}

func (h *Handler) Logout(c *gin.Context) {
	if token := sessionToken(c); token != "" {
		if err := h.auth.Logout(c.Request.Context(), token); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

func (h *Handler) GetQuote(c *gin.Context) {
	q, err := h.engine.Quote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":        q.Symbol,
		"name":          q.Name,
		"price":         q.Price,
		"price_display": display.USD(q.Price),
	})
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	p, err := h.engine.Refresh(c.Request.Context(), c.GetString(accountKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	holdings := make([]gin.H, 0, len(p.Holdings))
	for _, pos := range p.Holdings {
		holdings = append(holdings, gin.H{
			"symbol":        pos.Symbol,
			"shares":        pos.Shares,
			"price":         pos.Price,
			"total":         pos.Total,
			"price_display": display.USD(pos.Price),
			"total_display": display.USD(pos.Total),
			"stale":         pos.Stale,
		})
	}
	body := gin.H{
		"cash":                 p.Cash,
		"cash_display":         display.USD(p.Cash),
		"holdings":             holdings,
		"market_value":         p.MarketValue,
		"market_value_display": display.USD(p.MarketValue),
		"total":                p.Total,
		"total_display":        display.USD(p.Total),
	}
	if len(p.Warnings) > 0 {
		body["warnings"] = p.Warnings
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) PostBuy(c *gin.Context) {
	var body TradeRequest
	if !h.bind(c, &body) {
		return
	}
	req, err := ledger.ParseBuy(c.GetString(accountKey), body.Symbol, string(body.Shares))
	if err != nil {
		h.fail(c, err)
		return
	}
	receipt, err := h.engine.Buy(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receiptView(receipt))
}

func (h *Handler) PostSell(c *gin.Context) {
	var body TradeRequest
	if !h.bind(c, &body) {
		return
	}
	req, err := ledger.ParseSell(c.GetString(accountKey), body.Symbol, string(body.Shares))
	if err != nil {
		h.fail(c, err)
		return
	}
	receipt, err := h.engine.Sell(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receiptView(receipt))
}

func (h *Handler) GetAccount(c *gin.Context) {
	acct, err := h.engine.Account(c.Request.Context(), c.GetString(accountKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	view := accountView(acct)
	view["max_deposit"] = h.engine.MaxDeposit()
	c.JSON(http.StatusOK, view)
}

func (h *Handler) PostDeposit(c *gin.Context) {
	var body DepositRequest
	if !h.bind(c, &body) {
		return
	}
	req, err := ledger.ParseDeposit(c.GetString(accountKey), body.raw())
	if err != nil {
		h.fail(c, err)
		return
	}
	receipt, err := h.engine.Deposit(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receiptView(receipt))
}

func (h *Handler) GetHistory(c *gin.Context) {
	txs, err := h.engine.History(c.Request.Context(), c.GetString(accountKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	res := make([]gin.H, 0, len(txs))
	for _, tr := range txs {
		res = append(res, transactionView(tr))
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBind(dst); err != nil {
		h.log.Warnf("invalid request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// fail writes the status and apology text for err. Unknown errors are
// logged and reported as internal.
func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := h.describe(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func (h *Handler) describe(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidSymbol):
		return http.StatusBadRequest, "Invalid Ticker Symbol"
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return http.StatusBadRequest, "Invalid number of shares"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusBadRequest, "Not Enough Money to Buy"
	case errors.Is(err, ledger.ErrMissingSymbol):
		return http.StatusBadRequest, "Please select stock you wish to sell"
	case errors.Is(err, ledger.ErrNotOwned):
		return http.StatusBadRequest, "You do not own this stock!"
	case errors.Is(err, ledger.ErrInsufficientShares):
		return http.StatusBadRequest, "Please select valid number of shares"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "Please enter valid amount"
	case errors.Is(err, ledger.ErrDepositTooLarge):
		return http.StatusBadRequest, "Cannot add more than " + display.USD(decimal.NewFromInt(h.engine.MaxDeposit()))
	case errors.Is(err, ledger.ErrQuoteUnavailable):
		return http.StatusBadGateway, "Quote service unavailable, try again"
	case errors.Is(err, ledger.ErrStoreConflict):
		return http.StatusConflict, "Account busy, try again"
	case errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, auth.ErrMissingUsername),
		errors.Is(err, auth.ErrMissingPassword),
		errors.Is(err, auth.ErrUsernameTaken),
		errors.Is(err, auth.ErrMissingConfirmation),
		errors.Is(err, auth.ErrPasswordMismatch):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrSessionInvalid):
		return http.StatusUnauthorized, "login required"
	}
	return http.StatusInternalServerError, "internal"
}

func accountView(a models.Account) gin.H {
	return gin.H{
		"account_id":   a.ID,
		"username":     a.Username,
		"cash":         a.Cash,
		"cash_display": display.USD(a.Cash),
	}
}

func transactionView(tr models.Transaction) gin.H {
	v := gin.H{
		"id":            tr.ID,
		"type":          tr.Kind,
		"price":         tr.Price,
		"price_display": display.USD(tr.Price),
		"date":          tr.Timestamp,
	}
	if tr.Kind != models.KindDeposit {
		v["symbol"] = tr.Symbol
		v["shares"] = tr.Shares
	}
	return v
}

func receiptView(r ledger.Receipt) gin.H {
	v := gin.H{
		"transaction":  transactionView(r.Transaction),
		"cash":         r.Cash,
		"cash_display": display.USD(r.Cash),
	}
	if r.Holding != nil {
		v["holding"] = r.Holding
	}
	return v
}
