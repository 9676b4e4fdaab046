package ledger

import "errors"

// Rejections returned by the engine. Each is recoverable at the request
// boundary; callers match them with errors.Is.
var (
	ErrInvalidSymbol      = errors.New("invalid ticker symbol")
	ErrInvalidQuantity    = errors.New("invalid number of shares")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrMissingSymbol      = errors.New("missing symbol")
	ErrNotOwned           = errors.New("symbol not owned")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrDepositTooLarge    = errors.New("deposit exceeds limit")
	ErrQuoteUnavailable   = errors.New("quote unavailable")
	ErrStoreConflict      = errors.New("store conflict")
	ErrAccountNotFound    = errors.New("account not found")
)
