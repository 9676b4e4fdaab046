package database

import (
	"context"
	"database/sql"
	"errors"

	"finance/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const (
	accountColumns     = `id, username, hash, cash, version, created_at`
	holdingColumns     = `account_id, symbol, shares, price, total, updated_at`
	transactionColumns = `id, account_id, kind, symbol, shares, price, created_at`
	sessionColumns     = `token, account_id, created_at, expires_at`
)

// Repo is the account, holdings and transaction store. Queries are written
// with ? placeholders and rebound for the connection's driver.
type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

func (r *Repo) DB() *sqlx.DB {
	return r.db
}

func (r *Repo) CreateAccount(ctx context.Context, a models.Account) error {
	q := r.db.Rebind(`INSERT INTO accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, q, a.ID, a.Username, a.Hash, a.Cash, a.Version, a.CreatedAt.UTC()); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *Repo) GetAccount(ctx context.Context, id string) (models.Account, error) {
	return getAccount(ctx, r.db, `id = ?`, id)
}

func (r *Repo) GetAccountByUsername(ctx context.Context, username string) (models.Account, error) {
	return getAccount(ctx, r.db, `username = ?`, username)
}

func (r *Repo) GetHolding(ctx context.Context, accountID, symbol string) (models.Holding, error) {
	return getHolding(ctx, r.db, accountID, symbol)
}

func (r *Repo) ListHoldings(ctx context.Context, accountID string) ([]models.Holding, error) {
	return listHoldings(ctx, r.db, accountID)
}

// ListTransactions returns the account's log, newest first.
func (r *Repo) ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	q := r.db.Rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = ? ORDER BY created_at DESC, id DESC`)
	rows, err := r.db.QueryxContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Transaction{}
	for rows.Next() {
		var row transactionRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		res = append(res, row.model())
	}
	return res, rows.Err()
}

func (r *Repo) CreateSession(ctx context.Context, s models.Session) error {
	q := r.db.Rebind(`INSERT INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, s.Token, s.AccountID, s.CreatedAt.UTC(), s.ExpiresAt.UTC())
	return err
}

func (r *Repo) GetSession(ctx context.Context, token string) (models.Session, error) {
	var s models.Session
	q := r.db.Rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE token = ?`)
	if err := r.db.GetContext(ctx, &s, q, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Session{}, ErrNotFound
		}
		return models.Session{}, err
	}
	return s, nil
}

func (r *Repo) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE token = ?`), token)
	return err
}

// WithAccount runs fn inside one database transaction scoped to the account.
// The account row is claimed up front by bumping its version; if another
// writer got there first the transaction is rolled back with ErrConflict.
// Any error returned by fn rolls back every write fn made.
func (r *Repo) WithAccount(ctx context.Context, accountID string, fn func(*AccountTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		if isConflict(err) {
			return ErrConflict
		}
		return err
	}
	defer tx.Rollback()

	acct, err := getAccount(ctx, tx, `id = ?`, accountID)
	if err != nil {
		return conflictOr(err)
	}
	if err := claim(ctx, tx, acct.ID, acct.Version); err != nil {
		return conflictOr(err)
	}
	acct.Version++

	if err := fn(&AccountTx{tx: tx, account: acct}); err != nil {
		return conflictOr(err)
	}
	if err := tx.Commit(); err != nil {
		r.log.Warnf("commit for account %s failed: %v", accountID, err)
		return conflictOr(err)
	}
	return nil
}

func claim(ctx context.Context, tx *sqlx.Tx, accountID string, version int64) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE accounts SET version = version + 1 WHERE id = ? AND version = ?`), accountID, version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func conflictOr(err error) error {
	if isConflict(err) {
		return ErrConflict
	}
	return err
}

func getAccount(ctx context.Context, q sqlx.ExtContext, where string, arg any) (models.Account, error) {
	var a models.Account
	query := q.Rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE ` + where)
	if err := sqlx.GetContext(ctx, q, &a, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func getHolding(ctx context.Context, q sqlx.ExtContext, accountID, symbol string) (models.Holding, error) {
	var h models.Holding
	query := q.Rebind(`SELECT ` + holdingColumns + ` FROM holdings WHERE account_id = ? AND symbol = ?`)
	if err := sqlx.GetContext(ctx, q, &h, query, accountID, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Holding{}, ErrNotFound
		}
		return models.Holding{}, err
	}
	return h, nil
}

func listHoldings(ctx context.Context, q sqlx.ExtContext, accountID string) ([]models.Holding, error) {
	res := []models.Holding{}
	query := q.Rebind(`SELECT ` + holdingColumns + ` FROM holdings WHERE account_id = ? ORDER BY symbol`)
	if err := sqlx.SelectContext(ctx, q, &res, query, accountID); err != nil {
		return nil, err
	}
	return res, nil
}
