package database

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"finance/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_WithAccountRoundTrip(t *testing.T) {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL is not set; skipping integration tests")
	}
	ctx := context.Background()
	for _, driver := range []string{DriverPostgres, DriverPgx} {
		t.Run(driver, func(t *testing.T) {
			db, err := Open(ctx, driver, url, 4)
			require.NoError(t, err)
			defer db.Close()

			logger := logrus.New()
			require.NoError(t, Migrate(ctx, db, logger))
			r := New(db, logger)

			acct := models.Account{
				ID:        uuid.NewString(),
				Username:  "pg-" + uuid.NewString(),
				Hash:      "hash",
				Cash:      decimal.NewFromInt(10000),
				CreatedAt: time.Now().UTC(),
			}
			require.NoError(t, r.CreateAccount(ctx, acct))
			defer func() {
				_, _ = db.ExecContext(ctx, db.Rebind(`DELETE FROM transactions WHERE account_id = ?`), acct.ID)
				_, _ = db.ExecContext(ctx, db.Rebind(`DELETE FROM holdings WHERE account_id = ?`), acct.ID)
				_, _ = db.ExecContext(ctx, db.Rebind(`DELETE FROM accounts WHERE id = ?`), acct.ID)
			}()
			assert.ErrorIs(t, r.CreateAccount(ctx, acct), ErrDuplicate)

			err = r.WithAccount(ctx, acct.ID, func(tx *AccountTx) error {
				if err := tx.SetCash(ctx, decimal.RequireFromString("8500.25")); err != nil {
					return err
				}
				if err := tx.UpsertHolding(ctx, models.Holding{
					Symbol: "AAPL", Shares: 10, Price: decimal.RequireFromString("149.975"),
					Total: decimal.RequireFromString("1499.75"), UpdatedAt: time.Now(),
				}); err != nil {
					return err
				}
				_, err := tx.Append(ctx, models.Transaction{Kind: models.KindBuy, Symbol: "AAPL", Shares: 10, Price: decimal.RequireFromString("149.975"), Timestamp: time.Now()})
				return err
			})
			require.NoError(t, err)

			got, err := r.GetAccount(ctx, acct.ID)
			require.NoError(t, err)
			assert.True(t, got.Cash.Equal(decimal.RequireFromString("8500.25")))

			txs, err := r.ListTransactions(ctx, acct.ID)
			require.NoError(t, err)
			require.Len(t, txs, 1)
			assert.True(t, txs[0].Price.Equal(decimal.RequireFromString("149.975")))
		})
	}
}

func TestPostgres_ConcurrentFullSellClaimsOnce(t *testing.T) {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL is not set; skipping integration tests")
	}
	ctx := context.Background()
	for _, driver := range []string{DriverPostgres, DriverPgx} {
		t.Run(driver, func(t *testing.T) {
			db, err := Open(ctx, driver, url, 4)
			require.NoError(t, err)
			defer db.Close()

			logger := logrus.New()
			logger.SetLevel(logrus.WarnLevel)
			require.NoError(t, Migrate(ctx, db, logger))
			r := New(db, logger)

			for round := 0; round < 10; round++ {
				acct := models.Account{
					ID:        uuid.NewString(),
					Username:  "pg-race-" + uuid.NewString(),
					Hash:      "hash",
					Cash:      decimal.NewFromInt(1000),
					CreatedAt: time.Now().UTC(),
				}
				require.NoError(t, r.CreateAccount(ctx, acct))
				require.NoError(t, r.WithAccount(ctx, acct.ID, func(tx *AccountTx) error {
					return tx.UpsertHolding(ctx, models.Holding{
						Symbol: "AAPL", Shares: 5, Price: decimal.NewFromInt(100),
						Total: decimal.NewFromInt(500), UpdatedAt: time.Now(),
					})
				}))

				sellAll := func() error {
					for {
						err := r.WithAccount(ctx, acct.ID, func(tx *AccountTx) error {
							h, err := tx.Holding(ctx, "AAPL")
							if err != nil {
								return err
							}
							if err := tx.DeleteHolding(ctx, "AAPL"); err != nil {
								return err
							}
							proceeds := decimal.NewFromInt(100).Mul(decimal.NewFromInt(h.Shares))
							if err := tx.SetCash(ctx, tx.Account().Cash.Add(proceeds)); err != nil {
								return err
							}
							_, err = tx.Append(ctx, models.Transaction{
								Kind: models.KindSell, Symbol: "AAPL", Shares: h.Shares,
								Price: decimal.NewFromInt(100), Timestamp: time.Now(),
							})
							return err
						})
						if !errors.Is(err, ErrConflict) {
							return err
						}
					}
				}

				start := make(chan struct{})
				errs := make([]error, 2)
				var wg sync.WaitGroup
				for i := range errs {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						<-start
						errs[i] = sellAll()
					}(i)
				}
				close(start)
				wg.Wait()

				succeeded := 0
				for _, err := range errs {
					if err == nil {
						succeeded++
						continue
					}
					assert.ErrorIs(t, err, ErrNotFound)
				}
				assert.Equal(t, 1, succeeded, "round %d", round)

				got, err := r.GetAccount(ctx, acct.ID)
				require.NoError(t, err)
				assert.True(t, got.Cash.Equal(decimal.NewFromInt(1500)), "round %d cash %s", round, got.Cash)
				txs, err := r.ListTransactions(ctx, acct.ID)
				require.NoError(t, err)
				assert.Len(t, txs, 1)

				_, _ = db.ExecContext(ctx, db.Rebind(`DELETE FROM transactions WHERE account_id = ?`), acct.ID)
				_, _ = db.ExecContext(ctx, db.Rebind(`DELETE FROM holdings WHERE account_id = ?`), acct.ID)
				_, _ = db.ExecContext(ctx, db.Rebind(`DELETE FROM accounts WHERE id = ?`), acct.ID)
			}
		})
	}
}
