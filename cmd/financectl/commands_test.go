package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	yaml := `
service:
  log_level: error
database:
  driver: sqlite3
  dsn: "file:` + filepath.Join(dir, "ctl.db") + `?_busy_timeout=5000&_foreign_keys=on"
quotes:
  provider: static
  prices:
    AAPL: "150"
auth:
  bcrypt_cost: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "finance.yaml"), []byte(yaml), 0o644))
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", dir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedDepositRefreshHistory(t *testing.T) {
	dir := writeConfig(t)

	out, err := run(t, dir, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")

	out, err = run(t, dir, "seed", "--username", "demo", "--deposit", "500", "--buy", "AAPL:2")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded demo")

	out, err = run(t, dir, "deposit", "--username", "demo", "--amount", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "cash now $10,300.00")

	out, err = run(t, dir, "refresh", "--username", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "$300.00")
	assert.Contains(t, out, "$10,600.00")

	out, err = run(t, dir, "history", "--username", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "deposit")
	assert.Contains(t, out, "buy")
}

func TestDeposit_Rejections(t *testing.T) {
	dir := writeConfig(t)
	_, err := run(t, dir, "deposit", "--username", "ghost", "--amount", "10")
	assert.ErrorContains(t, err, "no account named")

	_, err = run(t, dir, "seed", "--username", "amy")
	require.NoError(t, err)
	_, err = run(t, dir, "deposit", "--username", "amy", "--amount", "20000")
	assert.ErrorContains(t, err, "deposit exceeds limit")
}
