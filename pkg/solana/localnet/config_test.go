package localnet

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/runtime"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
	assert.Equal(t, StoreMemory, config.Store)
	assert.Equal(t, runtime.DefaultConfig(), &config.Runtime)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "localnet.yaml")
	contents := `
store: postgres
postgres:
  host: db.internal
  db_name: ledger
  conn_max_lifetime: 5m
runtime:
  max_invoke_depth: 2
  lamports_per_signature: 10
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	t.Setenv("LOCALNET_POSTGRES_PORT", "6543")
	t.Setenv("LOCALNET_POSTGRES_HOST", "db.override")
	t.Setenv("LOCALNET_RUNTIME_LAMPORTS_PER_SIGNATURE", "20")
	t.Setenv("LOCALNET_RUNTIME_SUBMIT_WORKERS", "3")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, config.Store)
	assert.Equal(t, "db.override", config.Postgres.Host)
	assert.Equal(t, "ledger", config.Postgres.DbName)
	assert.Equal(t, 6543, config.Postgres.Port)
	assert.Equal(t, 5*time.Minute, config.Postgres.ConnMaxLifetime)
	assert.Equal(t, defaultConfig.Postgres.User, config.Postgres.User)
	assert.Equal(t, "postgres://postgres:@db.override:6543/ledger?sslmode=disable", config.Postgres.DSN())

	assert.Equal(t, 2, config.Runtime.MaxInvokeDepth)
	assert.EqualValues(t, 20, config.Runtime.LamportsPerSignature)
	assert.EqualValues(t, 3, config.Runtime.SubmitWorkers)
	assert.Equal(t, defaultConfig.Runtime.MaxRecentBlockhashes, config.Runtime.MaxRecentBlockhashes)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("LOCALNET_STORE", "sqlite")
	_, err := LoadConfig("")
	assert.Error(t, err)

	t.Setenv("LOCALNET_STORE", "memory")
	t.Setenv("LOCALNET_RUNTIME_MAX_RECENT_BLOCKHASHES", "0")
	_, err = LoadConfig("")
	assert.Error(t, err)

	config := DefaultConfig()
	config.Runtime.SubmitWorkers = 0
	assert.Error(t, config.Validate())
	_, _, err = Open(context.Background(), config)
	assert.Error(t, err)

	config = DefaultConfig()
	config.Store = StorePostgres
	config.Postgres.Host = ""
	assert.Error(t, config.Validate())

	config = DefaultConfig()
	config.NewRelic.Enabled = true
	assert.Error(t, config.Validate())

	_, _, err = Open(context.Background(), config)
	assert.Error(t, err)
}
