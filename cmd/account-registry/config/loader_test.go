package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(nil)
	require.NoError(t, err)

	assert.Equal(t, "8545", cfg.Server.Port)
	assert.Equal(t, int64(31337), cfg.ChainID().Int64())
	assert.Equal(t, 15*time.Minute, cfg.Registry.AuthorizationTTL)
	assert.Equal(t, "ACCOUNT_REGISTRY_KEYSTORE_PASSWORD", cfg.Keystore.PasswordEnv)

	_, err = cfg.AdminSecret()
	assert.Error(t, err, "no secret configured by default")
}

func TestLoadMergesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
Server:
  Port: "9000"
  AdminSecret: file-secret-0123456789
Chain:
  Alloc:
    "0x00000000000000000000000000000000000000a1": "1000"
Registry:
  Index: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("ACCOUNT_REGISTRY_SERVER_PORT", "9100")

	cfg, err := LoadFrom([]string{dir})
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, int64(2), cfg.RegistryIndex().Int64())

	secret, err := cfg.AdminSecret()
	require.NoError(t, err)
	assert.Equal(t, "file-secret-0123456789", string(secret))

	alloc, err := cfg.GenesisAlloc()
	require.NoError(t, err)
	bal, ok := alloc[common.HexToAddress("0x00000000000000000000000000000000000000a1")]
	require.True(t, ok)
	assert.Equal(t, uint64(1000), bal.Uint64())
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("Chain:\n  ChainID: 0\n"), 0o600))
	_, err := LoadFrom([]string{dir})
	assert.Error(t, err)

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "config.yaml"), []byte("Chain:\n  Alloc:\n    nope: \"1\"\n"), 0o600))
	_, err = LoadFrom([]string{bad})
	assert.Error(t, err)
}
