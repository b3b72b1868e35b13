package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, uint64(250), cfg.FeeBP)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
owner: alice
treasury: vault
fee_bp: 500
genesis: 1000
scheme:
  talent_share: 1000
  coach_share: 2000
  sponsor_share: 3000
  teacher_share: 4000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "alice", cfg.Owner)
	assert.Equal(t, "vault", cfg.Treasury)
	assert.Equal(t, uint64(500), cfg.FeeBP)
	assert.Equal(t, uint64(1000), cfg.Genesis)
	assert.Equal(t, uint64(1000), cfg.Scheme.TalentShare)
	// Unset fields keep their defaults.
	assert.Equal(t, "data/marketd.db", cfg.DBPath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsBadScheme(t *testing.T) {
	path := writeConfig(t, `
scheme:
  coach_share: 3000
  sponsor_share: 3000
  teacher_share: 3000
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "scheme shares sum to 9000")
}

func TestLoadRejectsExcessiveFee(t *testing.T) {
	path := writeConfig(t, "fee_bp: 10001\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "fee_bp 10001 exceeds 10000")
}

func TestValidateRequiredFields(t *testing.T) {
	cfg := Default()
	cfg.Owner = ""
	require.ErrorContains(t, cfg.Validate(), "owner is required")
}
