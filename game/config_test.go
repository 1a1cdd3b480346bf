package game

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "economy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestPresets(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, LegacyConfig().Validate())

	cfg, err := Preset("")
	require.NoError(t, err)
	assert.Equal(t, "v2", cfg.Version)

	_, err = Preset("v9")
	assert.Error(t, err)
}

// TestLoadConfigOverlaysPreset verifies omitted fields keep the values of the
// preset named by the file's version.
func TestLoadConfigOverlaysPreset(t *testing.T) {
	path := writeFile(t, `
version: v1
cooldown: 10h
starting_balances:
  keys: 3
  chests: 2
gift_token_max: 500
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "v1", cfg.Version)
	assert.Equal(t, 10*time.Hour, cfg.Cooldown)
	assert.Equal(t, 8*time.Hour, cfg.InitialClaimDelay)
	assert.Equal(t, Balances{Keys: 3, Chests: 2}, cfg.StartingBalances)
	assert.Equal(t, uint64(10), cfg.GiftTokenMin)
	assert.Equal(t, uint64(500), cfg.GiftTokenMax)
	assert.Equal(t, 15*time.Minute, cfg.TierIncrement)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "cooldown: 2h\n"))
	assert.ErrorContains(t, err, "must exceed decrease_ceiling")

	_, err = LoadConfig(writeFile(t, "version: v7\n"))
	assert.ErrorContains(t, err, "unknown economy version")

	_, err = LoadConfig(writeFile(t, "cooldown: [\n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, os.IsNotExist(err))
}
