package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigRoundTrip(t *testing.T) {
	require := require.New(t)
	home := t.TempDir()
	cfg := NewHACConfig(home)
	cfg.App.Phasing.MaxLinkedTransactions = 5
	require.NoError(WriteConfigFile(cfg))

	t.Setenv("HAC_PHASING_MAX_WHITELIST_SIZE", "7")
	loaded, err := LoadConfig(home)
	require.NoError(err)
	require.Equal(home, loaded.RootDir)
	require.Equal(home, loaded.App.Home)
	require.Equal(5, loaded.App.Phasing.MaxLinkedTransactions)
	require.Equal(7, loaded.App.Phasing.MaxWhitelistSize)
	require.Equal(DefaultPhasingConfig().MaxQuorum, loaded.App.Phasing.MaxQuorum)
	require.True(loaded.App.Indexer.Enable)
	require.Equal(filepath.Join(home, DefaultIndexerDB), loaded.App.IndexerDBPath())
	require.Equal(filepath.Join(home, "data"), loaded.App.DataDir())
	require.Equal(uint64(1), loaded.App.TimeoutCommit)
}

func TestLoadConfigRejectsBadPhasingLimits(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, WriteConfigFile(NewHACConfig(home)))

	t.Setenv("HAC_PHASING_MAX_WHITELIST_SIZE", "0")
	_, err := LoadConfig(home)
	require.Error(t, err)
}

func TestLoadConfigMissingHome(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nothing"))
	require.Error(t, err)
}

func TestPhasingConfigValidateBasic(t *testing.T) {
	require := require.New(t)
	require.NoError(DefaultPhasingConfig().ValidateBasic())

	c := DefaultPhasingConfig()
	c.MaxPhasingDuration = 2
	require.Error(c.ValidateBasic())

	c = DefaultPhasingConfig()
	c.MaxHashedSecretLength = 256
	require.Error(c.ValidateBasic())

	c = DefaultPhasingConfig()
	c.OneCoin = 0
	require.Error(c.ValidateBasic())
}
