package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "HAC"

// LoadConfig reads config.toml and app.toml from the home dir. Values can
// be overridden by HAC_ prefixed environment variables, e.g.
// HAC_PHASING_MAX_WHITELIST_SIZE.
func LoadConfig(home string) (*Config, error) {
	if home == "" {
		home = os.ExpandEnv(DefaultHomeDir)
	}
	cfg := &Config{
		Config: DefaultHACCometConfig(),
		App:    DefaultHACAppConfig(home),
	}
	cfg.SetRoot(home)

	cv := viper.New()
	cv.SetConfigFile(filepath.Join(home, "config", CometConfigFile))
	if err := cv.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config.toml")
	}
	if err := cv.Unmarshal(cfg.Config); err != nil {
		return nil, errors.Wrap(err, "decode config.toml")
	}
	cfg.SetRoot(home)

	av := newAppViper()
	av.SetConfigFile(filepath.Join(home, "config", AppConfigFile))
	if err := av.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "read app.toml")
			}
		}
	}
	if err := av.Unmarshal(cfg.App); err != nil {
		return nil, errors.Wrap(err, "decode app.toml")
	}
	cfg.App.Home = home
	cfg.App.TimeoutCommit = uint64(cfg.Consensus.TimeoutCommit.Seconds())

	if err := cfg.ValidateBasic(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func newAppViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	def := DefaultPhasingConfig()
	v.SetDefault("phasing.max_phasing_duration", def.MaxPhasingDuration)
	v.SetDefault("phasing.max_whitelist_size", def.MaxWhitelistSize)
	v.SetDefault("phasing.max_linked_transactions", def.MaxLinkedTransactions)
	v.SetDefault("phasing.max_vote_transactions", def.MaxVoteTransactions)
	v.SetDefault("phasing.max_hashed_secret_length", def.MaxHashedSecretLength)
	v.SetDefault("phasing.max_revealed_secret_length", def.MaxRevealedSecretLength)
	v.SetDefault("phasing.max_quorum", def.MaxQuorum)
	v.SetDefault("phasing.max_referenced_timespan", def.MaxReferencedTimespan)
	v.SetDefault("phasing.one_coin", def.OneCoin)
	v.SetDefault("indexer.enable", true)
	v.SetDefault("indexer.db_path", DefaultIndexerDB)
	return v
}
