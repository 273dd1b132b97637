package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cometbft/cometbft/config"
	"github.com/cometbft/cometbft/crypto"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
)

const (
	DefaultHomeDir   = "$HOME/.hac"
	AppConfigFile    = "app.toml"
	CometConfigFile  = "config.toml"
	DefaultIndexerDB = "indexer.db"
)

// PhasingConfig holds the chain-wide limits applied to phased transactions.
type PhasingConfig struct {
	MaxPhasingDuration      uint64 `mapstructure:"max_phasing_duration" toml:"max_phasing_duration"`
	MaxWhitelistSize        int    `mapstructure:"max_whitelist_size" toml:"max_whitelist_size"`
	MaxLinkedTransactions   int    `mapstructure:"max_linked_transactions" toml:"max_linked_transactions"`
	MaxVoteTransactions     int    `mapstructure:"max_vote_transactions" toml:"max_vote_transactions"`
	MaxHashedSecretLength   int    `mapstructure:"max_hashed_secret_length" toml:"max_hashed_secret_length"`
	MaxRevealedSecretLength int    `mapstructure:"max_revealed_secret_length" toml:"max_revealed_secret_length"`
	MaxQuorum               int64  `mapstructure:"max_quorum" toml:"max_quorum"`
	MaxReferencedTimespan   int64  `mapstructure:"max_referenced_timespan" toml:"max_referenced_timespan"`
	OneCoin                 int64  `mapstructure:"one_coin" toml:"one_coin"`
}

func DefaultPhasingConfig() PhasingConfig {
	oneCoin := int64(100000000)
	return PhasingConfig{
		MaxPhasingDuration:      14 * 1440,
		MaxWhitelistSize:        10,
		MaxLinkedTransactions:   10,
		MaxVoteTransactions:     10,
		MaxHashedSecretLength:   127,
		MaxRevealedSecretLength: 100,
		MaxQuorum:               1000000000 * oneCoin,
		MaxReferencedTimespan:   60 * 1440 * 60,
		OneCoin:                 oneCoin,
	}
}

func (c PhasingConfig) ValidateBasic() error {
	if c.MaxPhasingDuration < 3 {
		return fmt.Errorf("max_phasing_duration too small: %v", c.MaxPhasingDuration)
	}
	if c.MaxWhitelistSize <= 0 || c.MaxWhitelistSize > 255 {
		return fmt.Errorf("max_whitelist_size out of range: %v", c.MaxWhitelistSize)
	}
	if c.MaxLinkedTransactions <= 0 || c.MaxLinkedTransactions > 255 {
		return fmt.Errorf("max_linked_transactions out of range: %v", c.MaxLinkedTransactions)
	}
	if c.MaxVoteTransactions <= 0 {
		return fmt.Errorf("max_vote_transactions must be positive")
	}
	if c.MaxHashedSecretLength <= 0 || c.MaxHashedSecretLength > 255 {
		return fmt.Errorf("max_hashed_secret_length out of range: %v", c.MaxHashedSecretLength)
	}
	if c.MaxQuorum <= 0 || c.OneCoin <= 0 {
		return fmt.Errorf("max_quorum and one_coin must be positive")
	}
	return nil
}

type IndexerConfig struct {
	Enable bool   `mapstructure:"enable" toml:"enable"`
	DBPath string `mapstructure:"db_path" toml:"db_path"`
}

type HACAppConfig struct {
	Home          string `mapstructure:"-" toml:"-"`
	TimeoutCommit uint64 `mapstructure:"-" toml:"-"`

	Phasing PhasingConfig `mapstructure:"phasing" toml:"phasing"`
	Indexer IndexerConfig `mapstructure:"indexer" toml:"indexer"`
}

func DefaultHACAppConfig(home string) *HACAppConfig {
	return &HACAppConfig{
		Home:    home,
		Phasing: DefaultPhasingConfig(),
		Indexer: IndexerConfig{
			Enable: true,
			DBPath: DefaultIndexerDB,
		},
	}
}

func (c *HACAppConfig) DataDir() string {
	return filepath.Join(c.Home, "data")
}

func (c *HACAppConfig) IndexerDBPath() string {
	if filepath.IsAbs(c.Indexer.DBPath) {
		return c.Indexer.DBPath
	}
	return filepath.Join(c.Home, c.Indexer.DBPath)
}

type Config struct {
	*config.Config `mapstructure:",squash"`

	App *HACAppConfig `mapstructure:"app"`
}

func NewHACConfig(home string) *Config {
	if len(home) == 0 {
		home = os.ExpandEnv(DefaultHomeDir)
	}
	_ = os.MkdirAll(filepath.Join(home, "config"), 0755)
	cfg := &Config{
		DefaultHACCometConfig(),
		DefaultHACAppConfig(home),
	}
	cfg.SetRoot(home)
	return cfg
}

func (c *Config) ValidateBasic() error {
	if err := c.Config.ValidateBasic(); err != nil {
		return err
	}
	return c.App.Phasing.ValidateBasic()
}

func InitializeNodeValidatorFiles(config *Config, privKey crypto.PrivKey) (nodeID string, pk crypto.PubKey, err error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return "", nil, err
	}
	nodeID = string(nodeKey.ID())

	pvKeyFile := config.PrivValidatorKeyFile()
	if err := os.MkdirAll(filepath.Dir(pvKeyFile), 0o777); err != nil {
		return "", nil, fmt.Errorf("could not create directory %q: %w", filepath.Dir(pvKeyFile), err)
	}

	pvStateFile := config.PrivValidatorStateFile()
	if err := os.MkdirAll(filepath.Dir(pvStateFile), 0o777); err != nil {
		return "", nil, fmt.Errorf("could not create directory %q: %w", filepath.Dir(pvStateFile), err)
	}

	var filePV *privval.FilePV
	if privKey == nil {
		filePV = privval.LoadOrGenFilePV(pvKeyFile, pvStateFile)
	} else {
		filePV = privval.NewFilePV(privKey, pvKeyFile, pvStateFile)
		filePV.Save()
	}
	pukey, err := filePV.GetPubKey()
	if err != nil {
		return "", nil, err
	}

	return nodeID, pukey, nil
}

func DefaultHACCometConfig() *config.Config {
	cometConfig := config.DefaultConfig()
	cometConfig.Consensus.TimeoutPropose = time.Second * 10
	cometConfig.Consensus.TimeoutPrevote = time.Second * 1
	cometConfig.Consensus.TimeoutPrecommit = time.Second * 1
	cometConfig.Consensus.TimeoutCommit = time.Millisecond * 1200
	return cometConfig
}
