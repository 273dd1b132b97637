package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cometbft/cometbft/crypto"
	cmtjson "github.com/cometbft/cometbft/libs/json"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// GenesisState is the app_state section of the genesis file.
type GenesisState struct {
	Accounts []GenesisAccount `json:"accounts"`
	Holdings []GenesisHolding `json:"holdings"`
}

type GenesisAccount struct {
	PubKey  hexutil.Bytes `json:"pub_key"`
	Balance int64         `json:"balance"`
}

type GenesisHolding struct {
	Holding
	Balances []GenesisHoldingBalance `json:"balances"`
}

type GenesisHoldingBalance struct {
	Account  AccountID `json:"account,string"`
	Quantity int64     `json:"quantity"`
}

func (gs *GenesisState) Validate() error {
	seen := make(map[AccountID]bool)
	for _, a := range gs.Accounts {
		if len(a.PubKey) == 0 {
			return errors.New("genesis account without public key")
		}
		id := AccountIDFromPubKey(a.PubKey)
		if seen[id] {
			return fmt.Errorf("duplicate genesis account %v", id)
		}
		seen[id] = true
		if a.Balance < 0 {
			return fmt.Errorf("negative genesis balance for %v", id)
		}
	}
	for _, h := range gs.Holdings {
		if h.Type != HoldingTypeAsset && h.Type != HoldingTypeCurrency {
			return fmt.Errorf("unsupported genesis holding type %v", h.Type)
		}
		if h.ID == 0 {
			return errors.New("genesis holding without id")
		}
		for _, b := range h.Balances {
			if b.Quantity < 0 {
				return fmt.Errorf("negative genesis quantity of %v for %v", h.ID, b.Account)
			}
		}
	}
	return nil
}

type GenesisValidator struct {
	Address crypto.Address `json:"address"`
	PubKey  crypto.PubKey  `json:"pub_key"`
	Power   int64          `json:"power"`
	Name    string         `json:"name"`
}

// GenesisDoc defines the initial conditions for a CometBFT blockchain, in particular its validator set.
type GenesisDoc struct {
	GenesisTime     time.Time                 `json:"genesis_time"`
	ChainID         string                    `json:"chain_id"`
	InitialHeight   int64                     `json:"initial_height"`
	ConsensusParams *cmttypes.ConsensusParams `json:"consensus_params,omitempty"`
	Validators      []GenesisValidator        `json:"validators"`
	AppHash         []byte                    `json:"app_hash"`
	AppState        json.RawMessage           `json:"app_state"`
}

// SaveAs is a utility method for saving GenensisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := cmtjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, genDocBytes, 0o600)
}

func (ag *GenesisDoc) ValidateAndComplete() error {
	if ag.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}

	if ag.InitialHeight < 0 {
		return fmt.Errorf("initial_height cannot be negative (got %v)", ag.InitialHeight)
	}

	if ag.InitialHeight == 0 {
		ag.InitialHeight = 1
	}

	if ag.GenesisTime.IsZero() {
		ag.GenesisTime = time.Now().Round(0).UTC()
	}

	return nil
}

func ExportGenesisFile(genesis *GenesisDoc, genFile string) error {
	if err := genesis.ValidateAndComplete(); err != nil {
		return err
	}
	return genesis.SaveAs(genFile)
}

const HACModuleName = "hac"
const DefaultPower = 1000

const (
	FlagHome      = "home"
	FlagChainID   = "chain-id"
	FlagOverwrite = "overwrite"
	FlagBalance   = "balance"
)
