package crypto

import (
	"fmt"
	"os"

	"github.com/calehh/hac-ledger/tx"
	"github.com/calehh/hac-ledger/types"
	"github.com/cometbft/cometbft/crypto/ed25519"
	cmtjson "github.com/cometbft/cometbft/libs/json"
	"github.com/cometbft/cometbft/privval"
)

// PV is an ed25519 key read from a cometbft private validator key file.
// The node's validator key doubles as its ledger account key.
type PV struct {
	privateKey ed25519.PrivKey
}

func LoadFilePV(keyFilePath string) (*PV, error) {
	keyJSONBytes, err := os.ReadFile(keyFilePath)
	if err != nil {
		return nil, err
	}
	pvKey := privval.FilePVKey{}
	err = cmtjson.Unmarshal(keyJSONBytes, &pvKey)
	if err != nil {
		return nil, fmt.Errorf("error reading PrivValidator key from %v: %w", keyFilePath, err)
	}
	key, ok := pvKey.PrivKey.(ed25519.PrivKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %v in %v", pvKey.PrivKey.Type(), keyFilePath)
	}
	return &PV{privateKey: key}, nil
}

func (k *PV) PublicKey() []byte {
	return k.privateKey.PubKey().Bytes()
}

func (k *PV) AccountID() types.AccountID {
	return types.AccountIDFromPubKey(k.PublicKey())
}

func (k *PV) Address() string {
	return k.privateKey.PubKey().Address().String()
}

// SignTx signs btx for chainID and returns the bytes to broadcast.
func (k *PV) SignTx(btx *tx.HACTx, chainID string) ([]byte, error) {
	return btx.Sign(k.privateKey, chainID)
}
