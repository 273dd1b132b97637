package state

import (
	"github.com/calehh/hac-ledger/types"
	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Account is the coin balance record of an account. PubKey is unknown
// until the account signs its first transaction, unless set at genesis.
type Account struct {
	ID                 types.AccountID `json:"id,string"`
	PubKey             hexutil.Bytes   `json:"publicKey,omitempty"`
	Balance            int64           `json:"balance"`
	UnconfirmedBalance int64           `json:"unconfirmedBalance"`
}

func (a *Account) Clone() *Account {
	n := *a
	if a.PubKey != nil {
		n.PubKey = make([]byte, len(a.PubKey))
		copy(n.PubKey, a.PubKey)
	}
	return &n
}

func (a *Account) SetPubKey(pkey []byte) {
	a.PubKey = make([]byte, len(pkey))
	copy(a.PubKey, pkey)
}

func (a *Account) Address() string {
	if len(a.PubKey) != ed25519.PubKeySize {
		return ""
	}
	return ed25519.PubKey(a.PubKey).Address().String()
}

// HoldingBalance is an account's balance of one asset or currency.
type HoldingBalance struct {
	Balance     int64 `json:"balance"`
	Unconfirmed int64 `json:"unconfirmed"`
}
