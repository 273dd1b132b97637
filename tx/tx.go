package tx

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"

	"github.com/calehh/hac-ledger/phasing"
	"github.com/calehh/hac-ledger/types"
	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// HACTx is the signed transaction envelope. Tx holds the type specific
// attachment and Appendices the optional appendices, keyed the way their
// JSON form is, e.g. the phasing appendix.
type HACTx struct {
	Version         uint8                      `json:"version"`
	Type            HACTxType                  `json:"type"`
	Time            uint32                     `json:"timestamp"`
	SenderPublicKey hexutil.Bytes              `json:"senderPublicKey"`
	Recipient       types.AccountID            `json:"recipient,string"`
	AmountNQT       int64                      `json:"amountNQT"`
	FeeNQT          int64                      `json:"feeNQT"`
	Tx              any                        `json:"tx"`
	Appendices      map[string]json.RawMessage `json:"appendices,omitempty"`
	Sig             [][]byte                   `json:"sig"`

	phasing  *phasing.Appendix
	fullHash types.FullHash
	raw      []byte
}

type hacTxTmpl[Tx any] struct {
	Version         uint8                      `json:"version"`
	Type            HACTxType                  `json:"type"`
	Time            uint32                     `json:"timestamp"`
	SenderPublicKey hexutil.Bytes              `json:"senderPublicKey"`
	Recipient       types.AccountID            `json:"recipient,string"`
	AmountNQT       int64                      `json:"amountNQT"`
	FeeNQT          int64                      `json:"feeNQT"`
	Tx              Tx                         `json:"tx"`
	Appendices      map[string]json.RawMessage `json:"appendices,omitempty"`
	Sig             [][]byte                   `json:"sig"`
}

var _ phasing.Transaction = (*HACTx)(nil)

// SetPhasing attaches a phasing appendix. It must be called before the
// transaction is signed.
func (tx *HACTx) SetPhasing(a *phasing.Appendix) error {
	if tx.Appendices == nil {
		tx.Appendices = make(map[string]json.RawMessage)
	}
	if err := a.PutJSON(tx.Appendices); err != nil {
		return err
	}
	tx.phasing = a
	return nil
}

func (tx *HACTx) SigData(ext []byte) (dat []byte, err error) {
	ntx := *tx
	ntx.Sig = [][]byte{ext}
	dat, err = json.Marshal(ntx)
	return
}

// Sign signs the transaction for chainID and returns its encoded bytes.
func (tx *HACTx) Sign(key ed25519.PrivKey, chainID string) (dat []byte, err error) {
	tx.SenderPublicKey = key.PubKey().Bytes()
	sigDat, err := tx.SigData([]byte(chainID))
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(sigDat)
	if err != nil {
		return nil, err
	}
	tx.Sig = [][]byte{sig}
	dat, err = MarshalHACTx(tx)
	if err != nil {
		return nil, err
	}
	tx.setRaw(dat)
	return dat, nil
}

func (tx *HACTx) VerifySig(chainID string) error {
	if len(tx.Sig) != 1 || len(tx.SenderPublicKey) != ed25519.PubKeySize {
		return ErrTxSigInvalid
	}
	dat, err := tx.SigData([]byte(chainID))
	if err != nil {
		return err
	}
	if !ed25519.PubKey(tx.SenderPublicKey).VerifySignature(dat, tx.Sig[0]) {
		return ErrTxSigInvalid
	}
	return nil
}

func (tx *HACTx) setRaw(dat []byte) {
	tx.fullHash = sha256.Sum256(dat)
	tx.raw = dat
}

func (tx *HACTx) Attachment() (Attachment, error) {
	a, ok := tx.Tx.(Attachment)
	if !ok || a == nil {
		return nil, ErrNoAttachment
	}
	return a, nil
}

func (tx *HACTx) ID() uint64 {
	return tx.fullHash.ID()
}

func (tx *HACTx) FullHash() types.FullHash {
	return tx.fullHash
}

// Raw returns the encoded bytes the transaction was parsed from or
// signed into.
func (tx *HACTx) Raw() []byte {
	return tx.raw
}

func (tx *HACTx) SenderID() types.AccountID {
	return types.AccountIDFromPubKey(tx.SenderPublicKey)
}

func (tx *HACTx) RecipientID() types.AccountID {
	return tx.Recipient
}

func (tx *HACTx) Timestamp() uint32 {
	return tx.Time
}

func (tx *HACTx) Amount() int64 {
	return tx.AmountNQT
}

func (tx *HACTx) Fee() int64 {
	return tx.FeeNQT
}

func (tx *HACTx) Phasing() *phasing.Appendix {
	return tx.phasing
}

func (tx *HACTx) Appendages() []phasing.Appendage {
	apps := []phasing.Appendage{transfer{}}
	if a, err := tx.Attachment(); err == nil {
		apps = append(apps, a)
	}
	return apps
}

func (tx *HACTx) UndoAttachmentUnconfirmed(led phasing.Ledger) error {
	a, err := tx.Attachment()
	if err != nil {
		return err
	}
	return a.UndoUnconfirmed(led, tx)
}

func (tx *HACTx) AttachmentIsDuplicate(dups types.Duplicates, addIfAbsent bool) bool {
	a, err := tx.Attachment()
	if err != nil {
		return false
	}
	return a.IsDuplicate(dups, addIfAbsent)
}

// MinFee is the smallest fee accepted for the transaction: one coin plus
// the surcharge of its phasing appendix.
func (tx *HACTx) MinFee(oneCoin int64) int64 {
	fee := oneCoin
	if tx.phasing != nil {
		fee += tx.phasing.BaselineFee(oneCoin)
	}
	return fee
}

func parseHACTxType(dat []byte) HACTxType {
	var tx struct {
		Type HACTxType `json:"type"`
	}
	err := json.Unmarshal(dat, &tx)
	if err != nil {
		return HACTxTypeUnknown
	}
	return tx.Type
}

func unmarshalHACTx[Tx any](dat []byte) (btx *HACTx, err error) {
	var txt hacTxTmpl[Tx]
	err = json.Unmarshal(dat, &txt)
	if err != nil {
		return
	}
	btx = new(HACTx)
	btx.Version = txt.Version
	btx.Type = txt.Type
	btx.Time = txt.Time
	btx.SenderPublicKey = txt.SenderPublicKey
	btx.Recipient = txt.Recipient
	btx.AmountNQT = txt.AmountNQT
	btx.FeeNQT = txt.FeeNQT
	btx.Tx = &txt.Tx
	btx.Appendices = txt.Appendices
	btx.Sig = txt.Sig
	btx.phasing, err = phasing.Parse(txt.Appendices)
	if err != nil {
		return nil, err
	}
	// the full hash is taken over dat, so dat must be the canonical encoding
	canon, err := MarshalHACTx(btx)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(canon, dat) {
		return nil, ErrNonCanonicalTx
	}
	btx.setRaw(dat)
	return
}

// UnmarshalHACTx decodes a transaction in its canonical encoding and
// derives its full hash from dat.
func UnmarshalHACTx(dat []byte) (btx *HACTx, err error) {
	tp := parseHACTxType(dat)
	switch tp {
	case HACTxTypePayment:
		btx, err = unmarshalHACTx[PaymentTx](dat)
	case HACTxTypeHoldingTransfer:
		btx, err = unmarshalHACTx[HoldingTransferTx](dat)
	case HACTxTypeHoldingDelete:
		btx, err = unmarshalHACTx[HoldingDeleteTx](dat)
	case HACTxTypePhasingVoteCasting:
		btx, err = unmarshalHACTx[PhasingVoteCastingTx](dat)
	default:
		return nil, ErrUnsupportedTxType
	}
	if err != nil {
		return nil, errors.Wrap(ErrInvalidTx, err.Error())
	}
	return
}

func MarshalHACTx(btx *HACTx) (dat []byte, err error) {
	return json.Marshal(btx)
}
