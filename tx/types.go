package tx

import (
	"errors"

	"github.com/calehh/hac-ledger/types"
)

type HACTxType uint8

const (
	HACTxTypeUnknown            HACTxType = 0
	HACTxTypePayment            HACTxType = 1
	HACTxTypeHoldingTransfer    HACTxType = 2
	HACTxTypeHoldingDelete      HACTxType = 3
	HACTxTypePhasingVoteCasting HACTxType = 4
)

func (t HACTxType) String() string {
	switch t {
	case HACTxTypePayment:
		return "payment"
	case HACTxTypeHoldingTransfer:
		return "holdingTransfer"
	case HACTxTypeHoldingDelete:
		return "holdingDelete"
	case HACTxTypePhasingVoteCasting:
		return "phasingVoteCasting"
	default:
		return "unknown"
	}
}

// LedgerEvent is the ledger event recorded for the attachment of a
// transaction of this type.
func (t HACTxType) LedgerEvent() types.LedgerEvent {
	switch t {
	case HACTxTypePayment:
		return types.LedgerEventOrdinaryPayment
	case HACTxTypeHoldingTransfer:
		return types.LedgerEventHoldingTransfer
	case HACTxTypeHoldingDelete:
		return types.LedgerEventHoldingDelete
	case HACTxTypePhasingVoteCasting:
		return types.LedgerEventPhasingVoteCasting
	default:
		return types.LedgerEventUnknown
	}
}

const (
	HACTxVersion0 uint8 = 0
	HACTxVersion1 uint8 = 1
)

const (
	// MaxAmount bounds amounts, fees and quantities so that sums of two
	// never overflow.
	MaxAmount int64 = 1 << 62
)

var (
	ErrInvalidTx            = errors.New("invalid tx")
	ErrUnsupportedTxType    = errors.New("unsupported tx type")
	ErrUnmatchedTxType      = errors.New("unmatched tx type")
	ErrUnsupportedTxVersion = errors.New("unsupported tx version")
	ErrTxSigInvalid         = errors.New("signature invalid")
	ErrNoAttachment         = errors.New("tx without attachment")
	ErrNonCanonicalTx       = errors.New("tx not in canonical encoding")
)
