package tx

import (
	"fmt"

	"github.com/calehh/hac-ledger/phasing"
	"github.com/calehh/hac-ledger/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

var (
	ErrHoldingNoexists     = errors.New("holding noexists")
	ErrNotHoldingIssuer    = errors.New("not holding issuer")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidHoldingType  = errors.New("invalid holding type")
	ErrAttachmentNotLedger = errors.New("ledger cannot delete holdings")
)

// HoldingReader is the chain state an attachment is validated against.
type HoldingReader interface {
	phasing.BalanceReader
	GetHolding(tp types.HoldingType, id uint64) (*types.Holding, error)
}

// HoldingLedger is a ledger that can also remove holdings.
type HoldingLedger interface {
	phasing.Ledger
	DeleteHolding(tp types.HoldingType, id uint64) error
}

// Attachment is the type specific part of a transaction.
type Attachment interface {
	phasing.Appendage
	Validate(st HoldingReader, btx *HACTx) error
	// ApplyUnconfirmed reserves what the attachment will spend when the
	// transaction is accepted.
	ApplyUnconfirmed(led phasing.Ledger, btx *HACTx) error
	UndoUnconfirmed(led phasing.Ledger, btx *HACTx) error
	IsDuplicate(dups types.Duplicates, add bool) bool
}

// transfer moves the transaction amount from sender to recipient. The
// amount has been reserved from the sender's unconfirmed balance already.
type transfer struct{}

func (transfer) IsPhasable() bool { return true }

func (transfer) Apply(led phasing.Ledger, t phasing.Transaction) error {
	if t.Amount() == 0 {
		return nil
	}
	if err := led.AddToBalance(types.LedgerEventOrdinaryPayment, t.ID(), t.SenderID(), -t.Amount()); err != nil {
		return err
	}
	return led.AddToBalanceAndUnconfirmedBalance(types.LedgerEventOrdinaryPayment, t.ID(), t.RecipientID(), t.Amount())
}

type PaymentTx struct{}

func (a *PaymentTx) IsPhasable() bool { return true }

func (a *PaymentTx) Validate(st HoldingReader, btx *HACTx) error {
	if btx.AmountNQT <= 0 {
		return errors.Wrapf(ErrInvalidTx, "payment amount %d", btx.AmountNQT)
	}
	if btx.Recipient == 0 {
		return errors.Wrap(ErrInvalidTx, "payment without recipient")
	}
	return nil
}

func (a *PaymentTx) Apply(phasing.Ledger, phasing.Transaction) error { return nil }

func (a *PaymentTx) ApplyUnconfirmed(phasing.Ledger, *HACTx) error { return nil }

func (a *PaymentTx) UndoUnconfirmed(phasing.Ledger, *HACTx) error { return nil }

func (a *PaymentTx) IsDuplicate(types.Duplicates, bool) bool { return false }

type HoldingTransferTx struct {
	HoldingType types.HoldingType `json:"holdingType"`
	Holding     uint64            `json:"holding,string"`
	Quantity    int64             `json:"quantityQNT"`
}

func (a *HoldingTransferTx) IsPhasable() bool { return true }

func (a *HoldingTransferTx) Validate(st HoldingReader, btx *HACTx) error {
	if a.HoldingType != types.HoldingTypeAsset && a.HoldingType != types.HoldingTypeCurrency {
		return errors.Wrapf(ErrInvalidHoldingType, "%v", a.HoldingType)
	}
	if a.Quantity <= 0 || a.Quantity > MaxAmount {
		return errors.Wrapf(ErrInvalidQuantity, "%d", a.Quantity)
	}
	if btx.Recipient == 0 {
		return errors.Wrap(ErrInvalidTx, "holding transfer without recipient")
	}
	h, err := st.GetHolding(a.HoldingType, a.Holding)
	if err != nil {
		return err
	}
	if h == nil {
		return errors.Wrapf(ErrHoldingNoexists, "%v %d", a.HoldingType, a.Holding)
	}
	return nil
}

func (a *HoldingTransferTx) Apply(led phasing.Ledger, t phasing.Transaction) error {
	ev := types.LedgerEventHoldingTransfer
	if err := led.AddToHoldingBalance(ev, t.ID(), a.HoldingType, a.Holding, t.SenderID(), -a.Quantity); err != nil {
		return err
	}
	return led.AddToHoldingBalanceAndUnconfirmed(ev, t.ID(), a.HoldingType, a.Holding, t.RecipientID(), a.Quantity)
}

func (a *HoldingTransferTx) ApplyUnconfirmed(led phasing.Ledger, btx *HACTx) error {
	return led.AddToUnconfirmedHoldingBalance(types.LedgerEventHoldingTransfer, btx.ID(), a.HoldingType, a.Holding, btx.SenderID(), -a.Quantity)
}

func (a *HoldingTransferTx) UndoUnconfirmed(led phasing.Ledger, btx *HACTx) error {
	return led.AddToUnconfirmedHoldingBalance(types.LedgerEventHoldingTransfer, btx.ID(), a.HoldingType, a.Holding, btx.SenderID(), a.Quantity)
}

func (a *HoldingTransferTx) IsDuplicate(types.Duplicates, bool) bool { return false }

// HoldingDeleteTx removes a holding from the registry. Only its issuer
// may delete it, and only once per block.
type HoldingDeleteTx struct {
	HoldingType types.HoldingType `json:"holdingType"`
	Holding     uint64            `json:"holding,string"`
}

func (a *HoldingDeleteTx) IsPhasable() bool { return true }

func (a *HoldingDeleteTx) Validate(st HoldingReader, btx *HACTx) error {
	if a.HoldingType != types.HoldingTypeAsset && a.HoldingType != types.HoldingTypeCurrency {
		return errors.Wrapf(ErrInvalidHoldingType, "%v", a.HoldingType)
	}
	h, err := st.GetHolding(a.HoldingType, a.Holding)
	if err != nil {
		return err
	}
	if h == nil {
		return errors.Wrapf(ErrHoldingNoexists, "%v %d", a.HoldingType, a.Holding)
	}
	if h.Issuer != btx.SenderID() {
		return errors.Wrapf(ErrNotHoldingIssuer, "%v %d", a.HoldingType, a.Holding)
	}
	return nil
}

func (a *HoldingDeleteTx) Apply(led phasing.Ledger, t phasing.Transaction) error {
	hl, ok := led.(HoldingLedger)
	if !ok {
		return ErrAttachmentNotLedger
	}
	return hl.DeleteHolding(a.HoldingType, a.Holding)
}

func (a *HoldingDeleteTx) ApplyUnconfirmed(phasing.Ledger, *HACTx) error { return nil }

func (a *HoldingDeleteTx) UndoUnconfirmed(phasing.Ledger, *HACTx) error { return nil }

func (a *HoldingDeleteTx) IsDuplicate(dups types.Duplicates, add bool) bool {
	return dups.IsDuplicate(HACTxTypeHoldingDelete.String(), fmt.Sprintf("%d:%d", a.HoldingType, a.Holding), 1, add)
}

// PhasingVoteCastingTx approves the phased transactions with the given
// full hashes. RevealedSecret is required for HASH polls.
type PhasingVoteCastingTx struct {
	FullHashes     []hexutil.Bytes `json:"transactionFullHashes"`
	RevealedSecret hexutil.Bytes   `json:"revealedSecret,omitempty"`
}

func (a *PhasingVoteCastingTx) IsPhasable() bool { return false }

func (a *PhasingVoteCastingTx) Hashes() [][]byte {
	hashes := make([][]byte, len(a.FullHashes))
	for i, h := range a.FullHashes {
		hashes[i] = h
	}
	return hashes
}

func (a *PhasingVoteCastingTx) Validate(st HoldingReader, btx *HACTx) error {
	if btx.Phasing() != nil {
		return errors.Wrap(ErrInvalidTx, "vote casting cannot be phased")
	}
	return nil
}

func (a *PhasingVoteCastingTx) Apply(phasing.Ledger, phasing.Transaction) error { return nil }

func (a *PhasingVoteCastingTx) ApplyUnconfirmed(phasing.Ledger, *HACTx) error { return nil }

func (a *PhasingVoteCastingTx) UndoUnconfirmed(phasing.Ledger, *HACTx) error { return nil }

func (a *PhasingVoteCastingTx) IsDuplicate(types.Duplicates, bool) bool { return false }
