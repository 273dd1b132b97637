package phasing

import (
	"github.com/calehh/hac-ledger/types"
)

// Transaction is the view of a phased transaction the engine works with.
type Transaction interface {
	ID() uint64
	FullHash() types.FullHash
	SenderID() types.AccountID
	RecipientID() types.AccountID
	Timestamp() uint32
	Amount() int64
	Phasing() *Appendix
	// Appendages lists the transaction's attachment followed by its other
	// appendices. Release applies the phasable ones in this order.
	Appendages() []Appendage
	// UndoAttachmentUnconfirmed reverses the unconfirmed reservation made
	// by the attachment when the transaction was accepted.
	UndoAttachmentUnconfirmed(led Ledger) error
	// AttachmentIsDuplicate reports whether the attachment's uniqueness key
	// is already claimed in this block, claiming it when addIfAbsent is set.
	AttachmentIsDuplicate(dups types.Duplicates, addIfAbsent bool) bool
}

type Appendage interface {
	IsPhasable() bool
	Apply(led Ledger, tx Transaction) error
}

type BalanceReader interface {
	Balance(account types.AccountID) (int64, error)
	HoldingBalance(tp types.HoldingType, holding uint64, account types.AccountID) (int64, error)
}

type HoldingRegistry interface {
	HoldingExists(tp types.HoldingType, holding uint64) (bool, error)
}

// Ledger is the balance store phasing reads weights from and settles
// released or rejected transactions against. Snapshot and RevertToSnapshot
// bracket a release so a failing appendage leaves no partial effects.
type Ledger interface {
	BalanceReader
	HoldingRegistry

	AddToBalance(ev types.LedgerEvent, eventID uint64, account types.AccountID, amount int64) error
	AddToUnconfirmedBalance(ev types.LedgerEvent, eventID uint64, account types.AccountID, amount int64) error
	AddToBalanceAndUnconfirmedBalance(ev types.LedgerEvent, eventID uint64, account types.AccountID, amount int64) error
	AddToHoldingBalance(ev types.LedgerEvent, eventID uint64, tp types.HoldingType, holding uint64, account types.AccountID, quantity int64) error
	AddToUnconfirmedHoldingBalance(ev types.LedgerEvent, eventID uint64, tp types.HoldingType, holding uint64, account types.AccountID, quantity int64) error
	AddToHoldingBalanceAndUnconfirmed(ev types.LedgerEvent, eventID uint64, tp types.HoldingType, holding uint64, account types.AccountID, quantity int64) error

	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

// LinkedTransaction is the confirmed-transaction record a TRANSACTION poll
// links to.
type LinkedTransaction struct {
	ID        uint64         `json:"id,string"`
	FullHash  types.FullHash `json:"fullHash"`
	Timestamp uint32         `json:"timestamp"`
	Height    uint64         `json:"height"`
	Index     uint32         `json:"index"`
	Phased    bool           `json:"phased"`
}

type Transactions interface {
	// FindTransactionByFullHash returns the transaction with the given full
	// hash if it was confirmed at or below height, nil otherwise.
	FindTransactionByFullHash(hash []byte, height uint64) (*LinkedTransaction, error)
	LoadTransaction(hash types.FullHash) (Transaction, error)
}

// KVStore is the versioned key/value store polls and votes live in.
type KVStore interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterate visits keys with the given prefix in ascending order until fn
	// returns stop or an error.
	Iterate(prefix []byte, fn func(key, value []byte) (stop bool, err error)) error
}

// Env is everything the engine needs from the block being applied.
// Height is the height of that block.
type Env interface {
	Ledger
	Transactions
	Store() KVStore
	Height() uint64
}

type Outcome int

const (
	OutcomeReleased Outcome = iota
	OutcomeRejected
)

func (o Outcome) String() string {
	if o == OutcomeReleased {
		return "released"
	}
	return "rejected"
}

// Listener is told about every released or rejected phased transaction.
type Listener interface {
	OnPhasedOutcome(outcome Outcome, tx Transaction, poll *Poll, early bool)
}
