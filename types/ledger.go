package types

type LedgerEvent uint8

const (
	LedgerEventUnknown                 LedgerEvent = 0
	LedgerEventGenesis                 LedgerEvent = 1
	LedgerEventTransactionFee          LedgerEvent = 2
	LedgerEventOrdinaryPayment         LedgerEvent = 3
	LedgerEventHoldingTransfer         LedgerEvent = 4
	LedgerEventHoldingDelete           LedgerEvent = 5
	LedgerEventRejectPhasedTransaction LedgerEvent = 6
	LedgerEventPhasingVoteCasting      LedgerEvent = 7
)

var ledgerEventNames = map[LedgerEvent]string{
	LedgerEventGenesis:                 "GENESIS",
	LedgerEventTransactionFee:          "TRANSACTION_FEE",
	LedgerEventOrdinaryPayment:         "ORDINARY_PAYMENT",
	LedgerEventHoldingTransfer:         "HOLDING_TRANSFER",
	LedgerEventHoldingDelete:           "HOLDING_DELETE",
	LedgerEventRejectPhasedTransaction: "REJECT_PHASED_TRANSACTION",
	LedgerEventPhasingVoteCasting:      "PHASING_VOTE_CASTING",
}

func (e LedgerEvent) String() string {
	if name, ok := ledgerEventNames[e]; ok {
		return name
	}
	return "UNKNOWN"
}

// LedgerEntry records a single balance change, attributed to the
// transaction or block that caused it.
type LedgerEntry struct {
	Event       LedgerEvent `json:"event"`
	EventID     uint64      `json:"eventId,string"`
	Account     AccountID   `json:"account,string"`
	HoldingType HoldingType `json:"holdingType"`
	Holding     uint64      `json:"holding,string"`
	Change      int64       `json:"change"`
	Unconfirmed bool        `json:"unconfirmed"`
	Height      uint64      `json:"height"`
}
