package phasing

import (
	"crypto/sha256"
	"errors"
	"sort"
	"strings"

	"github.com/calehh/hac-ledger/types"
)

type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(key []byte) ([]byte, error) {
	return m.data[string(key)], nil
}

func (m *memKV) Set(key, value []byte) error {
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Delete(key []byte) error {
	delete(m.data, string(key))
	return nil
}

func (m *memKV) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		stop, err := fn([]byte(k), m.data[k])
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

type holdingKey struct {
	tp      types.HoldingType
	holding uint64
	account types.AccountID
}

type ledgerState struct {
	balances    map[types.AccountID]int64
	unconfirmed map[types.AccountID]int64
	holdings    map[holdingKey]int64
	uholdings   map[holdingKey]int64
}

func (l ledgerState) clone() ledgerState {
	c := ledgerState{
		balances:    make(map[types.AccountID]int64),
		unconfirmed: make(map[types.AccountID]int64),
		holdings:    make(map[holdingKey]int64),
		uholdings:   make(map[holdingKey]int64),
	}
	for k, v := range l.balances {
		c.balances[k] = v
	}
	for k, v := range l.unconfirmed {
		c.unconfirmed[k] = v
	}
	for k, v := range l.holdings {
		c.holdings[k] = v
	}
	for k, v := range l.uholdings {
		c.uholdings[k] = v
	}
	return c
}

type fakeEnv struct {
	ledgerState
	height    uint64
	kv        *memKV
	existing  map[holdingKey]bool
	confirmed map[types.FullHash]*LinkedTransaction
	txs       map[types.FullHash]Transaction
	snapshots []ledgerState
}

func newFakeEnv(height uint64) *fakeEnv {
	return &fakeEnv{
		ledgerState: ledgerState{}.clone(),
		height:      height,
		kv:          newMemKV(),
		existing:    make(map[holdingKey]bool),
		confirmed:   make(map[types.FullHash]*LinkedTransaction),
		txs:         make(map[types.FullHash]Transaction),
	}
}

func (e *fakeEnv) Balance(a types.AccountID) (int64, error) { return e.balances[a], nil }

func (e *fakeEnv) HoldingBalance(tp types.HoldingType, holding uint64, a types.AccountID) (int64, error) {
	return e.holdings[holdingKey{tp, holding, a}], nil
}

func (e *fakeEnv) HoldingExists(tp types.HoldingType, holding uint64) (bool, error) {
	return e.existing[holdingKey{tp: tp, holding: holding}], nil
}

func (e *fakeEnv) AddToBalance(_ types.LedgerEvent, _ uint64, a types.AccountID, amount int64) error {
	if e.balances[a]+amount < 0 {
		return errors.New("insufficient balance")
	}
	e.balances[a] += amount
	return nil
}

func (e *fakeEnv) AddToUnconfirmedBalance(_ types.LedgerEvent, _ uint64, a types.AccountID, amount int64) error {
	e.unconfirmed[a] += amount
	return nil
}

func (e *fakeEnv) AddToBalanceAndUnconfirmedBalance(ev types.LedgerEvent, id uint64, a types.AccountID, amount int64) error {
	if err := e.AddToBalance(ev, id, a, amount); err != nil {
		return err
	}
	return e.AddToUnconfirmedBalance(ev, id, a, amount)
}

func (e *fakeEnv) AddToHoldingBalance(_ types.LedgerEvent, _ uint64, tp types.HoldingType, holding uint64, a types.AccountID, q int64) error {
	e.holdings[holdingKey{tp, holding, a}] += q
	return nil
}

func (e *fakeEnv) AddToUnconfirmedHoldingBalance(_ types.LedgerEvent, _ uint64, tp types.HoldingType, holding uint64, a types.AccountID, q int64) error {
	e.uholdings[holdingKey{tp, holding, a}] += q
	return nil
}

func (e *fakeEnv) AddToHoldingBalanceAndUnconfirmed(ev types.LedgerEvent, id uint64, tp types.HoldingType, holding uint64, a types.AccountID, q int64) error {
	_ = e.AddToHoldingBalance(ev, id, tp, holding, a, q)
	return e.AddToUnconfirmedHoldingBalance(ev, id, tp, holding, a, q)
}

func (e *fakeEnv) Snapshot() int {
	e.snapshots = append(e.snapshots, e.ledgerState.clone())
	return len(e.snapshots) - 1
}

func (e *fakeEnv) RevertToSnapshot(id int) {
	e.ledgerState = e.snapshots[id]
	e.snapshots = e.snapshots[:id]
}

func (e *fakeEnv) DiscardSnapshot(id int) {
	e.snapshots = e.snapshots[:id]
}

func (e *fakeEnv) FindTransactionByFullHash(hash []byte, height uint64) (*LinkedTransaction, error) {
	var h types.FullHash
	copy(h[:], hash)
	lt, ok := e.confirmed[h]
	if !ok || lt.Height > height {
		return nil, nil
	}
	return lt, nil
}

func (e *fakeEnv) LoadTransaction(hash types.FullHash) (Transaction, error) {
	tx, ok := e.txs[hash]
	if !ok {
		return nil, nil
	}
	return tx, nil
}

func (e *fakeEnv) Store() KVStore { return e.kv }

func (e *fakeEnv) Height() uint64 { return e.height }

func (e *fakeEnv) confirm(hash types.FullHash, height uint64, timestamp uint32) {
	e.confirmed[hash] = &LinkedTransaction{ID: hash.ID(), FullHash: hash, Height: height, Timestamp: timestamp}
}

// payment moves amount from sender to recipient when applied.
type payment struct {
	fail  bool
	panic bool
}

func (p *payment) IsPhasable() bool { return true }

func (p *payment) Apply(led Ledger, tx Transaction) error {
	if err := led.AddToBalance(types.LedgerEventOrdinaryPayment, tx.ID(), tx.SenderID(), -tx.Amount()); err != nil {
		return err
	}
	if err := led.AddToBalanceAndUnconfirmedBalance(types.LedgerEventOrdinaryPayment, tx.ID(), tx.RecipientID(), tx.Amount()); err != nil {
		return err
	}
	if p.panic {
		panic("boom")
	}
	if p.fail {
		return errors.New("apply failed")
	}
	return nil
}

type fakeTx struct {
	hash      types.FullHash
	sender    types.AccountID
	recipient types.AccountID
	timestamp uint32
	amount    int64
	phasing   *Appendix
	pay       *payment
	dupKey    string
}

func newFakeTx(seed string, a *Appendix) *fakeTx {
	return &fakeTx{
		hash:      sha256.Sum256([]byte(seed)),
		sender:    1,
		recipient: 2,
		timestamp: 1000,
		amount:    500,
		phasing:   a,
		pay:       &payment{},
	}
}

func (t *fakeTx) ID() uint64                   { return t.hash.ID() }
func (t *fakeTx) FullHash() types.FullHash     { return t.hash }
func (t *fakeTx) SenderID() types.AccountID    { return t.sender }
func (t *fakeTx) RecipientID() types.AccountID { return t.recipient }
func (t *fakeTx) Timestamp() uint32            { return t.timestamp }
func (t *fakeTx) Amount() int64                { return t.amount }
func (t *fakeTx) Phasing() *Appendix           { return t.phasing }

func (t *fakeTx) Appendages() []Appendage {
	return []Appendage{t.pay}
}

func (t *fakeTx) UndoAttachmentUnconfirmed(Ledger) error { return nil }

func (t *fakeTx) AttachmentIsDuplicate(dups types.Duplicates, add bool) bool {
	if t.dupKey == "" {
		return false
	}
	return dups.IsDuplicate("test", t.dupKey, 1, add)
}

func hashOf(seed string) types.FullHash {
	return sha256.Sum256([]byte(seed))
}
