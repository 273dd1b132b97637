package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/calehh/hac-ledger/phasing"
	"github.com/calehh/hac-ledger/tx"
	"github.com/calehh/hac-ledger/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cosmos/iavl"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/syndtr/goleveldb/leveldb"
)

const (
	ModifiedFlagNew = 1 << 0
	ModifiedFlagMod = 1 << 1
	ModifiedFlagPK  = 1 << 2
)

var (
	ErrNotFound = errors.New("not found")
)

var (
	KeyState          = "s"
	KeyAccountBody    = "a%016x"
	KeyHolding        = "h%02x%016x"
	KeyHoldingBalance = "b%02x%016x%016x"
	KeyTransaction    = "t%x"
	KeyTransactionID  = "ti%016x"
	KeyLedger         = "l%016x%08x"
	KeyLedgerHeight   = "l%016x"
)

var (
	ErrStateHeightUnmatched     = errors.New("state height unmatched")
	ErrAccountNoexists          = errors.New("account noexists")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrInsufficientUnconfirmed  = errors.New("insufficient unconfirmed balance")
	ErrHoldingNoexists          = errors.New("holding noexists")
	ErrHoldingAlreadyExists     = errors.New("holding already exists")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
)

// StateHeader is stored under KeyState. RootHash and Hash are those of the
// last saved version.
type StateHeader struct {
	ChainID  string        `json:"chainId"`
	Height   uint64        `json:"height"`
	RootHash hexutil.Bytes `json:"rootHash,omitempty"`
	Hash     hexutil.Bytes `json:"hash,omitempty"`
}

func (h *StateHeader) Clone() *StateHeader {
	n := *h
	n.RootHash = common.CopyBytes(h.RootHash)
	n.Hash = common.CopyBytes(h.Hash)
	return &n
}

// TxRecord is the index entry of a confirmed transaction.
type TxRecord struct {
	FullHash  types.FullHash  `json:"fullHash"`
	ID        uint64          `json:"id,string"`
	Type      tx.HACTxType    `json:"type"`
	Sender    types.AccountID `json:"sender,string"`
	Height    uint64          `json:"height"`
	Index     uint32          `json:"index"`
	Timestamp uint32          `json:"timestamp"`
	Phased    bool            `json:"phased"`
	Raw       []byte          `json:"raw"`
}

type snapshot struct {
	acnts         map[types.AccountID]*Account
	modifiedAcnts map[types.AccountID]uint32
	kv            *writeSet
	ledgerLen     int
}

// State is the chain state at one height. Everything but the header and
// accounts is buffered in a write set until Update flushes it to the tree.
type State struct {
	logger cmtlog.Logger
	db     *iavl.MutableTree
	dbVer  int64

	header        *StateHeader
	acnts         map[types.AccountID]*Account
	modifiedAcnts map[types.AccountID]uint32
	kv            *writeSet
	ledger        []types.LedgerEntry
	snapshots     []snapshot
}

var (
	_ phasing.Env      = (*State)(nil)
	_ tx.HoldingReader = (*State)(nil)
	_ tx.HoldingLedger = (*State)(nil)
)

func newState(db *iavl.MutableTree, logger cmtlog.Logger) *State {
	return &State{
		logger:        logger,
		db:            db,
		dbVer:         0,
		header:        new(StateHeader),
		acnts:         make(map[types.AccountID]*Account),
		modifiedAcnts: make(map[types.AccountID]uint32),
		kv:            newWriteSet(db),
	}
}

// nextState returns an empty state for the block after s.
func (s *State) nextState() *State {
	n := newState(s.db, s.logger)
	n.dbVer = s.dbVer
	n.header = s.header.Clone()
	n.header.Height = s.header.Height + 1
	return n
}

func deepCopyMap[K comparable, V any](source map[K]V) map[K]V {
	res := make(map[K]V, len(source))
	for k, v := range source {
		switch x := any(v).(type) {
		case *Account:
			res[k] = any(x.Clone()).(V)
		default:
			res[k] = v
		}
	}
	return res
}

// Clone returns an independent copy of s at the same height.
func (s *State) Clone() *State {
	n := &State{
		logger:        s.logger,
		db:            s.db,
		dbVer:         s.dbVer,
		header:        s.header.Clone(),
		acnts:         deepCopyMap(s.acnts),
		modifiedAcnts: deepCopyMap(s.modifiedAcnts),
		kv:            s.kv.clone(),
		ledger:        append([]types.LedgerEntry(nil), s.ledger...),
	}
	return n
}

func (s *State) Snapshot() int {
	s.snapshots = append(s.snapshots, snapshot{
		acnts:         deepCopyMap(s.acnts),
		modifiedAcnts: deepCopyMap(s.modifiedAcnts),
		kv:            s.kv.clone(),
		ledgerLen:     len(s.ledger),
	})
	return len(s.snapshots) - 1
}

// RevertToSnapshot discards every change made since Snapshot returned id,
// along with the snapshots taken after it.
func (s *State) RevertToSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		s.logger.Error("revert to unknown snapshot", "id", id, "snapshots", len(s.snapshots))
		return
	}
	snap := s.snapshots[id]
	s.acnts = snap.acnts
	s.modifiedAcnts = snap.modifiedAcnts
	s.kv = snap.kv
	s.ledger = s.ledger[:snap.ledgerLen]
	s.snapshots = s.snapshots[:id]
}

// DiscardSnapshot keeps the changes made since Snapshot returned id and
// drops that snapshot along with the ones taken after it.
func (s *State) DiscardSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		s.logger.Error("discard unknown snapshot", "id", id, "snapshots", len(s.snapshots))
		return
	}
	s.snapshots = s.snapshots[:id]
}

func (s *State) load() (err error) {
	val, err := s.db.Get([]byte(KeyState))
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil
		}
		return err
	}
	if val == nil {
		return nil
	}
	err = json.Unmarshal(val, s.header)
	if err != nil {
		return
	}
	h := s.db.Hash()
	if h != nil {
		s.calcHash(h, true)
	}
	return
}

func (s *State) calcHash(rootHash []byte, update bool) (h common.Hash) {
	h = crypto.Keccak256Hash(rootHash)
	if update {
		s.header.RootHash = common.CopyBytes(rootHash)
		s.header.Hash = common.CopyBytes(h[:])
	}
	return
}

// Update writes the header, the modified accounts, the buffered writes and
// the ledger entries of the block to the working tree and returns the
// resulting state hash.
func (s *State) Update() (h common.Hash, err error) {
	var hash []byte
	defer func() {
		if hash == nil {
			s.db.Rollback()
		}
	}()
	var val []byte
	val, err = json.Marshal(s.header)
	if err != nil {
		return
	}
	_, err = s.db.Set([]byte(KeyState), val)
	if err != nil {
		return
	}

	n := len(s.modifiedAcnts)
	if n > 0 {
		ids := make([]types.AccountID, 0, n)
		for id := range s.modifiedAcnts {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return ids[i] < ids[j]
		})
		for _, id := range ids {
			acnt := s.acnts[id]
			val, err = json.Marshal(acnt)
			if err != nil {
				return
			}
			_, err = s.db.Set([]byte(fmt.Sprintf(KeyAccountBody, uint64(id))), val)
			if err != nil {
				return
			}
		}
	}

	for i := range s.ledger {
		val, err = json.Marshal(&s.ledger[i])
		if err != nil {
			return
		}
		_, err = s.db.Set([]byte(fmt.Sprintf(KeyLedger, s.header.Height, i)), val)
		if err != nil {
			return
		}
	}

	err = s.kv.flush()
	if err != nil {
		return
	}
	hash = s.db.WorkingHash()
	h = s.calcHash(hash, false)
	s.modifiedAcnts = make(map[types.AccountID]uint32)
	s.ledger = nil
	s.snapshots = nil
	return
}

func (s *State) save() (h common.Hash, err error) {
	hash, ver, err := s.db.SaveVersion()
	if err != nil {
		return h, err
	}

	s.dbVer = ver
	h = s.calcHash(hash, true)

	return
}

func (s *State) Header() *StateHeader {
	return s.header
}

func (s *State) Hash() (h common.Hash) {
	return common.BytesToHash(s.header.Hash)
}

// Height is the height of the block this state applies.
func (s *State) Height() uint64 {
	return s.header.Height
}

func (s *State) ChainID() string {
	return s.header.ChainID
}

func (s *State) SetChainID(chainID string) {
	s.header.ChainID = chainID
}

func (s *State) Store() phasing.KVStore {
	return s.kv
}

// LedgerEntries returns the entries recorded since the last Update.
func (s *State) LedgerEntries() []types.LedgerEntry {
	return s.ledger
}

func (s *State) GetAccount(id types.AccountID) (acnt *Account, err error) {
	acnt = s.acnts[id]
	if acnt != nil {
		return
	}
	val, err := s.db.Get([]byte(fmt.Sprintf(KeyAccountBody, uint64(id))))
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, nil
	}
	acnt = new(Account)
	err = json.Unmarshal(val, acnt)
	if err != nil {
		return nil, err
	}
	s.acnts[id] = acnt
	return
}

func (s *State) AccountExists(id types.AccountID) (bool, error) {
	acnt, err := s.GetAccount(id)
	return acnt != nil, err
}

// SetAccountPubKey records the public key of an existing account the first
// time it signs.
func (s *State) SetAccountPubKey(id types.AccountID, pubKey []byte) error {
	acnt, err := s.GetAccount(id)
	if err != nil {
		return err
	}
	if acnt == nil {
		return ErrAccountNoexists
	}
	if len(acnt.PubKey) != 0 {
		return nil
	}
	acnt.SetPubKey(pubKey)
	s.modifiedAcnts[id] |= ModifiedFlagPK
	return nil
}

func (s *State) Balance(id types.AccountID) (int64, error) {
	acnt, err := s.GetAccount(id)
	if err != nil || acnt == nil {
		return 0, err
	}
	return acnt.Balance, nil
}

func (s *State) UnconfirmedBalance(id types.AccountID) (int64, error) {
	acnt, err := s.GetAccount(id)
	if err != nil || acnt == nil {
		return 0, err
	}
	return acnt.UnconfirmedBalance, nil
}

func (s *State) record(ev types.LedgerEvent, eventID uint64, account types.AccountID, tp types.HoldingType, holding uint64, change int64, unconfirmed bool) {
	if change == 0 {
		return
	}
	s.ledger = append(s.ledger, types.LedgerEntry{
		Event:       ev,
		EventID:     eventID,
		Account:     account,
		HoldingType: tp,
		Holding:     holding,
		Change:      change,
		Unconfirmed: unconfirmed,
		Height:      s.header.Height,
	})
}

// addToAccount changes the balances of an account, creating it when it
// receives coins for the first time.
func (s *State) addToAccount(ev types.LedgerEvent, eventID uint64, id types.AccountID, balance, unconfirmed int64) error {
	if balance == 0 && unconfirmed == 0 {
		return nil
	}
	acnt, err := s.GetAccount(id)
	if err != nil {
		return err
	}
	var flag uint32 = ModifiedFlagMod
	if acnt == nil {
		acnt = &Account{ID: id}
		flag |= ModifiedFlagNew
	}
	if acnt.Balance+balance < 0 {
		return fmt.Errorf("%w: account %v balance %d change %d", ErrInsufficientBalance, id, acnt.Balance, balance)
	}
	if acnt.UnconfirmedBalance+unconfirmed < 0 {
		return fmt.Errorf("%w: account %v unconfirmed %d change %d", ErrInsufficientUnconfirmed, id, acnt.UnconfirmedBalance, unconfirmed)
	}
	acnt.Balance += balance
	acnt.UnconfirmedBalance += unconfirmed
	s.acnts[id] = acnt
	s.modifiedAcnts[id] |= flag
	s.record(ev, eventID, id, types.HoldingTypeCoin, 0, balance, false)
	s.record(ev, eventID, id, types.HoldingTypeCoin, 0, unconfirmed, true)
	return nil
}

func (s *State) AddToBalance(ev types.LedgerEvent, eventID uint64, account types.AccountID, amount int64) error {
	return s.addToAccount(ev, eventID, account, amount, 0)
}

func (s *State) AddToUnconfirmedBalance(ev types.LedgerEvent, eventID uint64, account types.AccountID, amount int64) error {
	return s.addToAccount(ev, eventID, account, 0, amount)
}

func (s *State) AddToBalanceAndUnconfirmedBalance(ev types.LedgerEvent, eventID uint64, account types.AccountID, amount int64) error {
	return s.addToAccount(ev, eventID, account, amount, amount)
}

func holdingKey(tp types.HoldingType, id uint64) []byte {
	return []byte(fmt.Sprintf(KeyHolding, uint8(tp), id))
}

func holdingBalanceKey(tp types.HoldingType, id uint64, account types.AccountID) []byte {
	return []byte(fmt.Sprintf(KeyHoldingBalance, uint8(tp), id, uint64(account)))
}

func (s *State) GetHolding(tp types.HoldingType, id uint64) (*types.Holding, error) {
	val, err := s.kv.Get(holdingKey(tp, id))
	if err != nil || val == nil {
		return nil, err
	}
	h := new(types.Holding)
	if err := json.Unmarshal(val, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *State) HoldingExists(tp types.HoldingType, id uint64) (bool, error) {
	h, err := s.GetHolding(tp, id)
	return h != nil, err
}

func (s *State) AddHolding(h *types.Holding) error {
	exists, err := s.HoldingExists(h.Type, h.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %v %d", ErrHoldingAlreadyExists, h.Type, h.ID)
	}
	val, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return s.kv.Set(holdingKey(h.Type, h.ID), val)
}

// DeleteHolding removes a holding from the registry. Balances are left in
// place and become unreachable through any transaction.
func (s *State) DeleteHolding(tp types.HoldingType, id uint64) error {
	exists, err := s.HoldingExists(tp, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %v %d", ErrHoldingNoexists, tp, id)
	}
	return s.kv.Delete(holdingKey(tp, id))
}

func (s *State) GetHoldingBalance(tp types.HoldingType, id uint64, account types.AccountID) (*HoldingBalance, error) {
	val, err := s.kv.Get(holdingBalanceKey(tp, id, account))
	if err != nil {
		return nil, err
	}
	hb := new(HoldingBalance)
	if val == nil {
		return hb, nil
	}
	if err := json.Unmarshal(val, hb); err != nil {
		return nil, err
	}
	return hb, nil
}

func (s *State) HoldingBalance(tp types.HoldingType, id uint64, account types.AccountID) (int64, error) {
	if tp == types.HoldingTypeCoin {
		return s.Balance(account)
	}
	hb, err := s.GetHoldingBalance(tp, id, account)
	if err != nil {
		return 0, err
	}
	return hb.Balance, nil
}

func (s *State) addToHolding(ev types.LedgerEvent, eventID uint64, tp types.HoldingType, id uint64, account types.AccountID, balance, unconfirmed int64) error {
	if tp == types.HoldingTypeCoin {
		return s.addToAccount(ev, eventID, account, balance, unconfirmed)
	}
	if balance == 0 && unconfirmed == 0 {
		return nil
	}
	hb, err := s.GetHoldingBalance(tp, id, account)
	if err != nil {
		return err
	}
	if hb.Balance+balance < 0 {
		return fmt.Errorf("%w: account %v %v %d balance %d change %d", ErrInsufficientBalance, account, tp, id, hb.Balance, balance)
	}
	if hb.Unconfirmed+unconfirmed < 0 {
		return fmt.Errorf("%w: account %v %v %d unconfirmed %d change %d", ErrInsufficientUnconfirmed, account, tp, id, hb.Unconfirmed, unconfirmed)
	}
	hb.Balance += balance
	hb.Unconfirmed += unconfirmed
	val, err := json.Marshal(hb)
	if err != nil {
		return err
	}
	if err := s.kv.Set(holdingBalanceKey(tp, id, account), val); err != nil {
		return err
	}
	s.record(ev, eventID, account, tp, id, balance, false)
	s.record(ev, eventID, account, tp, id, unconfirmed, true)
	return nil
}

func (s *State) AddToHoldingBalance(ev types.LedgerEvent, eventID uint64, tp types.HoldingType, holding uint64, account types.AccountID, quantity int64) error {
	return s.addToHolding(ev, eventID, tp, holding, account, quantity, 0)
}

func (s *State) AddToUnconfirmedHoldingBalance(ev types.LedgerEvent, eventID uint64, tp types.HoldingType, holding uint64, account types.AccountID, quantity int64) error {
	return s.addToHolding(ev, eventID, tp, holding, account, 0, quantity)
}

func (s *State) AddToHoldingBalanceAndUnconfirmed(ev types.LedgerEvent, eventID uint64, tp types.HoldingType, holding uint64, account types.AccountID, quantity int64) error {
	return s.addToHolding(ev, eventID, tp, holding, account, quantity, quantity)
}

func txKey(hash []byte) []byte {
	return []byte(fmt.Sprintf(KeyTransaction, hash))
}

// IndexTransaction records btx as confirmed at index within the current
// block.
func (s *State) IndexTransaction(btx *tx.HACTx, index uint32) error {
	hash := btx.FullHash()
	exists, err := s.HasTransaction(hash)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTransactionAlreadyExists, hash)
	}
	rec := TxRecord{
		FullHash:  hash,
		ID:        btx.ID(),
		Type:      btx.Type,
		Sender:    btx.SenderID(),
		Height:    s.header.Height,
		Index:     index,
		Timestamp: btx.Timestamp(),
		Phased:    btx.Phasing() != nil,
		Raw:       btx.Raw(),
	}
	val, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	if err := s.kv.Set(txKey(hash[:]), val); err != nil {
		return err
	}
	return s.kv.Set([]byte(fmt.Sprintf(KeyTransactionID, rec.ID)), hash[:])
}

func (s *State) HasTransaction(hash types.FullHash) (bool, error) {
	val, err := s.kv.Get(txKey(hash[:]))
	return val != nil, err
}

func (s *State) GetTransaction(hash types.FullHash) (*TxRecord, error) {
	val, err := s.kv.Get(txKey(hash[:]))
	if err != nil || val == nil {
		return nil, err
	}
	rec := new(TxRecord)
	if err := json.Unmarshal(val, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *State) GetTransactionByID(id uint64) (*TxRecord, error) {
	val, err := s.kv.Get([]byte(fmt.Sprintf(KeyTransactionID, id)))
	if err != nil || val == nil {
		return nil, err
	}
	hash, err := types.BytesToFullHash(val)
	if err != nil {
		return nil, err
	}
	return s.GetTransaction(hash)
}

func (s *State) FindTransactionByFullHash(hash []byte, height uint64) (*phasing.LinkedTransaction, error) {
	h, err := types.BytesToFullHash(hash)
	if err != nil {
		return nil, nil
	}
	rec, err := s.GetTransaction(h)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Height > height {
		return nil, nil
	}
	return &phasing.LinkedTransaction{
		ID:        rec.ID,
		FullHash:  rec.FullHash,
		Timestamp: rec.Timestamp,
		Height:    rec.Height,
		Index:     rec.Index,
		Phased:    rec.Phased,
	}, nil
}

func (s *State) LoadTransaction(hash types.FullHash) (phasing.Transaction, error) {
	rec, err := s.GetTransaction(hash)
	if err != nil || rec == nil {
		return nil, err
	}
	btx, err := tx.UnmarshalHACTx(rec.Raw)
	if err != nil {
		return nil, err
	}
	return btx, nil
}

// Ledger returns the ledger entries saved at height.
func (s *State) Ledger(height uint64) (entries []types.LedgerEntry, err error) {
	prefix := []byte(fmt.Sprintf(KeyLedgerHeight, height))
	it, err := s.db.Iterator(prefix, PrefixEndBytes(prefix), true)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		var e types.LedgerEntry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, it.Error()
}

// SetGenesis credits the genesis balances and registers the genesis
// holdings.
func (s *State) SetGenesis(gs *types.GenesisState) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	for _, ga := range gs.Accounts {
		id := types.AccountIDFromPubKey(ga.PubKey)
		acnt := &Account{ID: id}
		acnt.SetPubKey(ga.PubKey)
		s.acnts[id] = acnt
		s.modifiedAcnts[id] |= ModifiedFlagNew | ModifiedFlagPK
		if err := s.AddToBalanceAndUnconfirmedBalance(types.LedgerEventGenesis, 0, id, ga.Balance); err != nil {
			return err
		}
	}
	for i := range gs.Holdings {
		gh := &gs.Holdings[i]
		h := gh.Holding
		if err := s.AddHolding(&h); err != nil {
			return err
		}
		for _, b := range gh.Balances {
			if err := s.AddToHoldingBalanceAndUnconfirmed(types.LedgerEventGenesis, 0, h.Type, h.ID, b.Account, b.Quantity); err != nil {
				return err
			}
		}
	}
	return nil
}

