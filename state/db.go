package state

import (
	"sync"

	"github.com/calehh/hac-ledger/phasing"
	"github.com/calehh/hac-ledger/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cosmos/iavl"
	dbm "github.com/cosmos/iavl/db"
	"github.com/ethereum/go-ethereum/common"
)

type StateDB struct {
	mtx sync.RWMutex

	logger cmtlog.Logger
	ldb    dbm.DB
	db     *iavl.MutableTree

	state *State
}

func NewStateDB(dir string, logger cmtlog.Logger) (db *StateDB, err error) {
	ldb, err := dbm.NewDB("hac", "goleveldb", dir)
	if err != nil {
		return nil, err
	}
	db, err = newStateDB(ldb, logger)
	if err != nil {
		ldb.Close()
		return nil, err
	}
	return db, nil
}

// NewMemStateDB returns a state database that lives in memory only.
func NewMemStateDB(logger cmtlog.Logger) (*StateDB, error) {
	return newStateDB(dbm.NewMemDB(), logger)
}

func newStateDB(ldb dbm.DB, logger cmtlog.Logger) (db *StateDB, err error) {
	logger = logger.With("module", "hacdb")
	tdb := iavl.NewMutableTree(ldb, 128, true, Cometbft2CosmosLogger(logger))
	version, err := tdb.Load()
	if err != nil {
		return nil, err
	}
	logger.Info("load db success", "version", version)
	st := newState(tdb, logger)
	st.dbVer = version
	err = st.load()
	if err != nil {
		logger.Error("from hacdb load fail", "err", err)
		return nil, err
	}
	db = &StateDB{
		logger: logger,
		ldb:    ldb,
		db:     tdb,
		state:  st,
	}
	return
}

// Close closes the tree and then the database under it, releasing the
// lock on the data dir.
func (db *StateDB) Close() (err error) {
	err = db.db.Close()
	if cerr := db.ldb.Close(); err == nil {
		err = cerr
	}
	return
}

// Version is the last saved tree version, which equals the height of the
// last committed block.
func (db *StateDB) Version() int64 {
	return db.db.Version()
}

func (db *StateDB) Header() (header *StateHeader) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	header = db.state.Header().Clone()
	return
}

func (db *StateDB) State() *State {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	return db.state
}

func (db *StateDB) NewState() (st *State) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	st = db.state.nextState()
	return
}

// GenesisState returns the state genesis is applied to. Its height is one
// below initialHeight so the first block lands on initialHeight.
func (db *StateDB) GenesisState(chainID string, initialHeight int64) (st *State, err error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	if initialHeight < 1 {
		initialHeight = 1
	}
	if initialHeight > 1 {
		db.db.SetInitialVersion(uint64(initialHeight))
	}
	st = newState(db.db, db.logger)
	st.header.ChainID = chainID
	st.header.Height = uint64(initialHeight - 1)
	return
}

// SetGenesisState makes st, already updated, the base of the first
// block. Nothing is saved until that block commits.
func (db *StateDB) SetGenesisState(st *State) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	db.state = st
}

func (db *StateDB) SetState(st *State) (hash common.Hash, err error) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	hash, err = st.save()
	if err != nil {
		return
	}
	db.state = st
	return
}

// Rollback discards every version above height and reloads the state saved
// at height.
func (db *StateDB) Rollback(height uint64) (err error) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	err = db.db.LoadVersionForOverwriting(int64(height))
	if err != nil {
		return
	}
	st := newState(db.db, db.logger)
	st.dbVer = int64(height)
	err = st.load()
	if err != nil {
		return
	}
	db.logger.Info("rollback state", "height", height, "hash", st.Hash())
	db.state = st
	return
}

func (db *StateDB) GetAccount(id types.AccountID) (acnt *Account, height uint64, err error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	acnt, err = db.state.GetAccount(id)
	if err != nil {
		return
	}
	if acnt != nil {
		acnt = acnt.Clone()
	}
	height = db.state.header.Height
	return
}

func (db *StateDB) GetHoldingBalance(tp types.HoldingType, holding uint64, account types.AccountID) (hb *HoldingBalance, height uint64, err error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	hb, err = db.state.GetHoldingBalance(tp, holding, account)
	height = db.state.header.Height
	return
}

func (db *StateDB) GetHolding(tp types.HoldingType, id uint64) (h *types.Holding, height uint64, err error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	h, err = db.state.GetHolding(tp, id)
	height = db.state.header.Height
	return
}

func (db *StateDB) GetPoll(id uint64) (poll *phasing.Poll, votes []*phasing.Vote, height uint64, err error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	store := phasing.NewPollStore(db.state.Store())
	poll, err = store.GetPoll(id)
	if err != nil || poll == nil {
		return
	}
	votes, err = store.Votes(id)
	height = db.state.header.Height
	return
}

func (db *StateDB) GetTransaction(hash types.FullHash) (rec *TxRecord, height uint64, err error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	rec, err = db.state.GetTransaction(hash)
	height = db.state.header.Height
	return
}

func (db *StateDB) GetTransactionByID(id uint64) (rec *TxRecord, height uint64, err error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	rec, err = db.state.GetTransactionByID(id)
	height = db.state.header.Height
	return
}

func (db *StateDB) Ledger(height uint64) (entries []types.LedgerEntry, err error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	return db.state.Ledger(height)
}
