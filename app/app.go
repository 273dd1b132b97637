package app

import (
	"context"
	"encoding/json"

	"github.com/calehh/hac-ledger/config"
	"github.com/calehh/hac-ledger/phasing"
	"github.com/calehh/hac-ledger/state"
	"github.com/calehh/hac-ledger/tx"
	"github.com/calehh/hac-ledger/tx/handler"
	"github.com/calehh/hac-ledger/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cometbft/cometbft/store"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var _ abcitypes.Application = &HACApp{}

// HACApp is the ABCI application of the ledger. Blocks are executed by
// txHdlrs against app.st; proposals and the mempool go through dryHdlrs,
// whose engine reports no metrics and no outcomes.
type HACApp struct {
	cfg    *config.HACAppConfig
	logger cmtlog.Logger

	db        *state.StateDB
	engine    *phasing.Engine
	dryEngine *phasing.Engine
	txHdlrs   map[tx.HACTxType]handler.TxHandler
	dryHdlrs  map[tx.HACTxType]handler.TxHandler
	queriers  map[string]Querier
	outcomes  *outcomeCollector

	st *state.State
}

// NewHACApp opens the state under the data dir of cfg. Phasing metrics are
// registered with reg when it is not nil.
func NewHACApp(cfg *config.HACAppConfig, logger cmtlog.Logger, reg prometheus.Registerer) (app *HACApp, err error) {
	db, err := state.NewStateDB(cfg.DataDir(), logger)
	if err != nil {
		return nil, err
	}
	app, err = newHACApp(cfg, db, logger, reg)
	if err != nil {
		_ = db.Close()
	}
	return
}

func newHACApp(cfg *config.HACAppConfig, db *state.StateDB, logger cmtlog.Logger, reg prometheus.Registerer) (app *HACApp, err error) {
	logger = logger.With("module", "app")
	hashes := phasing.DefaultHashRegistry()
	engine, err := phasing.NewEngine(cfg.Phasing, hashes, logger, reg)
	if err != nil {
		return nil, errors.Wrap(err, "new phasing engine")
	}
	dryEngine, err := phasing.NewEngine(cfg.Phasing, hashes, cmtlog.NewNopLogger(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new phasing engine")
	}
	app = &HACApp{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		engine:    engine,
		dryEngine: dryEngine,
		queriers:  make(map[string]Querier),
		outcomes:  &outcomeCollector{},
	}
	engine.AddListener(app.outcomes)
	app.registerTxHandler()
	app.registerQuerier()
	return
}

// Start aligns the state with the block store: blocks the store never
// persisted are rolled back.
func (app *HACApp) Start(bs *store.BlockStore) error {
	height := app.db.Header().Height
	stored := uint64(bs.Height())
	if stored == 0 || height <= stored {
		return nil
	}
	app.logger.Info("state ahead of block store, rolling back", "state", height, "store", stored)
	return app.db.Rollback(stored)
}

func (app *HACApp) Stop() {
	err := app.db.Close()
	if err != nil {
		app.logger.Error("close db fail", "err", err)
	}
	app.logger.Info("HAC app stopped")
}

func (app *HACApp) registerTxHandler() {
	app.txHdlrs = handler.NewTxHandlers(app.engine, app.logger)
	app.dryHdlrs = handler.NewTxHandlers(app.dryEngine, cmtlog.NewNopLogger())
}

func (app *HACApp) registerQuerier() {
	app.queriers["/accounts/"] = NewAccountQuerier(app.db, app.logger)
	app.queriers["/holdings/"] = NewHoldingQuerier(app.db, app.logger)
	app.queriers["/polls/"] = NewPollQuerier(app.db, app.logger)
	app.queriers["/transactions/"] = NewTransactionQuerier(app.db, app.logger)
	app.queriers["/ledger/"] = NewLedgerQuerier(app.db, app.logger)
}

func (app *HACApp) InitChain(_ context.Context, chain *abcitypes.RequestInitChain) (res *abcitypes.ResponseInitChain, err error) {
	var gs types.GenesisState
	if len(chain.AppStateBytes) != 0 {
		if err = json.Unmarshal(chain.AppStateBytes, &gs); err != nil {
			app.logger.Error("InitChain decode app state fail", "err", err)
			return nil, errors.Wrap(err, "decode app state")
		}
	}
	st, err := app.db.GenesisState(chain.ChainId, chain.InitialHeight)
	if err != nil {
		return nil, err
	}
	if err = st.SetGenesis(&gs); err != nil {
		app.logger.Error("InitChain apply genesis fail", "err", err)
		return nil, err
	}
	h, err := st.Update()
	if err != nil {
		app.logger.Error("InitChain update state fail", "err", err)
		return nil, err
	}
	app.db.SetGenesisState(st)
	app.logger.Info("InitChain", "chainID", chain.ChainId, "initialHeight", chain.InitialHeight, "accounts", len(gs.Accounts), "hash", h)
	return &abcitypes.ResponseInitChain{
		AppHash: h.Bytes(),
	}, nil
}

func (app *HACApp) Info(ctx context.Context, info *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	header := app.db.Header()
	return &abcitypes.ResponseInfo{
		LastBlockHeight:  int64(app.db.Version()),
		LastBlockAppHash: header.Hash,
	}, nil
}

func (app *HACApp) ExtendVote(_ context.Context, extend *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (app *HACApp) VerifyVoteExtension(_ context.Context, verify *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

func (app *HACApp) ApplySnapshotChunk(context.Context, *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{}, nil
}

func (app *HACApp) ListSnapshots(context.Context, *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

func (app *HACApp) LoadSnapshotChunk(context.Context, *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

func (app *HACApp) OfferSnapshot(context.Context, *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{}, nil
}

// outcomeCollector turns the release and rejection notifications of a
// block into events.
type outcomeCollector struct {
	events []abcitypes.Event
}

func (c *outcomeCollector) OnPhasedOutcome(o phasing.Outcome, t phasing.Transaction, poll *phasing.Poll, early bool) {
	ev := &types.EventPhasedOutcome{
		Type:        types.EventReleasePhasedType,
		Transaction: t.ID(),
		FullHash:    t.FullHash(),
		Sender:      t.SenderID(),
		Early:       early,
	}
	if o == phasing.OutcomeRejected {
		ev.Type = types.EventRejectPhasedType
	}
	if poll != nil && poll.Result != nil {
		ev.Result = *poll.Result
	}
	c.events = append(c.events, types.EncodeEventPhasedOutcome(ev))
}

func (c *outcomeCollector) take() (events []abcitypes.Event) {
	events, c.events = c.events, nil
	return
}
