package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/calehh/hac-ledger/phasing"
	"github.com/calehh/hac-ledger/state"
	"github.com/calehh/hac-ledger/tx"
	"github.com/calehh/hac-ledger/tx/handler"
	hac_types "github.com/calehh/hac-ledger/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
)

var (
	ErrUnsupportedTx = errors.New("unsupported tx")
	ErrNoBlockState  = errors.New("commit without finalized block")
)

func (app *HACApp) parseTx(txDat []byte, hdlrs map[tx.HACTxType]handler.TxHandler) (btx *tx.HACTx, h handler.TxHandler, err error) {
	btx, err = tx.UnmarshalHACTx(txDat)
	if err != nil {
		return
	}
	h, ok := hdlrs[btx.Type]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedTx, btx.Type)
	}
	return
}

func (app *HACApp) CheckTx(ctx context.Context, check *abcitypes.RequestCheckTx) (res *abcitypes.ResponseCheckTx, err error) {
	btx, h, err := app.parseTx(check.Tx, app.dryHdlrs)
	if err != nil {
		app.logger.Info("CheckTx parse fail", "err", err)
		return &abcitypes.ResponseCheckTx{Code: handler.CodeNotValid, Log: err.Error()}, nil
	}
	res, err = h.Check(ctx, app.db.NewState(), btx)
	if err != nil {
		app.logger.Error("check tx fail", "type", btx.Type, "err", err)
		return &abcitypes.ResponseCheckTx{Code: handler.CodeNotValid, Log: err.Error()}, nil
	}
	return
}

// execute runs the transactions of a block in order. A failing transaction
// is reverted and reported through its result code; the block carries on.
func (app *HACApp) execute(ctx context.Context, st *state.State, blk *phasing.Block, txs [][]byte, hdlrs map[tx.HACTxType]handler.TxHandler) (res []*abcitypes.ExecTxResult) {
	res = make([]*abcitypes.ExecTxResult, len(txs))
	for i, stx := range txs {
		res[i] = app.executeTx(ctx, st, blk, stx, uint32(i), hdlrs)
	}
	return
}

func (app *HACApp) executeTx(ctx context.Context, st *state.State, blk *phasing.Block, stx []byte, index uint32, hdlrs map[tx.HACTxType]handler.TxHandler) *abcitypes.ExecTxResult {
	btx, h, err := app.parseTx(stx, hdlrs)
	if err != nil {
		return &abcitypes.ExecTxResult{Code: handler.CodeNotValid, Log: err.Error()}
	}
	snap := st.Snapshot()
	result, err := h.Process(ctx, st, blk, btx, index)
	if err != nil {
		st.RevertToSnapshot(snap)
		return &abcitypes.ExecTxResult{Code: handler.ErrorCode(err), Log: err.Error()}
	}
	st.DiscardSnapshot(snap)
	if result == nil {
		result = &abcitypes.ExecTxResult{}
	}
	return result
}

func (app *HACApp) PrepareProposal(ctx context.Context, proposal *abcitypes.RequestPrepareProposal) (res *abcitypes.ResponsePrepareProposal, err error) {
	st := app.db.NewState()
	blk := phasing.NewBlock(st.Height(), nil)
	txs := make([][]byte, 0, len(proposal.Txs))
	var size int64
	for _, stx := range proposal.Txs {
		if size+int64(len(stx)) > proposal.MaxTxBytes {
			break
		}
		result := app.executeTx(ctx, st, blk, stx, uint32(len(txs)), app.dryHdlrs)
		if result.Code != handler.CodeOK {
			app.logger.Info("PrepareProposal drop tx", "code", result.Code, "log", result.Log)
			continue
		}
		size += int64(len(stx))
		txs = append(txs, stx)
	}
	app.logger.Info("PrepareProposal", "height", proposal.Height, "txs", len(txs), "dropped", len(proposal.Txs)-len(txs))
	return &abcitypes.ResponsePrepareProposal{Txs: txs}, nil
}

func (app *HACApp) ProcessProposal(ctx context.Context, proposal *abcitypes.RequestProcessProposal) (res *abcitypes.ResponseProcessProposal, err error) {
	res = &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}
	st := app.db.NewState()
	if uint64(proposal.Height) != st.Height() {
		app.logger.Error("ProcessProposal height unmatched", "height", proposal.Height, "state", st.Height())
		return res, nil
	}
	blk := phasing.NewBlock(st.Height(), nil)
	for i, result := range app.execute(ctx, st, blk, proposal.Txs, app.dryHdlrs) {
		if result.Code != handler.CodeOK {
			app.logger.Error("ProcessProposal reject", "height", proposal.Height, "tx", i, "code", result.Code, "log", result.Log)
			return res, nil
		}
	}
	res.Status = abcitypes.ResponseProcessProposal_ACCEPT
	return res, nil
}

func (app *HACApp) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	st := app.db.NewState()
	if uint64(req.Height) != st.Height() {
		app.logger.Error("FinalizeBlock height unmatched", "height", req.Height, "state", st.Height())
		return nil, fmt.Errorf("%w: block %d, state %d", state.ErrStateHeightUnmatched, req.Height, st.Height())
	}
	app.outcomes.take()
	blk := phasing.NewBlock(st.Height(), nil)
	res := app.execute(ctx, st, blk, req.Txs, app.txHdlrs)
	if err := app.engine.EndBlock(st, blk); err != nil {
		app.logger.Error("phasing end block fail", "height", req.Height, "err", err)
		return nil, err
	}

	events := app.outcomes.take()
	entries := st.LedgerEntries()
	for i := range entries {
		events = append(events, hac_types.EncodeEventAccountLedger(&entries[i]))
	}
	h, err := st.Update()
	if err != nil {
		app.logger.Error("state update hash fail", "err", err)
		return nil, err
	}
	app.st = st
	app.engine.Accepted(countAccepted(res))
	app.logger.Info("FinalizeBlock", "height", req.Height, "txs", len(req.Txs), "hash", h)
	return &abcitypes.ResponseFinalizeBlock{
		TxResults: res,
		AppHash:   h.Bytes(),
		Events:    events,
	}, nil
}

// countAccepted counts the polls created and votes cast by the
// transactions that went through.
func countAccepted(res []*abcitypes.ExecTxResult) (polls, votes int) {
	for _, r := range res {
		if r.Code != handler.CodeOK {
			continue
		}
		for _, ev := range r.Events {
			switch ev.Type {
			case hac_types.EventPhasingPollType:
				polls++
			case hac_types.EventPhasingVoteType:
				votes++
			}
		}
	}
	return
}

func (app *HACApp) Commit(ctx context.Context, commit *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	if app.st == nil {
		return nil, ErrNoBlockState
	}
	h, err := app.db.SetState(app.st)
	if err != nil {
		return nil, err
	}
	app.logger.Info("Commit", "height", app.st.Height(), "hash", h)
	app.st = nil
	return &abcitypes.ResponseCommit{}, nil
}
