package handler

import (
	"context"
	"fmt"

	"github.com/calehh/hac-ledger/phasing"
	"github.com/calehh/hac-ledger/state"
	"github.com/calehh/hac-ledger/tx"
	"github.com/calehh/hac-ledger/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// VoteCastingTxHandler records approvals of phased transactions. Votes
// take effect immediately; balance independent polls are queued for early
// resolution at the end of the block.
type VoteCastingTxHandler struct {
	baseHandler
}

func NewVoteCastingTxHandler(engine *phasing.Engine, logger cmtlog.Logger) (h *VoteCastingTxHandler) {
	logger = logger.With("module", "voteCastingTx")
	h = &VoteCastingTxHandler{
		baseHandler: baseHandler{logger: logger, engine: engine},
	}
	return
}

func (h *VoteCastingTxHandler) Check(ctx context.Context, st *state.State, btx *tx.HACTx) (res *abcitypes.ResponseCheckTx, err error) {
	return h.check(ctx, st, btx, h.handle)
}

func (h *VoteCastingTxHandler) handle(ctx context.Context, st *state.State, blk *phasing.Block, btx *tx.HACTx, index uint32) (res *abcitypes.ExecTxResult, err error) {
	vtx, ok := btx.Tx.(*tx.PhasingVoteCastingTx)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedTxType, btx.Type)
	}
	if err = h.validate(st, btx); err != nil {
		return nil, err
	}
	if err = vtx.Validate(st, btx); err != nil {
		return nil, err
	}
	voter := btx.SenderID()
	hashes := vtx.Hashes()
	if err = h.engine.ValidateVote(st, voter, hashes, vtx.RevealedSecret); err != nil {
		return nil, err
	}
	if err = h.charge(st, btx); err != nil {
		return nil, err
	}
	if err = h.engine.CastVote(st, blk, btx.ID(), voter, hashes); err != nil {
		return nil, err
	}
	if err = h.confirm(st, blk, btx, index); err != nil {
		return nil, err
	}

	res = &abcitypes.ExecTxResult{}
	for _, hash := range hashes {
		res.Events = append(res.Events, types.EncodeEventPhasingVote(&types.EventPhasingVote{
			Poll:   types.FullHashToID(hash),
			Voter:  voter,
			VoteTx: btx.ID(),
		}))
	}
	return
}

func (h *VoteCastingTxHandler) Process(ctx context.Context, st *state.State, blk *phasing.Block, btx *tx.HACTx, index uint32) (res *abcitypes.ExecTxResult, err error) {
	return h.handle(ctx, st, blk, btx, index)
}
