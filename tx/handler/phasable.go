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

// PhasableTxHandler executes payments and holding transactions. A
// transaction carrying a phasing appendix only reserves its funds and
// registers a poll; its effects wait for the poll to release it.
type PhasableTxHandler struct {
	baseHandler
}

func NewPhasableTxHandler(engine *phasing.Engine, logger cmtlog.Logger) (h *PhasableTxHandler) {
	logger = logger.With("module", "phasableTx")
	h = &PhasableTxHandler{
		baseHandler: baseHandler{logger: logger, engine: engine},
	}
	return
}

func (h *PhasableTxHandler) Check(ctx context.Context, st *state.State, btx *tx.HACTx) (res *abcitypes.ResponseCheckTx, err error) {
	return h.check(ctx, st, btx, h.handle)
}

func (h *PhasableTxHandler) handle(ctx context.Context, st *state.State, blk *phasing.Block, btx *tx.HACTx, index uint32) (res *abcitypes.ExecTxResult, err error) {
	if btx.Type == tx.HACTxTypePhasingVoteCasting {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedTxType, btx.Type)
	}
	att, err := btx.Attachment()
	if err != nil {
		return nil, err
	}
	if err = h.validate(st, btx); err != nil {
		return nil, err
	}
	if err = att.Validate(st, btx); err != nil {
		return nil, err
	}
	if err = h.engine.Validate(st, btx); err != nil {
		return nil, err
	}
	if att.IsDuplicate(blk.Duplicates, false) {
		return nil, fmt.Errorf("%w: %v %d", ErrDuplicateInBlock, btx.Type, btx.ID())
	}
	if err = h.charge(st, btx); err != nil {
		return nil, err
	}
	if err = att.ApplyUnconfirmed(st, btx); err != nil {
		return nil, err
	}

	res = &abcitypes.ExecTxResult{}
	if btx.Phasing() != nil {
		poll, err := h.engine.Apply(st, btx, index)
		if err != nil {
			return nil, err
		}
		res.Events = append(res.Events, types.EncodeEventPhasingPoll(&types.EventPhasingPoll{
			Transaction:  poll.TransactionID,
			FullHash:     poll.FullHash,
			Sender:       poll.Sender,
			FinishHeight: poll.FinishHeight,
			VotingModel:  int8(btx.Phasing().VotingModel()),
			Quorum:       btx.Phasing().Quorum(),
		}))
	} else {
		for _, app := range btx.Appendages() {
			if err = app.Apply(st, btx); err != nil {
				return nil, err
			}
		}
	}
	if err = h.confirm(st, blk, btx, index); err != nil {
		return nil, err
	}
	// a failed transaction is reverted, so the key is claimed last
	att.IsDuplicate(blk.Duplicates, true)
	return
}

func (h *PhasableTxHandler) Process(ctx context.Context, st *state.State, blk *phasing.Block, btx *tx.HACTx, index uint32) (res *abcitypes.ExecTxResult, err error) {
	return h.handle(ctx, st, blk, btx, index)
}
