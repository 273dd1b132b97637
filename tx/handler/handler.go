package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/calehh/hac-ledger/phasing"
	"github.com/calehh/hac-ledger/state"
	"github.com/calehh/hac-ledger/tx"
	"github.com/calehh/hac-ledger/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

var (
	ErrFeeTooLow         = errors.New("fee too low")
	ErrAmountOutOfRange  = errors.New("amount out of range")
	ErrPubKeyMismatch    = errors.New("public key mismatch")
	ErrDuplicateInBlock  = errors.New("duplicate in block")
	ErrUnexpectedTxType  = errors.New("unexpected tx type")
	ErrTransactionExists = errors.New("transaction already confirmed")
)

const (
	CodeOK uint32 = iota
	CodeNotValid
	CodeNotCurrentlyValid
)

// TxHandler executes one transaction type against a block state. Process
// applies btx at position index of blk; Check runs it against a throwaway
// state.
type TxHandler interface {
	Check(ctx context.Context, st *state.State, btx *tx.HACTx) (res *abcitypes.ResponseCheckTx, err error)
	Process(ctx context.Context, st *state.State, blk *phasing.Block, btx *tx.HACTx, index uint32) (res *abcitypes.ExecTxResult, err error)
}

// NewTxHandlers returns the handlers of every supported transaction type,
// all resolving phasing through engine.
func NewTxHandlers(engine *phasing.Engine, logger cmtlog.Logger) map[tx.HACTxType]TxHandler {
	phasable := NewPhasableTxHandler(engine, logger)
	return map[tx.HACTxType]TxHandler{
		tx.HACTxTypePayment:            phasable,
		tx.HACTxTypeHoldingTransfer:    phasable,
		tx.HACTxTypeHoldingDelete:      phasable,
		tx.HACTxTypePhasingVoteCasting: NewVoteCastingTxHandler(engine, logger),
	}
}

// ErrorCode maps a rejection reason onto the result code reported to
// cometbft.
func ErrorCode(err error) uint32 {
	if phasing.IsNotCurrentlyValid(err) || errors.Is(err, state.ErrInsufficientUnconfirmed) {
		return CodeNotCurrentlyValid
	}
	return CodeNotValid
}

type baseHandler struct {
	logger cmtlog.Logger
	engine *phasing.Engine
}

// check runs handle on a copy of st as the only transaction of a block.
func (h *baseHandler) check(ctx context.Context, st *state.State, btx *tx.HACTx, handle func(context.Context, *state.State, *phasing.Block, *tx.HACTx, uint32) (*abcitypes.ExecTxResult, error)) (res *abcitypes.ResponseCheckTx, err error) {
	res = &abcitypes.ResponseCheckTx{Code: CodeOK}
	blk := phasing.NewBlock(st.Height(), nil)
	_, err1 := handle(ctx, st.Clone(), blk, btx, 0)
	if err1 != nil {
		h.logger.Info("CheckTx fail", "type", btx.Type, "tx", btx.ID(), "err", err1)
		res.Code = ErrorCode(err1)
		res.Log = err1.Error()
	}
	return
}

// validate checks the envelope of btx: version, signature, sender, amount
// and fee, and that it has not been confirmed before.
func (h *baseHandler) validate(st *state.State, btx *tx.HACTx) error {
	if btx.Version != tx.HACTxVersion1 {
		return fmt.Errorf("%w: %d", tx.ErrUnsupportedTxVersion, btx.Version)
	}
	if err := btx.VerifySig(st.ChainID()); err != nil {
		return err
	}
	acnt, err := st.GetAccount(btx.SenderID())
	if err != nil {
		return err
	}
	if acnt == nil {
		return fmt.Errorf("%w: %v", state.ErrAccountNoexists, btx.SenderID())
	}
	if len(acnt.PubKey) != 0 && string(acnt.PubKey) != string(btx.SenderPublicKey) {
		return fmt.Errorf("%w: account %v", ErrPubKeyMismatch, acnt.ID)
	}
	if btx.AmountNQT < 0 || btx.AmountNQT > tx.MaxAmount {
		return fmt.Errorf("%w: %d", ErrAmountOutOfRange, btx.AmountNQT)
	}
	if btx.FeeNQT > tx.MaxAmount {
		return fmt.Errorf("%w: fee %d", ErrAmountOutOfRange, btx.FeeNQT)
	}
	if minFee := btx.MinFee(h.engine.Config().OneCoin); btx.FeeNQT < minFee {
		return fmt.Errorf("%w: %d < %d", ErrFeeTooLow, btx.FeeNQT, minFee)
	}
	exists, err := st.HasTransaction(btx.FullHash())
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTransactionExists, btx.FullHash())
	}
	return nil
}

// charge burns the fee and reserves the amount of btx from the sender's
// unconfirmed balance.
func (h *baseHandler) charge(st *state.State, btx *tx.HACTx) error {
	sender := btx.SenderID()
	if err := st.SetAccountPubKey(sender, btx.SenderPublicKey); err != nil {
		return err
	}
	if err := st.AddToBalanceAndUnconfirmedBalance(types.LedgerEventTransactionFee, btx.ID(), sender, -btx.FeeNQT); err != nil {
		return err
	}
	return st.AddToUnconfirmedBalance(btx.Type.LedgerEvent(), btx.ID(), sender, -btx.AmountNQT)
}

// confirm indexes btx and queues the polls linking to it.
func (h *baseHandler) confirm(st *state.State, blk *phasing.Block, btx *tx.HACTx, index uint32) error {
	if err := st.IndexTransaction(btx, index); err != nil {
		return err
	}
	return h.engine.Confirm(st, blk, btx.FullHash())
}
