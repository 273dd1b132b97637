package app

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/calehh/hac-ledger/phasing"
	"github.com/calehh/hac-ledger/state"
	"github.com/calehh/hac-ledger/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

const (
	QueryCodeOK uint32 = iota
	QueryCodeInvalid
	QueryCodeNotFound
	QueryCodeInternal
	QueryCodeUnknownPath = 404
)

func (app *HACApp) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	path := req.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	q, ok := app.queriers[path]
	if !ok {
		res = &abcitypes.ResponseQuery{}
		res.Code = QueryCodeUnknownPath
		return
	}
	res, err = q.Query(ctx, req)
	return
}

type Querier interface {
	Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error)
}

func queryResult(res *abcitypes.ResponseQuery, v any, height uint64) {
	dat, err := json.Marshal(v)
	if err != nil {
		res.Code = QueryCodeInternal
		res.Log = err.Error()
		return
	}
	res.Value = dat
	res.Height = int64(height)
}

func queryFail(res *abcitypes.ResponseQuery, code uint32, err error) {
	res.Code = code
	if err != nil {
		res.Log = err.Error()
	}
}

// AccountQuerier answers /accounts/ with the account whose decimal id is
// the query data.
type AccountQuerier struct {
	db     *state.StateDB
	logger cmtlog.Logger
}

func NewAccountQuerier(db *state.StateDB, logger cmtlog.Logger) (q *AccountQuerier) {
	q = &AccountQuerier{
		db:     db,
		logger: logger,
	}
	return
}

func (q *AccountQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	id, err1 := types.ParseAccountID(string(req.Data))
	if err1 != nil {
		queryFail(res, QueryCodeInvalid, err1)
		return
	}
	a, height, err1 := q.db.GetAccount(id)
	if err1 != nil {
		queryFail(res, QueryCodeInternal, err1)
		return
	}
	if a == nil {
		queryFail(res, QueryCodeNotFound, nil)
		return
	}
	queryResult(res, a, height)
	return
}

type HoldingResult struct {
	Holding *types.Holding        `json:"holding,omitempty"`
	Account types.AccountID       `json:"account,string,omitempty"`
	Balance *state.HoldingBalance `json:"balance,omitempty"`
}

// HoldingQuerier answers /holdings/ for data of the form type/id or
// type/id/account, type being asset or currency.
type HoldingQuerier struct {
	db     *state.StateDB
	logger cmtlog.Logger
}

func NewHoldingQuerier(db *state.StateDB, logger cmtlog.Logger) *HoldingQuerier {
	return &HoldingQuerier{db: db, logger: logger}
}

func parseHoldingType(s string) (types.HoldingType, bool) {
	switch s {
	case "asset":
		return types.HoldingTypeAsset, true
	case "currency":
		return types.HoldingTypeCurrency, true
	}
	return 0, false
}

func (q *HoldingQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	parts := strings.Split(string(req.Data), "/")
	if len(parts) < 2 || len(parts) > 3 {
		queryFail(res, QueryCodeInvalid, nil)
		return
	}
	tp, ok := parseHoldingType(parts[0])
	if !ok {
		queryFail(res, QueryCodeInvalid, nil)
		return
	}
	id, err1 := strconv.ParseUint(parts[1], 10, 64)
	if err1 != nil {
		queryFail(res, QueryCodeInvalid, err1)
		return
	}
	h, height, err1 := q.db.GetHolding(tp, id)
	if err1 != nil {
		queryFail(res, QueryCodeInternal, err1)
		return
	}
	result := &HoldingResult{Holding: h}
	if len(parts) == 3 {
		acnt, err1 := types.ParseAccountID(parts[2])
		if err1 != nil {
			queryFail(res, QueryCodeInvalid, err1)
			return
		}
		result.Account = acnt
		result.Balance, height, err1 = q.db.GetHoldingBalance(tp, id, acnt)
		if err1 != nil {
			queryFail(res, QueryCodeInternal, err1)
			return
		}
	}
	if result.Holding == nil && result.Balance == nil {
		queryFail(res, QueryCodeNotFound, nil)
		return
	}
	queryResult(res, result, height)
	return
}

type PollResult struct {
	Poll  *phasing.Poll   `json:"poll"`
	Votes []*phasing.Vote `json:"votes"`
}

// PollQuerier answers /polls/ with the poll and votes of the phased
// transaction whose decimal id is the query data.
type PollQuerier struct {
	db     *state.StateDB
	logger cmtlog.Logger
}

func NewPollQuerier(db *state.StateDB, logger cmtlog.Logger) *PollQuerier {
	return &PollQuerier{db: db, logger: logger}
}

func (q *PollQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	id, err1 := strconv.ParseUint(string(req.Data), 10, 64)
	if err1 != nil {
		queryFail(res, QueryCodeInvalid, err1)
		return
	}
	poll, votes, height, err1 := q.db.GetPoll(id)
	if err1 != nil {
		queryFail(res, QueryCodeInternal, err1)
		return
	}
	if poll == nil {
		queryFail(res, QueryCodeNotFound, nil)
		return
	}
	queryResult(res, &PollResult{Poll: poll, Votes: votes}, height)
	return
}

// TransactionQuerier answers /transactions/ for a hex full hash or a
// decimal transaction id.
type TransactionQuerier struct {
	db     *state.StateDB
	logger cmtlog.Logger
}

func NewTransactionQuerier(db *state.StateDB, logger cmtlog.Logger) *TransactionQuerier {
	return &TransactionQuerier{db: db, logger: logger}
}

func (q *TransactionQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	var (
		rec    *state.TxRecord
		height uint64
		err1   error
	)
	data := string(req.Data)
	if hash, err2 := types.HexToFullHash(data); err2 == nil {
		rec, height, err1 = q.db.GetTransaction(hash)
	} else if id, err2 := strconv.ParseUint(data, 10, 64); err2 == nil {
		rec, height, err1 = q.db.GetTransactionByID(id)
	} else {
		queryFail(res, QueryCodeInvalid, err2)
		return
	}
	if err1 != nil {
		queryFail(res, QueryCodeInternal, err1)
		return
	}
	if rec == nil {
		queryFail(res, QueryCodeNotFound, nil)
		return
	}
	queryResult(res, rec, height)
	return
}

// LedgerQuerier answers /ledger/ with the ledger entries of the decimal
// block height in the query data.
type LedgerQuerier struct {
	db     *state.StateDB
	logger cmtlog.Logger
}

func NewLedgerQuerier(db *state.StateDB, logger cmtlog.Logger) *LedgerQuerier {
	return &LedgerQuerier{db: db, logger: logger}
}

func (q *LedgerQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	height, err1 := strconv.ParseUint(string(req.Data), 10, 64)
	if err1 != nil {
		queryFail(res, QueryCodeInvalid, err1)
		return
	}
	entries, err1 := q.db.Ledger(height)
	if err1 != nil {
		queryFail(res, QueryCodeInternal, err1)
		return
	}
	if entries == nil {
		entries = []types.LedgerEntry{}
	}
	queryResult(res, entries, height)
	return
}
