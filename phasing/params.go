package phasing

import (
	"sort"
	"strconv"

	"github.com/calehh/hac-ledger/config"
	"github.com/calehh/hac-ledger/types"
)

// Params are the approval conditions of a phased transaction.
type Params struct {
	Quorum    int64
	Whitelist []types.AccountID
	Weighting VoteWeighting
}

// NewParams builds params with an empty whitelist normalized to nil.
func NewParams(model VotingModel, holdingID uint64, quorum, minBalance int64, minBalanceModel MinBalanceModel, whitelist []types.AccountID) Params {
	if len(whitelist) == 0 {
		whitelist = nil
	}
	return Params{
		Quorum:    quorum,
		Whitelist: whitelist,
		Weighting: VoteWeighting{
			Model:           model,
			HoldingID:       holdingID,
			MinBalance:      minBalance,
			MinBalanceModel: minBalanceModel,
		},
	}
}

func (p *Params) Size() int {
	return 1 + 8 + 8 + 1 + 8*len(p.Whitelist) + 8 + 1
}

func (p *Params) appendBytes(buf []byte) []byte {
	buf = append(buf, byte(p.Weighting.Model))
	buf = appendInt64(buf, p.Quorum)
	buf = appendInt64(buf, p.Weighting.MinBalance)
	buf = append(buf, byte(len(p.Whitelist)))
	for _, id := range p.Whitelist {
		buf = appendInt64(buf, int64(id))
	}
	buf = appendInt64(buf, int64(p.Weighting.HoldingID))
	buf = append(buf, byte(p.Weighting.MinBalanceModel))
	return buf
}

func readParams(r *byteReader) Params {
	var p Params
	p.Weighting.Model = VotingModel(r.int8())
	p.Quorum = r.int64()
	p.Weighting.MinBalance = r.int64()
	n := int(r.uint8())
	if n > 0 {
		p.Whitelist = make([]types.AccountID, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			p.Whitelist = append(p.Whitelist, types.AccountID(r.uint64()))
		}
	}
	p.Weighting.HoldingID = r.uint64()
	p.Weighting.MinBalanceModel = MinBalanceModel(r.int8())
	return p
}

type paramsJSON struct {
	VotingModel     int8     `json:"phasingVotingModel"`
	Quorum          int64    `json:"phasingQuorum"`
	MinBalance      int64    `json:"phasingMinBalance"`
	Holding         string   `json:"phasingHolding"`
	MinBalanceModel int8     `json:"phasingMinBalanceModel"`
	Whitelist       []string `json:"phasingWhitelist,omitempty"`
}

func (p *Params) toJSON() paramsJSON {
	o := paramsJSON{
		VotingModel:     int8(p.Weighting.Model),
		Quorum:          p.Quorum,
		MinBalance:      p.Weighting.MinBalance,
		Holding:         strconv.FormatUint(p.Weighting.HoldingID, 10),
		MinBalanceModel: int8(p.Weighting.MinBalanceModel),
	}
	for _, id := range p.Whitelist {
		o.Whitelist = append(o.Whitelist, id.String())
	}
	return o
}

func (o *paramsJSON) params() (p Params, err error) {
	var holding uint64
	if o.Holding != "" {
		holding, err = strconv.ParseUint(o.Holding, 10, 64)
		if err != nil {
			return p, notValid("invalid phasing holding %q", o.Holding)
		}
	}
	whitelist := make([]types.AccountID, 0, len(o.Whitelist))
	for _, s := range o.Whitelist {
		id, err := types.ParseAccountID(s)
		if err != nil {
			return p, notValid("invalid whitelist account %q", s)
		}
		whitelist = append(whitelist, id)
	}
	return NewParams(VotingModel(o.VotingModel), holding, o.Quorum, o.MinBalance, MinBalanceModel(o.MinBalanceModel), whitelist), nil
}

func (p *Params) Validate(cfg config.PhasingConfig, holdings HoldingRegistry) error {
	if len(p.Whitelist) > cfg.MaxWhitelistSize {
		return notValid("whitelist is too big: %d", len(p.Whitelist))
	}
	for i, id := range p.Whitelist {
		if id == 0 {
			return notValid("invalid whitelisted account id 0")
		}
		if i > 0 && p.Whitelist[i-1] >= id {
			return notValid("whitelist is not sorted or contains duplicates")
		}
	}
	model := p.Weighting.Model
	if model == VotingModelNone {
		if p.Quorum != 0 {
			return notValid("quorum %d not allowed for voting model NONE", p.Quorum)
		}
		if len(p.Whitelist) != 0 {
			return notValid("whitelist not allowed for voting model NONE")
		}
	} else if p.Quorum <= 0 {
		return notValid("quorum must be positive for voting model %v", model)
	}
	if p.Quorum > cfg.MaxQuorum {
		return notValid("quorum %d exceeds maximum %d", p.Quorum, cfg.MaxQuorum)
	}
	if model == VotingModelAccount {
		if len(p.Whitelist) == 0 {
			return notValid("voting model ACCOUNT requires a whitelist")
		}
		if p.Quorum > int64(len(p.Whitelist)) {
			return notValid("quorum %d exceeds whitelist size %d", p.Quorum, len(p.Whitelist))
		}
	}
	return p.Weighting.Validate(holdings)
}

// CheckApprovable reports whether the poll can still gather approval at
// finish time.
func (p *Params) CheckApprovable(holdings HoldingRegistry) error {
	return p.Weighting.checkHolding(holdings)
}

func (p *Params) InWhitelist(id types.AccountID) bool {
	i := sort.Search(len(p.Whitelist), func(i int) bool { return p.Whitelist[i] >= id })
	return i < len(p.Whitelist) && p.Whitelist[i] == id
}

func (p *Params) Equal(o *Params) bool {
	if p.Quorum != o.Quorum || p.Weighting != o.Weighting || len(p.Whitelist) != len(o.Whitelist) {
		return false
	}
	for i := range p.Whitelist {
		if p.Whitelist[i] != o.Whitelist[i] {
			return false
		}
	}
	return true
}
