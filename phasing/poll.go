package phasing

import (
	"github.com/calehh/hac-ledger/types"
)

// Poll is the persisted voting state of one phased transaction. It is
// created when the transaction is applied and finished exactly once.
type Poll struct {
	TransactionID uint64          `json:"transaction,string"`
	FullHash      types.FullHash  `json:"fullHash"`
	Sender        types.AccountID `json:"sender,string"`
	Height        uint64          `json:"height"`
	Index         uint32          `json:"index"`
	FinishHeight  uint32          `json:"finishHeight"`
	Phasing       []byte          `json:"phasing"`

	Finished     bool   `json:"finished"`
	Result       *int64 `json:"result,omitempty"`
	Approved     bool   `json:"approved"`
	ResultHeight uint64 `json:"resultHeight,omitempty"`

	appendix *Appendix
}

func NewPoll(tx Transaction, height uint64, index uint32) *Poll {
	a := tx.Phasing()
	return &Poll{
		TransactionID: tx.ID(),
		FullHash:      tx.FullHash(),
		Sender:        tx.SenderID(),
		Height:        height,
		Index:         index,
		FinishHeight:  a.FinishHeight,
		Phasing:       a.Bytes(),
		appendix:      a,
	}
}

func (p *Poll) Appendix() (*Appendix, error) {
	if p.appendix == nil {
		a, err := ParseBytes(p.Phasing)
		if err != nil {
			return nil, err
		}
		p.appendix = a
	}
	return p.appendix, nil
}

func (p *Poll) Quorum() int64 {
	a, err := p.Appendix()
	if err != nil {
		return 0
	}
	return a.Quorum()
}

func (p *Poll) finish(result int64, height uint64) {
	p.Finished = true
	p.Result = &result
	p.ResultHeight = height
}

// Vote is an approval cast by one account on one poll.
type Vote struct {
	Poll   uint64          `json:"poll,string"`
	Voter  types.AccountID `json:"voter,string"`
	VoteTx uint64          `json:"voteTransaction,string"`
	Height uint64          `json:"height"`
}
