package phasing

import (
	"encoding/json"
	"fmt"

	"github.com/calehh/hac-ledger/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

var (
	KeyPollBody   = "pp%016x"
	KeyPollFinish = "pf%08x%016x%08x%016x"
	KeyPollLinked = "pl%x%016x"
	KeyPollVote   = "pv%016x%016x"
)

// PollStore keeps polls, their finish-height index, linked-hash index and
// votes in a KVStore. All writes go through the block's store, so they are
// versioned and rolled back together with the rest of the block.
type PollStore struct {
	kv KVStore
}

func NewPollStore(kv KVStore) *PollStore {
	return &PollStore{kv: kv}
}

func pollKey(id uint64) []byte {
	return []byte(fmt.Sprintf(KeyPollBody, id))
}

func finishKey(p *Poll) []byte {
	return []byte(fmt.Sprintf(KeyPollFinish, p.FinishHeight, p.Height, p.Index, p.TransactionID))
}

func finishPrefix(height uint32) []byte {
	return []byte(fmt.Sprintf("pf%08x", height))
}

func linkedKey(hash []byte, id uint64) []byte {
	return []byte(fmt.Sprintf(KeyPollLinked, hash, id))
}

func linkedPrefix(hash []byte) []byte {
	return []byte(fmt.Sprintf("pl%x", hash))
}

func voteKey(poll uint64, voter types.AccountID) []byte {
	return []byte(fmt.Sprintf(KeyPollVote, poll, uint64(voter)))
}

func votePrefix(poll uint64) []byte {
	return []byte(fmt.Sprintf("pv%016x", poll))
}

func (s *PollStore) AddPoll(p *Poll) error {
	existing, err := s.GetPoll(p.TransactionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.Errorf("poll %d already exists", p.TransactionID)
	}
	if err := s.SavePoll(p); err != nil {
		return err
	}
	id, err := rlp.EncodeToBytes(p.TransactionID)
	if err != nil {
		return err
	}
	if err := s.kv.Set(finishKey(p), id); err != nil {
		return errors.Wrap(err, "index poll finish height")
	}
	a, err := p.Appendix()
	if err != nil {
		return err
	}
	for _, h := range a.LinkedFullHashes {
		if err := s.kv.Set(linkedKey(h, p.TransactionID), id); err != nil {
			return errors.Wrap(err, "index linked full hash")
		}
	}
	return nil
}

func (s *PollStore) SavePoll(p *Poll) error {
	val, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.kv.Set(pollKey(p.TransactionID), val); err != nil {
		return errors.Wrapf(err, "save poll %d", p.TransactionID)
	}
	return nil
}

// GetPoll returns nil when no poll exists for the transaction id.
func (s *PollStore) GetPoll(id uint64) (*Poll, error) {
	val, err := s.kv.Get(pollKey(id))
	if err != nil {
		return nil, errors.Wrapf(err, "load poll %d", id)
	}
	if val == nil {
		return nil, nil
	}
	p := new(Poll)
	if err := json.Unmarshal(val, p); err != nil {
		return nil, errors.Wrapf(err, "decode poll %d", id)
	}
	return p, nil
}

// FinishingPolls returns the polls whose finish height is height, ordered
// by submission height and index.
func (s *PollStore) FinishingPolls(height uint32) ([]*Poll, error) {
	ids, err := s.scanIDs(finishPrefix(height))
	if err != nil {
		return nil, err
	}
	return s.getPolls(ids)
}

// LinkedPolls returns the polls linking to the given full hash.
func (s *PollStore) LinkedPolls(hash []byte) ([]*Poll, error) {
	ids, err := s.scanIDs(linkedPrefix(hash))
	if err != nil {
		return nil, err
	}
	return s.getPolls(ids)
}

func (s *PollStore) scanIDs(prefix []byte) (ids []uint64, err error) {
	err = s.kv.Iterate(prefix, func(key, value []byte) (bool, error) {
		var id uint64
		if err := rlp.DecodeBytes(value, &id); err != nil {
			return true, errors.Wrapf(err, "decode poll index %s", key)
		}
		ids = append(ids, id)
		return false, nil
	})
	return
}

func (s *PollStore) getPolls(ids []uint64) ([]*Poll, error) {
	polls := make([]*Poll, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPoll(id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, errors.Wrapf(ErrPollNotFound, "indexed poll %d", id)
		}
		polls = append(polls, p)
	}
	return polls, nil
}

func (s *PollStore) AddVote(v *Vote) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.kv.Set(voteKey(v.Poll, v.Voter), val); err != nil {
		return errors.Wrapf(err, "save vote on poll %d", v.Poll)
	}
	return nil
}

func (s *PollStore) GetVote(poll uint64, voter types.AccountID) (*Vote, error) {
	val, err := s.kv.Get(voteKey(poll, voter))
	if err != nil {
		return nil, errors.Wrapf(err, "load vote on poll %d", poll)
	}
	if val == nil {
		return nil, nil
	}
	v := new(Vote)
	if err := json.Unmarshal(val, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Votes returns the votes of a poll ordered by voter id.
func (s *PollStore) Votes(poll uint64) (votes []*Vote, err error) {
	err = s.kv.Iterate(votePrefix(poll), func(key, value []byte) (bool, error) {
		v := new(Vote)
		if err := json.Unmarshal(value, v); err != nil {
			return true, errors.Wrapf(err, "decode vote %s", key)
		}
		votes = append(votes, v)
		return false, nil
	})
	return
}

func (s *PollStore) VoteCount(poll uint64) (n int64, err error) {
	err = s.kv.Iterate(votePrefix(poll), func(key, value []byte) (bool, error) {
		n++
		return false, nil
	})
	return
}
