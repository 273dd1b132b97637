package phasing

import (
	"encoding/json"
	"math"

	"github.com/calehh/hac-ledger/config"
	"github.com/calehh/hac-ledger/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine validates phased transactions, registers their polls and
// resolves them. One engine serves one chain; all state lives in the Env
// passed to each call.
type Engine struct {
	cfg       config.PhasingConfig
	hashes    *HashRegistry
	logger    cmtlog.Logger
	listeners []Listener
	metrics   *metrics
}

func NewEngine(cfg config.PhasingConfig, hashes *HashRegistry, logger cmtlog.Logger, reg prometheus.Registerer) (*Engine, error) {
	if hashes == nil {
		hashes = DefaultHashRegistry()
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		hashes:  hashes,
		logger:  logger.With("module", "phasing"),
		metrics: m,
	}, nil
}

func (e *Engine) Config() config.PhasingConfig {
	return e.cfg
}

func (e *Engine) AddListener(l Listener) {
	e.listeners = append(e.listeners, l)
}

// chainHeight is the height of the last applied block; the transaction
// being validated lands in env.Height().
func chainHeight(env Env) uint64 {
	if env.Height() == 0 {
		return 0
	}
	return env.Height() - 1
}

// Validate checks the phasing appendix of tx against the chain state.
// Transactions without an appendix are always valid here.
func (e *Engine) Validate(env Env, tx Transaction) error {
	a := tx.Phasing()
	if a == nil {
		return nil
	}
	if err := a.Params.Validate(e.cfg, env); err != nil {
		return err
	}
	currentHeight := chainHeight(env)
	model := a.VotingModel()

	if model == VotingModelTransaction {
		n := len(a.LinkedFullHashes)
		if n == 0 || n > e.cfg.MaxLinkedTransactions {
			return notValid("invalid number of linked full hashes %d", n)
		}
		store := NewPollStore(env.Store())
		ids := make(map[uint64]struct{}, n)
		for _, h := range a.LinkedFullHashes {
			if len(h) != types.FullHashLength || types.IsZeroBytes(h) {
				return notValid("invalid linked full hash %x", h)
			}
			id := types.FullHashToID(h)
			if _, ok := ids[id]; ok {
				return notValid("duplicate linked transaction id %d", id)
			}
			ids[id] = struct{}{}
			linked, err := env.FindTransactionByFullHash(h, currentHeight)
			if err != nil {
				return err
			}
			if linked == nil {
				continue
			}
			if int64(tx.Timestamp())-int64(linked.Timestamp) > e.cfg.MaxReferencedTimespan {
				return notValid("linked transaction %d is older than the maximum referenced timespan", linked.ID)
			}
			if linked.Phased {
				p, err := store.GetPoll(linked.ID)
				if err != nil {
					return err
				}
				if p != nil && !p.Finished {
					return notCurrentlyValid("linked transaction %d is phased and not yet resolved", linked.ID)
				}
			}
		}
		if a.Quorum() > int64(n) {
			return notValid("quorum %d exceeds the number of linked full hashes %d", a.Quorum(), n)
		}
	} else if len(a.LinkedFullHashes) != 0 {
		return notValid("linked full hashes only allowed with voting model TRANSACTION, got %v", model)
	}

	if model == VotingModelHash {
		if a.Quorum() != 1 {
			return notValid("quorum must be 1 for voting model HASH, got %d", a.Quorum())
		}
		if n := len(a.HashedSecret); n == 0 || n > e.cfg.MaxHashedSecretLength {
			return notValid("invalid hashed secret length %d", n)
		}
		if !e.hashes.Supported(a.Algorithm) {
			return notValid("unsupported hash algorithm %d", a.Algorithm)
		}
	} else if len(a.HashedSecret) != 0 || a.Algorithm != HashNone {
		return notValid("hashed secret only allowed with voting model HASH, got %v", model)
	}

	minDelay := uint64(1)
	if a.VoteWeighting().AcceptsVotes() {
		minDelay = 2
	}
	finish := uint64(a.FinishHeight)
	if finish <= currentHeight+minDelay || finish >= currentHeight+e.cfg.MaxPhasingDuration {
		return notCurrentlyValid("invalid finish height %d, current height %d", finish, currentHeight)
	}
	return nil
}

// ValidateAtFinish checks that the conditions the poll depends on still
// hold at its finish height.
func (e *Engine) ValidateAtFinish(env Env, tx Transaction) error {
	a := tx.Phasing()
	if a == nil {
		return nil
	}
	return a.Params.CheckApprovable(env)
}

// Apply registers the poll of a phased transaction accepted at position
// index of the current block. The transaction's own effects are deferred
// until release.
func (e *Engine) Apply(env Env, tx Transaction, index uint32) (*Poll, error) {
	if tx.Phasing() == nil {
		return nil, errors.Errorf("transaction %d is not phased", tx.ID())
	}
	poll := NewPoll(tx, env.Height(), index)
	if err := NewPollStore(env.Store()).AddPoll(poll); err != nil {
		return nil, err
	}
	e.logger.Debug("phasing poll created", "tx", tx.ID(), "finishHeight", poll.FinishHeight, "model", tx.Phasing().VotingModel())
	return poll, nil
}

// Accepted counts the polls and votes of the transactions a finalized
// block kept. Apply and CastVote run on transactions that may still be
// reverted, so they leave the counters alone.
func (e *Engine) Accepted(polls, votes int) {
	e.metrics.created.Add(float64(polls))
	e.metrics.votes.Add(float64(votes))
}

// ValidateVote checks a vote by voter on the polls of the given phased
// full hashes, with an optional revealed secret for HASH polls.
func (e *Engine) ValidateVote(env Env, voter types.AccountID, fullHashes [][]byte, secret []byte) error {
	if len(fullHashes) == 0 || len(fullHashes) > e.cfg.MaxVoteTransactions {
		return notValid("invalid number of voted transactions %d", len(fullHashes))
	}
	if len(secret) > e.cfg.MaxRevealedSecretLength {
		return notValid("revealed secret too long: %d", len(secret))
	}
	store := NewPollStore(env.Store())
	ids := make(map[uint64]struct{}, len(fullHashes))
	for _, h := range fullHashes {
		if len(h) != types.FullHashLength || types.IsZeroBytes(h) {
			return notValid("invalid voted full hash %x", h)
		}
		id := types.FullHashToID(h)
		if _, ok := ids[id]; ok {
			return notValid("duplicate voted transaction %d", id)
		}
		ids[id] = struct{}{}
		poll, err := store.GetPoll(id)
		if err != nil {
			return err
		}
		if poll == nil {
			return notCurrentlyValid("phased transaction %d not found", id)
		}
		if poll.Finished {
			return notCurrentlyValid("phased transaction %d already finished", id)
		}
		if poll.FullHash != toFullHash(h) {
			return notValid("full hash %x does not match phased transaction %d", h, id)
		}
		if env.Height() >= uint64(poll.FinishHeight) {
			return notCurrentlyValid("phased transaction %d finishes at %d, not after vote height %d", id, poll.FinishHeight, env.Height())
		}
		a, err := poll.Appendix()
		if err != nil {
			return err
		}
		if !a.VoteWeighting().AcceptsCastVotes() {
			return notValid("voting model %v of phased transaction %d does not accept votes", a.VotingModel(), id)
		}
		if len(a.Whitelist()) > 0 && !a.Params.InWhitelist(voter) {
			return notValid("voter %v not in whitelist of phased transaction %d", voter, id)
		}
		if a.VotingModel() == VotingModelHash {
			if len(secret) == 0 {
				return notValid("phased transaction %d requires a revealed secret", id)
			}
			if !e.hashes.Verify(a.Algorithm, a.HashedSecret, secret) {
				return notValid("revealed secret does not match hashed secret of phased transaction %d", id)
			}
		}
		v, err := store.GetVote(id, voter)
		if err != nil {
			return err
		}
		if v != nil {
			return notCurrentlyValid("voter %v already voted on phased transaction %d", voter, id)
		}
	}
	return nil
}

func toFullHash(b []byte) (h types.FullHash) {
	copy(h[:], b)
	return
}

// CastVote records a validated vote and queues balance independent polls
// for early resolution at the end of the block.
func (e *Engine) CastVote(env Env, blk *Block, voteTx uint64, voter types.AccountID, fullHashes [][]byte) error {
	store := NewPollStore(env.Store())
	for _, h := range fullHashes {
		id := types.FullHashToID(h)
		poll, err := store.GetPoll(id)
		if err != nil {
			return err
		}
		if poll == nil {
			return errors.Wrapf(ErrPollNotFound, "vote on %d", id)
		}
		vote := &Vote{Poll: id, Voter: voter, VoteTx: voteTx, Height: env.Height()}
		if err := store.AddVote(vote); err != nil {
			return err
		}
		a, err := poll.Appendix()
		if err != nil {
			return err
		}
		if a.VoteWeighting().IsBalanceIndependent() {
			blk.addCandidate(poll)
		}
	}
	return nil
}

// Confirm queues the TRANSACTION polls linking to a transaction confirmed
// in this block for early resolution.
func (e *Engine) Confirm(env Env, blk *Block, fullHash types.FullHash) error {
	polls, err := NewPollStore(env.Store()).LinkedPolls(fullHash[:])
	if err != nil {
		return err
	}
	for _, p := range polls {
		if !p.Finished {
			blk.addCandidate(p)
		}
	}
	return nil
}

// Tally returns the weighted approval of a poll at the current height.
func (e *Engine) Tally(env Env, poll *Poll) (int64, error) {
	a, err := poll.Appendix()
	if err != nil {
		return 0, err
	}
	w := a.VoteWeighting()
	store := NewPollStore(env.Store())
	switch w.Model {
	case VotingModelNone:
		return 0, nil
	case VotingModelTransaction:
		height := env.Height()
		if finish := uint64(poll.FinishHeight); finish < height {
			height = finish
		}
		var n int64
		for _, h := range a.LinkedFullHashes {
			linked, err := env.FindTransactionByFullHash(h, height)
			if err != nil {
				return 0, err
			}
			if linked != nil {
				n++
			}
		}
		return n, nil
	case VotingModelHash:
		n, err := store.VoteCount(poll.TransactionID)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return a.Quorum(), nil
		}
		return 0, nil
	}
	votes, err := store.Votes(poll.TransactionID)
	if err != nil {
		return 0, err
	}
	if w.IsBalanceIndependent() {
		return int64(len(votes)), nil
	}
	total := new(uint256.Int)
	for _, v := range votes {
		weight, err := w.Weight(env, v.Voter)
		if err != nil {
			return 0, err
		}
		if weight > 0 {
			total.Add(total, uint256.NewInt(uint64(weight)))
		}
	}
	if !total.IsUint64() || total.Uint64() > math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(total.Uint64()), nil
}

func (e *Engine) pollOf(store *PollStore, tx Transaction) (*Poll, error) {
	poll, err := store.GetPoll(tx.ID())
	if err != nil {
		return nil, err
	}
	if poll == nil {
		return nil, errors.Wrapf(ErrPollNotFound, "transaction %d", tx.ID())
	}
	if poll.FullHash != tx.FullHash() {
		return nil, errors.Wrapf(ErrPollMismatch, "transaction %d", tx.ID())
	}
	return poll, nil
}

// CountVotes resolves a poll at its finish height: the transaction is
// released when the tally reaches the quorum and rejected otherwise. A
// finished poll is left untouched.
func (e *Engine) CountVotes(env Env, tx Transaction, dups types.Duplicates) error {
	store := NewPollStore(env.Store())
	poll, err := e.pollOf(store, tx)
	if err != nil {
		return err
	}
	if poll.Finished {
		return nil
	}
	if err := e.ValidateAtFinish(env, tx); err != nil {
		if !IsNotValid(err) && !IsNotCurrentlyValid(err) {
			return err
		}
		e.logger.Debug("phased transaction not approvable at finish height", "tx", tx.ID(), "err", err)
		poll.finish(0, env.Height())
		return e.rejectPoll(env, store, tx, poll, false)
	}
	if dups != nil && tx.AttachmentIsDuplicate(dups, false) {
		e.logger.Debug("phased transaction is a duplicate at finish height", "tx", tx.ID())
		poll.finish(0, env.Height())
		return e.rejectPoll(env, store, tx, poll, false)
	}
	result, err := e.Tally(env, poll)
	if err != nil {
		return err
	}
	poll.finish(result, env.Height())
	if result < poll.Quorum() {
		return e.rejectPoll(env, store, tx, poll, false)
	}
	if err := e.release(env, tx); err != nil {
		e.logger.Error("release phased transaction failed, rejecting", "tx", tx.ID(), "err", err, "json", txJSON(tx))
		e.metrics.releaseFaults.Inc()
		return e.rejectPoll(env, store, tx, poll, false)
	}
	if dups != nil {
		tx.AttachmentIsDuplicate(dups, true)
	}
	return e.releasePoll(store, tx, poll, false)
}

// TryCountVotes releases a phased transaction before its finish height
// when the tally already meets the quorum. Anything short of that leaves
// the poll to the forced resolution at the finish height.
func (e *Engine) TryCountVotes(env Env, tx Transaction, dups types.Duplicates) error {
	store := NewPollStore(env.Store())
	poll, err := e.pollOf(store, tx)
	if err != nil {
		return err
	}
	if poll.Finished || env.Height() >= uint64(poll.FinishHeight) {
		return nil
	}
	a, err := poll.Appendix()
	if err != nil {
		return err
	}
	if a.VotingModel() == VotingModelNone {
		return nil
	}
	result, err := e.Tally(env, poll)
	if err != nil {
		return err
	}
	if result < poll.Quorum() {
		e.logger.Debug("cannot finish early, quorum not reached", "tx", tx.ID(), "result", result, "quorum", poll.Quorum())
		return nil
	}
	if dups != nil && tx.AttachmentIsDuplicate(dups, false) {
		e.logger.Debug("cannot finish early, duplicate transaction", "tx", tx.ID())
		return nil
	}
	if err := e.release(env, tx); err != nil {
		e.logger.Error("early release failed", "tx", tx.ID(), "err", err, "json", txJSON(tx))
		e.metrics.releaseFaults.Inc()
		return nil
	}
	// the key is claimed only once the release went through
	if dups != nil {
		tx.AttachmentIsDuplicate(dups, true)
	}
	poll.finish(result, env.Height())
	return e.releasePoll(store, tx, poll, true)
}

// release applies the phasable appendages of tx. Any failure, including
// a panic in an appendage, reverts the ledger to its state before the
// release and is returned as an error.
func (e *Engine) release(env Env, tx Transaction) (err error) {
	snap := env.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic applying phased transaction %d: %v", tx.ID(), r)
		}
		if err != nil {
			env.RevertToSnapshot(snap)
		} else {
			env.DiscardSnapshot(snap)
		}
	}()
	for _, app := range tx.Appendages() {
		if !app.IsPhasable() {
			continue
		}
		if err = app.Apply(env, tx); err != nil {
			return errors.Wrapf(err, "apply phased transaction %d", tx.ID())
		}
	}
	return nil
}

// reject returns the unconfirmed reservations of tx to its sender.
func (e *Engine) reject(env Env, tx Transaction) error {
	if err := tx.UndoAttachmentUnconfirmed(env); err != nil {
		return errors.Wrapf(err, "undo attachment of rejected transaction %d", tx.ID())
	}
	return env.AddToUnconfirmedBalance(types.LedgerEventRejectPhasedTransaction, tx.ID(), tx.SenderID(), tx.Amount())
}

func (e *Engine) releasePoll(store *PollStore, tx Transaction, poll *Poll, early bool) error {
	poll.Approved = true
	if err := store.SavePoll(poll); err != nil {
		return err
	}
	e.logger.Debug("phased transaction released", "tx", tx.ID(), "result", *poll.Result, "early", early)
	e.metrics.outcome(OutcomeReleased, early)
	e.notify(OutcomeReleased, tx, poll, early)
	return nil
}

func (e *Engine) rejectPoll(env Env, store *PollStore, tx Transaction, poll *Poll, early bool) error {
	if err := e.reject(env, tx); err != nil {
		return err
	}
	poll.Approved = false
	if err := store.SavePoll(poll); err != nil {
		return err
	}
	e.logger.Debug("phased transaction rejected", "tx", tx.ID(), "result", *poll.Result)
	e.metrics.outcome(OutcomeRejected, early)
	e.notify(OutcomeRejected, tx, poll, early)
	return nil
}

func (e *Engine) notify(o Outcome, tx Transaction, poll *Poll, early bool) {
	for _, l := range e.listeners {
		l.OnPhasedOutcome(o, tx, poll, early)
	}
}

// EndBlock runs the phasing step of a block after its transactions: first
// the early resolution candidates collected during the block, then the
// forced resolution of every poll finishing at this height.
func (e *Engine) EndBlock(env Env, blk *Block) error {
	store := NewPollStore(env.Store())
	for _, id := range blk.Candidates() {
		poll, err := store.GetPoll(id)
		if err != nil {
			return err
		}
		if poll == nil || poll.Finished || env.Height() >= uint64(poll.FinishHeight) {
			continue
		}
		tx, err := e.loadTransaction(env, poll)
		if err != nil {
			return err
		}
		if err := e.TryCountVotes(env, tx, blk.Duplicates); err != nil {
			return err
		}
	}
	if env.Height() > math.MaxUint32 {
		return nil
	}
	polls, err := store.FinishingPolls(uint32(env.Height()))
	if err != nil {
		return err
	}
	for _, poll := range polls {
		if poll.Finished {
			continue
		}
		tx, err := e.loadTransaction(env, poll)
		if err != nil {
			return err
		}
		if err := e.CountVotes(env, tx, blk.Duplicates); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) loadTransaction(env Env, poll *Poll) (Transaction, error) {
	tx, err := env.LoadTransaction(poll.FullHash)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errors.Wrapf(ErrTransactionLost, "poll %d", poll.TransactionID)
	}
	return tx, nil
}

func txJSON(tx Transaction) string {
	dat, err := json.Marshal(tx)
	if err != nil {
		return ""
	}
	return string(dat)
}
