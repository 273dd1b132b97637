package phasing

import (
	"math"
	"testing"

	"github.com/calehh/hac-ledger/config"
	"github.com/calehh/hac-ledger/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type outcomeRecord struct {
	outcome Outcome
	tx      uint64
	result  int64
	early   bool
}

type recorder struct {
	outcomes []outcomeRecord
}

func (r *recorder) OnPhasedOutcome(o Outcome, tx Transaction, poll *Poll, early bool) {
	r.outcomes = append(r.outcomes, outcomeRecord{outcome: o, tx: tx.ID(), result: *poll.Result, early: early})
}

func newTestEngine(t *testing.T) (*Engine, *recorder, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	e, err := NewEngine(config.DefaultPhasingConfig(), nil, cmtlog.NewNopLogger(), reg)
	require.NoError(t, err)
	rec := &recorder{}
	e.AddListener(rec)
	return e, rec, reg
}

// submit validates and registers tx as if accepted in block env.Height().
func submit(t *testing.T, e *Engine, env *fakeEnv, tx *fakeTx) *Poll {
	require.NoError(t, e.Validate(env, tx))
	poll, err := e.Apply(env, tx, 0)
	require.NoError(t, err)
	env.txs[tx.FullHash()] = tx
	return poll
}

func loadPoll(t *testing.T, env *fakeEnv, id uint64) *Poll {
	p, err := NewPollStore(env.Store()).GetPoll(id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func vote(t *testing.T, e *Engine, env *fakeEnv, blk *Block, voter types.AccountID, secret []byte, txs ...*fakeTx) {
	hashes := make([][]byte, 0, len(txs))
	for _, tx := range txs {
		h := tx.FullHash()
		hashes = append(hashes, h[:])
	}
	require.NoError(t, e.ValidateVote(env, voter, hashes, secret))
	require.NoError(t, e.CastVote(env, blk, uint64(voter)<<32, voter, hashes))
}

func accountAppendix(finish uint32, quorum int64, whitelist ...types.AccountID) *Appendix {
	return NewAppendix(finish, NewParams(VotingModelAccount, 0, quorum, 0, MinBalanceModelNone, whitelist), nil, nil, HashNone)
}

func coinAppendix(finish uint32, quorum int64) *Appendix {
	return NewAppendix(finish, NewParams(VotingModelCoin, 0, quorum, 0, MinBalanceModelNone, nil), nil, nil, HashNone)
}

func TestValidateFinishHeight(t *testing.T) {
	e, _, _ := newTestEngine(t)
	env := newFakeEnv(11)
	maxDuration := e.Config().MaxPhasingDuration

	cases := []struct {
		name   string
		a      *Appendix
		errChk func(error) bool
	}{
		{"coin too soon", coinAppendix(11, 100), IsNotCurrentlyValid},
		{"coin at min delay", coinAppendix(12, 100), IsNotCurrentlyValid},
		{"coin ok", coinAppendix(13, 100), nil},
		{"coin at max duration", coinAppendix(uint32(10+maxDuration), 100), IsNotCurrentlyValid},
		{"coin below max duration", coinAppendix(uint32(10+maxDuration-1), 100), nil},
		{"none at min delay", NewAppendix(11, NewParams(VotingModelNone, 0, 0, 0, MinBalanceModelNone, nil), nil, nil, HashNone), IsNotCurrentlyValid},
		{"none ok", NewAppendix(12, NewParams(VotingModelNone, 0, 0, 0, MinBalanceModelNone, nil), nil, nil, HashNone), nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := e.Validate(env, newFakeTx(c.name, c.a))
			if c.errChk == nil {
				require.NoError(t, err)
				return
			}
			require.True(t, c.errChk(err), "%v", err)
		})
	}
}

func TestValidateWithoutAppendix(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.Validate(newFakeEnv(5), newFakeTx("plain", nil)))
	require.NoError(t, e.ValidateAtFinish(newFakeEnv(5), newFakeTx("plain", nil)))
	_, err := e.Apply(newFakeEnv(5), newFakeTx("plain", nil), 0)
	require.Error(t, err)
}

func TestValidateLinkedHashes(t *testing.T) {
	e, _, _ := newTestEngine(t)
	env := newFakeEnv(11)
	l1, l2 := hashOf("l1"), hashOf("l2")
	txModel := func(quorum int64, linked ...[]byte) *Appendix {
		return NewAppendix(20, NewParams(VotingModelTransaction, 0, quorum, 0, MinBalanceModelNone, nil), linked, nil, HashNone)
	}

	// linked hashes on a non TRANSACTION poll
	a := NewAppendix(20, NewParams(VotingModelAccount, 0, 1, 0, MinBalanceModelNone, []types.AccountID{5}), [][]byte{l1[:]}, nil, HashNone)
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("account-linked", a))))

	require.True(t, IsNotValid(e.Validate(env, newFakeTx("no-links", txModel(1)))))
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("quorum", txModel(3, l1[:], l2[:])))))
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("zero", txModel(1, make([]byte, 32))))))
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("short", txModel(1, l1[:16])))))
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("dup", txModel(1, l1[:], l1[:])))))
	require.NoError(t, e.Validate(env, newFakeTx("ok", txModel(2, l1[:], l2[:]))))

	tooMany := make([][]byte, 0, e.Config().MaxLinkedTransactions+1)
	for i := 0; i <= e.Config().MaxLinkedTransactions; i++ {
		h := hashOf(string(rune('a' + i)))
		tooMany = append(tooMany, h[:])
	}
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("too-many", txModel(1, tooMany...)))))

	// linked transaction confirmed too long before
	env.confirm(l1, 5, 0)
	old := newFakeTx("old", txModel(1, l1[:]))
	old.timestamp = uint32(e.Config().MaxReferencedTimespan) + 1
	require.True(t, IsNotValid(e.Validate(env, old)))
	old.timestamp = uint32(e.Config().MaxReferencedTimespan)
	require.NoError(t, e.Validate(env, old))
}

func TestValidateLinkedPhasedUnresolved(t *testing.T) {
	e, _, _ := newTestEngine(t)
	env := newFakeEnv(11)
	phased := newFakeTx("phased", accountAppendix(30, 1, 5))
	submit(t, e, env, phased)
	env.confirm(phased.FullHash(), 11, phased.timestamp)
	env.confirmed[phased.FullHash()].Phased = true

	env.height = 12
	h := phased.FullHash()
	linking := newFakeTx("linking", NewAppendix(20, NewParams(VotingModelTransaction, 0, 1, 0, MinBalanceModelNone, nil), [][]byte{h[:]}, nil, HashNone))
	require.True(t, IsNotCurrentlyValid(e.Validate(env, linking)))

	p := loadPoll(t, env, phased.ID())
	p.finish(1, 12)
	require.NoError(t, NewPollStore(env.Store()).SavePoll(p))
	require.NoError(t, e.Validate(env, linking))
}

func TestValidateHashModel(t *testing.T) {
	e, _, _ := newTestEngine(t)
	env := newFakeEnv(11)
	digest := make([]byte, 32)
	hashModel := func(quorum int64, secret []byte, alg HashAlgorithm) *Appendix {
		return NewAppendix(20, NewParams(VotingModelHash, 0, quorum, 0, MinBalanceModelNone, nil), nil, secret, alg)
	}
	require.NoError(t, e.Validate(env, newFakeTx("ok", hashModel(1, digest, HashSHA256))))
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("quorum", hashModel(2, digest, HashSHA256)))))
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("no secret", hashModel(1, nil, HashSHA256)))))
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("long", hashModel(1, make([]byte, 128), HashSHA256)))))
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("alg", hashModel(1, digest, HashAlgorithm(7))))))

	coin := NewAppendix(20, NewParams(VotingModelCoin, 0, 1, 0, MinBalanceModelNone, nil), nil, digest, HashSHA256)
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("coin secret", coin))))
	coin = NewAppendix(20, NewParams(VotingModelCoin, 0, 1, 0, MinBalanceModelNone, nil), nil, nil, HashSHA256)
	require.True(t, IsNotValid(e.Validate(env, newFakeTx("coin alg", coin))))
}

func TestApplyRegistersPoll(t *testing.T) {
	e, _, _ := newTestEngine(t)
	env := newFakeEnv(11)
	tx := newFakeTx("tx", accountAppendix(20, 1, 5))
	submit(t, e, env, tx)

	p := loadPoll(t, env, tx.ID())
	require.Equal(t, tx.FullHash(), p.FullHash)
	require.EqualValues(t, 11, p.Height)
	require.EqualValues(t, 20, p.FinishHeight)
	require.False(t, p.Finished)
	a, err := p.Appendix()
	require.NoError(t, err)
	require.True(t, a.Equal(tx.Phasing()))

	polls, err := NewPollStore(env.Store()).FinishingPolls(20)
	require.NoError(t, err)
	require.Len(t, polls, 1)

	_, err = e.Apply(env, tx, 1)
	require.Error(t, err)
}

func TestCountVotesReleasesAtFinish(t *testing.T) {
	e, rec, reg := newTestEngine(t)
	env := newFakeEnv(11)
	env.balances[1] = 1000
	env.balances[5] = 600
	env.balances[6] = 500
	tx := newFakeTx("coin", coinAppendix(20, 1000))
	submit(t, e, env, tx)

	env.height = 12
	blk := NewBlock(12, nil)
	vote(t, e, env, blk, 5, nil, tx)
	vote(t, e, env, blk, 6, nil, tx)
	require.Empty(t, blk.Candidates())
	require.NoError(t, e.EndBlock(env, blk))
	require.False(t, loadPoll(t, env, tx.ID()).Finished)

	env.height = 20
	require.NoError(t, e.EndBlock(env, NewBlock(20, nil)))

	p := loadPoll(t, env, tx.ID())
	require.True(t, p.Finished)
	require.True(t, p.Approved)
	require.EqualValues(t, 1100, *p.Result)
	require.EqualValues(t, 20, p.ResultHeight)
	require.EqualValues(t, 500, env.balances[1])
	require.EqualValues(t, 500, env.balances[2])
	require.Equal(t, []outcomeRecord{{OutcomeReleased, tx.ID(), 1100, false}}, rec.outcomes)
	require.Empty(t, env.snapshots)

	// a finished poll is never counted again
	require.NoError(t, e.CountVotes(env, tx, nil))
	require.Len(t, rec.outcomes, 1)
	require.EqualValues(t, 500, env.balances[1])

	// only a finalized block moves the poll and vote counters
	require.EqualValues(t, 0, counterValue(t, reg, "hac_phasing_polls_created_total"))
	e.Accepted(1, 2)
	require.EqualValues(t, 1, counterValue(t, reg, "hac_phasing_polls_created_total"))
	require.EqualValues(t, 2, counterValue(t, reg, "hac_phasing_votes_total"))
}

func TestCountVotesRejectsBelowQuorum(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	env := newFakeEnv(11)
	env.balances[1] = 1000
	env.balances[6] = 500
	tx := newFakeTx("coin", coinAppendix(20, 1000))
	submit(t, e, env, tx)

	env.height = 12
	vote(t, e, env, NewBlock(12, nil), 6, nil, tx)

	env.height = 20
	require.NoError(t, e.EndBlock(env, NewBlock(20, nil)))

	p := loadPoll(t, env, tx.ID())
	require.True(t, p.Finished)
	require.False(t, p.Approved)
	require.EqualValues(t, 500, *p.Result)
	require.EqualValues(t, 1000, env.balances[1])
	require.EqualValues(t, 500, env.unconfirmed[1])
	require.Equal(t, []outcomeRecord{{OutcomeRejected, tx.ID(), 500, false}}, rec.outcomes)
}

func TestReleaseFailureRejects(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			e, rec, reg := newTestEngine(t)
			env := newFakeEnv(11)
			env.balances[1] = 1000
			tx := newFakeTx("none", NewAppendix(15, NewParams(VotingModelNone, 0, 0, 0, MinBalanceModelNone, nil), nil, nil, HashNone))
			tx.pay.fail = mode == "error"
			tx.pay.panic = mode == "panic"
			submit(t, e, env, tx)

			env.height = 15
			require.NoError(t, e.EndBlock(env, NewBlock(15, nil)))

			p := loadPoll(t, env, tx.ID())
			require.True(t, p.Finished)
			require.False(t, p.Approved)
			require.EqualValues(t, 1000, env.balances[1])
			require.EqualValues(t, 0, env.balances[2])
			require.EqualValues(t, 500, env.unconfirmed[1])
			require.Empty(t, env.snapshots)
			require.Equal(t, []outcomeRecord{{OutcomeRejected, tx.ID(), 0, false}}, rec.outcomes)
			require.EqualValues(t, 1, counterValue(t, reg, "hac_phasing_release_faults_total"))
		})
	}
}

func TestNoneReleasedAtFinish(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	env := newFakeEnv(11)
	env.balances[1] = 1000
	tx := newFakeTx("none", NewAppendix(15, NewParams(VotingModelNone, 0, 0, 0, MinBalanceModelNone, nil), nil, nil, HashNone))
	submit(t, e, env, tx)

	env.height = 12
	require.NoError(t, e.TryCountVotes(env, tx, nil))
	require.False(t, loadPoll(t, env, tx.ID()).Finished)

	env.height = 15
	require.NoError(t, e.EndBlock(env, NewBlock(15, nil)))
	require.True(t, loadPoll(t, env, tx.ID()).Approved)
	require.EqualValues(t, 500, env.balances[2])
	require.Equal(t, []outcomeRecord{{OutcomeReleased, tx.ID(), 0, false}}, rec.outcomes)
}

func TestEarlyReleaseAccount(t *testing.T) {
	e, rec, reg := newTestEngine(t)
	env := newFakeEnv(11)
	env.balances[1] = 1000
	tx := newFakeTx("account", accountAppendix(20, 2, 5, 6))
	submit(t, e, env, tx)

	env.height = 12
	blk := NewBlock(12, nil)
	vote(t, e, env, blk, 5, nil, tx)
	h := tx.FullHash()
	require.True(t, IsNotValid(e.ValidateVote(env, 7, [][]byte{h[:]}, nil)))
	require.True(t, IsNotCurrentlyValid(e.ValidateVote(env, 5, [][]byte{h[:]}, nil)))
	require.NoError(t, e.EndBlock(env, blk))
	require.False(t, loadPoll(t, env, tx.ID()).Finished)
	require.Empty(t, rec.outcomes)

	env.height = 13
	blk = NewBlock(13, nil)
	vote(t, e, env, blk, 6, nil, tx)
	require.Equal(t, []uint64{tx.ID()}, blk.Candidates())
	require.NoError(t, e.EndBlock(env, blk))

	p := loadPoll(t, env, tx.ID())
	require.True(t, p.Finished)
	require.True(t, p.Approved)
	require.EqualValues(t, 13, p.ResultHeight)
	require.EqualValues(t, 500, env.balances[2])
	require.Equal(t, []outcomeRecord{{OutcomeReleased, tx.ID(), 2, true}}, rec.outcomes)

	// nothing happens again at the finish height
	env.height = 20
	require.NoError(t, e.EndBlock(env, NewBlock(20, nil)))
	require.Len(t, rec.outcomes, 1)
	require.EqualValues(t, 500, env.balances[2])
	require.True(t, IsNotCurrentlyValid(e.ValidateVote(env, 6, [][]byte{h[:]}, nil)))
	require.EqualValues(t, 1, counterValue(t, reg, "hac_phasing_outcomes_total"))
}

func TestEarlyReleaseHash(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	env := newFakeEnv(11)
	env.balances[1] = 1000
	sha, _ := DefaultHashRegistry().Get(HashSHA256)
	secret := []byte("open sesame")
	a := NewAppendix(20, NewParams(VotingModelHash, 0, 1, 0, MinBalanceModelNone, nil), nil, sha(secret), HashSHA256)
	tx := newFakeTx("hash", a)
	submit(t, e, env, tx)

	env.height = 12
	h := tx.FullHash()
	require.True(t, IsNotValid(e.ValidateVote(env, 9, [][]byte{h[:]}, nil)))
	require.True(t, IsNotValid(e.ValidateVote(env, 9, [][]byte{h[:]}, []byte("wrong"))))

	blk := NewBlock(12, nil)
	vote(t, e, env, blk, 9, secret, tx)
	require.NoError(t, e.EndBlock(env, blk))

	p := loadPoll(t, env, tx.ID())
	require.True(t, p.Approved)
	require.EqualValues(t, 1, *p.Result)
	require.Equal(t, []outcomeRecord{{OutcomeReleased, tx.ID(), 1, true}}, rec.outcomes)
}

func TestEarlyReleaseLinkedTransaction(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	env := newFakeEnv(11)
	env.balances[1] = 1000
	l1 := hashOf("linked")
	a := NewAppendix(20, NewParams(VotingModelTransaction, 0, 1, 0, MinBalanceModelNone, nil), [][]byte{l1[:]}, nil, HashNone)
	tx := newFakeTx("linking", a)
	submit(t, e, env, tx)

	h := tx.FullHash()
	env.height = 12
	require.True(t, IsNotValid(e.ValidateVote(env, 9, [][]byte{h[:]}, nil)))

	env.height = 13
	blk := NewBlock(13, nil)
	env.confirm(l1, 13, 1000)
	require.NoError(t, e.Confirm(env, blk, l1))
	require.Equal(t, []uint64{tx.ID()}, blk.Candidates())
	require.NoError(t, e.EndBlock(env, blk))

	require.True(t, loadPoll(t, env, tx.ID()).Approved)
	require.Equal(t, []outcomeRecord{{OutcomeReleased, tx.ID(), 1, true}}, rec.outcomes)
}

func TestLinkedTransactionAfterFinishDoesNotCount(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	env := newFakeEnv(11)
	l1 := hashOf("late")
	a := NewAppendix(20, NewParams(VotingModelTransaction, 0, 1, 0, MinBalanceModelNone, nil), [][]byte{l1[:]}, nil, HashNone)
	tx := newFakeTx("linking", a)
	submit(t, e, env, tx)

	env.height = 20
	env.confirm(l1, 21, 1000)
	require.NoError(t, e.EndBlock(env, NewBlock(20, nil)))
	require.Equal(t, []outcomeRecord{{OutcomeRejected, tx.ID(), 0, false}}, rec.outcomes)
}

func TestTryCountVotesBelowQuorum(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	env := newFakeEnv(11)
	tx := newFakeTx("account", accountAppendix(20, 2, 5, 6))
	submit(t, e, env, tx)

	env.height = 12
	blk := NewBlock(12, nil)
	vote(t, e, env, blk, 5, nil, tx)
	require.NoError(t, e.TryCountVotes(env, tx, blk.Duplicates))
	require.False(t, loadPoll(t, env, tx.ID()).Finished)
	require.Empty(t, rec.outcomes)
}

func TestEarlyReleaseFailureWaitsForFinish(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	env := newFakeEnv(11)
	env.balances[1] = 1000
	tx := newFakeTx("account", accountAppendix(20, 1, 5))
	tx.pay.fail = true
	submit(t, e, env, tx)

	env.height = 12
	blk := NewBlock(12, nil)
	vote(t, e, env, blk, 5, nil, tx)
	require.NoError(t, e.EndBlock(env, blk))
	require.False(t, loadPoll(t, env, tx.ID()).Finished)
	require.EqualValues(t, 1000, env.balances[1])
	require.Empty(t, rec.outcomes)

	env.height = 20
	require.NoError(t, e.EndBlock(env, NewBlock(20, nil)))
	require.Equal(t, []outcomeRecord{{OutcomeRejected, tx.ID(), 1, false}}, rec.outcomes)
}

func TestDuplicateAtFinishRejects(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	env := newFakeEnv(11)
	env.balances[1] = 1000
	tx := newFakeTx("dup", NewAppendix(15, NewParams(VotingModelNone, 0, 0, 0, MinBalanceModelNone, nil), nil, nil, HashNone))
	tx.dupKey = "alias"
	submit(t, e, env, tx)

	env.height = 15
	blk := NewBlock(15, nil)
	require.False(t, blk.Duplicates.IsDuplicate("test", "alias", 1, true))
	require.NoError(t, e.EndBlock(env, blk))
	require.Equal(t, []outcomeRecord{{OutcomeRejected, tx.ID(), 0, false}}, rec.outcomes)
	require.EqualValues(t, 0, env.balances[2])
}

func TestDuplicateBlocksEarlyRelease(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	env := newFakeEnv(11)
	env.balances[1] = 1000
	tx := newFakeTx("dup", accountAppendix(20, 1, 5))
	tx.dupKey = "alias"
	submit(t, e, env, tx)

	env.height = 12
	blk := NewBlock(12, nil)
	require.False(t, blk.Duplicates.IsDuplicate("test", "alias", 1, true))
	vote(t, e, env, blk, 5, nil, tx)
	require.NoError(t, e.EndBlock(env, blk))
	require.False(t, loadPoll(t, env, tx.ID()).Finished)
	require.Empty(t, rec.outcomes)
}

func TestFailedEarlyReleaseLeavesDuplicateKey(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	env := newFakeEnv(11)
	env.balances[1] = 1000
	failing := newFakeTx("failing", accountAppendix(20, 1, 5))
	failing.dupKey = "alias"
	failing.pay.fail = true
	submit(t, e, env, failing)
	env.height = 12
	other := newFakeTx("other", accountAppendix(20, 1, 5))
	other.dupKey = "alias"
	submit(t, e, env, other)

	env.height = 13
	blk := NewBlock(13, nil)
	vote(t, e, env, blk, 5, nil, failing, other)
	require.Equal(t, []uint64{failing.ID(), other.ID()}, blk.Candidates())
	require.NoError(t, e.EndBlock(env, blk))

	require.False(t, loadPoll(t, env, failing.ID()).Finished)
	require.True(t, loadPoll(t, env, other.ID()).Finished)
	require.Equal(t, []outcomeRecord{{OutcomeReleased, other.ID(), 1, true}}, rec.outcomes)
	require.True(t, blk.Duplicates.IsDuplicate("test", "alias", 1, false))
}

func TestHoldingDeletedBeforeFinish(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	env := newFakeEnv(11)
	env.existing[holdingKey{tp: types.HoldingTypeAsset, holding: 9}] = true
	env.holdings[holdingKey{types.HoldingTypeAsset, 9, 5}] = 100
	a := NewAppendix(20, NewParams(VotingModelAsset, 9, 50, 0, MinBalanceModelNone, nil), nil, nil, HashNone)
	tx := newFakeTx("asset", a)
	submit(t, e, env, tx)

	env.height = 12
	vote(t, e, env, NewBlock(12, nil), 5, nil, tx)

	delete(env.existing, holdingKey{tp: types.HoldingTypeAsset, holding: 9})
	env.height = 20
	require.NoError(t, e.EndBlock(env, NewBlock(20, nil)))
	require.Equal(t, []outcomeRecord{{OutcomeRejected, tx.ID(), 0, false}}, rec.outcomes)
}

func TestVoteValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	env := newFakeEnv(11)
	tx := newFakeTx("account", accountAppendix(20, 1, 5))
	submit(t, e, env, tx)
	h := tx.FullHash()

	env.height = 12
	require.True(t, IsNotValid(e.ValidateVote(env, 5, nil, nil)))
	require.True(t, IsNotValid(e.ValidateVote(env, 5, [][]byte{h[:], h[:]}, nil)))
	require.True(t, IsNotValid(e.ValidateVote(env, 5, [][]byte{h[:8]}, nil)))
	require.True(t, IsNotValid(e.ValidateVote(env, 5, [][]byte{h[:]}, make([]byte, 101))))

	unknown := hashOf("unknown")
	require.True(t, IsNotCurrentlyValid(e.ValidateVote(env, 5, [][]byte{unknown[:]}, nil)))

	forged := h
	forged[31] ^= 0xff
	require.True(t, IsNotValid(e.ValidateVote(env, 5, [][]byte{forged[:]}, nil)))

	env.height = 20
	require.True(t, IsNotCurrentlyValid(e.ValidateVote(env, 5, [][]byte{h[:]}, nil)))
}

func TestTallyClampsOverflow(t *testing.T) {
	e, _, _ := newTestEngine(t)
	env := newFakeEnv(11)
	env.balances[5] = math.MaxInt64
	env.balances[6] = math.MaxInt64
	tx := newFakeTx("coin", coinAppendix(20, 1))
	submit(t, e, env, tx)

	env.height = 12
	blk := NewBlock(12, nil)
	vote(t, e, env, blk, 5, nil, tx)
	vote(t, e, env, blk, 6, nil, tx)

	result, err := e.Tally(env, loadPoll(t, env, tx.ID()))
	require.NoError(t, err)
	require.EqualValues(t, int64(math.MaxInt64), result)
}

func TestCountVotesUnknownPoll(t *testing.T) {
	e, _, _ := newTestEngine(t)
	env := newFakeEnv(11)
	tx := newFakeTx("ghost", coinAppendix(20, 1))
	require.ErrorIs(t, e.CountVotes(env, tx, nil), ErrPollNotFound)
	require.ErrorIs(t, e.TryCountVotes(env, tx, nil), ErrPollNotFound)
}

func TestBlockCandidateOrder(t *testing.T) {
	blk := NewBlock(30, nil)
	blk.addCandidate(&Poll{TransactionID: 3, Height: 12, Index: 0})
	blk.addCandidate(&Poll{TransactionID: 1, Height: 11, Index: 4})
	blk.addCandidate(&Poll{TransactionID: 2, Height: 11, Index: 1})
	blk.addCandidate(&Poll{TransactionID: 2, Height: 11, Index: 1})
	require.Equal(t, []uint64{2, 1, 3}, blk.Candidates())
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
