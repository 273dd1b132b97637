package phasing

import (
	"fmt"

	"github.com/calehh/hac-ledger/types"
)

type VotingModel int8

const (
	VotingModelNone        VotingModel = -1
	VotingModelAccount     VotingModel = 0
	VotingModelCoin        VotingModel = 1
	VotingModelAsset       VotingModel = 2
	VotingModelCurrency    VotingModel = 3
	VotingModelTransaction VotingModel = 4
	VotingModelHash        VotingModel = 5
)

func (m VotingModel) String() string {
	switch m {
	case VotingModelNone:
		return "NONE"
	case VotingModelAccount:
		return "ACCOUNT"
	case VotingModelCoin:
		return "COIN"
	case VotingModelAsset:
		return "ASSET"
	case VotingModelCurrency:
		return "CURRENCY"
	case VotingModelTransaction:
		return "TRANSACTION"
	case VotingModelHash:
		return "HASH"
	default:
		return fmt.Sprintf("VotingModel(%d)", int8(m))
	}
}

func (m VotingModel) Valid() bool {
	return m >= VotingModelNone && m <= VotingModelHash
}

// MinBalanceModel returns the min-balance model implied by a balance
// weighted voting model, or MinBalanceModelNone.
func (m VotingModel) MinBalanceModel() MinBalanceModel {
	switch m {
	case VotingModelCoin:
		return MinBalanceModelCoin
	case VotingModelAsset:
		return MinBalanceModelAsset
	case VotingModelCurrency:
		return MinBalanceModelCurrency
	default:
		return MinBalanceModelNone
	}
}

type MinBalanceModel int8

const (
	MinBalanceModelNone     MinBalanceModel = 0
	MinBalanceModelCoin     MinBalanceModel = 1
	MinBalanceModelAsset    MinBalanceModel = 2
	MinBalanceModelCurrency MinBalanceModel = 3
)

func (m MinBalanceModel) String() string {
	switch m {
	case MinBalanceModelNone:
		return "NONE"
	case MinBalanceModelCoin:
		return "COIN"
	case MinBalanceModelAsset:
		return "ASSET"
	case MinBalanceModelCurrency:
		return "CURRENCY"
	default:
		return fmt.Sprintf("MinBalanceModel(%d)", int8(m))
	}
}

func (m MinBalanceModel) Valid() bool {
	return m >= MinBalanceModelNone && m <= MinBalanceModelCurrency
}

func (m MinBalanceModel) HoldingType() types.HoldingType {
	switch m {
	case MinBalanceModelAsset:
		return types.HoldingTypeAsset
	case MinBalanceModelCurrency:
		return types.HoldingTypeCurrency
	default:
		return types.HoldingTypeCoin
	}
}

// VoteWeighting decides how much a single voter's approval counts toward
// the quorum of a poll.
type VoteWeighting struct {
	Model           VotingModel
	HoldingID       uint64
	MinBalance      int64
	MinBalanceModel MinBalanceModel
}

// IsBalanceIndependent reports whether the result of a poll under this
// weighting cannot change without new votes or linked transactions.
func (w VoteWeighting) IsBalanceIndependent() bool {
	switch w.Model {
	case VotingModelNone, VotingModelTransaction, VotingModelHash:
		return true
	case VotingModelAccount:
		return w.MinBalanceModel == MinBalanceModelNone
	default:
		return false
	}
}

// AcceptsVotes reports whether approval comes from later blocks, either
// cast votes or confirmed linked transactions. Such polls need a longer
// minimum finish delay.
func (w VoteWeighting) AcceptsVotes() bool {
	return w.Model != VotingModelNone && w.Model != VotingModelHash
}

// AcceptsCastVotes reports whether vote casting transactions may vote on
// a poll with this weighting.
func (w VoteWeighting) AcceptsCastVotes() bool {
	return w.Model != VotingModelNone && w.Model != VotingModelTransaction
}

func (w VoteWeighting) isHoldingModel() bool {
	return w.Model == VotingModelAsset || w.Model == VotingModelCurrency
}

func (w VoteWeighting) Validate(holdings HoldingRegistry) error {
	if !w.Model.Valid() {
		return notValid("invalid voting model %d", int8(w.Model))
	}
	if !w.MinBalanceModel.Valid() {
		return notValid("invalid min balance model %d", int8(w.MinBalanceModel))
	}
	if w.isHoldingModel() && w.HoldingID == 0 {
		return notValid("no holding id for voting model %v", w.Model)
	}
	if !w.isHoldingModel() && w.MinBalanceModel != MinBalanceModelAsset &&
		w.MinBalanceModel != MinBalanceModelCurrency && w.HoldingID != 0 {
		return notValid("holding id %d not expected for voting model %v", w.HoldingID, w.Model)
	}
	if w.MinBalance < 0 {
		return notValid("negative min balance %d", w.MinBalance)
	}
	if w.MinBalance == 0 {
		if w.MinBalanceModel != MinBalanceModelNone && w.Model == VotingModelAccount {
			return notValid("min balance model %v without min balance", w.MinBalanceModel)
		}
	} else {
		if w.MinBalanceModel == MinBalanceModelNone {
			return notValid("min balance %d without min balance model", w.MinBalance)
		}
		implied := w.Model.MinBalanceModel()
		if implied != MinBalanceModelNone && implied != w.MinBalanceModel {
			return notValid("min balance model %v does not match voting model %v", w.MinBalanceModel, w.Model)
		}
		if (w.MinBalanceModel == MinBalanceModelAsset || w.MinBalanceModel == MinBalanceModelCurrency) && w.HoldingID == 0 {
			return notValid("no holding id for min balance model %v", w.MinBalanceModel)
		}
	}
	return w.checkHolding(holdings)
}

func (w VoteWeighting) checkHolding(holdings HoldingRegistry) error {
	var tp types.HoldingType
	switch {
	case w.Model == VotingModelAsset, w.MinBalanceModel == MinBalanceModelAsset:
		tp = types.HoldingTypeAsset
	case w.Model == VotingModelCurrency, w.MinBalanceModel == MinBalanceModelCurrency:
		tp = types.HoldingTypeCurrency
	default:
		return nil
	}
	ok, err := holdings.HoldingExists(tp, w.HoldingID)
	if err != nil {
		return err
	}
	if !ok {
		return notCurrentlyValid("%v %d does not exist", tp, w.HoldingID)
	}
	return nil
}

// Weight returns the voting weight of an account: zero when it is below
// the minimum balance, otherwise one for ACCOUNT and HASH polls and the
// relevant balance for balance weighted polls.
func (w VoteWeighting) Weight(balances BalanceReader, voter types.AccountID) (int64, error) {
	if w.MinBalance > 0 {
		bal, err := w.balance(balances, w.MinBalanceModel, voter)
		if err != nil {
			return 0, err
		}
		if bal < w.MinBalance {
			return 0, nil
		}
	}
	switch w.Model {
	case VotingModelAccount, VotingModelHash:
		return 1, nil
	case VotingModelCoin, VotingModelAsset, VotingModelCurrency:
		return w.balance(balances, w.Model.MinBalanceModel(), voter)
	default:
		return 0, nil
	}
}

func (w VoteWeighting) balance(balances BalanceReader, m MinBalanceModel, voter types.AccountID) (int64, error) {
	switch m {
	case MinBalanceModelCoin:
		return balances.Balance(voter)
	case MinBalanceModelAsset, MinBalanceModelCurrency:
		return balances.HoldingBalance(m.HoldingType(), w.HoldingID, voter)
	default:
		return 0, nil
	}
}
