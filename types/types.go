package types

import (
	"fmt"
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"
)

const (
	EventPhasingPollType   = "phasing_poll"
	EventPhasingVoteType   = "phasing_vote"
	EventReleasePhasedType = "release_phased_transaction"
	EventRejectPhasedType  = "reject_phased_transaction"
	EventAccountLedgerType = "account_ledger"
)

type EventPhasingPoll struct {
	Transaction  uint64    `json:"transaction"`
	FullHash     FullHash  `json:"fullHash"`
	Sender       AccountID `json:"sender"`
	FinishHeight uint32    `json:"finishHeight"`
	VotingModel  int8      `json:"votingModel"`
	Quorum       int64     `json:"quorum"`
}

func EncodeEventPhasingPoll(event *EventPhasingPoll) abci.Event {
	return abci.Event{
		Type: EventPhasingPollType,
		Attributes: []abci.EventAttribute{
			{Key: "transaction", Value: fmt.Sprintf("%v", event.Transaction), Index: true},
			{Key: "fullHash", Value: event.FullHash.Hex(), Index: true},
			{Key: "sender", Value: event.Sender.String(), Index: true},
			{Key: "finishHeight", Value: fmt.Sprintf("%v", event.FinishHeight), Index: false},
			{Key: "votingModel", Value: fmt.Sprintf("%v", event.VotingModel), Index: false},
			{Key: "quorum", Value: fmt.Sprintf("%v", event.Quorum), Index: false},
		},
	}
}

func DecodeEventPhasingPoll(originEvent abci.Event) *EventPhasingPoll {
	event := &EventPhasingPoll{}
	for _, v := range originEvent.Attributes {
		switch v.Key {
		case "transaction":
			id, err := strconv.ParseUint(v.Value, 10, 64)
			if err != nil {
				return nil
			}
			event.Transaction = id
		case "fullHash":
			h, err := HexToFullHash(v.Value)
			if err != nil {
				return nil
			}
			event.FullHash = h
		case "sender":
			sender, err := ParseAccountID(v.Value)
			if err != nil {
				return nil
			}
			event.Sender = sender
		case "finishHeight":
			finish, err := strconv.ParseUint(v.Value, 10, 32)
			if err != nil {
				return nil
			}
			event.FinishHeight = uint32(finish)
		case "votingModel":
			model, err := strconv.ParseInt(v.Value, 10, 8)
			if err != nil {
				return nil
			}
			event.VotingModel = int8(model)
		case "quorum":
			quorum, err := strconv.ParseInt(v.Value, 10, 64)
			if err != nil {
				return nil
			}
			event.Quorum = quorum
		}
	}
	return event
}

type EventPhasingVote struct {
	Poll   uint64    `json:"poll"`
	Voter  AccountID `json:"voter"`
	VoteTx uint64    `json:"voteTransaction"`
}

func EncodeEventPhasingVote(event *EventPhasingVote) abci.Event {
	return abci.Event{
		Type: EventPhasingVoteType,
		Attributes: []abci.EventAttribute{
			{Key: "poll", Value: fmt.Sprintf("%v", event.Poll), Index: true},
			{Key: "voter", Value: event.Voter.String(), Index: true},
			{Key: "voteTransaction", Value: fmt.Sprintf("%v", event.VoteTx), Index: false},
		},
	}
}

func DecodeEventPhasingVote(originEvent abci.Event) *EventPhasingVote {
	event := &EventPhasingVote{}
	for _, v := range originEvent.Attributes {
		switch v.Key {
		case "poll":
			poll, err := strconv.ParseUint(v.Value, 10, 64)
			if err != nil {
				return nil
			}
			event.Poll = poll
		case "voter":
			voter, err := ParseAccountID(v.Value)
			if err != nil {
				return nil
			}
			event.Voter = voter
		case "voteTransaction":
			id, err := strconv.ParseUint(v.Value, 10, 64)
			if err != nil {
				return nil
			}
			event.VoteTx = id
		}
	}
	return event
}

// EventPhasedOutcome reports the release or rejection of a phased
// transaction. Type selects which of the two.
type EventPhasedOutcome struct {
	Type        string    `json:"-"`
	Transaction uint64    `json:"transaction"`
	FullHash    FullHash  `json:"fullHash"`
	Sender      AccountID `json:"sender"`
	Result      int64     `json:"result"`
	Early       bool      `json:"early"`
}

func EncodeEventPhasedOutcome(event *EventPhasedOutcome) abci.Event {
	return abci.Event{
		Type: event.Type,
		Attributes: []abci.EventAttribute{
			{Key: "transaction", Value: fmt.Sprintf("%v", event.Transaction), Index: true},
			{Key: "fullHash", Value: event.FullHash.Hex(), Index: true},
			{Key: "sender", Value: event.Sender.String(), Index: true},
			{Key: "result", Value: fmt.Sprintf("%v", event.Result), Index: false},
			{Key: "early", Value: strconv.FormatBool(event.Early), Index: false},
		},
	}
}

func DecodeEventPhasedOutcome(originEvent abci.Event) *EventPhasedOutcome {
	if originEvent.Type != EventReleasePhasedType && originEvent.Type != EventRejectPhasedType {
		return nil
	}
	event := &EventPhasedOutcome{Type: originEvent.Type}
	for _, v := range originEvent.Attributes {
		switch v.Key {
		case "transaction":
			id, err := strconv.ParseUint(v.Value, 10, 64)
			if err != nil {
				return nil
			}
			event.Transaction = id
		case "fullHash":
			h, err := HexToFullHash(v.Value)
			if err != nil {
				return nil
			}
			event.FullHash = h
		case "sender":
			sender, err := ParseAccountID(v.Value)
			if err != nil {
				return nil
			}
			event.Sender = sender
		case "result":
			result, err := strconv.ParseInt(v.Value, 10, 64)
			if err != nil {
				return nil
			}
			event.Result = result
		case "early":
			early, err := strconv.ParseBool(v.Value)
			if err != nil {
				return nil
			}
			event.Early = early
		}
	}
	return event
}

func EncodeEventAccountLedger(entry *LedgerEntry) abci.Event {
	return abci.Event{
		Type: EventAccountLedgerType,
		Attributes: []abci.EventAttribute{
			{Key: "account", Value: entry.Account.String(), Index: true},
			{Key: "event", Value: entry.Event.String(), Index: false},
			{Key: "eventId", Value: fmt.Sprintf("%v", entry.EventID), Index: true},
			{Key: "holdingType", Value: fmt.Sprintf("%v", uint8(entry.HoldingType)), Index: false},
			{Key: "holding", Value: fmt.Sprintf("%v", entry.Holding), Index: false},
			{Key: "change", Value: fmt.Sprintf("%v", entry.Change), Index: false},
			{Key: "unconfirmed", Value: strconv.FormatBool(entry.Unconfirmed), Index: false},
		},
	}
}

func DecodeEventAccountLedger(originEvent abci.Event) *LedgerEntry {
	entry := &LedgerEntry{}
	for _, v := range originEvent.Attributes {
		switch v.Key {
		case "account":
			account, err := ParseAccountID(v.Value)
			if err != nil {
				return nil
			}
			entry.Account = account
		case "event":
			for ev, name := range ledgerEventNames {
				if name == v.Value {
					entry.Event = ev
				}
			}
		case "eventId":
			id, err := strconv.ParseUint(v.Value, 10, 64)
			if err != nil {
				return nil
			}
			entry.EventID = id
		case "holdingType":
			tp, err := strconv.ParseUint(v.Value, 10, 8)
			if err != nil {
				return nil
			}
			entry.HoldingType = HoldingType(tp)
		case "holding":
			holding, err := strconv.ParseUint(v.Value, 10, 64)
			if err != nil {
				return nil
			}
			entry.Holding = holding
		case "change":
			change, err := strconv.ParseInt(v.Value, 10, 64)
			if err != nil {
				return nil
			}
			entry.Change = change
		case "unconfirmed":
			unconfirmed, err := strconv.ParseBool(v.Value)
			if err != nil {
				return nil
			}
			entry.Unconfirmed = unconfirmed
		}
	}
	return entry
}
