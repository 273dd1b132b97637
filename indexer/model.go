package indexer

// sqlite models. Transaction and account ids are stored as decimal strings:
// sqlite integers are signed and ids use the full 64 bits.

const (
	PollStatusPending  = "pending"
	PollStatusReleased = "released"
	PollStatusRejected = "rejected"
)

type Height struct {
	Id     uint64 `gorm:"primary_key" json:"id"`
	Height uint64 `json:"height"`
}

type PhasingPoll struct {
	TxId         string `gorm:"primary_key" json:"tx_id"`
	FullHash     string `gorm:"index" json:"full_hash"`
	Sender       string `gorm:"index" json:"sender"`
	FinishHeight uint32 `json:"finish_height"`
	VotingModel  int8   `json:"voting_model"`
	Quorum       int64  `json:"quorum"`
	Height       uint64 `json:"height"`
	Status       string `gorm:"index" json:"status"`
	ResultHeight uint64 `json:"result_height"`
}

type PhasingVote struct {
	Id     uint64 `gorm:"primary_key" json:"id"`
	Poll   string `gorm:"index" json:"poll"`
	Voter  string `gorm:"index" json:"voter"`
	VoteTx string `json:"vote_tx"`
	Height uint64 `json:"height"`
}

type PhasedOutcome struct {
	Id       uint64 `gorm:"primary_key" json:"id"`
	TxId     string `gorm:"index" json:"tx_id"`
	FullHash string `json:"full_hash"`
	Sender   string `gorm:"index" json:"sender"`
	Outcome  string `json:"outcome"`
	Result   int64  `json:"result"`
	Early    bool   `json:"early"`
	Height   uint64 `gorm:"index" json:"height"`
}
