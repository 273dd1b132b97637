package indexer

import (
	"context"
	"errors"
	"strconv"
	"time"

	hac_types "github.com/calehh/hac-ledger/types"
	abci "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	comethttp "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

// ChainIndexer follows the committed blocks of a node over rpc and keeps
// the phasing polls, votes and outcomes they report in sqlite.
type ChainIndexer struct {
	logger        cmtlog.Logger
	Url           string
	Height        int64
	db            *gorm.DB
	cli           *comethttp.HTTP
	eventHandlers map[string]eventHandler
}

type eventHandler func(db *gorm.DB, event abci.Event, height int64) error

// NewChainIndexer opens the sqlite database at dbPath. An empty chainUrl
// gives an indexer that is fed through HandleBlock only.
func NewChainIndexer(logger cmtlog.Logger, dbPath string, chainUrl string) (*ChainIndexer, error) {
	logger = logger.With("module", "indexer")
	logger.Info("NewChainIndexer", "dbPath", dbPath, "url", chainUrl)
	db, err := gorm.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Height{}, &PhasingPoll{}, &PhasingVote{}, &PhasedOutcome{}).Error; err != nil {
		db.Close()
		return nil, err
	}
	h := Height{Id: 1}
	if err = db.First(&h).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		db.Close()
		return nil, err
	}

	c := &ChainIndexer{
		logger: logger,
		Url:    chainUrl,
		Height: int64(h.Height + 1),
		db:     db,
	}
	if chainUrl != "" {
		c.cli, err = comethttp.New(chainUrl, "/websocket")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	c.eventHandlers = map[string]eventHandler{
		hac_types.EventPhasingPollType:   c.handleEventPhasingPoll,
		hac_types.EventPhasingVoteType:   c.handleEventPhasingVote,
		hac_types.EventReleasePhasedType: c.handleEventPhasedOutcome,
		hac_types.EventRejectPhasedType:  c.handleEventPhasedOutcome,
	}
	return c, nil
}

func (c *ChainIndexer) Close() error {
	return c.db.Close()
}

// HandleBlock stores the events of the block at height and advances the
// indexed height, all in one sqlite transaction.
func (c *ChainIndexer) HandleBlock(height int64, events []abci.Event) error {
	tx := c.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	for _, event := range events {
		h, ok := c.eventHandlers[event.Type]
		if !ok {
			continue
		}
		if err := h(tx, event, height); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Save(&Height{Id: 1, Height: uint64(height)}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	c.Height = height + 1
	return nil
}

func (c *ChainIndexer) handleEventPhasingPoll(db *gorm.DB, event abci.Event, height int64) error {
	ev := hac_types.DecodeEventPhasingPoll(event)
	if ev == nil {
		c.logger.Error("decode event fail", "event", event)
		return nil
	}
	poll := PhasingPoll{
		TxId:         strconv.FormatUint(ev.Transaction, 10),
		FullHash:     ev.FullHash.Hex(),
		Sender:       ev.Sender.String(),
		FinishHeight: ev.FinishHeight,
		VotingModel:  ev.VotingModel,
		Quorum:       ev.Quorum,
		Height:       uint64(height),
		Status:       PollStatusPending,
	}
	return db.Save(&poll).Error
}

func (c *ChainIndexer) handleEventPhasingVote(db *gorm.DB, event abci.Event, height int64) error {
	ev := hac_types.DecodeEventPhasingVote(event)
	if ev == nil {
		c.logger.Error("decode event fail", "event", event)
		return nil
	}
	vote := PhasingVote{
		Poll:   strconv.FormatUint(ev.Poll, 10),
		Voter:  ev.Voter.String(),
		VoteTx: strconv.FormatUint(ev.VoteTx, 10),
		Height: uint64(height),
	}
	return db.Create(&vote).Error
}

func (c *ChainIndexer) handleEventPhasedOutcome(db *gorm.DB, event abci.Event, height int64) error {
	ev := hac_types.DecodeEventPhasedOutcome(event)
	if ev == nil {
		c.logger.Error("decode event fail", "event", event)
		return nil
	}
	status := PollStatusReleased
	if ev.Type == hac_types.EventRejectPhasedType {
		status = PollStatusRejected
	}
	id := strconv.FormatUint(ev.Transaction, 10)
	outcome := PhasedOutcome{
		TxId:     id,
		FullHash: ev.FullHash.Hex(),
		Sender:   ev.Sender.String(),
		Outcome:  status,
		Result:   ev.Result,
		Early:    ev.Early,
		Height:   uint64(height),
	}
	if err := db.Create(&outcome).Error; err != nil {
		return err
	}
	return db.Model(&PhasingPoll{}).Where("tx_id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"result_height": uint64(height),
	}).Error
}

// blockEvents flattens the events of the successful transactions and of
// the block itself.
func blockEvents(txs []*abci.ExecTxResult, finalize []abci.Event) (events []abci.Event) {
	for _, res := range txs {
		if res == nil || res.Code != 0 {
			continue
		}
		events = append(events, res.Events...)
	}
	return append(events, finalize...)
}

func (c *ChainIndexer) reconnect() {
	if c.cli.IsRunning() {
		return
	}
	c.cli.Stop()
	cli, err := comethttp.New(c.Url, "/websocket")
	if err != nil {
		c.logger.Error("reconnect fail", "err", err)
		return
	}
	c.cli = cli
}

// Start polls the node once per second and indexes every block up to the
// latest one. It returns when ctx is done.
func (c *ChainIndexer) Start(ctx context.Context) {
	if c.cli == nil {
		c.logger.Error("indexer started without rpc url")
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b, err := c.cli.Status(ctx)
			if err != nil {
				c.logger.Error("get status fail", "err", err)
				c.reconnect()
				continue
			}
			for b.SyncInfo.LatestBlockHeight >= c.Height {
				if ctx.Err() != nil {
					return
				}
				height := c.Height
				res, err := c.cli.BlockResults(ctx, &height)
				if err != nil {
					c.logger.Error("get block results fail", "height", height, "err", err)
					c.reconnect()
					break
				}
				if err := c.HandleBlock(height, blockEvents(res.TxsResults, res.FinalizeBlockEvents)); err != nil {
					c.logger.Error("index block fail", "height", height, "err", err)
					break
				}
				c.logger.Debug("indexed block", "height", height)
			}
		}
	}
}

func (c *ChainIndexer) GetPoll(transaction uint64) (*PhasingPoll, error) {
	var poll PhasingPoll
	err := c.db.Where("tx_id = ?", strconv.FormatUint(transaction, 10)).First(&poll).Error
	if err != nil {
		return nil, err
	}
	return &poll, nil
}

func (c *ChainIndexer) GetPollsByStatus(status string, page int, pageSize int) ([]PhasingPoll, error) {
	var polls []PhasingPoll
	err := c.db.Where("status = ?", status).Order("height desc").Offset(page * pageSize).Limit(pageSize).Find(&polls).Error
	if err != nil {
		return nil, err
	}
	return polls, nil
}

func (c *ChainIndexer) GetVotesByPoll(transaction uint64) ([]PhasingVote, error) {
	var votes []PhasingVote
	err := c.db.Where("poll = ?", strconv.FormatUint(transaction, 10)).Order("id").Find(&votes).Error
	if err != nil {
		return nil, err
	}
	return votes, nil
}

func (c *ChainIndexer) GetOutcomesBySender(sender hac_types.AccountID, page int, pageSize int) ([]PhasedOutcome, uint64, error) {
	var outcomes []PhasedOutcome
	err := c.db.Where("sender = ?", sender.String()).Order("id desc").Offset(page * pageSize).Limit(pageSize).Find(&outcomes).Error
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	err = c.db.Model(&PhasedOutcome{}).Where("sender = ?", sender.String()).Count(&total).Error
	if err != nil {
		return nil, 0, err
	}
	return outcomes, total, nil
}
