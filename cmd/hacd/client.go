package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calehh/hac-ledger/crypto"
	"github.com/calehh/hac-ledger/phasing"
	"github.com/calehh/hac-ledger/tx"
	"github.com/calehh/hac-ledger/types"
	"github.com/cometbft/cometbft/rpc/client/http"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

const oneCoin = int64(100000000)

type payArguments struct {
	Url          string
	Skey         string
	Recipient    string
	Amount       int64
	Fee          int64
	FinishHeight uint32
	Model        int8
	Quorum       int64
	HoldingID    uint64
	MinBalance   int64
	Whitelist    []string
	Linked       []string
	Secret       string
	Algorithm    uint8
}

var payArgs payArguments

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Send a payment, phased when --finish is set",
	Run:   payRun,
}

type voteArguments struct {
	Url    string
	Skey   string
	Hashes []string
	Secret string
	Fee    int64
}

var voteArgs voteArguments

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Approve phased transactions by full hash",
	Run:   voteRun,
}

var queryUrl string

var queryCmd = &cobra.Command{
	Use:   "query <path> <data>",
	Short: "Query the ledger, e.g. query /accounts/ 123",
	Args:  cobra.RangeArgs(1, 2),
	Run:   queryRun,
}

func init() {
	urlFlag(payCmd, &payArgs.Url)
	skeyFlag(payCmd, &payArgs.Skey)
	payCmd.Flags().StringVarP(&payArgs.Recipient, "recipient", "r", "", "recipient account id")
	payCmd.Flags().Int64VarP(&payArgs.Amount, "amount", "a", 0, "amount in NQT")
	payCmd.Flags().Int64VarP(&payArgs.Fee, "fee", "f", 0, "fee in NQT, the minimum fee if zero")
	payCmd.Flags().Uint32Var(&payArgs.FinishHeight, "finish", 0, "phasing finish height")
	payCmd.Flags().Int8Var(&payArgs.Model, "model", int8(phasing.VotingModelAccount), "phasing voting model")
	payCmd.Flags().Int64Var(&payArgs.Quorum, "quorum", 1, "phasing quorum")
	payCmd.Flags().Uint64Var(&payArgs.HoldingID, "holding", 0, "phasing holding id")
	payCmd.Flags().Int64Var(&payArgs.MinBalance, "minbalance", 0, "phasing min balance")
	payCmd.Flags().StringSliceVar(&payArgs.Whitelist, "whitelist", nil, "phasing whitelist account ids")
	payCmd.Flags().StringSliceVar(&payArgs.Linked, "linked", nil, "linked transaction full hashes")
	payCmd.Flags().StringVar(&payArgs.Secret, "hashedsecret", "", "hashed secret hex")
	payCmd.Flags().Uint8Var(&payArgs.Algorithm, "algorithm", uint8(phasing.HashSHA256), "hashed secret algorithm")

	urlFlag(voteCmd, &voteArgs.Url)
	skeyFlag(voteCmd, &voteArgs.Skey)
	voteCmd.Flags().StringSliceVar(&voteArgs.Hashes, "hash", nil, "full hashes of the phased transactions")
	voteCmd.Flags().StringVar(&voteArgs.Secret, "secret", "", "revealed secret hex")
	voteCmd.Flags().Int64VarP(&voteArgs.Fee, "fee", "f", oneCoin, "fee in NQT")

	urlFlag(queryCmd, &queryUrl)
}

func payRun(cmd *cobra.Command, args []string) {
	recipient, err := types.ParseAccountID(payArgs.Recipient)
	if err != nil {
		fmt.Printf("parse recipient err:%v\n", err)
		return
	}
	btx := &tx.HACTx{
		Version:   tx.HACTxVersion1,
		Type:      tx.HACTxTypePayment,
		Time:      uint32(time.Now().Unix()),
		Recipient: recipient,
		AmountNQT: payArgs.Amount,
		Tx:        &tx.PaymentTx{},
	}
	if payArgs.FinishHeight > 0 {
		a, err := payAppendix()
		if err != nil {
			fmt.Printf("phasing err:%v\n", err)
			return
		}
		if err = btx.SetPhasing(a); err != nil {
			fmt.Printf("set phasing err:%v\n", err)
			return
		}
	}
	btx.FeeNQT = payArgs.Fee
	if btx.FeeNQT == 0 {
		btx.FeeNQT = btx.MinFee(oneCoin)
	}
	broadcast(payArgs.Url, payArgs.Skey, btx)
}

func payAppendix() (*phasing.Appendix, error) {
	whitelist := make([]types.AccountID, 0, len(payArgs.Whitelist))
	for _, s := range payArgs.Whitelist {
		id, err := types.ParseAccountID(s)
		if err != nil {
			return nil, err
		}
		whitelist = append(whitelist, id)
	}
	linked := make([][]byte, 0, len(payArgs.Linked))
	for _, s := range payArgs.Linked {
		h, err := types.HexToFullHash(s)
		if err != nil {
			return nil, err
		}
		linked = append(linked, h.Bytes())
	}
	var secret []byte
	algorithm := phasing.HashNone
	if payArgs.Secret != "" {
		var err error
		if secret, err = hexutil.Decode(payArgs.Secret); err != nil {
			return nil, err
		}
		algorithm = phasing.HashAlgorithm(payArgs.Algorithm)
	}
	model := phasing.VotingModel(payArgs.Model)
	params := phasing.NewParams(model, payArgs.HoldingID, payArgs.Quorum, payArgs.MinBalance, model.MinBalanceModel(), whitelist)
	return phasing.NewAppendix(payArgs.FinishHeight, params, linked, secret, algorithm), nil
}

func voteRun(cmd *cobra.Command, args []string) {
	stx := &tx.PhasingVoteCastingTx{}
	for _, s := range voteArgs.Hashes {
		h, err := types.HexToFullHash(s)
		if err != nil {
			fmt.Printf("parse full hash err:%v\n", err)
			return
		}
		stx.FullHashes = append(stx.FullHashes, h.Bytes())
	}
	if voteArgs.Secret != "" {
		secret, err := hexutil.Decode(voteArgs.Secret)
		if err != nil {
			fmt.Printf("decode secret err:%v\n", err)
			return
		}
		stx.RevealedSecret = secret
	}
	btx := &tx.HACTx{
		Version: tx.HACTxVersion1,
		Type:    tx.HACTxTypePhasingVoteCasting,
		Time:    uint32(time.Now().Unix()),
		FeeNQT:  voteArgs.Fee,
		Tx:      stx,
	}
	broadcast(voteArgs.Url, voteArgs.Skey, btx)
}

func broadcast(url string, skey string, btx *tx.HACTx) {
	pv, err := crypto.LoadFilePV(skey)
	if err != nil {
		fmt.Printf("load key err:%v\n", err)
		return
	}
	cli, err := http.New(url, "/websocket")
	if err != nil {
		fmt.Printf("new client err:%v\n", err)
		return
	}
	ctx := context.Background()
	gres, err := cli.Genesis(ctx)
	if err != nil {
		fmt.Printf("get chain genesis err:%v\n", err)
		return
	}
	dat, err := pv.SignTx(btx, gres.Genesis.ChainID)
	if err != nil {
		fmt.Printf("sign tx err:%v\n", err)
		return
	}
	println("sender:", pv.AccountID().String())
	println("full hash:", btx.FullHash().Hex())
	res, err := cli.BroadcastTxSync(ctx, dat)
	if err != nil {
		fmt.Printf("broadcast tx err:%v\n", err)
		return
	}
	dat, _ = json.Marshal(res)
	fmt.Printf("%v\n", string(dat))
}

func queryRun(cmd *cobra.Command, args []string) {
	cli, err := http.New(queryUrl, "/websocket")
	if err != nil {
		fmt.Printf("new client err:%v\n", err)
		return
	}
	var data []byte
	if len(args) > 1 {
		data = []byte(args[1])
	}
	res, err := cli.ABCIQuery(context.Background(), args[0], data)
	if err != nil {
		fmt.Printf("query err:%v\n", err)
		return
	}
	if res.Response.Code != 0 {
		fmt.Printf("query fail code:%d log:%s\n", res.Response.Code, res.Response.Log)
		return
	}
	fmt.Printf("height:%d\n%s\n", res.Response.Height, string(res.Response.Value))
}
