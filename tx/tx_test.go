package tx

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/calehh/hac-ledger/phasing"
	"github.com/calehh/hac-ledger/types"
	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

const testChainID = "hac-test"

func newPayment(amount int64) *HACTx {
	return &HACTx{
		Version:   HACTxVersion1,
		Type:      HACTxTypePayment,
		Time:      1000,
		Recipient: 7,
		AmountNQT: amount,
		FeeNQT:    100000000,
		Tx:        &PaymentTx{},
	}
}

func TestSignAndVerify(t *testing.T) {
	key := ed25519.GenPrivKey()
	btx := newPayment(10)
	dat, err := btx.Sign(key, testChainID)
	require.NoError(t, err)
	require.NoError(t, btx.VerifySig(testChainID))
	require.ErrorIs(t, btx.VerifySig("other-chain"), ErrTxSigInvalid)
	require.Equal(t, types.AccountIDFromPubKey(key.PubKey().Bytes()), btx.SenderID())
	require.Equal(t, dat, btx.Raw())

	parsed, err := UnmarshalHACTx(dat)
	require.NoError(t, err)
	require.NoError(t, parsed.VerifySig(testChainID))
	require.Equal(t, btx.FullHash(), parsed.FullHash())
	require.Equal(t, btx.ID(), parsed.ID())
	require.Equal(t, int64(10), parsed.Amount())
	require.Equal(t, uint32(1000), parsed.Timestamp())
	require.Nil(t, parsed.Phasing())

	parsed.AmountNQT = 11
	require.ErrorIs(t, parsed.VerifySig(testChainID), ErrTxSigInvalid)

	parsed.Sig = nil
	require.ErrorIs(t, parsed.VerifySig(testChainID), ErrTxSigInvalid)
}

func TestPhasedHoldingTransfer(t *testing.T) {
	key := ed25519.GenPrivKey()
	a := phasing.NewAppendix(120, phasing.NewParams(phasing.VotingModelAccount, 0, 1, 0, phasing.MinBalanceModelNone, []types.AccountID{3, 4}), nil, nil, phasing.HashNone)
	btx := &HACTx{
		Version:   HACTxVersion1,
		Type:      HACTxTypeHoldingTransfer,
		Time:      1000,
		Recipient: 7,
		FeeNQT:    300000000,
		Tx:        &HoldingTransferTx{HoldingType: types.HoldingTypeAsset, Holding: 77, Quantity: 5},
	}
	require.NoError(t, btx.SetPhasing(a))
	dat, err := btx.Sign(key, testChainID)
	require.NoError(t, err)

	parsed, err := UnmarshalHACTx(dat)
	require.NoError(t, err)
	require.NotNil(t, parsed.Phasing())
	require.True(t, a.Equal(parsed.Phasing()))
	require.Equal(t, btx.FullHash(), parsed.FullHash())

	att, err := parsed.Attachment()
	require.NoError(t, err)
	ht, ok := att.(*HoldingTransferTx)
	require.True(t, ok)
	require.Equal(t, HoldingTransferTx{HoldingType: types.HoldingTypeAsset, Holding: 77, Quantity: 5}, *ht)

	apps := parsed.Appendages()
	require.Len(t, apps, 2)
	for _, app := range apps {
		require.True(t, app.IsPhasable())
	}

	oneCoin := int64(100000000)
	require.Equal(t, oneCoin+oneCoin, parsed.MinFee(oneCoin))
	require.Equal(t, oneCoin, newPayment(1).MinFee(oneCoin))
}

func TestUnmarshalErrors(t *testing.T) {
	_, err := UnmarshalHACTx([]byte(`{"type":99}`))
	require.ErrorIs(t, err, ErrUnsupportedTxType)

	_, err = UnmarshalHACTx([]byte(`not json`))
	require.ErrorIs(t, err, ErrUnsupportedTxType)

	btx := newPayment(1)
	btx.Appendices = map[string]json.RawMessage{
		phasing.AppendixMarker: json.RawMessage(`1`),
		"phasingVotingModel":   json.RawMessage(`"not a number"`),
	}
	dat, err := MarshalHACTx(btx)
	require.NoError(t, err)
	_, err = UnmarshalHACTx(dat)
	require.ErrorIs(t, err, ErrInvalidTx)
}

func TestRejectReencodedTx(t *testing.T) {
	require := require.New(t)
	dat, err := newPayment(10).Sign(ed25519.GenPrivKey(), testChainID)
	require.NoError(err)
	_, err = UnmarshalHACTx(dat)
	require.NoError(err)

	var indented bytes.Buffer
	require.NoError(json.Indent(&indented, dat, "", " "))
	var generic map[string]any
	require.NoError(json.Unmarshal(dat, &generic))
	reordered, err := json.Marshal(generic)
	require.NoError(err)
	require.NotEqual(dat, reordered)

	for _, variant := range [][]byte{
		append([]byte(" "), dat...),
		append(append([]byte{}, dat...), '\n'),
		indented.Bytes(),
		reordered,
	} {
		_, err = UnmarshalHACTx(variant)
		require.ErrorIs(err, ErrInvalidTx)
		require.Contains(err.Error(), ErrNonCanonicalTx.Error())
	}
}

func TestVoteCasting(t *testing.T) {
	h1 := make([]byte, types.FullHashLength)
	h1[0] = 1
	h2 := make([]byte, types.FullHashLength)
	h2[0] = 2
	vtx := &HACTx{
		Version: HACTxVersion1,
		Type:    HACTxTypePhasingVoteCasting,
		FeeNQT:  100000000,
		Tx: &PhasingVoteCastingTx{
			FullHashes:     []hexutil.Bytes{h1, h2},
			RevealedSecret: []byte("secret"),
		},
	}
	dat, err := vtx.Sign(ed25519.GenPrivKey(), testChainID)
	require.NoError(t, err)

	parsed, err := UnmarshalHACTx(dat)
	require.NoError(t, err)
	att, err := parsed.Attachment()
	require.NoError(t, err)
	vote := att.(*PhasingVoteCastingTx)
	require.Equal(t, [][]byte{h1, h2}, vote.Hashes())
	require.Equal(t, []byte("secret"), []byte(vote.RevealedSecret))
	require.False(t, vote.IsPhasable())
	require.NoError(t, vote.Validate(nil, parsed))

	a := phasing.NewAppendix(120, phasing.NewParams(phasing.VotingModelNone, 0, 0, 0, phasing.MinBalanceModelNone, nil), nil, nil, phasing.HashNone)
	require.NoError(t, parsed.SetPhasing(a))
	require.ErrorIs(t, vote.Validate(nil, parsed), ErrInvalidTx)
}

func TestHoldingDeleteDuplicates(t *testing.T) {
	dups := types.NewDuplicates()
	del := &HoldingDeleteTx{HoldingType: types.HoldingTypeAsset, Holding: 77}
	btx := &HACTx{Type: HACTxTypeHoldingDelete, Tx: del}

	require.False(t, btx.AttachmentIsDuplicate(dups, false))
	require.False(t, btx.AttachmentIsDuplicate(dups, true))
	require.True(t, btx.AttachmentIsDuplicate(dups, true))

	other := &HACTx{Type: HACTxTypeHoldingDelete, Tx: &HoldingDeleteTx{HoldingType: types.HoldingTypeCurrency, Holding: 77}}
	require.False(t, other.AttachmentIsDuplicate(dups, true))
	require.False(t, newPayment(1).AttachmentIsDuplicate(dups, true))
}
