package phasing

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"github.com/calehh/hac-ledger/types"
	"github.com/pkg/errors"
)

const (
	AppendixName = "Phasing"
	// AppendixMarker is the JSON key announcing a phasing appendix.
	AppendixMarker  = "version.Phasing"
	AppendixVersion = 1
)

// Appendix is the phasing payload of a transaction. It is immutable once
// the transaction is built.
type Appendix struct {
	FinishHeight     uint32
	Params           Params
	LinkedFullHashes [][]byte
	HashedSecret     []byte
	Algorithm        HashAlgorithm
}

// NewAppendix normalizes empty collections to nil so that built and
// parsed appendices compare equal.
func NewAppendix(finishHeight uint32, params Params, linkedFullHashes [][]byte, hashedSecret []byte, algorithm HashAlgorithm) *Appendix {
	if len(linkedFullHashes) == 0 {
		linkedFullHashes = nil
	}
	if len(hashedSecret) == 0 {
		hashedSecret = nil
	}
	if len(params.Whitelist) == 0 {
		params.Whitelist = nil
	}
	return &Appendix{
		FinishHeight:     finishHeight,
		Params:           params,
		LinkedFullHashes: linkedFullHashes,
		HashedSecret:     hashedSecret,
		Algorithm:        algorithm,
	}
}

func (a *Appendix) Quorum() int64 {
	return a.Params.Quorum
}

func (a *Appendix) Whitelist() []types.AccountID {
	return a.Params.Whitelist
}

func (a *Appendix) VoteWeighting() VoteWeighting {
	return a.Params.Weighting
}

func (a *Appendix) VotingModel() VotingModel {
	return a.Params.Weighting.Model
}

func (a *Appendix) IsPhasable() bool {
	return false
}

func (a *Appendix) Size() int {
	return 4 + a.Params.Size() + 1 + 32*len(a.LinkedFullHashes) + 1 + len(a.HashedSecret) + 1
}

// Bytes encodes the appendix in its little-endian wire layout.
// Linked hashes are written as exactly 32 bytes each.
func (a *Appendix) Bytes() []byte {
	buf := make([]byte, 0, a.Size())
	buf = append(buf, byte(a.FinishHeight), byte(a.FinishHeight>>8), byte(a.FinishHeight>>16), byte(a.FinishHeight>>24))
	buf = a.Params.appendBytes(buf)
	buf = append(buf, byte(len(a.LinkedFullHashes)))
	for _, h := range a.LinkedFullHashes {
		var fixed [types.FullHashLength]byte
		copy(fixed[:], h)
		buf = append(buf, fixed[:]...)
	}
	buf = append(buf, byte(len(a.HashedSecret)))
	buf = append(buf, a.HashedSecret...)
	buf = append(buf, byte(a.Algorithm))
	return buf
}

// ReadAppendix decodes an appendix from the front of b and returns the
// number of bytes consumed. No semantic validation is performed.
func ReadAppendix(b []byte) (*Appendix, int, error) {
	r := newByteReader(b)
	finishHeight := r.uint32()
	params := readParams(r)
	n := int(r.uint8())
	var linked [][]byte
	for i := 0; i < n && r.err == nil; i++ {
		linked = append(linked, r.bytes(types.FullHashLength))
	}
	secretLen := int(r.uint8())
	secret := r.bytes(secretLen)
	alg := HashAlgorithm(r.uint8())
	if r.err != nil {
		return nil, 0, r.err
	}
	return NewAppendix(finishHeight, params, linked, secret, alg), r.off, nil
}

// ParseBytes decodes an appendix that must occupy all of b.
func ParseBytes(b []byte) (*Appendix, error) {
	a, n, err := ReadAppendix(b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, errors.Wrapf(ErrMalformedAppendix, "%d trailing bytes", len(b)-n)
	}
	return a, nil
}

type appendixJSON struct {
	Version int `json:"version.Phasing"`
	paramsJSON
	FinishHeight     uint32   `json:"phasingFinishHeight"`
	LinkedFullHashes []string `json:"phasingLinkedFullHashes,omitempty"`
	HashedSecret     string   `json:"phasingHashedSecret,omitempty"`
	Algorithm        uint8    `json:"phasingHashedSecretAlgorithm,omitempty"`
}

func (a *Appendix) MarshalJSON() ([]byte, error) {
	o := appendixJSON{
		Version:      AppendixVersion,
		paramsJSON:   a.Params.toJSON(),
		FinishHeight: a.FinishHeight,
	}
	for _, h := range a.LinkedFullHashes {
		o.LinkedFullHashes = append(o.LinkedFullHashes, hex.EncodeToString(h))
	}
	if len(a.HashedSecret) > 0 {
		o.HashedSecret = hex.EncodeToString(a.HashedSecret)
		o.Algorithm = uint8(a.Algorithm)
	}
	return json.Marshal(o)
}

func (a *Appendix) UnmarshalJSON(dat []byte) error {
	var o appendixJSON
	if err := json.Unmarshal(dat, &o); err != nil {
		return errors.Wrap(ErrMalformedAppendix, err.Error())
	}
	params, err := o.paramsJSON.params()
	if err != nil {
		return err
	}
	linked := make([][]byte, 0, len(o.LinkedFullHashes))
	for _, s := range o.LinkedFullHashes {
		h, err := hex.DecodeString(s)
		if err != nil {
			return errors.Wrapf(ErrMalformedAppendix, "invalid linked full hash %q", s)
		}
		linked = append(linked, h)
	}
	var secret []byte
	if o.HashedSecret != "" {
		secret, err = hex.DecodeString(o.HashedSecret)
		if err != nil {
			return errors.Wrapf(ErrMalformedAppendix, "invalid hashed secret %q", o.HashedSecret)
		}
	}
	*a = *NewAppendix(o.FinishHeight, params, linked, secret, HashAlgorithm(o.Algorithm))
	return nil
}

// Parse returns the phasing appendix carried by a transaction's appendix
// object, or nil when the phasing marker is absent.
func Parse(appendices map[string]json.RawMessage) (*Appendix, error) {
	if _, ok := appendices[AppendixMarker]; !ok {
		return nil, nil
	}
	dat, err := json.Marshal(appendices)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedAppendix, err.Error())
	}
	a := new(Appendix)
	if err := a.UnmarshalJSON(dat); err != nil {
		return nil, err
	}
	return a, nil
}

// PutJSON merges the appendix's JSON keys into an appendix object.
func (a *Appendix) PutJSON(appendices map[string]json.RawMessage) error {
	dat, err := a.MarshalJSON()
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(dat, &fields); err != nil {
		return err
	}
	for k, v := range fields {
		appendices[k] = v
	}
	return nil
}

// BaselineFee is the fee surcharge for carrying this appendix.
func (a *Appendix) BaselineFee(oneCoin int64) int64 {
	fee := 20 * oneCoin
	if a.Params.Weighting.IsBalanceIndependent() {
		fee = oneCoin
	}
	if n := len(a.HashedSecret); n > 0 {
		fee += oneCoin * int64(1+(n-1)/32)
	}
	fee += oneCoin * int64(len(a.LinkedFullHashes))
	return fee
}

func (a *Appendix) Equal(o *Appendix) bool {
	if a.FinishHeight != o.FinishHeight || a.Algorithm != o.Algorithm ||
		!bytes.Equal(a.HashedSecret, o.HashedSecret) || len(a.LinkedFullHashes) != len(o.LinkedFullHashes) {
		return false
	}
	for i := range a.LinkedFullHashes {
		if !bytes.Equal(a.LinkedFullHashes[i], o.LinkedFullHashes[i]) {
			return false
		}
	}
	return a.Params.Equal(&o.Params)
}
