package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const FullHashLength = 32

var ErrInvalidFullHash = errors.New("invalid full hash")

// AccountID identifies an account. It is the first eight bytes of the
// sha256 of the account public key, read little-endian.
type AccountID uint64

func (a AccountID) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

func ParseAccountID(s string) (AccountID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return AccountID(v), nil
}

func AccountIDFromPubKey(pubKey []byte) AccountID {
	sum := sha256.Sum256(pubKey)
	return AccountID(FullHashToID(sum[:]))
}

// FullHash is the sha256 of a transaction's signed bytes.
type FullHash [FullHashLength]byte

// FullHashToID derives a transaction id from the first eight bytes of a
// full hash, little-endian. Hashes shorter than eight bytes yield 0.
func FullHashToID(hash []byte) uint64 {
	if len(hash) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(hash[:8])
}

func BytesToFullHash(b []byte) (h FullHash, err error) {
	if len(b) != FullHashLength {
		return h, ErrInvalidFullHash
	}
	copy(h[:], b)
	return
}

func HexToFullHash(s string) (FullHash, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return FullHash{}, err
	}
	return BytesToFullHash(b)
}

func (h FullHash) ID() uint64 {
	return FullHashToID(h[:])
}

func (h FullHash) Bytes() []byte {
	return common.CopyBytes(h[:])
}

func (h FullHash) IsZero() bool {
	return h == FullHash{}
}

func (h FullHash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h FullHash) String() string {
	return h.Hex()
}

func (h FullHash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *FullHash) UnmarshalText(text []byte) error {
	v, err := HexToFullHash(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// IsZeroBytes reports whether b contains only zero bytes.
func IsZeroBytes(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
