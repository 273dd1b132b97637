package phasing

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"
)

// HashAlgorithm is the wire code of a hash function usable for HASH polls.
type HashAlgorithm uint8

const (
	HashNone            HashAlgorithm = 0
	HashSHA256          HashAlgorithm = 2
	HashSHA3            HashAlgorithm = 3
	HashRIPEMD160       HashAlgorithm = 6
	HashKeccak256       HashAlgorithm = 25
	HashRIPEMD160SHA256 HashAlgorithm = 62
)

var hashAlgorithmNames = map[HashAlgorithm]string{
	HashNone:            "NONE",
	HashSHA256:          "SHA256",
	HashSHA3:            "SHA3",
	HashRIPEMD160:       "RIPEMD160",
	HashKeccak256:       "KECCAK256",
	HashRIPEMD160SHA256: "RIPEMD160_SHA256",
}

func (a HashAlgorithm) String() string {
	if name, ok := hashAlgorithmNames[a]; ok {
		return name
	}
	return "HashAlgorithm(" + strconv.Itoa(int(a)) + ")"
}

type HashFunction func(data []byte) []byte

// HashRegistry maps algorithm codes to hash functions.
type HashRegistry struct {
	funcs map[HashAlgorithm]HashFunction
}

func NewHashRegistry() *HashRegistry {
	return &HashRegistry{funcs: make(map[HashAlgorithm]HashFunction)}
}

func DefaultHashRegistry() *HashRegistry {
	r := NewHashRegistry()
	r.Register(HashSHA256, func(data []byte) []byte {
		sum := sha256.Sum256(data)
		return sum[:]
	})
	r.Register(HashSHA3, func(data []byte) []byte {
		sum := sha3.Sum256(data)
		return sum[:]
	})
	r.Register(HashRIPEMD160, ripemd)
	r.Register(HashKeccak256, func(data []byte) []byte { return crypto.Keccak256(data) })
	r.Register(HashRIPEMD160SHA256, func(data []byte) []byte {
		sum := sha256.Sum256(data)
		return ripemd(sum[:])
	})
	return r
}

func ripemd(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)
	return h.Sum(nil)
}

func (r *HashRegistry) Register(alg HashAlgorithm, fn HashFunction) {
	r.funcs[alg] = fn
}

func (r *HashRegistry) Get(alg HashAlgorithm) (HashFunction, bool) {
	fn, ok := r.funcs[alg]
	return fn, ok
}

func (r *HashRegistry) Supported(alg HashAlgorithm) bool {
	_, ok := r.funcs[alg]
	return ok
}

func (r *HashRegistry) Algorithms() []HashAlgorithm {
	algs := make([]HashAlgorithm, 0, len(r.funcs))
	for alg := range r.funcs {
		algs = append(algs, alg)
	}
	sort.Slice(algs, func(i, j int) bool { return algs[i] < algs[j] })
	return algs
}

// Verify reports whether secret hashes to hashedSecret under alg.
func (r *HashRegistry) Verify(alg HashAlgorithm, hashedSecret, secret []byte) bool {
	fn, ok := r.funcs[alg]
	if !ok || len(hashedSecret) == 0 {
		return false
	}
	return bytes.Equal(fn(secret), hashedSecret)
}
