package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// SeedSize is the size of a masking seed in bytes (128-bit security).
const SeedSize = 16

// Seed is the key material a mask vector is expanded from. Self-mask seeds
// are sampled fresh each round; pairwise seeds are derived from shared
// secrets via PairwiseRoundSeed.
type Seed [SeedSize]byte

// NewRandomSeed samples a fresh random seed.
func NewRandomSeed() (Seed, error) {
	var seed Seed
	_, err := rand.Read(seed[:])
	return seed, err
}

// Bytes returns the seed as a byte slice.
func (s Seed) Bytes() []byte {
	out := make([]byte, SeedSize)
	copy(out, s[:])
	return out
}

// NewSeedFromBytes parses a seed from a byte slice.
func NewSeedFromBytes(data []byte) (Seed, error) {
	var seed Seed
	if len(data) != SeedSize {
		return seed, ErrMalformedValue
	}
	copy(seed[:], data)
	return seed, nil
}

// ExpandMask expands a seed into a mask vector of the given length over the
// field. The AES-CTR keystream is keyed by SHA3-256(label || round || seed),
// so the output is reproducible only by the seed holder and bound to the
// round index.
func ExpandMask(seed Seed, round uint64, f *Field, length int) Vector {
	roundBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(roundBuf, round)

	h := sha3.New256()
	h.Write([]byte("ltd-mask-expand-v1"))
	h.Write(roundBuf)
	h.Write(seed[:])
	key := h.Sum(nil)

	block, err := aes.NewCipher(key[:16])
	if err != nil {
		panic(err.Error())
	}

	iv := make([]byte, aes.BlockSize)
	stream := cipher.NewCTR(block, iv)

	// Each element reduces 16 extra keystream bytes, keeping the modulo
	// bias below 2^-128.
	chunk := f.ElementBytes() + 16
	keystream := make([]byte, chunk*length)
	stream.XORKeyStream(keystream, keystream)

	mask := make(Vector, length)
	for i := 0; i < length; i++ {
		el := new(big.Int).SetBytes(keystream[i*chunk : (i+1)*chunk])
		mask[i] = el.Mod(el, f.order)
	}
	return mask
}
