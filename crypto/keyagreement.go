package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// KemPublicKey represents an ephemeral public key for key agreement.
type KemPublicKey [32]byte

// KemPrivateKey represents an ephemeral private key for key agreement.
type KemPrivateKey [32]byte

// Bytes returns the public key as a byte slice.
func (pk KemPublicKey) Bytes() []byte {
	out := make([]byte, len(pk))
	copy(out, pk[:])
	return out
}

// NewKemPublicKeyFromBytes parses a 32-byte X25519 public key.
func NewKemPublicKeyFromBytes(data []byte) (KemPublicKey, error) {
	var pk KemPublicKey
	if len(data) != len(pk) {
		return pk, fmt.Errorf("%w: ephemeral public key must be %d bytes", ErrMalformedValue, len(pk))
	}
	copy(pk[:], data)
	return pk, nil
}

// GenerateKemKeyPair generates a new X25519 key pair for per-round key
// exchange.
func GenerateKemKeyPair() (KemPublicKey, KemPrivateKey, error) {
	var privKey KemPrivateKey
	var pubKey KemPublicKey

	if _, err := rand.Read(privKey[:]); err != nil {
		return pubKey, privKey, err
	}

	curve25519.ScalarBaseMult((*[32]byte)(&pubKey), (*[32]byte)(&privKey))
	return pubKey, privKey, nil
}

// DeriveSharedSecret performs X25519 key agreement and derives a shared
// secret via HKDF-SHA256. Low-order peer keys producing an all-zero shared
// point are rejected with ErrMalformedValue.
func DeriveSharedSecret(privateKey KemPrivateKey, publicKey KemPublicKey, info []byte) (SharedKey, error) {
	sharedPoint, err := curve25519.X25519(privateKey[:], publicKey[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedValue, err)
	}

	kdf := hkdf.New(sha256.New, sharedPoint, nil, info)
	secret := make([]byte, 32)
	if _, err := kdf.Read(secret); err != nil {
		return nil, err
	}

	return SharedKey(secret), nil
}

// PairwiseRoundSeed derives the per-round pairwise masking seed for a pair of
// clients from their shared secret. Both sides compute the same seed: the
// lower client id always comes first in the hash input, and the round index
// binds the seed to a single round.
func PairwiseRoundSeed(shared SharedKey, loID, hiID uint64, round uint64) Seed {
	buf := make([]byte, 8*3)
	binary.BigEndian.PutUint64(buf[0:8], loID)
	binary.BigEndian.PutUint64(buf[8:16], hiID)
	binary.BigEndian.PutUint64(buf[16:24], round)

	h := sha3.New256()
	h.Write([]byte("ltd-pairwise-seed-v1"))
	h.Write(buf)
	h.Write(shared)

	var seed Seed
	copy(seed[:], h.Sum(nil)[:SeedSize])
	return seed
}
