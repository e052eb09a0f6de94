package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"slices"
)

// PublicKey represents a long-term public key used for authentication.
// Public keys double as client identifiers on the wire; the implementation
// uses Ed25519.
type PublicKey []byte

// NewPublicKeyFromBytes creates a PublicKey from a byte slice.
// The input data is copied to ensure immutability.
func NewPublicKeyFromBytes(data []byte) PublicKey {
	pk := make([]byte, len(data))
	copy(pk, data)
	return PublicKey(pk)
}

// NewPublicKeyFromString creates a PublicKey from a hex-encoded string.
func NewPublicKeyFromString(data string) (PublicKey, error) {
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return PublicKey{}, err
	}
	return NewPublicKeyFromBytes(rawBytes), nil
}

// Bytes returns the public key as a byte slice.
func (pk PublicKey) Bytes() []byte {
	return pk
}

// Equal compares two public keys in constant time.
func (pk PublicKey) Equal(other PublicKey) bool {
	return subtle.ConstantTimeCompare(pk, other) == 1
}

// String returns the hex encoding of the public key. Useful for logging and
// as a map key.
func (pk PublicKey) String() string {
	return hex.EncodeToString(pk)
}

// PrivateKey represents a long-term private key used for signing.
// The implementation uses Ed25519 private keys.
type PrivateKey []byte

// NewPrivateKeyFromBytes creates a PrivateKey from a byte slice.
// The input data is copied to ensure immutability.
func NewPrivateKeyFromBytes(data []byte) PrivateKey {
	sk := make([]byte, len(data))
	copy(sk, data)
	return PrivateKey(sk)
}

// Bytes returns the private key as a byte slice. This exposes sensitive key
// material and should be used carefully.
func (sk PrivateKey) Bytes() []byte {
	return sk
}

// PublicKey derives the public key corresponding to this private key.
// For Ed25519, the public key is contained within the private key structure.
func (sk PrivateKey) PublicKey() (PublicKey, error) {
	if len(sk) < ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return PublicKey(sk[32:]), nil
}

// GenerateKeyPair generates a new Ed25519 key pair for signing and
// verification.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PublicKey(publicKey), PrivateKey(privateKey), nil
}

// Signature represents an Ed25519 signature produced with a private key.
// Signatures authenticate registration, key-exchange, and submission
// messages from clients and committee members.
type Signature []byte

// NewSignature creates a Signature from a byte slice.
// The input data is copied to ensure immutability.
func NewSignature(data []byte) Signature {
	sig := make([]byte, len(data))
	copy(sig, data)
	return Signature(sig)
}

// Bytes returns the signature as a byte slice.
func (s Signature) Bytes() []byte {
	return []byte(s)
}

// Verify checks if this signature is valid for the given data and public key.
func (s Signature) Verify(publicKey PublicKey, data []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, s)
}

// String returns the hex encoding of the signature.
func (s Signature) String() string {
	return hex.EncodeToString(s.Bytes())
}

// Sign signs data with the given private key using Ed25519.
func Sign(privateKey PrivateKey, data []byte) (Signature, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	signature := ed25519.Sign(ed25519.PrivateKey(privateKey), data)
	return Signature(signature), nil
}

// SharedKey represents a Diffie-Hellman shared secret.
// Security: must always be derived from (never used as-is), and must carry
// at least 128 bits of entropy.
type SharedKey []byte

// NewSharedKey creates a SharedKey from a byte slice.
// The input data is copied to ensure immutability.
func NewSharedKey(data []byte) SharedKey {
	sk := make([]byte, len(data))
	copy(sk, data)
	return SharedKey(sk)
}

// Bytes returns a copy of the shared key.
func (sk SharedKey) Bytes() []byte {
	return slices.Clone(sk)
}
