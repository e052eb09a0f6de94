package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// EncryptedMessage contains ECIES-encrypted data.
// Format: ephemeral X25519 pubkey (32 bytes) || nonce (12 bytes) || ciphertext+tag
type EncryptedMessage struct {
	EphemeralPubKey []byte `json:"ephemeral_pub_key"`
	Nonce           []byte `json:"nonce"`
	Ciphertext      []byte `json:"ciphertext"`
}

// Encrypt encrypts plaintext to a recipient's X25519 public key using ECIES:
// ephemeral key agreement, SHA3-based KDF, and AES-256-GCM authenticated
// encryption. Used to deliver seed shares to committee members so the
// aggregator relaying them learns nothing.
func Encrypt(recipientPubKey KemPublicKey, plaintext []byte) (*EncryptedMessage, error) {
	ephemeralPub, ephemeralPriv, err := GenerateKemKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	sharedSecret, err := DeriveSharedSecret(ephemeralPriv, recipientPubKey, []byte("ltd-ecies-v1"))
	if err != nil {
		return nil, fmt.Errorf("key agreement: %w", err)
	}

	aesKey := deriveAESKey(sharedSecret)

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// Additional data binds the ciphertext to the ephemeral key.
	ciphertext := gcm.Seal(nil, nonce, plaintext, ephemeralPub.Bytes())

	return &EncryptedMessage{
		EphemeralPubKey: ephemeralPub.Bytes(),
		Nonce:           nonce,
		Ciphertext:      ciphertext,
	}, nil
}

// Decrypt decrypts an ECIES-encrypted message using the recipient's private
// key.
func Decrypt(recipientPrivKey KemPrivateKey, msg *EncryptedMessage) ([]byte, error) {
	ephemeralPub, err := NewKemPublicKeyFromBytes(msg.EphemeralPubKey)
	if err != nil {
		return nil, err
	}

	sharedSecret, err := DeriveSharedSecret(recipientPrivKey, ephemeralPub, []byte("ltd-ecies-v1"))
	if err != nil {
		return nil, fmt.Errorf("key agreement: %w", err)
	}

	aesKey := deriveAESKey(sharedSecret)

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	if len(msg.Nonce) != gcm.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}

	plaintext, err := gcm.Open(nil, msg.Nonce, msg.Ciphertext, msg.EphemeralPubKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}

func deriveAESKey(sharedSecret []byte) []byte {
	h := sha3.New256()
	h.Write([]byte("ltd-ecies-key-v1"))
	h.Write(sharedSecret)
	return h.Sum(nil)
}
