package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveSharedSecretAgreement(t *testing.T) {
	alicePub, alicePriv, err := GenerateKemKeyPair()
	require.NoError(t, err)
	bobPub, bobPriv, err := GenerateKemKeyPair()
	require.NoError(t, err)

	info := []byte("test-info")
	s1, err := DeriveSharedSecret(alicePriv, bobPub, info)
	require.NoError(t, err)
	s2, err := DeriveSharedSecret(bobPriv, alicePub, info)
	require.NoError(t, err)

	require.Equal(t, s1.Bytes(), s2.Bytes())
}

func TestDeriveSharedSecretRejectsLowOrderKey(t *testing.T) {
	_, priv, err := GenerateKemKeyPair()
	require.NoError(t, err)

	var zero KemPublicKey
	_, err = DeriveSharedSecret(priv, zero, nil)
	require.ErrorIs(t, err, ErrMalformedValue)
}

func TestPairwiseRoundSeedSymmetric(t *testing.T) {
	shared := NewSharedKey([]byte("shared-secret-material"))

	s1 := PairwiseRoundSeed(shared, 3, 8, 42)
	s2 := PairwiseRoundSeed(shared, 3, 8, 42)
	require.Equal(t, s1, s2)

	// Different round, different seed.
	s3 := PairwiseRoundSeed(shared, 3, 8, 43)
	require.NotEqual(t, s1, s3)

	// Different pair, different seed.
	s4 := PairwiseRoundSeed(shared, 3, 9, 42)
	require.NotEqual(t, s1, s4)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	data := []byte("round 3 ephemeral key")
	sig, err := Sign(priv, data)
	require.NoError(t, err)
	require.True(t, sig.Verify(pub, data))
	require.False(t, sig.Verify(pub, []byte("tampered")))

	otherPub, _, err := GenerateKeyPair()
	require.NoError(t, err)
	require.False(t, sig.Verify(otherPub, data))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKemKeyPair()
	require.NoError(t, err)

	plaintext := []byte("seed share bundle")
	msg, err := Encrypt(pub, plaintext)
	require.NoError(t, err)

	decrypted, err := Decrypt(priv, msg)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)

	// Tampering must be detected by GCM.
	msg.Ciphertext[0] ^= 0xff
	_, err = Decrypt(priv, msg)
	require.Error(t, err)
}
