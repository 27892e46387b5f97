package encryption

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor([]byte("a-sufficiently-long-master-secret"), "contact.phone")
	require.NoError(t, err)

	plaintext := "+15551234567"
	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	got, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestEmptyPlaintextRoundTrip(t *testing.T) {
	enc, err := NewEncryptor([]byte("a-sufficiently-long-master-secret"), "contact.email")
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("")
	require.NoError(t, err)
	require.Empty(t, ciphertext)

	got, err := enc.Decrypt("")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDifferentPurposesDeriveDifferentKeys(t *testing.T) {
	secret := []byte("a-sufficiently-long-master-secret")
	encA, err := NewEncryptor(secret, "contact.phone")
	require.NoError(t, err)
	encB, err := NewEncryptor(secret, "contact.email")
	require.NoError(t, err)

	ciphertext, err := encA.Encrypt("secret-value")
	require.NoError(t, err)

	_, err = encB.Decrypt(ciphertext)
	require.Error(t, err, "expected decryption under a different purpose key to fail")
}

func TestDecryptRejectsTruncatedCiphertext(t *testing.T) {
	enc, err := NewEncryptor([]byte("a-sufficiently-long-master-secret"), "contact.phone")
	require.NoError(t, err)

	_, err = enc.Decrypt("dG9vc2hvcnQ=")
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}
