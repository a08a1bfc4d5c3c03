package attachments

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAndDecrypt(t *testing.T) {
	plaintext := []byte("the quick brown fox")
	ciphertext, key, digest, err := EncryptWithDigest(plaintext)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		got, err := VerifyAndDecrypt(ciphertext, key, digest)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	})

	t.Run("wrong digest", func(t *testing.T) {
		bad := sha256.Sum256([]byte("something else"))
		_, err := VerifyAndDecrypt(ciphertext, key, bad[:])
		assert.ErrorIs(t, err, ErrDigestMismatch)
	})

	t.Run("undecodable key", func(t *testing.T) {
		_, err := VerifyAndDecrypt(ciphertext, "%%%", digest)
		assert.ErrorContains(t, err, "decode attachment key")
	})

	t.Run("ciphertext shorter than nonce", func(t *testing.T) {
		short := []byte{1, 2, 3}
		sum := sha256.Sum256(short)
		_, err := VerifyAndDecrypt(short, key, sum[:])
		assert.ErrorContains(t, err, "too short")
	})
}
