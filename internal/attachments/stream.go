package attachments

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrDigestMismatch is returned when fetched bytes do not hash to the
// integrity digest carried with the attachment. The content is
// discarded and the failure is terminal.
var ErrDigestMismatch = errors.New("attachment digest mismatch")

// VerifyAndDecrypt checks ciphertext against its SHA-256 integrity
// digest and then decrypts it with AES-GCM under the base64-encoded
// per-attachment key. The ciphertext format is
// [nonce][encrypted_data][auth_tag] with the nonce prepended.
func VerifyAndDecrypt(ciphertext []byte, base64Key string, digest []byte) ([]byte, error) {
	sum := sha256.Sum256(ciphertext)
	if subtle.ConstantTimeCompare(sum[:], digest) != 1 {
		return nil, ErrDigestMismatch
	}

	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("attachment ciphertext too short")
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt attachment: %w", err)
	}

	return plaintext, nil
}

// EncryptWithDigest seals plaintext under a fresh 32-byte key and
// returns (ciphertext, base64 key, digest). Used by upload tooling and
// tests; the inbound pipeline itself only decrypts.
func EncryptWithDigest(plaintext []byte) (ciphertext []byte, base64Key string, digest []byte, err error) {
	key := make([]byte, 32)
	if _, err = io.ReadFull(rand.Reader, key); err != nil {
		return nil, "", nil, fmt.Errorf("failed to generate key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, "", nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nonce, nonce, plaintext, nil)
	sum := sha256.Sum256(ciphertext)
	return ciphertext, base64.StdEncoding.EncodeToString(key), sum[:], nil
}
