package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/quietwire/mercury/internal/models"
)

// Box decrypts envelopes sealed with AES-GCM under the account's shared
// key. The ciphertext format is [nonce][encrypted_data][auth_tag] with
// the nonce prepended, and the plaintext is a JSON-encoded content
// object. Authentication failures surface as protocol-invalid errors
// bound to the envelope's source.
type Box struct {
	key []byte
}

// NewBox creates a Box with the given base64-encoded 32-byte key.
func NewBox(base64Key string) (*Box, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode envelope key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("envelope key must be 32 bytes (256 bits), got %d bytes", len(key))
	}

	return &Box{key: key}, nil
}

// Decrypt implements Cipher.
func (b *Box) Decrypt(envelope *models.Envelope) (*models.Content, error) {
	if envelope.Source == "" {
		return nil, &MetadataError{Err: errors.New("envelope has no source")}
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(envelope.Content) < nonceSize {
		return nil, &MetadataError{Err: errors.New("ciphertext too short")}
	}

	nonce, ciphertext := envelope.Content[:nonceSize], envelope.Content[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &ProtocolError{Sender: envelope.Source, SenderDevice: envelope.SourceDevice, Err: err}
	}

	var content models.Content
	if err := json.Unmarshal(plaintext, &content); err != nil {
		return nil, &ProtocolError{Sender: envelope.Source, SenderDevice: envelope.SourceDevice, Err: err}
	}

	if content.Sender == "" {
		content.Sender = envelope.Source
	}
	if content.SenderDevice == 0 {
		content.SenderDevice = envelope.SourceDevice
	}
	if content.Timestamp == 0 {
		content.Timestamp = envelope.Timestamp
	}

	return &content, nil
}

// Seal encrypts a content object into envelope ciphertext. Each call
// uses a random nonce, so the same content produces different
// ciphertexts. Used by tooling and tests; the inbound pipeline itself
// only decrypts.
func (b *Box) Seal(content *models.Content) ([]byte, error) {
	plaintext, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode content: %w", err)
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}
