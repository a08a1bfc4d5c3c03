package testutil

import (
	"encoding/base64"
	"testing"

	"github.com/quietwire/mercury/internal/cipher"
)

// GetTestBox creates an envelope cipher with a deterministic key for testing.
func GetTestBox(t *testing.T) *cipher.Box {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	box, err := cipher.NewBox(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("create cipher: %v", err)
	}
	return box
}
