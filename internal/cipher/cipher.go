package cipher

import (
	"errors"
	"fmt"

	"github.com/quietwire/mercury/internal/models"
)

// Cipher turns an encrypted envelope into decrypted content. The
// cryptographic protocol behind it is a collaborator concern; the
// dispatcher only depends on this contract and the two failure kinds
// below.
type Cipher interface {
	Decrypt(envelope *models.Envelope) (*models.Content, error)
}

// ProtocolError reports a protocol-level decryption failure. It carries
// the sender identity so a decrypt-failed placeholder can be recorded
// against the right conversation.
type ProtocolError struct {
	Sender       string
	SenderDevice int
	Err          error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol-invalid message from %s (device %d): %v", e.Sender, e.SenderDevice, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// MetadataError reports invalid envelope metadata. These envelopes are
// logged and dropped without a user-visible record.
type MetadataError struct {
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("invalid envelope metadata: %v", e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is a protocol-level decryption
// failure, returning the typed error when it is.
func IsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsMetadataError reports whether err is an envelope metadata failure.
func IsMetadataError(err error) bool {
	var me *MetadataError
	return errors.As(err, &me)
}
