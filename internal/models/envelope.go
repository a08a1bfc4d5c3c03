package models

// EnvelopeType describes how the envelope payload was sealed by the
// sending device.
type EnvelopeType int

const (
	EnvelopeTypeSessionMessage EnvelopeType = iota
	EnvelopeTypeClosedGroupMessage
)

// Envelope is the encrypted wire payload plus routing metadata, as
// delivered by the transport and before decryption. Envelopes are stored
// durably and consumed exactly once by the dispatcher; an envelope is
// retained for replay only while a local migration is pending.
type Envelope struct {
	ID           int64
	Type         EnvelopeType
	Source       string
	SourceDevice int
	Timestamp    int64
	Content      []byte
}
