package models

import "fmt"

// TransferState tracks an attachment's progress through the download
// state machine. Transitions are monotonic forward, except that a
// deferred or retried download may move between Pending and Started.
// Failed and Done are terminal for an attempt cycle; only an explicit
// manual retry moves Failed back to Started.
type TransferState int

const (
	TransferStatePending TransferState = iota
	TransferStateStarted
	TransferStateDone
	TransferStateFailed
)

func (s TransferState) String() string {
	switch s {
	case TransferStatePending:
		return "pending"
	case TransferStateStarted:
		return "started"
	case TransferStateDone:
		return "done"
	case TransferStateFailed:
		return "failed"
	default:
		return fmt.Sprintf("transfer_state(%d)", int(s))
	}
}

// AttachmentID is the composite key identifying a stored-but-not-yet-
// fetched attachment. It is stable across retries of the same logical
// attachment.
type AttachmentID struct {
	RowID    int64
	UniqueID int64
}

func (id AttachmentID) String() string {
	return fmt.Sprintf("(%d, %d)", id.RowID, id.UniqueID)
}

// AttachmentPointer is the remote location of an attachment as carried
// inside a decrypted message, before a local placeholder row exists.
// Key and Digest are absent for open/unauthenticated sources, in which
// case the content is fetched but not verified or decrypted.
type AttachmentPointer struct {
	Location    string `json:"location"`
	Key         string `json:"key,omitempty"`
	Digest      []byte `json:"digest,omitempty"`
	Size        int64  `json:"size,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Attachment is a stored attachment placeholder awaiting (or holding)
// its downloaded content.
type Attachment struct {
	ID            AttachmentID
	MessageID     int64
	Location      string
	Key           string
	Digest        []byte
	Size          int64
	FileName      string
	ContentType   string
	TransferState TransferState
}

// InProgress reports whether the attachment still awaits a download
// outcome for the current attempt cycle.
func (a *Attachment) InProgress() bool {
	return a.TransferState == TransferStatePending || a.TransferState == TransferStateStarted
}
