package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddress(t *testing.T) {
	t.Run("group round trip", func(t *testing.T) {
		groupID := []byte{0xde, 0xad, 0xbe, 0xef}
		addr := GroupAddress(groupID)

		assert.True(t, addr.IsGroup())
		assert.False(t, addr.IsContact())
		assert.Equal(t, groupID, addr.GroupID())
	})

	t.Run("contact", func(t *testing.T) {
		addr := AddressFromKey("05abcd")

		assert.True(t, addr.IsContact())
		assert.False(t, addr.IsGroup())
		assert.Nil(t, addr.GroupID())
		assert.Equal(t, "05abcd", addr.String())
	})

	t.Run("corrupt group id yields nil", func(t *testing.T) {
		addr := Address("group!nothex")
		assert.True(t, addr.IsGroup())
		assert.Nil(t, addr.GroupID())
	})
}

func TestDataMessagePredicates(t *testing.T) {
	t.Run("media detection", func(t *testing.T) {
		assert.False(t, (&DataMessage{Body: "plain"}).IsMediaMessage())
		assert.True(t, (&DataMessage{Attachments: []AttachmentPointer{{}}}).IsMediaMessage())
		assert.True(t, (&DataMessage{Quote: &Quote{}}).IsMediaMessage())
		assert.True(t, (&DataMessage{Contacts: []SharedContact{{}}}).IsMediaMessage())
		assert.True(t, (&DataMessage{Previews: []Preview{{}}}).IsMediaMessage())
	})

	t.Run("group context", func(t *testing.T) {
		plain := &DataMessage{}
		assert.False(t, plain.IsGroupMessage())

		update := &DataMessage{Group: &GroupContext{Type: GroupContextUpdate}}
		assert.True(t, update.IsGroupMessage())
		assert.True(t, update.IsGroupUpdate())
		assert.False(t, update.IsGroupQuit())

		quit := &DataMessage{Group: &GroupContext{Type: GroupContextQuit}}
		assert.True(t, quit.IsGroupQuit())
	})
}

func TestAttachmentInProgress(t *testing.T) {
	assert.True(t, (&Attachment{TransferState: TransferStatePending}).InProgress())
	assert.True(t, (&Attachment{TransferState: TransferStateStarted}).InProgress())
	assert.False(t, (&Attachment{TransferState: TransferStateDone}).InProgress())
	assert.False(t, (&Attachment{TransferState: TransferStateFailed}).InProgress())
}
