package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietwire/mercury/internal/models"
)

func TestMediaMessageSchedulesDownloads(t *testing.T) {
	f := newFixture(t)
	content := textContent(1000, "look at this")
	content.DataMessage.Attachments = []models.AttachmentPointer{
		{Location: "https://files.example.com/a", Key: "a2V5", Digest: []byte{1}},
		{Location: "https://files.example.com/b", Key: "a2V5", Digest: []byte{2}},
	}

	// The fake storage does not materialize placeholder rows, so wire
	// them up by hand under the message id the insert will produce.
	f.cipher.content = content
	require.NoError(t, f.d.ProcessEnvelope(context.Background(), testEnvelope(1000), false))

	require.Len(t, f.store.incoming, 1)
	require.Len(t, f.store.incoming[0].Attachments, 2)

	// Re-run against storage that reports pending placeholders to check
	// the scheduling path itself.
	f2 := newFixture(t)
	f2.store.attachments[2] = []*models.Attachment{
		{ID: models.AttachmentID{RowID: 1, UniqueID: 2000}, TransferState: models.TransferStatePending},
		{ID: models.AttachmentID{RowID: 2, UniqueID: 2000}, TransferState: models.TransferStateDone},
	}
	media := textContent(2000, "media")
	media.DataMessage.Attachments = content.DataMessage.Attachments
	f2.process(t, media, 2000)

	assert.Equal(t, []string{"AttachmentDownload"}, f2.runner.factoryKeys(),
		"only pending placeholders get a download job")
}

func TestMediaMessageDuplicateSkipped(t *testing.T) {
	f := newFixture(t)
	media := textContent(1000, "media")
	media.DataMessage.Attachments = []models.AttachmentPointer{{Location: "https://x.example.com/a"}}
	f.process(t, media, 1000)
	require.Len(t, f.store.incoming, 1)

	// Same timestamp and conversation through a fresh window.
	f2 := newFixture(t)
	f2.store = f.store
	f2.d = New(Deps{
		Store: f.store, Cipher: f2.cipher, Runner: f2.runner, Notifier: f2.notifier,
		Prefs: f2.prefs, Account: f2.account, Sender: f2.sender,
	})
	f2.process(t, media, 1000)

	assert.Len(t, f.store.incoming, 1)
}

func TestMediaMessageWithoutVisibleContentDropped(t *testing.T) {
	t.Run("quote only", func(t *testing.T) {
		f := newFixture(t)
		content := textContent(1000, "")
		content.DataMessage.Quote = &models.Quote{ID: 500, Author: otherKey, Text: "earlier"}

		f.process(t, content, 1000)

		assert.Empty(t, f.store.incoming)
	})

	t.Run("shared contacts only in a sync echo", func(t *testing.T) {
		f := newFixture(t)
		content := &models.Content{
			Sender:    localKey,
			Timestamp: 1000,
			DataMessage: &models.DataMessage{
				Timestamp:  1000,
				SyncTarget: otherKey,
				Contacts:   []models.SharedContact{{Name: "Ada"}},
			},
		}

		f.process(t, content, 1000)

		assert.Empty(t, f.store.outgoing)
	})

	t.Run("discarded preview does not count as content", func(t *testing.T) {
		f := newFixture(t)
		content := textContent(1000, "")
		// The URL does not appear in the (empty) body, so validation
		// discards the preview and nothing renderable remains.
		content.DataMessage.Previews = []models.Preview{{URL: "https://example.com", Title: "t"}}

		f.process(t, content, 1000)

		assert.Empty(t, f.store.incoming)
	})
}

func TestExpirationUpdateInbound(t *testing.T) {
	f := newFixture(t)
	content := &models.Content{
		Sender:       senderKey,
		SenderDevice: 1,
		Timestamp:    1000,
		DataMessage: &models.DataMessage{
			Timestamp:        1000,
			ExpiresInSeconds: 86400,
			ExpirationUpdate: true,
		},
	}

	f.process(t, content, 1000)

	require.Len(t, f.store.incoming, 1)
	assert.True(t, f.store.incoming[0].ExpirationUpdate)
	assert.Equal(t, 86400, f.store.incoming[0].ExpiresInSeconds)
	assert.Equal(t, 86400, f.store.expireSeconds[models.AddressFromKey(senderKey)])
	assert.Len(t, f.notifier.threadUpdates, 1)
}

func TestExpirationUpdateSync(t *testing.T) {
	f := newFixture(t)
	content := &models.Content{
		Sender:    localKey,
		Timestamp: 1000,
		DataMessage: &models.DataMessage{
			Timestamp:        1000,
			ExpiresInSeconds: 3600,
			ExpirationUpdate: true,
			SyncTarget:       otherKey,
		},
	}

	f.process(t, content, 1000)

	assert.Empty(t, f.store.incoming)
	require.Len(t, f.store.outgoing, 1)
	assert.True(t, f.store.outgoing[0].ExpirationUpdate)
	assert.Equal(t, models.AddressFromKey(otherKey), f.store.outgoing[0].To)
	assert.Equal(t, 3600, f.store.expireSeconds[models.AddressFromKey(otherKey)])
}

func TestExpirationTimerReconciledFromOrdinaryMessage(t *testing.T) {
	// A plain message sent under a different timer implies the sender
	// changed it out of band; the conversation timer follows.
	f := newFixture(t)
	address := models.AddressFromKey(senderKey)
	f.store.recipients[address] = &models.Recipient{Address: address, ExpireMessages: 0}

	content := textContent(1000, "hi")
	content.DataMessage.ExpiresInSeconds = 60

	f.process(t, content, 1000)

	assert.Equal(t, 60, f.store.expireSeconds[address])
	require.NotEmpty(t, f.store.incoming)
	assert.True(t, f.store.incoming[0].ExpirationUpdate)
}

func TestExpirationTimerUnchangedWhenMatching(t *testing.T) {
	f := newFixture(t)
	address := models.AddressFromKey(senderKey)
	f.store.recipients[address] = &models.Recipient{Address: address, ExpireMessages: 60}

	content := textContent(1000, "hi")
	content.DataMessage.ExpiresInSeconds = 60

	f.process(t, content, 1000)

	require.Len(t, f.store.incoming, 1)
	assert.False(t, f.store.incoming[0].ExpirationUpdate)
	assert.Equal(t, "hi", f.store.incoming[0].Body)
}

func TestExpirationTimerNotReconciledFromMediaMessage(t *testing.T) {
	// Only plain text messages reconcile the timer; media messages carry
	// their expiry without touching the conversation setting.
	f := newFixture(t)
	address := models.AddressFromKey(senderKey)
	f.store.recipients[address] = &models.Recipient{Address: address, ExpireMessages: 0}

	media := textContent(1000, "photo")
	media.DataMessage.ExpiresInSeconds = 60
	media.DataMessage.Attachments = []models.AttachmentPointer{{Location: "https://x.example.com/a"}}

	f.process(t, media, 1000)

	require.Len(t, f.store.incoming, 1)
	assert.False(t, f.store.incoming[0].ExpirationUpdate)
	assert.NotContains(t, f.store.expireSeconds, address)
}

func TestInboundInsertRecordsOriginalThread(t *testing.T) {
	f := newFixture(t)
	f.process(t, textContent(1000, "hello"), 1000)

	threadID, ok, err := f.store.ThreadFor(context.Background(), models.AddressFromKey(senderKey))
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, f.store.originalThreads, 1)
	for _, original := range f.store.originalThreads {
		assert.Equal(t, threadID, original)
	}
}

func TestSyncMessageRecordsOriginalThread(t *testing.T) {
	f := newFixture(t)

	// The sender already has a thread of their own before the sync echo
	// retargets to a different conversation.
	senderThread, err := f.store.GetOrCreateThread(context.Background(), models.AddressFromKey(localKey))
	require.NoError(t, err)

	content := &models.Content{
		Sender:    localKey,
		Timestamp: 1000,
		DataMessage: &models.DataMessage{
			Body:       "echo",
			Timestamp:  1000,
			SyncTarget: otherKey,
		},
	}
	f.process(t, content, 1000)

	require.Len(t, f.store.outgoing, 1)
	require.Len(t, f.store.originalThreads, 1)
	for _, threadID := range f.store.originalThreads {
		assert.Equal(t, senderThread, threadID)
	}
}

func TestQuoteValidation(t *testing.T) {
	t.Run("original found replaces quote text", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.InsertIncoming(context.Background(), &models.IncomingMessage{
			From:          models.AddressFromKey(otherKey),
			SentTimestamp: 500,
			Body:          "the actual words",
		})
		require.NoError(t, err)

		quote, err := f.d.validatedQuote(context.Background(), textContent(1000, "x"), &models.Quote{
			ID:     500,
			Author: otherKey,
			Text:   "doctored words",
		})
		require.NoError(t, err)
		assert.Equal(t, "the actual words", quote.Text)
	})

	t.Run("missing original kept as sent", func(t *testing.T) {
		f := newFixture(t)
		quote, err := f.d.validatedQuote(context.Background(), textContent(1000, "x"), &models.Quote{
			ID:     500,
			Author: otherKey,
			Text:   "as sent",
		})
		require.NoError(t, err)
		assert.Equal(t, "as sent", quote.Text)
	})

	t.Run("nil quote passes through", func(t *testing.T) {
		f := newFixture(t)
		quote, err := f.d.validatedQuote(context.Background(), textContent(1000, "x"), nil)
		require.NoError(t, err)
		assert.Nil(t, quote)
	})
}

func TestConfigurationMessage(t *testing.T) {
	t.Run("self-originated applies profile", func(t *testing.T) {
		f := newFixture(t)
		key := make([]byte, 32)
		f.process(t, &models.Content{
			Sender:        localKey,
			Timestamp:     1000,
			Configuration: &models.ConfigurationMessage{DisplayName: "Me", ProfileKey: key},
		}, 1000)

		assert.Equal(t, "Me", f.account.displayName)
		assert.Equal(t, key, f.account.profileKey)
	})

	t.Run("foreign sender dropped", func(t *testing.T) {
		f := newFixture(t)
		f.process(t, &models.Content{
			Sender:        senderKey,
			Timestamp:     1000,
			Configuration: &models.ConfigurationMessage{DisplayName: "Mallory"},
		}, 1000)

		assert.Empty(t, f.account.displayName)
	})

	t.Run("storage failure becomes placeholder", func(t *testing.T) {
		f := newFixture(t)
		f.account.updateErr = errors.New("db gone")

		f.process(t, &models.Content{
			Sender:        localKey,
			Timestamp:     1000,
			Configuration: &models.ConfigurationMessage{DisplayName: "Me"},
		}, 1000)

		require.Len(t, f.store.incoming, 1)
		assert.Len(t, f.store.decryptFailed, 1)
	})
}
