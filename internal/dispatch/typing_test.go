package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietwire/mercury/internal/models"
)

func typingContent(ts int64, action models.TypingAction) *models.Content {
	return &models.Content{
		Sender:       senderKey,
		SenderDevice: 1,
		Timestamp:    ts,
		Typing:       &models.TypingMessage{Timestamp: ts, Action: action},
	}
}

func TestTypingMessage(t *testing.T) {
	t.Run("started and stopped update the repository", func(t *testing.T) {
		f := newFixture(t)
		threadID, err := f.store.GetOrCreateThread(context.Background(), models.AddressFromKey(senderKey))
		require.NoError(t, err)

		f.process(t, typingContent(1000, models.TypingStarted), 1000)
		assert.Equal(t, []string{senderKey}, f.d.Typing().Typists(threadID))

		f.process(t, typingContent(1001, models.TypingStopped), 1001)
		assert.Empty(t, f.d.Typing().Typists(threadID))
	})

	t.Run("dropped when indicators disabled", func(t *testing.T) {
		f := newFixture(t)
		threadID, err := f.store.GetOrCreateThread(context.Background(), models.AddressFromKey(senderKey))
		require.NoError(t, err)
		f.prefs.typingIndicators = false

		f.process(t, typingContent(1000, models.TypingStarted), 1000)
		assert.Empty(t, f.d.Typing().Typists(threadID))
	})

	t.Run("creates the thread for a new sender", func(t *testing.T) {
		f := newFixture(t)

		f.process(t, typingContent(1000, models.TypingStarted), 1000)

		threadID, ok, err := f.store.ThreadFor(context.Background(), models.AddressFromKey(senderKey))
		require.NoError(t, err)
		require.True(t, ok, "typing resolves or creates the author's thread")
		assert.Equal(t, []string{senderKey}, f.d.Typing().Typists(threadID))
	})

	t.Run("incoming message clears the sender's indicator", func(t *testing.T) {
		f := newFixture(t)
		f.process(t, textContent(1000, "hello"), 1000)

		threadID, ok, err := f.store.ThreadFor(context.Background(), models.AddressFromKey(senderKey))
		require.NoError(t, err)
		require.True(t, ok)

		f.process(t, typingContent(1001, models.TypingStarted), 1001)
		require.Equal(t, []string{senderKey}, f.d.Typing().Typists(threadID))

		f.process(t, textContent(1002, "done typing"), 1002)
		assert.Empty(t, f.d.Typing().Typists(threadID))
	})
}

func TestTypingRepository(t *testing.T) {
	t.Run("distinct devices are distinct typists", func(t *testing.T) {
		r := NewTypingRepository(nil)
		r.Started(1, senderKey, 1)
		r.Started(1, senderKey, 2)

		assert.Len(t, r.Typists(1), 2)

		r.Stopped(1, senderKey, 1)
		assert.Len(t, r.Typists(1), 1)
	})

	t.Run("stop for unknown typist is a no-op", func(t *testing.T) {
		r := NewTypingRepository(nil)
		r.Stopped(1, senderKey, 1)
		assert.Empty(t, r.Typists(1))
	})

	t.Run("notifies on changes", func(t *testing.T) {
		var mu sync.Mutex
		var changed []int64
		done := make(chan struct{}, 4)
		r := NewTypingRepository(func(threadID int64) {
			mu.Lock()
			changed = append(changed, threadID)
			mu.Unlock()
			done <- struct{}{}
		})

		r.Started(7, senderKey, 1)
		r.Stopped(7, senderKey, 1)

		for i := 0; i < 2; i++ {
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for typing notification")
			}
		}

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []int64{7, 7}, changed)
	})

	t.Run("refreshing an active typist does not re-notify", func(t *testing.T) {
		notifications := make(chan int64, 4)
		r := NewTypingRepository(func(threadID int64) { notifications <- threadID })

		r.Started(1, senderKey, 1)
		r.Started(1, senderKey, 1)

		select {
		case <-notifications:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for first notification")
		}
		select {
		case <-notifications:
			t.Fatal("refresh must not notify again")
		case <-time.After(50 * time.Millisecond):
		}
	})
}
