package dispatch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/quietwire/mercury/internal/models"
)

// typingTimeout is how long a typing indicator stays up without a
// refreshing started event.
const typingTimeout = 15 * time.Second

// handleTypingMessage updates the ephemeral typing indicator for the
// sender's thread, creating the thread when the sender is new. Typing
// events are never persisted; they only touch the in-memory repository,
// and only when the feature is enabled.
func (d *Dispatcher) handleTypingMessage(ctx context.Context, content *models.Content) error {
	if !d.prefs.TypingIndicatorsEnabled() {
		return nil
	}

	threadID, err := d.store.GetOrCreateThread(ctx, d.masterAddress(content.Sender))
	if err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}

	switch content.Typing.Action {
	case models.TypingStarted:
		d.typing.Started(threadID, content.Sender, content.SenderDevice)
	case models.TypingStopped:
		d.typing.Stopped(threadID, content.Sender, content.SenderDevice)
	default:
		log.Printf("dispatch: unknown typing action %d from %s", content.Typing.Action, content.Sender)
	}
	return nil
}

type typist struct {
	sender string
	device int
}

// TypingRepository tracks who is currently typing in which thread. It
// is purely in-memory; indicators expire on a timeout when no stop
// event arrives.
type TypingRepository struct {
	mu      sync.Mutex
	typists map[int64]map[typist]*time.Timer

	// onChange, when non-nil, fires after the typist set of a thread
	// changes.
	onChange func(threadID int64)
}

// NewTypingRepository creates an empty repository. onChange may be nil.
func NewTypingRepository(onChange func(threadID int64)) *TypingRepository {
	return &TypingRepository{
		typists:  make(map[int64]map[typist]*time.Timer),
		onChange: onChange,
	}
}

// Started records a typing-started event, refreshing the expiry timer
// when the typist is already known.
func (r *TypingRepository) Started(threadID int64, sender string, device int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := typist{sender: sender, device: device}
	byThread, ok := r.typists[threadID]
	if !ok {
		byThread = make(map[typist]*time.Timer)
		r.typists[threadID] = byThread
	}

	if timer, ok := byThread[key]; ok {
		timer.Reset(typingTimeout)
		return
	}

	byThread[key] = time.AfterFunc(typingTimeout, func() {
		r.Stopped(threadID, sender, device)
	})
	r.notify(threadID)
}

// Stopped removes a typist from a thread.
func (r *TypingRepository) Stopped(threadID int64, sender string, device int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := typist{sender: sender, device: device}
	byThread, ok := r.typists[threadID]
	if !ok {
		return
	}
	timer, ok := byThread[key]
	if !ok {
		return
	}
	timer.Stop()
	delete(byThread, key)
	if len(byThread) == 0 {
		delete(r.typists, threadID)
	}
	r.notify(threadID)
}

// Typists returns the sender keys currently typing in a thread.
func (r *TypingRepository) Typists(threadID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	senders := make([]string, 0, len(r.typists[threadID]))
	for key := range r.typists[threadID] {
		senders = append(senders, key.sender)
	}
	return senders
}

// notify is called with the lock held; the callback runs on its own
// goroutine so a slow consumer cannot stall typing updates.
func (r *TypingRepository) notify(threadID int64) {
	if r.onChange != nil {
		go r.onChange(threadID)
	}
}
