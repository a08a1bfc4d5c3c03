package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietwire/mercury/internal/attachments"
	"github.com/quietwire/mercury/internal/cipher"
	"github.com/quietwire/mercury/internal/jobs"
	"github.com/quietwire/mercury/internal/models"
)

var (
	localKey    = "05" + strings.Repeat("ab", 32)
	senderKey   = "05" + strings.Repeat("cd", 32)
	otherKey    = "05" + strings.Repeat("ef", 32)
	testGroupID = []byte{0xde, 0xad, 0xbe, 0xef}
)

type msgKey struct {
	ts   int64
	addr models.Address
}

type receiptCall struct {
	address    models.Address
	timestamps []int64
	at         int64
}

// fakeStorage is an in-memory Storage that records every mutation.
type fakeStorage struct {
	mu sync.Mutex

	nextID  int64
	threads map[models.Address]int64

	incoming []*models.IncomingMessage
	outgoing []*models.OutgoingMessage
	stored   map[msgKey]*models.StoredMessage

	recipients  map[models.Address]*models.Recipient
	groups      map[models.Address]*models.Group
	envelopes   map[int64]*models.Envelope
	nextEnvID   int64
	attachments map[int64][]*models.Attachment

	decryptFailed    []int64
	deletedMessages  []int64
	deletedEnvelopes []int64
	serverIDs        map[int64]int64
	originalThreads  map[int64]int64
	expireSeconds    map[models.Address]int
	profileKeys      map[models.Address][]byte
	fallbackSet      map[models.Address]bool

	deliveryReceipts []receiptCall
	readReceipts     []receiptCall

	// insertIncomingErr fails the next InsertIncoming call, then clears.
	insertIncomingErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		threads:         make(map[models.Address]int64),
		stored:          make(map[msgKey]*models.StoredMessage),
		recipients:      make(map[models.Address]*models.Recipient),
		groups:          make(map[models.Address]*models.Group),
		envelopes:       make(map[int64]*models.Envelope),
		attachments:     make(map[int64][]*models.Attachment),
		serverIDs:       make(map[int64]int64),
		originalThreads: make(map[int64]int64),
		expireSeconds:   make(map[models.Address]int),
		profileKeys:     make(map[models.Address][]byte),
		fallbackSet:     make(map[models.Address]bool),
	}
}

func (s *fakeStorage) threadLocked(address models.Address) int64 {
	if id, ok := s.threads[address]; ok {
		return id
	}
	s.nextID++
	s.threads[address] = s.nextID
	return s.nextID
}

func (s *fakeStorage) InsertIncoming(_ context.Context, msg *models.IncomingMessage) (*models.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertIncomingErr != nil {
		err := s.insertIncomingErr
		s.insertIncomingErr = nil
		return nil, err
	}

	address := msg.From
	if msg.Group != nil {
		address = models.GroupAddress(msg.Group.ID)
	}
	threadID := s.threadLocked(address)
	s.nextID++
	id := s.nextID

	s.incoming = append(s.incoming, msg)
	s.stored[msgKey{ts: msg.SentTimestamp, addr: address}] = &models.StoredMessage{
		ID: id, ThreadID: threadID, Address: address, SentAt: msg.SentTimestamp, Body: msg.Body,
	}
	return &models.InsertResult{MessageID: id, ThreadID: threadID}, nil
}

func (s *fakeStorage) InsertOutgoing(_ context.Context, msg *models.OutgoingMessage, threadID int64) (*models.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	address := msg.To
	if threadID <= 0 {
		threadID = s.threadLocked(address)
	}
	s.nextID++
	id := s.nextID

	s.outgoing = append(s.outgoing, msg)
	s.stored[msgKey{ts: msg.SentTimestamp, addr: address}] = &models.StoredMessage{
		ID: id, ThreadID: threadID, Address: address, SentAt: msg.SentTimestamp, Body: msg.Body, Outgoing: true,
	}
	return &models.InsertResult{MessageID: id, ThreadID: threadID}, nil
}

func (s *fakeStorage) FindMessage(_ context.Context, sentTimestamp int64, address models.Address) (*models.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.stored[msgKey{ts: sentTimestamp, addr: address}]; ok {
		clone := *msg
		return &clone, nil
	}
	return nil, nil
}

func (s *fakeStorage) DeleteMessage(_ context.Context, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedMessages = append(s.deletedMessages, messageID)
	return nil
}

func (s *fakeStorage) MarkDecryptFailed(_ context.Context, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decryptFailed = append(s.decryptFailed, messageID)
	return nil
}

func (s *fakeStorage) IncrementDeliveryReceipts(_ context.Context, address models.Address, timestamps []int64, deliveredAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveryReceipts = append(s.deliveryReceipts, receiptCall{address: address, timestamps: timestamps, at: deliveredAt})
	return nil
}

func (s *fakeStorage) IncrementReadReceipts(_ context.Context, address models.Address, timestamps []int64, readAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readReceipts = append(s.readReceipts, receiptCall{address: address, timestamps: timestamps, at: readAt})
	return nil
}

func (s *fakeStorage) SetServerID(_ context.Context, messageID, serverID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverIDs[messageID] = serverID
	return nil
}

func (s *fakeStorage) SetOriginalThreadID(_ context.Context, messageID, threadID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.originalThreads[messageID] = threadID
	return nil
}

func (s *fakeStorage) AttachmentsForMessage(_ context.Context, messageID int64) ([]*models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachments[messageID], nil
}

func (s *fakeStorage) GetOrCreateThread(_ context.Context, address models.Address) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadLocked(address), nil
}

func (s *fakeStorage) ThreadFor(_ context.Context, address models.Address) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.threads[address]
	return id, ok, nil
}

func (s *fakeStorage) Recipient(_ context.Context, address models.Address) (*models.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.recipients[address]; ok {
		clone := *r
		return &clone, nil
	}
	return &models.Recipient{Address: address}, nil
}

func (s *fakeStorage) SetExpireMessages(_ context.Context, address models.Address, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireSeconds[address] = seconds
	if r, ok := s.recipients[address]; ok {
		r.ExpireMessages = seconds
	}
	return nil
}

func (s *fakeStorage) SetForceFallback(_ context.Context, address models.Address, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbackSet[address] = enabled
	if r, ok := s.recipients[address]; ok {
		r.ForceFallback = enabled
	}
	return nil
}

func (s *fakeStorage) SetProfileKey(_ context.Context, address models.Address, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileKeys[address] = key
	return nil
}

func (s *fakeStorage) Group(_ context.Context, encodedID models.Address) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[encodedID]; ok {
		clone := *g
		return &clone, nil
	}
	return nil, nil
}

func (s *fakeStorage) CreateGroup(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *group
	s.groups[group.EncodedID] = &clone
	return nil
}

func (s *fakeStorage) UpdateGroup(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *group
	s.groups[group.EncodedID] = &clone
	return nil
}

func (s *fakeStorage) InsertEnvelope(_ context.Context, envelope *models.Envelope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEnvID++
	envelope.ID = s.nextEnvID
	s.envelopes[s.nextEnvID] = envelope
	return s.nextEnvID, nil
}

func (s *fakeStorage) Envelope(_ context.Context, id int64) (*models.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if env, ok := s.envelopes[id]; ok {
		clone := *env
		return &clone, nil
	}
	return nil, nil
}

func (s *fakeStorage) DeleteEnvelope(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.envelopes, id)
	s.deletedEnvelopes = append(s.deletedEnvelopes, id)
	return nil
}

type fakeAccount struct {
	localKey    string
	hasKey      bool
	displayName string
	profileKey  []byte
	updateErr   error
}

func (a *fakeAccount) LocalKey() string { return a.localKey }

func (a *fakeAccount) HasIdentityKey() bool { return a.hasKey }

func (a *fakeAccount) UpdateProfile(displayName string, profileKey []byte) error {
	if a.updateErr != nil {
		return a.updateErr
	}
	a.displayName = displayName
	a.profileKey = profileKey
	return nil
}

type fakeRunner struct {
	jobs []jobs.Job
	err  error
}

func (r *fakeRunner) Submit(_ context.Context, job jobs.Job) error {
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *fakeRunner) factoryKeys() []string {
	keys := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		keys = append(keys, job.FactoryKey())
	}
	return keys
}

type fakeNotifier struct {
	threadUpdates []int64
	pending       int
}

func (n *fakeNotifier) ThreadUpdated(threadID int64) {
	n.threadUpdates = append(n.threadUpdates, threadID)
}

func (n *fakeNotifier) PendingMessages() { n.pending++ }

type fakePrefs struct {
	readReceipts     bool
	typingIndicators bool
}

func (p *fakePrefs) ReadReceiptsEnabled() bool { return p.readReceipts }

func (p *fakePrefs) TypingIndicatorsEnabled() bool { return p.typingIndicators }

type sentReceipt struct {
	recipient string
	timestamp int64
}

type fakeSender struct {
	receipts     []sentReceipt
	infoRequests [][]byte
	err          error
}

func (s *fakeSender) SendDeliveryReceipt(_ context.Context, recipient string, timestamp int64) error {
	if s.err != nil {
		return s.err
	}
	s.receipts = append(s.receipts, sentReceipt{recipient: recipient, timestamp: timestamp})
	return nil
}

func (s *fakeSender) RequestGroupInfo(_ context.Context, _ string, groupID []byte) error {
	if s.err != nil {
		return s.err
	}
	s.infoRequests = append(s.infoRequests, groupID)
	return nil
}

// fakeCipher decodes every envelope to a canned content or error.
type fakeCipher struct {
	content *models.Content
	err     error
}

func (c *fakeCipher) Decrypt(*models.Envelope) (*models.Content, error) {
	return c.content, c.err
}

type fixture struct {
	store    *fakeStorage
	cipher   *fakeCipher
	runner   *fakeRunner
	notifier *fakeNotifier
	prefs    *fakePrefs
	account  *fakeAccount
	sender   *fakeSender
	d        *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newFakeStorage(),
		cipher:   &fakeCipher{},
		runner:   &fakeRunner{},
		notifier: &fakeNotifier{},
		prefs:    &fakePrefs{readReceipts: true, typingIndicators: true},
		account:  &fakeAccount{localKey: localKey, hasKey: true},
		sender:   &fakeSender{},
	}
	f.d = New(Deps{
		Store:         f.store,
		Cipher:        f.cipher,
		Runner:        f.runner,
		Notifier:      f.notifier,
		Prefs:         f.prefs,
		Account:       f.account,
		Sender:        f.sender,
		AttachmentEnv: &attachments.Env{},
	})
	return f
}

func testEnvelope(ts int64) *models.Envelope {
	return &models.Envelope{Source: senderKey, SourceDevice: 1, Timestamp: ts}
}

func textContent(ts int64, body string) *models.Content {
	return &models.Content{
		Sender:       senderKey,
		SenderDevice: 1,
		Timestamp:    ts,
		DataMessage:  &models.DataMessage{Body: body, Timestamp: ts},
	}
}

func (f *fixture) process(t *testing.T, content *models.Content, ts int64) {
	t.Helper()
	f.cipher.content = content
	require.NoError(t, f.d.ProcessEnvelope(context.Background(), testEnvelope(ts), false))
}

func TestProcessEnvelopeTextMessage(t *testing.T) {
	f := newFixture(t)
	content := textContent(1000, "hello")
	content.NeedsReceipt = true

	f.process(t, content, 1000)

	require.Len(t, f.store.incoming, 1)
	msg := f.store.incoming[0]
	assert.Equal(t, models.AddressFromKey(senderKey), msg.From)
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, int64(1000), msg.SentTimestamp)

	assert.Len(t, f.notifier.threadUpdates, 1)
	assert.Contains(t, f.d.Mentions().KeysForThread(f.notifier.threadUpdates[0]), senderKey)
	assert.Equal(t, []string{ReceiptJobKey}, f.runner.factoryKeys(), "needs-receipt message spawns a delivery receipt job")
}

func TestProcessEnvelopeWithoutIdentityKey(t *testing.T) {
	f := newFixture(t)
	f.account.hasKey = false
	f.cipher.content = textContent(1000, "hello")

	require.NoError(t, f.d.ProcessEnvelope(context.Background(), testEnvelope(1000), false))

	assert.Empty(t, f.store.incoming, "nothing is consumed before key material exists")
	assert.Len(t, f.store.envelopes, 1, "the envelope is stored for replay")
	assert.Equal(t, 1, f.notifier.pending)
}

func TestDuplicateTimestampWithinWindow(t *testing.T) {
	f := newFixture(t)

	f.process(t, textContent(1000, "hello"), 1000)
	f.process(t, textContent(1000, "hello"), 1000)

	assert.Len(t, f.store.incoming, 1, "second delivery of the same timestamp is dropped")
}

func TestDuplicateInStorageSkipped(t *testing.T) {
	f := newFixture(t)
	f.process(t, textContent(1000, "hello"), 1000)

	// Fresh dispatcher (empty in-memory window) over the same storage:
	// the persisted duplicate check must still catch it.
	f2 := newFixture(t)
	f2.store = f.store
	f2.d = New(Deps{
		Store: f.store, Cipher: f2.cipher, Runner: f2.runner, Notifier: f2.notifier,
		Prefs: f2.prefs, Account: f2.account, Sender: f2.sender,
	})
	f2.process(t, textContent(1000, "hello"), 1000)

	assert.Len(t, f.store.incoming, 1)
}

func TestNullContentDropped(t *testing.T) {
	f := newFixture(t)
	f.cipher.content = nil

	require.NoError(t, f.d.ProcessEnvelope(context.Background(), testEnvelope(1000), false))
	assert.Empty(t, f.store.incoming)
}

func TestBlockedSenderDropped(t *testing.T) {
	f := newFixture(t)
	f.store.recipients[models.AddressFromKey(senderKey)] = &models.Recipient{
		Address: models.AddressFromKey(senderKey),
		Blocked: true,
	}

	f.process(t, textContent(1000, "hello"), 1000)

	assert.Empty(t, f.store.incoming)
	assert.Empty(t, f.runner.jobs)
}

func TestSyncMessageFiledAsOutbound(t *testing.T) {
	f := newFixture(t)
	content := &models.Content{
		Sender:    localKey,
		Timestamp: 2000,
		DataMessage: &models.DataMessage{
			Body:       "me elsewhere",
			Timestamp:  2000,
			SyncTarget: otherKey,
		},
	}
	f.cipher.content = content

	env := testEnvelope(2000)
	env.ID = 77
	env.Source = localKey
	require.NoError(t, f.d.ProcessEnvelope(context.Background(), env, false))

	assert.Empty(t, f.store.incoming)
	require.Len(t, f.store.outgoing, 1)
	assert.Equal(t, models.AddressFromKey(otherKey), f.store.outgoing[0].To)
	assert.Equal(t, "me elsewhere", f.store.outgoing[0].Body)

	require.Len(t, f.store.serverIDs, 1)
	for _, serverID := range f.store.serverIDs {
		assert.Equal(t, int64(77), serverID)
	}
	assert.Len(t, f.notifier.threadUpdates, 1)
	assert.Empty(t, f.sender.receipts, "sync echoes never trigger delivery receipts")
}

func TestProtocolFailureInsertsPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.cipher.err = &cipher.ProtocolError{Sender: senderKey, SenderDevice: 1, Err: errors.New("bad mac")}

	require.NoError(t, f.d.ProcessEnvelope(context.Background(), testEnvelope(3000), false))

	require.Len(t, f.store.incoming, 1, "a decrypt-failed placeholder is recorded")
	assert.Equal(t, models.AddressFromKey(senderKey), f.store.incoming[0].From)
	assert.Len(t, f.store.decryptFailed, 1)
	assert.Len(t, f.notifier.threadUpdates, 1)
}

func TestProtocolFailureSuppressedForPushNotification(t *testing.T) {
	f := newFixture(t)
	f.cipher.err = &cipher.ProtocolError{Sender: senderKey, Err: errors.New("bad mac")}

	require.NoError(t, f.d.ProcessEnvelope(context.Background(), testEnvelope(3000), true))

	assert.Empty(t, f.store.incoming, "push-delivered session-churn failures leave no record")
	assert.Empty(t, f.store.decryptFailed)
}

func TestMetadataFailureDropped(t *testing.T) {
	f := newFixture(t)
	f.cipher.err = &cipher.MetadataError{Err: errors.New("no source")}

	require.NoError(t, f.d.ProcessEnvelope(context.Background(), testEnvelope(3000), false))

	assert.Empty(t, f.store.incoming)
	assert.Empty(t, f.store.decryptFailed)
}

func TestStorageFailureInsertsPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.store.insertIncomingErr = errors.New("disk full")
	f.cipher.content = textContent(4000, "hello")

	require.NoError(t, f.d.ProcessEnvelope(context.Background(), testEnvelope(4000), false))

	// The real insert failed; the placeholder insert (second call)
	// succeeded and is marked decrypt-failed.
	require.Len(t, f.store.incoming, 1)
	assert.Empty(t, f.store.incoming[0].Body)
	assert.Len(t, f.store.decryptFailed, 1)
}

func TestProcessStored(t *testing.T) {
	t.Run("consumes envelope and reconciles placeholder", func(t *testing.T) {
		f := newFixture(t)
		envelopeID, err := f.store.InsertEnvelope(context.Background(), testEnvelope(5000))
		require.NoError(t, err)
		f.cipher.content = textContent(5000, "replayed")

		require.NoError(t, f.d.ProcessStored(context.Background(), envelopeID, 42))

		assert.Len(t, f.store.incoming, 1)
		assert.Equal(t, []int64{42}, f.store.deletedMessages, "the correlated placeholder is removed")
		assert.Equal(t, []int64{envelopeID}, f.store.deletedEnvelopes)
	})

	t.Run("marks existing placeholder on protocol failure", func(t *testing.T) {
		f := newFixture(t)
		envelopeID, err := f.store.InsertEnvelope(context.Background(), testEnvelope(5000))
		require.NoError(t, err)
		f.cipher.err = &cipher.ProtocolError{Sender: senderKey, Err: errors.New("bad mac")}

		require.NoError(t, f.d.ProcessStored(context.Background(), envelopeID, 42))

		assert.Equal(t, []int64{42}, f.store.decryptFailed, "the existing placeholder is marked, not duplicated")
		assert.Empty(t, f.store.incoming)
	})

	t.Run("already consumed envelope is a no-op", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.d.ProcessStored(context.Background(), 999, 0))
		assert.Empty(t, f.store.incoming)
	})

	t.Run("stays stored without identity key", func(t *testing.T) {
		f := newFixture(t)
		envelopeID, err := f.store.InsertEnvelope(context.Background(), testEnvelope(5000))
		require.NoError(t, err)
		f.account.hasKey = false

		require.NoError(t, f.d.ProcessStored(context.Background(), envelopeID, 0))

		assert.Len(t, f.store.envelopes, 1)
		assert.Equal(t, 1, f.notifier.pending)
	})
}

func TestProfileKeyStored(t *testing.T) {
	f := newFixture(t)
	content := textContent(6000, "hi")
	content.DataMessage.ProfileKey = make([]byte, 32)

	f.process(t, content, 6000)

	assert.Contains(t, f.store.profileKeys, models.AddressFromKey(senderKey))

	t.Run("wrong length ignored", func(t *testing.T) {
		f := newFixture(t)
		content := textContent(6001, "hi")
		content.DataMessage.ProfileKey = make([]byte, 16)

		f.process(t, content, 6001)
		assert.Empty(t, f.store.profileKeys)
	})
}

func TestForceFallbackResetAfterInbound(t *testing.T) {
	f := newFixture(t)
	address := models.AddressFromKey(senderKey)
	f.store.recipients[address] = &models.Recipient{Address: address, ForceFallback: true}

	f.process(t, textContent(7000, "hi"), 7000)

	enabled, ok := f.store.fallbackSet[address]
	require.True(t, ok, "fallback flag must be rewritten")
	assert.False(t, enabled)
}

func TestShouldSendDeliveryReceipt(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		content *models.Content
		want    bool
	}{
		{
			name:    "plain inbound message with receipt request",
			content: &models.Content{Sender: senderKey, NeedsReceipt: true, DataMessage: &models.DataMessage{Body: "x"}},
			want:    true,
		},
		{
			name:    "no receipt requested",
			content: &models.Content{Sender: senderKey, DataMessage: &models.DataMessage{Body: "x"}},
			want:    false,
		},
		{
			name:    "self-originated",
			content: &models.Content{Sender: localKey, NeedsReceipt: true, DataMessage: &models.DataMessage{Body: "x"}},
			want:    false,
		},
		{
			name:    "sync echo",
			content: &models.Content{Sender: senderKey, NeedsReceipt: true, DataMessage: &models.DataMessage{Body: "x", SyncTarget: otherKey}},
			want:    false,
		},
		{
			name:    "group message",
			content: &models.Content{Sender: senderKey, NeedsReceipt: true, DataMessage: &models.DataMessage{Body: "x", Group: &models.GroupContext{ID: testGroupID}}},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.d.shouldSendDeliveryReceipt(tt.content, tt.content.DataMessage))
		})
	}
}

func TestRecentWindow(t *testing.T) {
	w := newRecentWindow(time.Hour)

	assert.False(t, w.seen(100))
	assert.True(t, w.seen(100))
	assert.False(t, w.seen(200))
}

func TestRecentWindowExpiry(t *testing.T) {
	w := newRecentWindow(time.Nanosecond)

	assert.False(t, w.seen(100))
	time.Sleep(time.Millisecond)
	assert.False(t, w.seen(100), "entries outside the window are pruned")
}

func TestMentionCache(t *testing.T) {
	c := NewMentionCache()

	c.Cache("alice", 1)
	c.Cache("bob", 1)
	c.Cache("alice", 1) // idempotent
	c.Cache("carol", 2)

	assert.ElementsMatch(t, []string{"alice", "bob"}, c.KeysForThread(1))
	assert.Equal(t, []string{"carol"}, c.KeysForThread(2))
	assert.Empty(t, c.KeysForThread(3))
}
