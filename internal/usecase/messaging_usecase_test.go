package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentex/internal/adapter/repository"
	"rentex/internal/domain/entity"
	ws "rentex/internal/infrastructure/websocket"
	"rentex/pkg/errors"
)

type messagingFixture struct {
	messageRepo *repository.MemoryMessageRepository
	userRepo    *repository.MemoryUserRepository
	manager     *ws.Manager
	messaging   *MessagingUseCase
	cancel      context.CancelFunc
}

func newMessagingFixture(t *testing.T) *messagingFixture {
	t.Helper()

	messageRepo := repository.NewMemoryMessageRepository()
	userRepo := repository.NewMemoryUserRepository()
	for _, id := range []string{"alice", "bob", "carol"} {
		userRepo.Add(&entity.User{ID: id, Username: id})
	}

	manager := ws.NewManager()
	messaging := NewMessagingUseCase(messageRepo, userRepo, manager, 2*time.Second)
	presence := NewPresenceUseCase(manager, 5*time.Second)
	manager.Bind(messaging, presence)

	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx)
	t.Cleanup(cancel)

	return &messagingFixture{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		manager:     manager,
		messaging:   messaging,
		cancel:      cancel,
	}
}

// connect registers a fake session for a user and returns its send buffer.
func (f *messagingFixture) connect(t *testing.T, userID string) chan []byte {
	t.Helper()

	client := &ws.Client{UserID: userID, Send: make(chan []byte, 16)}
	f.manager.Register <- client
	require.Eventually(t, func() bool { return f.manager.IsConnected(userID) },
		time.Second, 10*time.Millisecond)
	return client.Send
}

func decodeEvent(t *testing.T, payload []byte) ws.WSMessage {
	t.Helper()

	var event ws.WSMessage
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func waitForEvent(t *testing.T, ch chan []byte, eventType string) ws.WSMessage {
	t.Helper()

	deadline := time.After(time.Second)
	for {
		select {
		case payload := <-ch:
			event := decodeEvent(t, payload)
			if event.Type == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

func TestSendAcknowledgesWithOfflineRecipient(t *testing.T) {
	f := newMessagingFixture(t)

	// bob has no live session; the send must still succeed.
	message, err := f.messaging.Send(context.Background(), "alice", "bob", "Is this still available?", "")
	require.NoError(t, err)

	assert.NotEmpty(t, message.ID)
	assert.False(t, message.CreatedAt.IsZero())
	assert.Nil(t, message.ReadAt)

	messages, total, err := f.messaging.ListConversation(context.Background(), "bob", "alice", "", 0, 0, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, messages, 1)
	assert.Equal(t, message.ID, messages[0].ID)
	assert.Nil(t, messages[0].ReadAt)

	count, err := f.messaging.UnreadCount(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSendValidation(t *testing.T) {
	f := newMessagingFixture(t)

	cases := []struct {
		name     string
		sender   string
		receiver string
		body     string
		code     string
	}{
		{"empty body", "alice", "bob", "", "BAD_REQUEST"},
		{"whitespace body", "alice", "bob", "   \t\n", "BAD_REQUEST"},
		{"self send", "alice", "alice", "hello me", "BAD_REQUEST"},
		{"unknown recipient", "alice", "nobody", "hello", "NOT_FOUND"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.messaging.Send(context.Background(), tc.sender, tc.receiver, tc.body, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.code))
		})
	}

	// Nothing was persisted by any rejected send.
	count, err := f.messaging.UnreadCount(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSendPushesToConnectedRecipient(t *testing.T) {
	f := newMessagingFixture(t)
	inbox := f.connect(t, "bob")

	message, err := f.messaging.Send(context.Background(), "alice", "bob", "hello bob", "booking-3")
	require.NoError(t, err)

	event := waitForEvent(t, inbox, ws.EventNewMessage)

	var pushed entity.Message
	raw, err := json.Marshal(event.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &pushed))

	assert.Equal(t, message.ID, pushed.ID)
	assert.Equal(t, "hello bob", pushed.Body)
	assert.Equal(t, "booking-3", pushed.BookingID)
}

type failingMessageRepo struct {
	*repository.MemoryMessageRepository
}

func (r *failingMessageRepo) Append(ctx context.Context, message *entity.Message) error {
	return errors.Internal("Store unreachable", nil)
}

func TestSendPersistFailureMeansNoPush(t *testing.T) {
	f := newMessagingFixture(t)
	f.messaging.messageRepo = &failingMessageRepo{f.messageRepo}
	inbox := f.connect(t, "bob")

	_, err := f.messaging.Send(context.Background(), "alice", "bob", "hello", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "INTERNAL_ERROR"))

	select {
	case payload := <-inbox:
		event := decodeEvent(t, payload)
		t.Fatalf("unexpected %s push after failed persistence", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReadReceiptFlow(t *testing.T) {
	f := newMessagingFixture(t)
	aliceInbox := f.connect(t, "alice")

	message, err := f.messaging.Send(context.Background(), "alice", "bob", "returned the drill, thanks!", "")
	require.NoError(t, err)

	first, err := f.messaging.AcknowledgeRead(context.Background(), message.ID, "bob")
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)

	count, err := f.messaging.UnreadCount(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	event := waitForEvent(t, aliceInbox, ws.EventMessageRead)
	var data ws.MessageReadData
	raw, err := json.Marshal(event.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, message.ID, data.MessageID)
	assert.NotEmpty(t, data.ReadAt)

	// Second acknowledgment is a no-op returning the same timestamp.
	second, err := f.messaging.AcknowledgeRead(context.Background(), message.ID, "bob")
	require.NoError(t, err)
	require.NotNil(t, second.ReadAt)
	assert.Equal(t, *first.ReadAt, *second.ReadAt)
}

func TestReadReceiptAuthorization(t *testing.T) {
	f := newMessagingFixture(t)

	message, err := f.messaging.Send(context.Background(), "alice", "bob", "hello", "")
	require.NoError(t, err)

	_, err = f.messaging.AcknowledgeRead(context.Background(), message.ID, "carol")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	stored, err := f.messageRepo.GetByID(context.Background(), message.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ReadAt)
}

func TestTwoSendsKeepRelativeOrder(t *testing.T) {
	f := newMessagingFixture(t)

	firstSent, err := f.messaging.Send(context.Background(), "alice", "bob", "first", "")
	require.NoError(t, err)
	secondSent, err := f.messaging.Send(context.Background(), "alice", "bob", "second", "")
	require.NoError(t, err)

	messages, _, err := f.messaging.ListConversation(context.Background(), "alice", "bob", "", 0, 0, false)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, firstSent.ID, messages[0].ID)
	assert.Equal(t, secondSent.ID, messages[1].ID)
}

func TestSendRateLimit(t *testing.T) {
	f := newMessagingFixture(t)

	// The bucket holds 10 tokens per sender.
	var err error
	for i := 0; i < 10; i++ {
		_, err = f.messaging.Send(context.Background(), "alice", "bob", "spam", "")
		require.NoError(t, err)
	}

	_, err = f.messaging.Send(context.Background(), "alice", "bob", "one too many", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "TOO_MANY_REQUESTS"))
}
