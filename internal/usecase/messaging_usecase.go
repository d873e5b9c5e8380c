package usecase

import (
	"context"
	"strings"
	"time"

	"rentex/internal/domain/entity"
	"rentex/internal/domain/repository"
	"rentex/internal/infrastructure/ratelimit"
	ws "rentex/internal/infrastructure/websocket"
	"rentex/pkg/errors"
	"rentex/pkg/logger"
)

// MessagingUseCase is the message channel between two marketplace
// participants: validated send with durable persistence before
// acknowledgment, best-effort push delivery, read receipts, and the history
// query surface.
type MessagingUseCase struct {
	messageRepo  repository.MessageRepository
	userRepo     repository.UserRepository
	wsManager    *ws.Manager
	rateLimiter  *ratelimit.RateLimiter
	storeTimeout time.Duration
}

func NewMessagingUseCase(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	wsManager *ws.Manager,
	storeTimeout time.Duration,
) *MessagingUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &MessagingUseCase{
		messageRepo:  messageRepo,
		userRepo:     userRepo,
		wsManager:    wsManager,
		rateLimiter:  rateLimiter,
		storeTimeout: storeTimeout,
	}
}

var _ ws.MessageService = (*MessagingUseCase)(nil)

// Send validates and persists a message, then returns it to the sender as
// the acknowledgment. Persistence is the durability point: once Append
// succeeds the message is never lost, so the push to the recipient is fire
// and forget and its failure is not an error of the send.
func (uc *MessagingUseCase) Send(ctx context.Context, senderID, receiverID, body, bookingID string) (*entity.Message, error) {
	allowed, waitTime := uc.rateLimiter.Allow(senderID, "send_message")
	if !allowed {
		logger.Warn("Send rate limited: user %s must wait %v", senderID, waitTime)
		return nil, errors.TooManyRequests("You are sending messages too quickly. Please slow down")
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.BadRequest("Message body is required", nil)
	}
	if receiverID == "" {
		return nil, errors.BadRequest("Recipient is required", nil)
	}
	if receiverID == senderID {
		return nil, errors.BadRequest("Cannot send a message to yourself", nil)
	}

	if _, err := uc.userRepo.GetByID(ctx, receiverID); err != nil {
		logger.Warn("Send rejected: recipient %s not found: %v", receiverID, err)
		return nil, errors.NotFound("Recipient", err)
	}

	message := &entity.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		BookingID:  bookingID,
		Body:       body,
	}

	appendCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()
	if err := uc.messageRepo.Append(appendCtx, message); err != nil {
		logger.Error("Send failed: could not persist message from %s to %s: %v", senderID, receiverID, err)
		return nil, err
	}

	uc.wsManager.SendToUser(receiverID, ws.NewEvent(ws.EventNewMessage, message))

	return message, nil
}

// AcknowledgeRead records the receiver's read of a message and, if the
// original sender is still connected, notifies them. Marking an already-read
// message again is a no-op, not an error.
func (uc *MessagingUseCase) AcknowledgeRead(ctx context.Context, messageID, readerID string) (*entity.Message, error) {
	readCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()

	message, err := uc.messageRepo.MarkRead(readCtx, messageID, readerID)
	if err != nil {
		return nil, err
	}

	if message.ReadAt != nil {
		uc.wsManager.SendToUser(message.SenderID, ws.NewEvent(ws.EventMessageRead, ws.MessageReadData{
			MessageID: message.ID,
			ReadAt:    message.ReadAt.UTC().Format(time.RFC3339),
		}))
	}

	return message, nil
}

// ListConversation returns one page of the conversation between the caller
// and a counterpart, optionally scoped to a booking.
func (uc *MessagingUseCase) ListConversation(ctx context.Context, userID, counterpartID, bookingID string, limit, offset int, newestFirst bool) ([]*entity.Message, int64, error) {
	if counterpartID == "" {
		return nil, 0, errors.BadRequest("Counterpart is required", nil)
	}

	return uc.messageRepo.ListConversation(ctx, userID, counterpartID, bookingID, limit, offset, newestFirst)
}

// UnreadCount returns the caller's unread message count across all
// conversations.
func (uc *MessagingUseCase) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return uc.messageRepo.UnreadCount(ctx, userID)
}

// ListConversations returns the caller's conversations, newest activity
// first.
func (uc *MessagingUseCase) ListConversations(ctx context.Context, userID string) ([]*entity.ConversationSummary, error) {
	return uc.messageRepo.ListConversations(ctx, userID)
}
