package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentex/internal/domain/entity"
	"rentex/internal/domain/repository"
	"rentex/pkg/errors"
)

// MemoryMessageRepository is an in-process MessageRepository used in
// development mode and by tests. The mutex serializes Append and the
// MarkRead compare-and-set the same way the Firestore transaction does.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages []*entity.Message
	byID     map[string]*entity.Message
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		byID: make(map[string]*entity.Message),
	}
}

var _ repository.MessageRepository = (*MemoryMessageRepository)(nil)

func (r *MemoryMessageRepository) Append(ctx context.Context, message *entity.Message) error {
	if err := ctx.Err(); err != nil {
		return errors.Internal("Store unreachable", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now()
	message.ReadAt = nil

	stored := *message
	r.messages = append(r.messages, &stored)
	r.byID[stored.ID] = &stored

	return nil
}

func (r *MemoryMessageRepository) GetByID(ctx context.Context, messageID string) (*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	message, ok := r.byID[messageID]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}

	copied := *message
	return &copied, nil
}

func (r *MemoryMessageRepository) MarkRead(ctx context.Context, messageID, byUserID string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.byID[messageID]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}

	if message.ReceiverID != byUserID {
		return nil, errors.Forbidden("Only the receiver can mark a message as read", nil)
	}

	if message.ReadAt == nil {
		now := time.Now()
		message.ReadAt = &now
	}

	copied := *message
	return &copied, nil
}

func (r *MemoryMessageRepository) ListConversation(ctx context.Context, userA, userB, bookingID string, limit, offset int, newestFirst bool) ([]*entity.Message, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*entity.Message
	for _, message := range r.messages {
		if !betweenPair(message, userA, userB) {
			continue
		}
		if bookingID != "" && message.BookingID != bookingID {
			continue
		}
		copied := *message
		matched = append(matched, &copied)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if newestFirst {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	start := offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	return matched[start:end], total, nil
}

func (r *MemoryMessageRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, message := range r.messages {
		if message.ReceiverID == userID && message.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *MemoryMessageRepository) ListConversations(ctx context.Context, userID string) ([]*entity.ConversationSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type key struct {
		counterpart string
		bookingID   string
	}

	summaries := make(map[key]*entity.ConversationSummary)
	for _, message := range r.messages {
		if message.SenderID != userID && message.ReceiverID != userID {
			continue
		}

		counterpart := message.SenderID
		if counterpart == userID {
			counterpart = message.ReceiverID
		}

		k := key{counterpart: counterpart, bookingID: message.BookingID}
		summary, ok := summaries[k]
		if !ok {
			summary = &entity.ConversationSummary{
				CounterpartID: counterpart,
				BookingID:     message.BookingID,
			}
			summaries[k] = summary
		}

		if summary.LastMessage == nil || !message.CreatedAt.Before(summary.LastMessage.CreatedAt) {
			copied := *message
			summary.LastMessage = &copied
		}
		if message.ReceiverID == userID && message.ReadAt == nil {
			summary.UnreadCount++
		}
	}

	result := make([]*entity.ConversationSummary, 0, len(summaries))
	for _, summary := range summaries {
		result = append(result, summary)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessage.CreatedAt.After(result[j].LastMessage.CreatedAt)
	})

	return result, nil
}

func betweenPair(message *entity.Message, userA, userB string) bool {
	return (message.SenderID == userA && message.ReceiverID == userB) ||
		(message.SenderID == userB && message.ReceiverID == userA)
}
