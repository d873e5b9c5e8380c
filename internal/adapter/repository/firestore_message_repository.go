package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"rentex/internal/domain/entity"
	"rentex/internal/domain/repository"
	"rentex/pkg/errors"
	"rentex/pkg/logger"
)

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) Append(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	message.CreatedAt = time.Now()
	message.ReadAt = nil

	_, err := r.client.Collection("messages").Doc(message.ID).Set(ctx, message)
	if err != nil {
		return errors.Internal("Failed to append message", err)
	}

	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, messageID string) (*entity.Message, error) {
	doc, err := r.client.Collection("messages").Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &message, nil
}

// MarkRead sets ReadAt inside a transaction so concurrent calls cannot race
// on the null-to-timestamp transition. A second call for an already-read
// message is a no-op returning the stored message.
func (r *firestoreMessageRepository) MarkRead(ctx context.Context, messageID, byUserID string) (*entity.Message, error) {
	docRef := r.client.Collection("messages").Doc(messageID)

	var result entity.Message
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Message", err)
			}
			return errors.Internal("Failed to get message", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return errors.Internal("Failed to parse message data", err)
		}

		if message.ReceiverID != byUserID {
			return errors.Forbidden("Only the receiver can mark a message as read", nil)
		}

		if message.ReadAt != nil {
			result = message
			return nil
		}

		now := time.Now()
		message.ReadAt = &now
		if err := tx.Update(docRef, []firestore.Update{{Path: "readAt", Value: now}}); err != nil {
			return errors.Internal("Failed to update read status", err)
		}

		result = message
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *firestoreMessageRepository) ListConversation(ctx context.Context, userA, userB, bookingID string, limit, offset int, newestFirst bool) ([]*entity.Message, int64, error) {
	// Firestore cannot OR across sender/receiver, so fetch both directions
	// and merge in memory.
	forward, err := r.fetchDirection(ctx, userA, userB, bookingID)
	if err != nil {
		return nil, 0, err
	}
	backward, err := r.fetchDirection(ctx, userB, userA, bookingID)
	if err != nil {
		return nil, 0, err
	}

	messages := append(forward, backward...)
	sort.Slice(messages, func(i, j int) bool {
		if newestFirst {
			return messages[i].CreatedAt.After(messages[j].CreatedAt)
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	total := int64(len(messages))

	start := offset
	if start > len(messages) {
		start = len(messages)
	}
	end := len(messages)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	return messages[start:end], total, nil
}

func (r *firestoreMessageRepository) fetchDirection(ctx context.Context, senderID, receiverID, bookingID string) ([]*entity.Message, error) {
	query := r.client.Collection("messages").
		Where("senderId", "==", senderID).
		Where("receiverId", "==", receiverID)
	if bookingID != "" {
		query = query.Where("bookingId", "==", bookingID)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while fetching messages %s -> %s: %v", senderID, receiverID, err)
		return nil, errors.Internal("Failed to fetch messages", err)
	}

	var messages []*entity.Message
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			logger.Warn("Skipping malformed message %s: %v", doc.Ref.ID, err)
			continue
		}
		messages = append(messages, &message)
	}

	return messages, nil
}

func (r *firestoreMessageRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	query := r.client.Collection("messages").
		Where("receiverId", "==", userID).
		Where("readAt", "==", nil)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, errors.Internal("Failed to count unread messages", err)
	}

	return int64(len(docs)), nil
}

func (r *firestoreMessageRepository) ListConversations(ctx context.Context, userID string) ([]*entity.ConversationSummary, error) {
	sent, err := r.fetchByField(ctx, "senderId", userID)
	if err != nil {
		return nil, err
	}
	received, err := r.fetchByField(ctx, "receiverId", userID)
	if err != nil {
		return nil, err
	}

	type key struct {
		counterpart string
		bookingID   string
	}

	summaries := make(map[key]*entity.ConversationSummary)
	for _, message := range append(sent, received...) {
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

		if summary.LastMessage == nil || message.CreatedAt.After(summary.LastMessage.CreatedAt) {
			summary.LastMessage = message
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

func (r *firestoreMessageRepository) fetchByField(ctx context.Context, field, userID string) ([]*entity.Message, error) {
	docs, err := r.client.Collection("messages").Where(field, "==", userID).Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while fetching messages by %s for user %s: %v", field, userID, err)
		return nil, errors.Internal("Failed to fetch messages", err)
	}

	var messages []*entity.Message
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			continue // Skip bad data instead of failing
		}
		messages = append(messages, &message)
	}

	return messages, nil
}
