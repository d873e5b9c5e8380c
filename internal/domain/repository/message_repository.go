package repository

import (
	"context"

	"rentex/internal/domain/entity"
)

// MessageRepository is the durable, append-only store of messages. Append and
// MarkRead are the only write paths; MarkRead is a compare-and-set on the
// ReadAt field and must be idempotent.
type MessageRepository interface {
	Append(ctx context.Context, message *entity.Message) error
	MarkRead(ctx context.Context, messageID, byUserID string) (*entity.Message, error)
	GetByID(ctx context.Context, messageID string) (*entity.Message, error)

	// ListConversation returns messages between the unordered pair
	// (userA, userB), optionally scoped to bookingID, paginated.
	ListConversation(ctx context.Context, userA, userB, bookingID string, limit, offset int, newestFirst bool) ([]*entity.Message, int64, error)

	UnreadCount(ctx context.Context, userID string) (int64, error)
	ListConversations(ctx context.Context, userID string) ([]*entity.ConversationSummary, error)
}
