package repository

import (
	"context"

	"rentex/internal/domain/entity"
)

// UserRepository resolves user identities. User lifecycle management lives in
// the account service; the messaging layer only needs lookups.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}
