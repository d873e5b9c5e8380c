package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"

	"rentex/pkg/errors"
)

// FirebaseAuthClient wraps the external identity service. The messaging layer
// only consumes token verification; account issuance lives elsewhere.
type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (string, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", errors.Unauthorized("Invalid or expired token", err)
	}

	return result.UID, nil
}
