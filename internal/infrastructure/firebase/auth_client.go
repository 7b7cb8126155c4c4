package firebase

import (
	"context"
	"time"

	"firebase.google.com/go/v4/auth"

	"transportchat/pkg/errors"
)

// Identity is a verified caller. Anonymous passengers are signed in with
// the anonymous provider and still get a stable UID.
type Identity struct {
	UID       string
	Anonymous bool
	ExpiresAt time.Time

	now func() time.Time
}

// ParticipantID reports the UID until the credentials expire.
func (i *Identity) ParticipantID() (string, bool) {
	if i == nil || i.UID == "" {
		return "", false
	}
	now := time.Now
	if i.now != nil {
		now = i.now
	}
	if !i.ExpiresAt.IsZero() && !now().Before(i.ExpiresAt) {
		return "", false
	}
	return i.UID, true
}

// TokenVerifier turns a bearer token into an Identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

func (f *FirebaseAuthClient) Verify(ctx context.Context, token string) (*Identity, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, errors.Unauthorized("Invalid or expired token", err)
	}

	return &Identity{
		UID:       result.UID,
		Anonymous: result.Firebase.SignInProvider == "anonymous",
		ExpiresAt: time.Unix(result.Expires, 0),
	}, nil
}
