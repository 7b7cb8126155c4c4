package firebase

import (
	"context"
	"strings"
	"time"

	"transportchat/pkg/errors"
)

const DevTokenPrefix = "dev:"

// DevTokenVerifier accepts "dev:<uid>" tokens so the service can run
// against the memory backend without a Firebase project. Any other token
// goes to next, if set.
type DevTokenVerifier struct {
	next TokenVerifier
	ttl  time.Duration
}

func NewDevTokenVerifier(next TokenVerifier, ttl time.Duration) *DevTokenVerifier {
	return &DevTokenVerifier{next: next, ttl: ttl}
}

func (d *DevTokenVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if uid, ok := strings.CutPrefix(token, DevTokenPrefix); ok {
		uid = strings.TrimSpace(uid)
		if uid == "" {
			return nil, errors.Unauthorized("Empty dev token", nil)
		}
		identity := &Identity{UID: uid, Anonymous: strings.HasPrefix(uid, "anon-")}
		if d.ttl > 0 {
			identity.ExpiresAt = time.Now().Add(d.ttl)
		}
		return identity, nil
	}

	if d.next == nil {
		return nil, errors.Unauthorized("Invalid or expired token", nil)
	}
	return d.next.Verify(ctx, token)
}
