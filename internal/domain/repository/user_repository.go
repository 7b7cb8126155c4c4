package repository

import (
	"context"

	"transportchat/internal/domain/entity"
)

type ProfileRepository interface {
	// GetDeliveryToken looks the participant up as a driver first, then as a
	// user. It returns "" when neither profile carries a token.
	GetDeliveryToken(ctx context.Context, participantID string) (string, error)
	RegisterDeliveryToken(ctx context.Context, participantID string, role entity.Role, token string) error
}
