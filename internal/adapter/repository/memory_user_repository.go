package repository

import (
	"context"
	"sync"
	"time"

	"transportchat/internal/domain/entity"
	"transportchat/internal/domain/repository"
	"transportchat/pkg/errors"
)

type memoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[entity.Role]map[string]*entity.Profile
}

func NewMemoryProfileRepository() repository.ProfileRepository {
	return &memoryProfileRepository{
		profiles: map[entity.Role]map[string]*entity.Profile{
			entity.RoleDriver: {},
			entity.RoleUser:   {},
		},
	}
}

func (r *memoryProfileRepository) GetDeliveryToken(ctx context.Context, participantID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.ReadFailed("Failed to get profile", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, role := range []entity.Role{entity.RoleDriver, entity.RoleUser} {
		if p, ok := r.profiles[role][participantID]; ok {
			return p.PushToken, nil
		}
	}
	return "", nil
}

func (r *memoryProfileRepository) RegisterDeliveryToken(ctx context.Context, participantID string, role entity.Role, token string) error {
	if err := ctx.Err(); err != nil {
		return errors.WriteFailed("Failed to save push token", err)
	}
	if !role.Valid() {
		return errors.BadRequest("Unknown role", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[role][participantID]
	if !ok {
		p = &entity.Profile{ID: participantID, Role: role}
		r.profiles[role][participantID] = p
	}
	p.PushToken = token
	p.LastSeen = time.Now()
	return nil
}
