package repository

import (
	"context"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"transportchat/internal/domain/entity"
	"transportchat/internal/domain/repository"
	"transportchat/pkg/errors"
)

// Collection names are shared with the mobile app.
var profileCollections = map[entity.Role]string{
	entity.RoleDriver: "conductores",
	entity.RoleUser:   "usuarios",
}

type firestoreProfileRepository struct {
	client *firestore.Client
}

func NewFirestoreProfileRepository(client *firestore.Client) repository.ProfileRepository {
	return &firestoreProfileRepository{
		client: client,
	}
}

func (r *firestoreProfileRepository) GetDeliveryToken(ctx context.Context, participantID string) (string, error) {
	for _, role := range []entity.Role{entity.RoleDriver, entity.RoleUser} {
		doc, err := r.client.Collection(profileCollections[role]).Doc(participantID).Get(ctx)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			return "", errors.ReadFailed("Failed to get profile", err)
		}

		var profile entity.Profile
		if err := doc.DataTo(&profile); err != nil {
			log.Printf("Error parsing %s profile %s: %v", role, participantID, err)
			return "", errors.ReadFailed("Failed to parse profile data", err)
		}
		return profile.PushToken, nil
	}

	return "", nil
}

func (r *firestoreProfileRepository) RegisterDeliveryToken(ctx context.Context, participantID string, role entity.Role, token string) error {
	collection, ok := profileCollections[role]
	if !ok {
		return errors.BadRequest("Unknown role", nil)
	}

	_, err := r.client.Collection(collection).Doc(participantID).Set(ctx, map[string]interface{}{
		"pushToken": token,
		"lastSeen":  firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		log.Printf("RegisterDeliveryToken Error: failed to save token for %s: %v", participantID, err)
		return errors.WriteFailed("Failed to save push token", err)
	}

	return nil
}
