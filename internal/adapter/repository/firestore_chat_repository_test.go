package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transportchat/internal/domain/entity"
	"transportchat/internal/domain/repository"
)

// newEmulatorClient connects to the Firestore emulator, skipping the test
// when FIRESTORE_EMULATOR_HOST is not set.
func newEmulatorClient(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	client, err := firestore.NewClient(context.Background(), "transportchat-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func uniquePair() (string, string) {
	suffix := uuid.New().String()[:8]
	return "u" + suffix, "d" + suffix
}

func TestFirestoreMessageRepository(t *testing.T) {
	client := newEmulatorClient(t)
	repo := NewFirestoreMessageRepository(client)
	ctx := context.Background()

	u, d := uniquePair()
	conversationID := entity.DeriveConversationID(u, d)

	var mu sync.Mutex
	var last []*entity.Message
	sub, err := repo.Subscribe(ctx, conversationID, func(messages []*entity.Message) {
		mu.Lock()
		defer mu.Unlock()
		last = messages
	}, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for _, text := range []string{"uno", "dos", "tres"} {
		msg := &entity.Message{Text: text, SenderID: u}
		id, err := repo.Append(ctx, conversationID, msg)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.False(t, msg.Timestamp.IsZero())
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 3 && !last[2].Pending()
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "uno", last[0].Text)
	assert.Equal(t, "tres", last[2].Text)
}

func TestFirestoreSummaryRepository(t *testing.T) {
	client := newEmulatorClient(t)
	repo := NewFirestoreSummaryRepository(client)
	ctx := context.Background()

	u, d := uniquePair()
	conversationID := entity.DeriveConversationID(u, d)

	summary, err := repo.Get(ctx, conversationID)
	require.NoError(t, err)
	assert.Nil(t, summary)
	require.NoError(t, repo.ResetUnread(ctx, conversationID, d))

	update := repository.SendUpdate{
		ConversationID: conversationID,
		Participants:   [2]string{u, d},
		SenderID:       u,
		RecipientID:    d,
		Text:           "hola",
	}
	require.NoError(t, repo.UpsertOnSend(ctx, update))

	summary, err = repo.Get(ctx, conversationID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, map[string]int{d: 1, u: 0}, summary.UnreadCount)
	assert.Equal(t, u, summary.UserID)
	assert.Equal(t, d, summary.DriverID)

	update.Text = "sigues?"
	require.NoError(t, repo.UpsertOnSend(ctx, update))
	summary, _ = repo.Get(ctx, conversationID)
	assert.Equal(t, 2, summary.Unread(d))
	assert.Equal(t, "sigues?", summary.LastMessage)
	assert.Equal(t, u, summary.UserID)
	assert.Equal(t, d, summary.DriverID)

	require.NoError(t, repo.ResetUnread(ctx, conversationID, d))
	summary, _ = repo.Get(ctx, conversationID)
	assert.Equal(t, 0, summary.Unread(d))

	list, err := repo.ListForParticipant(ctx, d)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, conversationID, list[0].ID)
}

func TestFirestoreProfileRepository(t *testing.T) {
	client := newEmulatorClient(t)
	repo := NewFirestoreProfileRepository(client)
	ctx := context.Background()

	_, d := uniquePair()

	token, err := repo.GetDeliveryToken(ctx, d)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, repo.RegisterDeliveryToken(ctx, d, entity.RoleDriver, "ExponentPushToken[d]"))
	token, err = repo.GetDeliveryToken(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "ExponentPushToken[d]", token)
}
