package repository

import (
	"context"
	"time"

	"transportchat/internal/domain/entity"
)

// Subscription is a handle on a live feed. Unsubscribe stops delivery, is
// idempotent and is safe to call after the underlying data is gone.
type Subscription interface {
	Unsubscribe()
}

type MessageUpdateFunc func(messages []*entity.Message)
type SummaryUpdateFunc func(summaries []*entity.ConversationSummary)
type SubscriptionErrorFunc func(err error)

type MessageRepository interface {
	// Subscribe delivers the ordered message list once immediately (empty for a
	// new conversation) and again whenever a message is added.
	Subscribe(ctx context.Context, conversationID string, onUpdate MessageUpdateFunc, onError SubscriptionErrorFunc) (Subscription, error)
	// Append stores the message and returns its id. A zero Timestamp is
	// replaced by the server time.
	Append(ctx context.Context, conversationID string, message *entity.Message) (string, error)
}

// SendUpdate carries what UpsertOnSend needs to know about a sent message.
type SendUpdate struct {
	ConversationID string
	Participants   [2]string
	SenderID       string
	RecipientID    string
	Text           string
	// Zero means server time.
	Timestamp time.Time
}

type SummaryRepository interface {
	// Get returns nil, nil when the conversation has no summary yet.
	Get(ctx context.Context, conversationID string) (*entity.ConversationSummary, error)
	// UpsertOnSend creates the summary with UserID = sender and
	// DriverID = recipient on the first message; later sends leave both alone.
	UpsertOnSend(ctx context.Context, update SendUpdate) error
	// ResetUnread is a no-op when the summary does not exist.
	ResetUnread(ctx context.Context, conversationID, participantID string) error
	// ListForParticipant returns the participant's summaries, most recent first.
	ListForParticipant(ctx context.Context, participantID string) ([]*entity.ConversationSummary, error)
	SubscribeForParticipant(ctx context.Context, participantID string, onUpdate SummaryUpdateFunc, onError SubscriptionErrorFunc) (Subscription, error)
}
