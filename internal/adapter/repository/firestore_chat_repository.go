package repository

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"transportchat/internal/domain/entity"
	"transportchat/internal/domain/repository"
	"transportchat/pkg/errors"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
)

// firestoreSubscription wraps a snapshot listener goroutine. Unsubscribe
// cancels the listener context; the goroutine stops the iterator on exit.
type firestoreSubscription struct {
	active atomic.Bool
	once   sync.Once
	cancel context.CancelFunc
}

func (s *firestoreSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		s.cancel()
	})
}

// listen drains it until the subscription ends, handing each snapshot to
// handle. A listener failure that is not caused by Unsubscribe is reported
// once through onError.
func (s *firestoreSubscription) listen(ctx context.Context, it *firestore.QuerySnapshotIterator, feed string, handle func(*firestore.QuerySnapshot), onError repository.SubscriptionErrorFunc) {
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if !s.active.Load() || ctx.Err() != nil || err == iterator.Done || status.Code(err) == codes.Canceled {
				return
			}
			log.Printf("Subscription Error: listener for %s failed: %v", feed, err)
			if onError != nil {
				onError(errors.SubscriptionFailed("Live updates stopped", err))
			}
			return
		}

		if s.active.Load() {
			handle(snap)
		}
	}
}

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.client.Collection(chatsCollection).Doc(conversationID).Collection(messagesCollection)
}

func (r *firestoreMessageRepository) Subscribe(ctx context.Context, conversationID string, onUpdate repository.MessageUpdateFunc, onError repository.SubscriptionErrorFunc) (repository.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.SubscriptionFailed("Failed to subscribe to messages", err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	sub := &firestoreSubscription{cancel: cancel}
	sub.active.Store(true)

	it := r.messages(conversationID).OrderBy("timestamp", firestore.Asc).Snapshots(listenCtx)

	go sub.listen(listenCtx, it, "chats/"+conversationID+"/messages", func(snap *firestore.QuerySnapshot) {
		messages, err := decodeMessages(snap.Documents)
		if err != nil {
			log.Printf("Subscribe Error: failed to read messages for chat %s: %v", conversationID, err)
			return
		}
		onUpdate(messages)
	}, onError)

	return sub, nil
}

func (r *firestoreMessageRepository) Append(ctx context.Context, conversationID string, message *entity.Message) (string, error) {
	ref := r.messages(conversationID).NewDoc()

	var ts interface{} = firestore.ServerTimestamp
	if !message.Timestamp.IsZero() {
		ts = message.Timestamp
	}

	result, err := ref.Create(ctx, map[string]interface{}{
		"text":      message.Text,
		"senderId":  message.SenderID,
		"timestamp": ts,
	})
	if err != nil {
		log.Printf("Append Error: failed to create message in chat %s: %v", conversationID, err)
		return "", errors.WriteFailed("Failed to create message", err)
	}

	message.ID = ref.ID
	if message.Timestamp.IsZero() {
		// A server timestamp resolves to the commit time of the write.
		message.Timestamp = result.UpdateTime
	}

	return ref.ID, nil
}

func decodeMessages(docs *firestore.DocumentIterator) ([]*entity.Message, error) {
	messages := []*entity.Message{}
	for {
		doc, err := docs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			log.Printf("Error parsing message %s: %v", doc.Ref.ID, err)
			continue // Skip bad data instead of failing
		}
		message.ID = doc.Ref.ID
		messages = append(messages, &message)
	}

	entity.SortMessages(messages)
	return messages, nil
}

type firestoreSummaryRepository struct {
	client *firestore.Client
}

func NewFirestoreSummaryRepository(client *firestore.Client) repository.SummaryRepository {
	return &firestoreSummaryRepository{
		client: client,
	}
}

func (r *firestoreSummaryRepository) chats() *firestore.CollectionRef {
	return r.client.Collection(chatsCollection)
}

func (r *firestoreSummaryRepository) Get(ctx context.Context, conversationID string) (*entity.ConversationSummary, error) {
	doc, err := r.chats().Doc(conversationID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, errors.ReadFailed("Failed to get chat", err)
	}

	summary, err := decodeSummary(doc)
	if err != nil {
		return nil, errors.ReadFailed("Failed to parse chat data", err)
	}
	return summary, nil
}

// UpsertOnSend creates the summary on the first message. Later messages use
// an atomic increment on the recipient counter, but the create-or-update
// decision itself is not transactional.
func (r *firestoreSummaryRepository) UpsertOnSend(ctx context.Context, update repository.SendUpdate) error {
	ref := r.chats().Doc(update.ConversationID)

	var ts interface{} = firestore.ServerTimestamp
	if !update.Timestamp.IsZero() {
		ts = update.Timestamp
	}

	_, err := ref.Create(ctx, map[string]interface{}{
		"id":            update.ConversationID,
		"participants":  []string{update.Participants[0], update.Participants[1]},
		"driverId":      update.RecipientID,
		"userId":        update.SenderID,
		"lastMessage":   update.Text,
		"lastTimestamp": ts,
		"unreadCount": map[string]interface{}{
			update.RecipientID: 1,
			update.SenderID:    0,
		},
	})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.AlreadyExists {
		log.Printf("UpsertOnSend Error: failed to create chat %s: %v", update.ConversationID, err)
		return errors.WriteFailed("Failed to create chat", err)
	}

	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "lastMessage", Value: update.Text},
		{Path: "lastTimestamp", Value: ts},
		{FieldPath: firestore.FieldPath{"unreadCount", update.RecipientID}, Value: firestore.Increment(1)},
	})
	if err != nil {
		log.Printf("UpsertOnSend Error: failed to update chat %s: %v", update.ConversationID, err)
		return errors.WriteFailed("Failed to update chat", err)
	}

	return nil
}

func (r *firestoreSummaryRepository) ResetUnread(ctx context.Context, conversationID, participantID string) error {
	_, err := r.chats().Doc(conversationID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"unreadCount", participantID}, Value: 0},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return errors.WriteFailed("Failed to reset unread count", err)
	}
	return nil
}

func (r *firestoreSummaryRepository) participantQuery(participantID string) firestore.Query {
	// No OrderBy: ordering is done client-side so the query needs no composite index.
	return r.chats().Where("participants", "array-contains", participantID)
}

func (r *firestoreSummaryRepository) ListForParticipant(ctx context.Context, participantID string) ([]*entity.ConversationSummary, error) {
	docs, err := r.participantQuery(participantID).Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while fetching chats for participant %s: %v", participantID, err)
		return nil, errors.ReadFailed("Failed to fetch chats", err)
	}

	return decodeSummaries(docs), nil
}

func (r *firestoreSummaryRepository) SubscribeForParticipant(ctx context.Context, participantID string, onUpdate repository.SummaryUpdateFunc, onError repository.SubscriptionErrorFunc) (repository.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.SubscriptionFailed("Failed to subscribe to chats", err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	sub := &firestoreSubscription{cancel: cancel}
	sub.active.Store(true)

	it := r.participantQuery(participantID).Snapshots(listenCtx)

	go sub.listen(listenCtx, it, "chats of "+participantID, func(snap *firestore.QuerySnapshot) {
		docs, err := snap.Documents.GetAll()
		if err != nil {
			log.Printf("SubscribeForParticipant Error: failed to read chats for %s: %v", participantID, err)
			return
		}
		onUpdate(decodeSummaries(docs))
	}, onError)

	return sub, nil
}

func decodeSummary(doc *firestore.DocumentSnapshot) (*entity.ConversationSummary, error) {
	var summary entity.ConversationSummary
	if err := doc.DataTo(&summary); err != nil {
		return nil, err
	}
	summary.ID = doc.Ref.ID
	summary.Normalize()
	return &summary, nil
}

func decodeSummaries(docs []*firestore.DocumentSnapshot) []*entity.ConversationSummary {
	summaries := make([]*entity.ConversationSummary, 0, len(docs))
	for _, doc := range docs {
		summary, err := decodeSummary(doc)
		if err != nil {
			log.Printf("Error parsing chat %s: %v", doc.Ref.ID, err)
			continue // Skip bad data instead of failing
		}
		summaries = append(summaries, summary)
	}

	entity.SortSummaries(summaries)
	return summaries
}
