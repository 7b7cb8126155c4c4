package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"transportchat/internal/domain/entity"
	"transportchat/internal/domain/repository"
	"transportchat/pkg/errors"
)

// serverClock plays the part of the backend's server timestamp: every call
// returns an instant strictly after the previous one.
type serverClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newServerClock(now func() time.Time) *serverClock {
	if now == nil {
		now = time.Now
	}
	return &serverClock{now: now}
}

func (c *serverClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

type memorySubscription struct {
	active atomic.Bool
	once   sync.Once
	remove func()

	stopMu sync.Mutex
	stop   func() bool
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		s.stopWatch()
		s.remove()
	})
}

// watch ties the subscription to ctx so a cancelled caller stops delivery.
// Unsubscribe releases the registration on ctx.
func (s *memorySubscription) watch(ctx context.Context) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	s.stop = context.AfterFunc(ctx, s.Unsubscribe)
}

// stopWatch detaches from the watched context. It reports whether the
// registration was still pending.
func (s *memorySubscription) stopWatch() bool {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stop == nil {
		return false
	}
	return s.stop()
}

type messageSubscriber struct {
	memorySubscription
	onUpdate repository.MessageUpdateFunc
}

func (s *messageSubscriber) deliver(messages []*entity.Message) {
	if s.active.Load() {
		s.onUpdate(messages)
	}
}

// memoryMessageRepository keeps every conversation log in process memory.
// Deliveries are serialized so subscribers never observe an older list after
// a newer one; callbacks must not append from inside onUpdate.
type memoryMessageRepository struct {
	mu       sync.Mutex
	notifyMu sync.Mutex
	clock    *serverClock
	messages map[string][]*entity.Message
	subs     map[string]map[*messageSubscriber]struct{}
}

func NewMemoryMessageRepository(now func() time.Time) repository.MessageRepository {
	return &memoryMessageRepository{
		clock:    newServerClock(now),
		messages: make(map[string][]*entity.Message),
		subs:     make(map[string]map[*messageSubscriber]struct{}),
	}
}

func (r *memoryMessageRepository) Subscribe(ctx context.Context, conversationID string, onUpdate repository.MessageUpdateFunc, onError repository.SubscriptionErrorFunc) (repository.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.SubscriptionFailed("Failed to subscribe to messages", err)
	}

	sub := &messageSubscriber{onUpdate: onUpdate}
	sub.active.Store(true)
	sub.remove = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if set, ok := r.subs[conversationID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(r.subs, conversationID)
			}
		}
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if r.subs[conversationID] == nil {
		r.subs[conversationID] = make(map[*messageSubscriber]struct{})
	}
	r.subs[conversationID][sub] = struct{}{}
	snapshot := r.snapshotLocked(conversationID)
	r.mu.Unlock()

	sub.watch(ctx)
	sub.deliver(snapshot)

	return sub, nil
}

func (r *memoryMessageRepository) Append(ctx context.Context, conversationID string, message *entity.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.WriteFailed("Failed to create message", err)
	}
	if strings.TrimSpace(message.Text) == "" {
		return "", errors.BadRequest("Message text is required", nil)
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	stored := *message
	stored.ID = uuid.New().String()
	if stored.Timestamp.IsZero() {
		stored.Timestamp = r.clock.Next()
	}
	r.messages[conversationID] = append(r.messages[conversationID], &stored)

	subs := make([]*messageSubscriber, 0, len(r.subs[conversationID]))
	for sub := range r.subs[conversationID] {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	message.ID = stored.ID
	message.Timestamp = stored.Timestamp

	for _, sub := range subs {
		r.mu.Lock()
		snapshot := r.snapshotLocked(conversationID)
		r.mu.Unlock()
		sub.deliver(snapshot)
	}

	return stored.ID, nil
}

func (r *memoryMessageRepository) snapshotLocked(conversationID string) []*entity.Message {
	stored := r.messages[conversationID]
	snapshot := make([]*entity.Message, 0, len(stored))
	for _, m := range stored {
		c := *m
		snapshot = append(snapshot, &c)
	}
	entity.SortMessages(snapshot)
	return snapshot
}

type summarySubscriber struct {
	memorySubscription
	participantID string
	onUpdate      repository.SummaryUpdateFunc
}

func (s *summarySubscriber) deliver(summaries []*entity.ConversationSummary) {
	if s.active.Load() {
		s.onUpdate(summaries)
	}
}

// memorySummaryRepository mirrors the Firestore chats collection in memory.
type memorySummaryRepository struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	clock     *serverClock
	summaries map[string]*entity.ConversationSummary
	subs      map[string]map[*summarySubscriber]struct{}
}

func NewMemorySummaryRepository(now func() time.Time) repository.SummaryRepository {
	return &memorySummaryRepository{
		clock:     newServerClock(now),
		summaries: make(map[string]*entity.ConversationSummary),
		subs:      make(map[string]map[*summarySubscriber]struct{}),
	}
}

func (r *memorySummaryRepository) Get(ctx context.Context, conversationID string) (*entity.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ReadFailed("Failed to get chat summary", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.summaries[conversationID]
	if !ok {
		return nil, nil
	}
	c := s.Clone()
	c.Normalize()
	return c, nil
}

func (r *memorySummaryRepository) UpsertOnSend(ctx context.Context, update repository.SendUpdate) error {
	if err := ctx.Err(); err != nil {
		return errors.WriteFailed("Failed to update chat summary", err)
	}

	ts := update.Timestamp
	if ts.IsZero() {
		ts = r.clock.Next()
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	s, ok := r.summaries[update.ConversationID]
	if !ok {
		s = &entity.ConversationSummary{
			ID:            update.ConversationID,
			Participants:  []string{update.Participants[0], update.Participants[1]},
			DriverID:      update.RecipientID,
			UserID:        update.SenderID,
			LastMessage:   update.Text,
			LastTimestamp: ts,
			UnreadCount: map[string]int{
				update.RecipientID: 1,
				update.SenderID:    0,
			},
		}
		r.summaries[update.ConversationID] = s
	} else {
		s.LastMessage = update.Text
		s.LastTimestamp = ts
		if s.UnreadCount == nil {
			s.UnreadCount = make(map[string]int)
		}
		s.UnreadCount[update.RecipientID]++
	}
	participants := append([]string(nil), s.Participants...)
	r.mu.Unlock()

	r.notifyParticipants(participants)
	return nil
}

func (r *memorySummaryRepository) ResetUnread(ctx context.Context, conversationID, participantID string) error {
	if err := ctx.Err(); err != nil {
		return errors.WriteFailed("Failed to reset unread count", err)
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	s, ok := r.summaries[conversationID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if s.UnreadCount == nil {
		s.UnreadCount = make(map[string]int)
	}
	s.UnreadCount[participantID] = 0
	participants := append([]string(nil), s.Participants...)
	r.mu.Unlock()

	r.notifyParticipants(participants)
	return nil
}

func (r *memorySummaryRepository) ListForParticipant(ctx context.Context, participantID string) ([]*entity.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ReadFailed("Failed to list chats", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(participantID), nil
}

func (r *memorySummaryRepository) SubscribeForParticipant(ctx context.Context, participantID string, onUpdate repository.SummaryUpdateFunc, onError repository.SubscriptionErrorFunc) (repository.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.SubscriptionFailed("Failed to subscribe to chats", err)
	}

	sub := &summarySubscriber{participantID: participantID, onUpdate: onUpdate}
	sub.active.Store(true)
	sub.remove = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if set, ok := r.subs[participantID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(r.subs, participantID)
			}
		}
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if r.subs[participantID] == nil {
		r.subs[participantID] = make(map[*summarySubscriber]struct{})
	}
	r.subs[participantID][sub] = struct{}{}
	snapshot := r.listLocked(participantID)
	r.mu.Unlock()

	sub.watch(ctx)
	sub.deliver(snapshot)

	return sub, nil
}

// notifyParticipants must be called with notifyMu held.
func (r *memorySummaryRepository) notifyParticipants(participants []string) {
	for _, p := range participants {
		r.mu.Lock()
		subs := make([]*summarySubscriber, 0, len(r.subs[p]))
		for sub := range r.subs[p] {
			subs = append(subs, sub)
		}
		r.mu.Unlock()

		for _, sub := range subs {
			r.mu.Lock()
			snapshot := r.listLocked(p)
			r.mu.Unlock()
			sub.deliver(snapshot)
		}
	}
}

func (r *memorySummaryRepository) listLocked(participantID string) []*entity.ConversationSummary {
	var out []*entity.ConversationSummary
	for _, s := range r.summaries {
		if s.HasParticipant(participantID) {
			c := s.Clone()
			c.Normalize()
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	entity.SortSummaries(out)
	if out == nil {
		out = []*entity.ConversationSummary{}
	}
	return out
}
