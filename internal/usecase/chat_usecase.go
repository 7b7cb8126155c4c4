package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"transportchat/internal/domain/entity"
	"transportchat/internal/domain/repository"
	"transportchat/internal/domain/service"
	"transportchat/internal/infrastructure/ratelimit"
	"transportchat/pkg/errors"
	"transportchat/pkg/logger"
)

const (
	DefaultNotificationTitle = "Nuevo mensaje"
	DefaultPushTimeout       = 10 * time.Second

	testNotificationTitle = "Prueba de Notificación"
	testNotificationBody  = "Si ves esto, las notificaciones funcionan correctamente."
)

type ChatUseCaseConfig struct {
	NotificationTitle string
	PushTimeout       time.Duration
}

type ChatUseCase struct {
	messageRepo repository.MessageRepository
	summaryRepo repository.SummaryRepository
	profileRepo repository.ProfileRepository
	dispatcher  service.NotificationDispatcher
	rateLimiter *ratelimit.RateLimiter

	notificationTitle string
	pushTimeout       time.Duration

	notifications sync.WaitGroup
}

// NewChatUseCase wires the chat operations. A nil rateLimiter disables
// send limits and a nil dispatcher drops notifications.
func NewChatUseCase(
	messageRepo repository.MessageRepository,
	summaryRepo repository.SummaryRepository,
	profileRepo repository.ProfileRepository,
	dispatcher service.NotificationDispatcher,
	rateLimiter *ratelimit.RateLimiter,
	cfg ChatUseCaseConfig,
) *ChatUseCase {
	if dispatcher == nil {
		dispatcher = service.NoopDispatcher{}
	}
	if cfg.NotificationTitle == "" {
		cfg.NotificationTitle = DefaultNotificationTitle
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultPushTimeout
	}

	return &ChatUseCase{
		messageRepo:       messageRepo,
		summaryRepo:       summaryRepo,
		profileRepo:       profileRepo,
		dispatcher:        dispatcher,
		rateLimiter:       rateLimiter,
		notificationTitle: cfg.NotificationTitle,
		pushTimeout:       cfg.PushTimeout,
	}
}

type UnreadStatus struct {
	Total     int  `json:"total"`
	HasUnread bool `json:"has_unread"`
}

// OpenSession starts a live chat between the identity's participant and
// counterpartID. ctx bounds the session's subscription.
func (uc *ChatUseCase) OpenSession(ctx context.Context, identity service.IdentitySource, counterpartID string, onUpdate repository.MessageUpdateFunc, onError repository.SubscriptionErrorFunc) (*ChatSession, error) {
	session := uc.NewSession(identity)
	if err := session.Open(ctx, counterpartID, onUpdate, onError); err != nil {
		return nil, err
	}
	return session, nil
}

// NewSession returns an Idle session bound to this use case's stores.
func (uc *ChatUseCase) NewSession(identity service.IdentitySource) *ChatSession {
	return &ChatSession{
		uc:       uc,
		identity: identity,
		state:    StateIdle,
	}
}

// SendMessage sends one message without keeping a session open. Blank text
// is ignored and returns a nil message.
func (uc *ChatUseCase) SendMessage(ctx context.Context, identity service.IdentitySource, counterpartID, text string) (*entity.Message, error) {
	selfID, counterpartID, err := resolveParticipants(identity, counterpartID)
	if err != nil {
		return nil, err
	}
	return uc.send(ctx, selfID, counterpartID, text)
}

// send appends the message, updates the summary and notifies the
// counterpart. Only the append can fail the send.
func (uc *ChatUseCase) send(ctx context.Context, selfID, counterpartID, text string) (*entity.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	if uc.rateLimiter != nil {
		if allowed, wait := uc.rateLimiter.Allow(selfID, ratelimit.ActionSendMessage); !allowed {
			logger.Warn("SendMessage Rate Limited: participant %s must wait %v", selfID, wait)
			return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message", wait)
		}
	}

	conversationID := entity.DeriveConversationID(selfID, counterpartID)
	msg := &entity.Message{
		Text:     text,
		SenderID: selfID,
	}
	if _, err := uc.messageRepo.Append(ctx, conversationID, msg); err != nil {
		logger.Error("SendMessage Error: failed to append to %s: %v", conversationID, err)
		return nil, err
	}

	err := uc.summaryRepo.UpsertOnSend(ctx, repository.SendUpdate{
		ConversationID: conversationID,
		Participants:   [2]string{selfID, counterpartID},
		SenderID:       selfID,
		RecipientID:    counterpartID,
		Text:           text,
		Timestamp:      msg.Timestamp,
	})
	logger.BestEffort("UpsertOnSend", conversationID, err)

	uc.notifyMessage(ctx, counterpartID, conversationID, text)

	return msg, nil
}

// notifyMessage pushes a notification to the recipient in the background.
// It outlives the caller's context but not PushTimeout.
func (uc *ChatUseCase) notifyMessage(ctx context.Context, recipientID, conversationID, text string) {
	uc.notifications.Add(1)
	go func() {
		defer uc.notifications.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.pushTimeout)
		defer cancel()

		token, err := uc.profileRepo.GetDeliveryToken(ctx, recipientID)
		if err != nil {
			logger.BestEffort("GetDeliveryToken", conversationID, err)
			return
		}
		if token == "" {
			logger.Debug("No push token for participant %s", recipientID)
			return
		}

		badge := 0
		if service.CurrentDisplayPolicy().SetBadge {
			if status, err := uc.UnreadTotal(ctx, recipientID); err == nil {
				badge = status.Total
			}
		}

		err = uc.dispatcher.Dispatch(ctx, service.PushNotification{
			To:    token,
			Title: uc.notificationTitle,
			Body:  text,
			Data:  map[string]string{"chatId": conversationID},
			Badge: badge,
		})
		logger.BestEffort("Dispatch", conversationID, err)
	}()
}

// Wait blocks until background notifications have finished.
func (uc *ChatUseCase) Wait() {
	uc.notifications.Wait()
}

// LoadMessages returns the first snapshot of the conversation's messages.
func (uc *ChatUseCase) LoadMessages(ctx context.Context, selfID, counterpartID string) ([]*entity.Message, error) {
	selfID, counterpartID, err := resolveParticipants(service.StaticIdentity(selfID), counterpartID)
	if err != nil {
		return nil, err
	}
	conversationID := entity.DeriveConversationID(selfID, counterpartID)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	first := make(chan []*entity.Message, 1)
	failed := make(chan error, 1)

	sub, err := uc.messageRepo.Subscribe(subCtx, conversationID, func(messages []*entity.Message) {
		select {
		case first <- messages:
		default:
		}
	}, func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	select {
	case messages := <-first:
		return messages, nil
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		return nil, errors.ReadFailed("Timed out loading messages", ctx.Err())
	}
}

// MarkRead clears the caller's unread counter. Backend failures are logged
// and not returned.
func (uc *ChatUseCase) MarkRead(ctx context.Context, selfID, counterpartID string) error {
	selfID, counterpartID, err := resolveParticipants(service.StaticIdentity(selfID), counterpartID)
	if err != nil {
		return err
	}
	conversationID := entity.DeriveConversationID(selfID, counterpartID)
	logger.BestEffort("ResetUnread", conversationID, uc.summaryRepo.ResetUnread(ctx, conversationID, selfID))
	return nil
}

func (uc *ChatUseCase) GetSummary(ctx context.Context, selfID, counterpartID string) (*entity.ConversationSummary, error) {
	selfID, counterpartID, err := resolveParticipants(service.StaticIdentity(selfID), counterpartID)
	if err != nil {
		return nil, err
	}

	summary, err := uc.summaryRepo.Get(ctx, entity.DeriveConversationID(selfID, counterpartID))
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, errors.NotFound("Chat", nil)
	}
	return summary, nil
}

func (uc *ChatUseCase) ListInbox(ctx context.Context, selfID string) ([]*entity.ConversationSummary, error) {
	if selfID == "" {
		return nil, errors.MissingIdentity("No authenticated participant")
	}
	return uc.summaryRepo.ListForParticipant(ctx, selfID)
}

// UnreadTotal sums the participant's counters across all conversations.
func (uc *ChatUseCase) UnreadTotal(ctx context.Context, selfID string) (UnreadStatus, error) {
	summaries, err := uc.ListInbox(ctx, selfID)
	if err != nil {
		return UnreadStatus{}, err
	}
	return SummarizeUnread(summaries, selfID), nil
}

// SummarizeUnread totals selfID's counters in summaries.
func SummarizeUnread(summaries []*entity.ConversationSummary, selfID string) UnreadStatus {
	var status UnreadStatus
	for _, s := range summaries {
		status.Total += s.Unread(selfID)
	}
	status.HasUnread = status.Total > 0
	return status
}

// WatchInbox streams the participant's summaries until the subscription is
// released or ctx ends.
func (uc *ChatUseCase) WatchInbox(ctx context.Context, selfID string, onUpdate repository.SummaryUpdateFunc, onError repository.SubscriptionErrorFunc) (repository.Subscription, error) {
	if selfID == "" {
		return nil, errors.MissingIdentity("No authenticated participant")
	}
	return uc.summaryRepo.SubscribeForParticipant(ctx, selfID, onUpdate, onError)
}

func (uc *ChatUseCase) RegisterPushToken(ctx context.Context, selfID string, role entity.Role, token string) error {
	if selfID == "" {
		return errors.MissingIdentity("No authenticated participant")
	}
	if !role.Valid() {
		return errors.BadRequest("Role must be driver or user", nil)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.BadRequest("Push token is required", nil)
	}
	return uc.profileRepo.RegisterDeliveryToken(ctx, selfID, role, token)
}

// SendTestNotification pushes a fixed message to the caller's own device and
// reports whether the provider accepted it.
func (uc *ChatUseCase) SendTestNotification(ctx context.Context, selfID string) error {
	if selfID == "" {
		return errors.MissingIdentity("No authenticated participant")
	}
	if uc.rateLimiter != nil {
		if allowed, wait := uc.rateLimiter.Allow(selfID, ratelimit.ActionPushTest); !allowed {
			return errors.TooManyRequests("Rate limit exceeded. Please wait before sending another test", wait)
		}
	}

	token, err := uc.profileRepo.GetDeliveryToken(ctx, selfID)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.NotFound("Push token", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.pushTimeout)
	defer cancel()

	err = uc.dispatcher.Dispatch(ctx, service.PushNotification{
		To:    token,
		Title: testNotificationTitle,
		Body:  testNotificationBody,
		Data:  map[string]string{"test": "true"},
	})
	if err != nil {
		logger.Error("SendTestNotification Error: participant=%s error=%v", selfID, err)
		return err
	}
	return nil
}

func resolveParticipants(identity service.IdentitySource, counterpartID string) (string, string, error) {
	if identity == nil {
		return "", "", errors.MissingIdentity("No authenticated participant")
	}
	selfID, ok := identity.ParticipantID()
	if !ok || selfID == "" {
		return "", "", errors.MissingIdentity("No authenticated participant")
	}
	if strings.TrimSpace(counterpartID) == "" {
		return "", "", errors.MissingIdentity("Counterpart id is required")
	}
	// Ids are opaque; trimming would silently address another conversation.
	if strings.TrimSpace(counterpartID) != counterpartID {
		return "", "", errors.BadRequest("Counterpart id must not have surrounding whitespace", nil)
	}
	return selfID, counterpartID, nil
}
