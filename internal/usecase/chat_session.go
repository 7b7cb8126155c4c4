package usecase

import (
	"context"
	"sync"

	"transportchat/internal/domain/entity"
	"transportchat/internal/domain/repository"
	"transportchat/internal/domain/service"
	"transportchat/pkg/errors"
	"transportchat/pkg/logger"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateInitializing
	StateLive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ChatSession is one participant's live view of a two-party conversation.
// A session is opened once and closed once; it cannot be reused.
type ChatSession struct {
	uc       *ChatUseCase
	identity service.IdentitySource

	mu              sync.Mutex
	state           SessionState
	selfID          string
	counterpartID   string
	conversationID  string
	sub             repository.Subscription
	messages        []*entity.Message
	subscriptionErr error
}

// Open subscribes to the conversation with counterpartID and marks it read
// for the caller. onUpdate receives the full ordered message list.
func (s *ChatSession) Open(ctx context.Context, counterpartID string, onUpdate repository.MessageUpdateFunc, onError repository.SubscriptionErrorFunc) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return errors.SessionNotLive(state.String())
	}

	selfID, counterpartID, err := resolveParticipants(s.identity, counterpartID)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.state = StateInitializing
	s.selfID = selfID
	s.counterpartID = counterpartID
	s.conversationID = entity.DeriveConversationID(selfID, counterpartID)
	conversationID := s.conversationID
	s.mu.Unlock()

	sub, err := s.uc.messageRepo.Subscribe(ctx, conversationID, s.forward(onUpdate), s.fail(onError))
	if err != nil {
		logger.Error("OpenSession Error: failed to subscribe to %s: %v", conversationID, err)
		s.mu.Lock()
		if s.state == StateInitializing {
			s.state = StateIdle
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return errors.SessionNotLive(StateClosed.String())
	}
	s.state = StateLive
	s.sub = sub
	s.mu.Unlock()

	logger.BestEffort("ResetUnread", conversationID, s.uc.summaryRepo.ResetUnread(ctx, conversationID, selfID))
	logger.Debug("Chat session live: conversation=%s participant=%s", conversationID, selfID)
	return nil
}

func (s *ChatSession) forward(onUpdate repository.MessageUpdateFunc) repository.MessageUpdateFunc {
	return func(messages []*entity.Message) {
		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			return
		}
		s.messages = messages
		s.mu.Unlock()

		if onUpdate != nil {
			onUpdate(messages)
		}
	}
}

func (s *ChatSession) fail(onError repository.SubscriptionErrorFunc) repository.SubscriptionErrorFunc {
	return func(err error) {
		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			return
		}
		s.subscriptionErr = err
		conversationID := s.conversationID
		s.mu.Unlock()

		logger.Error("Chat session Error: live updates for %s stopped: %v", conversationID, err)
		if onError != nil {
			onError(err)
		}
	}
}

// Send posts text as the caller. Blank text, or an identity that has lapsed
// since Open, is ignored and returns a nil message.
func (s *ChatSession) Send(ctx context.Context, text string) (*entity.Message, error) {
	s.mu.Lock()
	state := s.state
	selfID := s.selfID
	counterpartID := s.counterpartID
	s.mu.Unlock()

	if state != StateLive {
		return nil, errors.SessionNotLive(state.String())
	}

	current, ok := s.identity.ParticipantID()
	if !ok || current != selfID {
		logger.Debug("Send ignored: identity for %s is no longer valid", selfID)
		return nil, nil
	}

	return s.uc.send(ctx, selfID, counterpartID, text)
}

// Close stops forwarding updates and releases the subscription. It is safe
// to call more than once.
func (s *ChatSession) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (s *ChatSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ChatSession) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns the last list delivered by the subscription.
func (s *ChatSession) Messages() []*entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages
}

// SubscriptionErr reports the error that stopped live updates, if any. The
// session stays usable for sending.
func (s *ChatSession) SubscriptionErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptionErr
}
