package service

import (
	"context"
	"sync"
	"sync/atomic"
)

// PushNotification is the provider-neutral payload sent to a delivery token.
type PushNotification struct {
	To    string
	Title string
	Body  string
	Data  map[string]string
	// Badge is the recipient's unread total, 0 when unknown.
	Badge int
}

// NotificationDispatcher delivers a push notification. Callers treat it as
// fire-and-forget: no delivery confirmation is consumed.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, notification PushNotification) error
}

// NoopDispatcher drops every notification.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(ctx context.Context, notification PushNotification) error {
	return nil
}

// DisplayPolicy controls how a notification is presented on the device.
type DisplayPolicy struct {
	ShowAlert bool
	PlaySound bool
	SetBadge  bool
}

var (
	displayPolicy     atomic.Pointer[DisplayPolicy]
	displayPolicyOnce sync.Once
)

// InitDisplayPolicy fixes the process-wide display policy. Only the first call
// has an effect; it returns false for every later call.
func InitDisplayPolicy(p DisplayPolicy) bool {
	applied := false
	displayPolicyOnce.Do(func() {
		displayPolicy.Store(&p)
		applied = true
	})
	return applied
}

// DefaultDisplayPolicy matches the mobile client's handler: alert and sound
// on, badge off.
var DefaultDisplayPolicy = DisplayPolicy{ShowAlert: true, PlaySound: true, SetBadge: false}

// CurrentDisplayPolicy returns the policy in effect, or DefaultDisplayPolicy
// until InitDisplayPolicy runs.
func CurrentDisplayPolicy() DisplayPolicy {
	if p := displayPolicy.Load(); p != nil {
		return *p
	}
	return DefaultDisplayPolicy
}
