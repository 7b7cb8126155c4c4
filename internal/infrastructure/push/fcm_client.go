package push

import (
	"context"

	"firebase.google.com/go/v4/messaging"

	"transportchat/internal/domain/service"
	"transportchat/pkg/errors"
)

// FCMClient sends notifications with Firebase Cloud Messaging, for clients
// that register native FCM tokens instead of Expo tokens.
type FCMClient struct {
	client *messaging.Client
}

func NewFCMClient(client *messaging.Client) *FCMClient {
	return &FCMClient{client: client}
}

func (c *FCMClient) Dispatch(ctx context.Context, n service.PushNotification) error {
	_, err := c.client.Send(ctx, buildFCMMessage(n, service.CurrentDisplayPolicy()))
	if err != nil {
		return errors.NotificationFailed("FCM send failed", err)
	}
	return nil
}

func buildFCMMessage(n service.PushNotification, policy service.DisplayPolicy) *messaging.Message {
	msg := &messaging.Message{
		Token: n.To,
		Data:  n.Data,
		Android: &messaging.AndroidConfig{
			Priority:     "high",
			Notification: &messaging.AndroidNotification{},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{}},
		},
	}

	if policy.PlaySound {
		msg.Android.Notification.Sound = "default"
		msg.APNS.Payload.Aps.Sound = "default"
	}

	if policy.SetBadge && n.Badge > 0 {
		badge := n.Badge
		msg.APNS.Payload.Aps.Badge = &badge
		msg.Android.Notification.NotificationCount = &badge
	}

	if policy.ShowAlert {
		msg.Notification = &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		}
	} else {
		// Data-only delivery; the app decides whether to show anything.
		msg.Android.Notification = nil
		msg.APNS.Payload.Aps.ContentAvailable = true
	}

	return msg
}
