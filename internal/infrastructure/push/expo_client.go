package push

import (
	"context"
	"net/http"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"

	"transportchat/internal/domain/service"
	"transportchat/pkg/errors"
)

// ExpoClient sends notifications through the Expo push service, which is
// where the mobile app registers its delivery tokens.
type ExpoClient struct {
	host        string
	accessToken string
	timeout     time.Duration
}

// NewExpoClient targets host (expo.DefaultHost when empty). The SDK appends
// the /--/api/v2/push/send path.
func NewExpoClient(host, accessToken string, timeout time.Duration) *ExpoClient {
	if host == "" {
		host = expo.DefaultHost
	}
	return &ExpoClient{
		host:        host,
		accessToken: accessToken,
		timeout:     timeout,
	}
}

// pushClient builds an SDK client whose HTTP timeout never outlives ctx,
// since Publish takes no context.
func (c *ExpoClient) pushClient(ctx context.Context) *expo.PushClient {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	return expo.NewPushClient(&expo.ClientConfig{
		Host:        c.host,
		AccessToken: c.accessToken,
		HTTPClient:  &http.Client{Timeout: timeout},
	})
}

// buildExpoMessage applies the display policy to n.
func buildExpoMessage(token expo.ExponentPushToken, n service.PushNotification, policy service.DisplayPolicy) *expo.PushMessage {
	msg := &expo.PushMessage{
		To:       []expo.ExponentPushToken{token},
		Body:     n.Body,
		Data:     n.Data,
		Priority: expo.DefaultPriority,
	}
	if policy.ShowAlert {
		msg.Title = n.Title
	}
	if policy.PlaySound {
		msg.Sound = "default"
	}
	if policy.SetBadge && n.Badge > 0 {
		msg.Badge = n.Badge
	}
	return msg
}

// Dispatch publishes a single message and checks its ticket.
func (c *ExpoClient) Dispatch(ctx context.Context, n service.PushNotification) error {
	if err := ctx.Err(); err != nil {
		return errors.NotificationFailed("Push cancelled", err)
	}

	token, err := expo.NewExponentPushToken(n.To)
	if err != nil {
		return errors.NotificationFailed("Invalid Expo push token", err)
	}

	resp, err := c.pushClient(ctx).Publish(buildExpoMessage(token, n, service.CurrentDisplayPolicy()))
	if err != nil {
		return errors.NotificationFailed("Push request failed", err)
	}
	if err := resp.ValidateResponse(); err != nil {
		return errors.NotificationFailed("Push ticket rejected", err)
	}

	return nil
}
