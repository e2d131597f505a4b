package push

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMConfig selects the Firebase service account. CredentialsJSON wins over
// CredentialsFile when both are set.
type FCMConfig struct {
	CredentialsJSON []byte
	CredentialsFile string
}

// FCM sends notifications to mobile devices through Firebase Cloud Messaging.
type FCM struct {
	client *messaging.Client
}

// NewFCM initializes the Firebase messaging client.
func NewFCM(ctx context.Context, cfg FCMConfig) (*FCM, error) {
	var opt option.ClientOption
	switch {
	case len(cfg.CredentialsJSON) > 0:
		opt = option.WithCredentialsJSON(cfg.CredentialsJSON)
	case cfg.CredentialsFile != "":
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("firebase credentials: %w", err)
		}
		opt = option.WithCredentialsFile(cfg.CredentialsFile)
	default:
		return nil, fmt.Errorf("firebase credentials: %w", ErrNotConfigured)
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}
	return &FCM{client: client}, nil
}

// Send delivers msg to a single registration token.
func (f *FCM) Send(ctx context.Context, msg Message) error {
	_, err := f.client.Send(ctx, buildFCMMessage(msg))
	if err != nil {
		if messaging.IsUnregistered(err) {
			return ErrExpired
		}
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

func buildFCMMessage(msg Message) *messaging.Message {
	badge := msg.Badge
	return &messaging.Message{
		Token: msg.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:             "default",
				NotificationCount: &badge,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Badge: &badge,
					Sound: "default",
				},
			},
		},
	}
}
