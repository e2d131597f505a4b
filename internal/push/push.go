// Package push delivers device notifications. A device token is either an FCM
// registration token or the JSON form of a browser PushSubscription; Router
// sends each to the matching transport.
package push

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrExpired is returned when a device token is no longer valid.
	ErrExpired = errors.New("push subscription expired")
	// ErrNotConfigured is returned when no transport handles the token.
	ErrNotConfigured = errors.New("push transport not configured")
)

// Message is a single device notification.
type Message struct {
	Token string
	Title string
	Body  string
	Badge int
	Data  map[string]string
}

// Sender delivers one message to one device.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// IsWebSubscription reports whether token holds a browser PushSubscription.
func IsWebSubscription(token string) bool {
	return strings.HasPrefix(strings.TrimSpace(token), "{")
}

// Router dispatches messages to web push or FCM based on the token.
type Router struct {
	Web    Sender
	Mobile Sender
}

func (r *Router) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return errors.New("push: empty device token")
	}
	target := r.Mobile
	if IsWebSubscription(msg.Token) {
		target = r.Web
	}
	if target == nil {
		return ErrNotConfigured
	}
	return target.Send(ctx, msg)
}
