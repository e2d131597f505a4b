package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Payload is the JSON sent to the browser push service.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	URL   string            `json:"url,omitempty"`
	Tag   string            `json:"tag,omitempty"`
	Badge int               `json:"badge,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// Config holds VAPID configuration.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

// WebPush sends notifications to browser subscriptions using VAPID.
type WebPush struct {
	publicKey  string
	privateKey string
	subscriber string
	httpClient *http.Client
}

// NewWebPush creates a web push sender with VAPID keys.
func NewWebPush(cfg Config) *WebPush {
	subscriber := cfg.Subscriber
	if subscriber == "" {
		subscriber = "noreply@choregame.app"
	}
	return &WebPush{
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		subscriber: subscriber,
	}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *WebPush) VAPIDPublicKey() string {
	return s.publicKey
}

// Send decodes msg.Token as a PushSubscription and delivers the payload.
func (s *WebPush) Send(ctx context.Context, msg Message) error {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(msg.Token), &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	if sub.Endpoint == "" {
		return fmt.Errorf("decode subscription: missing endpoint")
	}

	payload := Payload{
		Title: msg.Title,
		Body:  msg.Body,
		Badge: msg.Badge,
		Data:  msg.Data,
	}
	if route, ok := msg.Data["route"]; ok {
		payload.Tag = route
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	opts := &webpush.Options{
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      s.subscriber,
		TTL:             86400,
	}
	if s.httpClient != nil {
		opts.HTTPClient = s.httpClient
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &sub, opts)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}
