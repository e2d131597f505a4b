package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/choregame/internal/email"
	"github.com/dukerupert/choregame/internal/metrics"
	"github.com/dukerupert/choregame/internal/model"
	"github.com/dukerupert/choregame/internal/push"
)

// Kind identifies a transition. It doubles as the mail ledger type.
type Kind string

const (
	KindEventCompleted    Kind = model.MailEventCompleted
	KindEventChallenged   Kind = model.MailEventChallenged
	KindChallengeAccepted Kind = model.MailChallengeAccepted
	KindChallengeRejected Kind = model.MailChallengeRejected
)

// Template returns the email template sent for the transition.
func (k Kind) Template() email.Template {
	switch k {
	case KindEventCompleted:
		return email.NotifyPlayers
	case KindEventChallenged:
		return email.ChallengeNotification
	case KindChallengeAccepted:
		return email.ChallengeAccepted
	case KindChallengeRejected:
		return email.ChallengeRejected
	}
	return ""
}

const (
	defaultFanOutLimit = 8
	defaultRoute       = "GameView"
)

// Mailer sends a templated email to one address.
type Mailer interface {
	Send(ctx context.Context, tmpl email.Template, to string, data email.Data) error
}

// Payload is the transition content rendered for every party.
type Payload struct {
	GameID        int64
	ActorName     string
	CompleterName string
	TaskName      string
	Description   string
	PushTitle     string
	PushBody      string
	// BadgeDelta is added to each party's stored badge for the push badge count.
	BadgeDelta int
	Route      string
}

func (p Payload) emailData(party Party) email.Data {
	return email.Data{
		RecipientName: party.Username,
		ActorName:     p.ActorName,
		CompleterName: p.CompleterName,
		TaskName:      p.TaskName,
		Description:   p.Description,
		GameID:        p.GameID,
	}
}

func (p Payload) pushMessage(party Party) push.Message {
	route := p.Route
	if route == "" {
		route = defaultRoute
	}
	return push.Message{
		Token: party.DeviceToken,
		Title: p.PushTitle,
		Body:  p.PushBody,
		Badge: party.Badge + p.BadgeDelta,
		Data: map[string]string{
			"gameId": strconv.FormatInt(p.GameID, 10),
			"route":  route,
		},
	}
}

// Outcome is the result of one channel for one party.
type Outcome struct {
	Attempted bool
	Err       error
}

// OK reports whether the channel was attempted and succeeded.
func (o Outcome) OK() bool {
	return o.Attempted && o.Err == nil
}

// Delivery records what happened for one party during a fan-out.
type Delivery struct {
	UserID int64
	Email  Outcome
	Push   Outcome
}

// TokenClearer forgets a device token the push transport reported as expired.
type TokenClearer interface {
	ClearDeviceToken(ctx context.Context, gameID, userID int64, token string) error
}

// Notifier delivers transition notifications by email and push.
type Notifier struct {
	mailer  Mailer
	pusher  push.Sender
	tokens  TokenClearer
	limit   int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewNotifier creates a Notifier. A nil mailer or pusher disables that
// channel. limit bounds concurrent sends; values below 1 use the default.
// tokens may be nil, in which case expired device tokens are only logged.
func NewNotifier(mailer Mailer, pusher push.Sender, tokens TokenClearer, limit int, logger *slog.Logger, m *metrics.Metrics) *Notifier {
	if limit < 1 {
		limit = defaultFanOutLimit
	}
	return &Notifier{
		mailer:  mailer,
		pusher:  pusher,
		tokens:  tokens,
		limit:   limit,
		logger:  logger,
		metrics: m,
	}
}

// FanOut sends kind to every party concurrently. Email goes to parties with
// event notifications on, push to parties with a device token. Failures are
// logged and recorded in the returned deliveries, which are in party order.
func (n *Notifier) FanOut(ctx context.Context, kind Kind, parties []Party, payload Payload) []Delivery {
	deliveries := make([]Delivery, len(parties))

	var g errgroup.Group
	g.SetLimit(n.limit)

	for i, p := range parties {
		deliveries[i].UserID = p.UserID

		if p.EventNotifications && p.Email != "" && n.mailer != nil {
			deliveries[i].Email.Attempted = true
			g.Go(func() error {
				err := supervise(func() error {
					return n.mailer.Send(ctx, kind.Template(), p.Email, payload.emailData(p))
				})
				deliveries[i].Email.Err = err
				n.observe(ctx, kind, "email", p, err)
				return nil
			})
		}

		if p.DeviceToken != "" && n.pusher != nil {
			deliveries[i].Push.Attempted = true
			g.Go(func() error {
				err := supervise(func() error {
					return n.pusher.Send(ctx, payload.pushMessage(p))
				})
				deliveries[i].Push.Err = err
				n.observe(ctx, kind, "push", p, err)
				if errors.Is(err, push.ErrExpired) {
					n.clearToken(ctx, payload.GameID, p)
				}
				return nil
			})
		}
	}

	g.Wait()
	return deliveries
}

func (n *Notifier) observe(ctx context.Context, kind Kind, channel string, p Party, err error) {
	if err != nil {
		n.metrics.Deliveries.WithLabelValues(string(kind), channel, metrics.ResultError).Inc()
		n.logger.WarnContext(ctx, "notification delivery failed",
			"kind", kind,
			"channel", channel,
			"user_id", p.UserID,
			"error", err,
		)
		return
	}
	n.metrics.Deliveries.WithLabelValues(string(kind), channel, metrics.ResultOK).Inc()
	n.logger.DebugContext(ctx, "notification delivered",
		"kind", kind,
		"channel", channel,
		"user_id", p.UserID,
	)
}

func (n *Notifier) clearToken(ctx context.Context, gameID int64, p Party) {
	if n.tokens == nil {
		return
	}
	if err := n.tokens.ClearDeviceToken(ctx, gameID, p.UserID, p.DeviceToken); err != nil {
		n.logger.WarnContext(ctx, "clear expired device token",
			"game_id", gameID,
			"user_id", p.UserID,
			"error", err,
		)
		return
	}
	n.logger.InfoContext(ctx, "cleared expired device token",
		"game_id", gameID,
		"user_id", p.UserID,
	)
}

// supervise runs f, converting a panic into an error.
func supervise(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f()
}
