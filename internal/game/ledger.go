package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/choregame/internal/metrics"
	"github.com/dukerupert/choregame/internal/model"
	"github.com/dukerupert/choregame/internal/store"
)

// RewardField names a counter the reward ledger can increment.
type RewardField string

const (
	FieldBadge            RewardField = "badge"
	FieldLifetimeCurrency RewardField = "lifetimeCurrency"
)

// CompletionCurrency is the lifetime currency granted for a completed task.
const CompletionCurrency = 5

// BadgeStore increments per-game player badges.
type BadgeStore interface {
	AddPlayerBadge(ctx context.Context, gameID, userID int64, delta int) error
}

// CurrencyStore increments a user's lifetime currency.
type CurrencyStore interface {
	AddLifetimeCurrency(ctx context.Context, userID int64, delta int) error
}

// MailRecorder appends mail rows, ignoring duplicates.
type MailRecorder interface {
	Record(ctx context.Context, m model.Mail) (bool, error)
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewExponential(50*time.Millisecond))
}

// retryWrite runs f under backoff. Missing rows are not retried.
func retryWrite(ctx context.Context, b retry.Backoff, f func(ctx context.Context) error) error {
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := f(ctx)
		if err == nil || errors.Is(err, store.ErrNoRows) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// RewardLedger applies additive counter updates.
type RewardLedger struct {
	badges   BadgeStore
	currency CurrencyStore
	backoff  func() retry.Backoff
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewRewardLedger(badges BadgeStore, currency CurrencyStore, logger *slog.Logger, m *metrics.Metrics) *RewardLedger {
	return &RewardLedger{
		badges:   badges,
		currency: currency,
		backoff:  defaultBackoff,
		logger:   logger,
		metrics:  m,
	}
}

// ApplyReward adds delta to field for userID. Badges are per game; lifetime
// currency ignores gameID.
func (l *RewardLedger) ApplyReward(ctx context.Context, userID, gameID int64, delta int, field RewardField) error {
	var write func(ctx context.Context) error
	switch field {
	case FieldBadge:
		write = func(ctx context.Context) error {
			return l.badges.AddPlayerBadge(ctx, gameID, userID, delta)
		}
	case FieldLifetimeCurrency:
		write = func(ctx context.Context) error {
			return l.currency.AddLifetimeCurrency(ctx, userID, delta)
		}
	default:
		return fmt.Errorf("apply reward: unknown field %q", field)
	}

	err := retryWrite(ctx, l.backoff(), write)
	if err != nil {
		l.metrics.LedgerWrites.WithLabelValues("reward", metrics.ResultError).Inc()
		l.logger.ErrorContext(ctx, "reward write failed",
			"user_id", userID,
			"game_id", gameID,
			"field", field,
			"delta", delta,
			"error", err,
		)
		return fmt.Errorf("apply %s reward to user %d: %w", field, userID, err)
	}
	l.metrics.LedgerWrites.WithLabelValues("reward", metrics.ResultOK).Inc()
	return nil
}

// MailRefs are the references stored on a mail row.
type MailRefs struct {
	TransitionID string
	UserID       *int64
	ChallengeID  *int64
	EventID      int64
	GameID       int64
}

// MailLedger appends one mail row per transition and recipient.
type MailLedger struct {
	mail    MailRecorder
	backoff func() retry.Backoff
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewMailLedger(mail MailRecorder, logger *slog.Logger, m *metrics.Metrics) *MailLedger {
	return &MailLedger{
		mail:    mail,
		backoff: defaultBackoff,
		logger:  logger,
		metrics: m,
	}
}

// RecordMail writes the row for recipientID. Retrying after an ambiguous
// failure is safe: the transition id makes the insert idempotent.
func (l *MailLedger) RecordMail(ctx context.Context, recipientID int64, kind Kind, refs MailRefs) error {
	m := model.Mail{
		TransitionID: refs.TransitionID,
		RecipientID:  recipientID,
		UserID:       refs.UserID,
		Type:         string(kind),
		ChallengeID:  refs.ChallengeID,
		EventID:      refs.EventID,
		GameID:       refs.GameID,
	}

	var inserted bool
	err := retryWrite(ctx, l.backoff(), func(ctx context.Context) error {
		ok, err := l.mail.Record(ctx, m)
		inserted = inserted || ok
		return err
	})
	if err != nil {
		l.metrics.LedgerWrites.WithLabelValues("mail", metrics.ResultError).Inc()
		l.logger.ErrorContext(ctx, "mail write failed",
			"recipient_id", recipientID,
			"type", kind,
			"transition_id", refs.TransitionID,
			"error", err,
		)
		return fmt.Errorf("record %s mail for user %d: %w", kind, recipientID, err)
	}

	result := metrics.ResultOK
	if !inserted {
		result = metrics.ResultSkipped
	}
	l.metrics.LedgerWrites.WithLabelValues("mail", result).Inc()
	return nil
}
