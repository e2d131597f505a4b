package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/choregame/internal/model"
)

type MailStore struct {
	db *sql.DB
}

func NewMailStore(db *sql.DB) *MailStore {
	return &MailStore{db: db}
}

func scanMail(scanner interface{ Scan(...any) error }) (*model.Mail, error) {
	var m model.Mail
	var userID, challengeID sql.NullInt64
	err := scanner.Scan(
		&m.ID, &m.TransitionID, &m.RecipientID, &userID, &m.Type,
		&challengeID, &m.EventID, &m.GameID, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		m.UserID = &userID.Int64
	}
	if challengeID.Valid {
		m.ChallengeID = &challengeID.Int64
	}
	return &m, nil
}

const mailCols = `id, transition_id, recipient_id, user_id, type, challenge_id, event_id, game_id, created_at`

// Record appends a mail row. A second row for the same transition and
// recipient is ignored; inserted reports whether this call wrote the row.
func (s *MailStore) Record(ctx context.Context, m model.Mail) (inserted bool, err error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO mail (transition_id, recipient_id, user_id, type, challenge_id, event_id, game_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(transition_id, recipient_id) DO NOTHING`,
		m.TransitionID, m.RecipientID, nullInt64(m.UserID), m.Type,
		nullInt64(m.ChallengeID), m.EventID, m.GameID,
	)
	if err != nil {
		return false, fmt.Errorf("insert mail: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListByRecipient returns a user's mail, newest first.
func (s *MailStore) ListByRecipient(ctx context.Context, recipientID int64) ([]model.Mail, error) {
	return s.list(ctx, `WHERE recipient_id = ? ORDER BY created_at DESC, id DESC`, recipientID)
}

func (s *MailStore) ListByEvent(ctx context.Context, eventID int64) ([]model.Mail, error) {
	return s.list(ctx, `WHERE event_id = ? ORDER BY id ASC`, eventID)
}

func (s *MailStore) ListByChallenge(ctx context.Context, challengeID int64) ([]model.Mail, error) {
	return s.list(ctx, `WHERE challenge_id = ? ORDER BY id ASC`, challengeID)
}

func (s *MailStore) list(ctx context.Context, where string, args ...any) ([]model.Mail, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mailCols+` FROM mail `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list mail: %w", err)
	}
	defer rows.Close()

	var mail []model.Mail
	for rows.Next() {
		m, err := scanMail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mail: %w", err)
		}
		mail = append(mail, *m)
	}
	return mail, rows.Err()
}
