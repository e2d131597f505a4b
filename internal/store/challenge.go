package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/choregame/internal/model"
)

type ChallengeStore struct {
	db *sql.DB
}

func NewChallengeStore(db *sql.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func scanChallenge(scanner interface{ Scan(...any) error }) (*model.Challenge, error) {
	var c model.Challenge
	var status string
	err := scanner.Scan(
		&c.ID, &c.EventID, &c.GameID, &c.CommissionerID, &c.UserID,
		&c.Description, &status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.ChallengeStatus(status)
	return &c, nil
}

const challengeCols = `id, event_id, game_id, commissioner_id, user_id, description, status, created_at, updated_at`

// Create inserts a new challenge in the Pending state.
func (s *ChallengeStore) Create(ctx context.Context, eventID, gameID, commissionerID, challengerID int64, description string) (*model.Challenge, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO challenges (event_id, game_id, commissioner_id, user_id, description, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		eventID, gameID, commissionerID, challengerID, description, string(model.ChallengePending),
	)
	if err != nil {
		return nil, fmt.Errorf("insert challenge: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ChallengeStore) GetByID(ctx context.Context, id int64) (*model.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+challengeCols+` FROM challenges WHERE id = ?`, id)
	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

func (s *ChallengeStore) ListByEvent(ctx context.Context, eventID int64) ([]model.Challenge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+challengeCols+` FROM challenges WHERE event_id = ? ORDER BY id ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenges = append(challenges, *c)
	}
	return challenges, rows.Err()
}

// Resolve moves a Pending challenge to status. When clearRejection is set the
// challenged event's rejected flag is reset in the same transaction.
// resolved is false when the challenge was missing or no longer Pending; in
// that case nothing is written.
func (s *ChallengeStore) Resolve(ctx context.Context, id int64, status model.ChallengeStatus, clearRejection bool) (resolved bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE challenges SET status = ? WHERE id = ? AND status = ?`,
		string(status), id, string(model.ChallengePending),
	)
	if err != nil {
		return false, fmt.Errorf("update challenge status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if clearRejection {
		_, err := tx.ExecContext(ctx,
			`UPDATE events SET rejected = 0 WHERE id = (SELECT event_id FROM challenges WHERE id = ?)`,
			id,
		)
		if err != nil {
			return false, fmt.Errorf("clear event rejection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
