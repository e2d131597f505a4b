package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/choregame/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var rejected int
	err := scanner.Scan(
		&e.ID, &e.GameID, &e.TaskID, &e.CompletedByID,
		&e.BeforePic, &e.AfterPic, &rejected, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Rejected = rejected != 0
	return &e, nil
}

const eventCols = `id, game_id, task_id, completed_by_id, before_pic, after_pic, rejected, created_at`

func (s *EventStore) Create(ctx context.Context, gameID, taskID, completedByID int64, beforePic, afterPic string) (*model.Event, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO events (game_id, task_id, completed_by_id, before_pic, after_pic) VALUES (?, ?, ?, ?, ?)`,
		gameID, taskID, completedByID, beforePic, afterPic,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *EventStore) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListByTask returns a task's completions, newest first.
func (s *EventStore) ListByTask(ctx context.Context, taskID int64) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM events WHERE task_id = ? ORDER BY created_at DESC, id DESC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events by task: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
