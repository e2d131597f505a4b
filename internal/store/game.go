package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/choregame/internal/model"
)

type GameStore struct {
	db *sql.DB
}

func NewGameStore(db *sql.DB) *GameStore {
	return &GameStore{db: db}
}

func scanGame(scanner interface{ Scan(...any) error }) (*model.Game, error) {
	var g model.Game
	var commissionerID sql.NullInt64
	err := scanner.Scan(&g.ID, &g.Name, &commissionerID, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if commissionerID.Valid {
		g.CommissionerID = &commissionerID.Int64
	}
	return &g, nil
}

const gameCols = `id, name, commissioner_id, status, created_at, updated_at`

func (s *GameStore) Create(ctx context.Context, name string, commissionerID *int64) (*model.Game, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO games (name, commissioner_id) VALUES (?, ?)`,
		name, nullInt64(commissionerID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert game: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *GameStore) GetByID(ctx context.Context, id int64) (*model.Game, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+gameCols+` FROM games WHERE id = ?`, id)
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game: %w", err)
	}
	return g, nil
}

func (s *GameStore) SetCommissioner(ctx context.Context, gameID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE games SET commissioner_id = ? WHERE id = ?`, userID, gameID)
	if err != nil {
		return fmt.Errorf("set commissioner: %w", err)
	}
	return nil
}

// --- Player methods ---

// AddPlayer links a user to a game. Adding an existing player is a no-op.
func (s *GameStore) AddPlayer(ctx context.Context, gameID, userID int64, confirmed, invited bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO game_players (game_id, user_id, confirmed, invited) VALUES (?, ?, ?, ?)
		 ON CONFLICT(game_id, user_id) DO NOTHING`,
		gameID, userID, boolInt(confirmed), boolInt(invited),
	)
	if err != nil {
		return fmt.Errorf("add game player: %w", err)
	}
	return nil
}

func (s *GameStore) ConfirmPlayer(ctx context.Context, gameID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE game_players SET confirmed = 1, invited = 0 WHERE game_id = ? AND user_id = ?`,
		gameID, userID,
	)
	if err != nil {
		return fmt.Errorf("confirm game player: %w", err)
	}
	return nil
}

// SetPlayerNotifications updates a player's per-game delivery settings. An
// empty device token falls back to the user's own token.
func (s *GameStore) SetPlayerNotifications(ctx context.Context, gameID, userID int64, eventNotifications bool, deviceToken string) error {
	var token sql.NullString
	if deviceToken != "" {
		token = sql.NullString{String: deviceToken, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE game_players SET event_notifications = ?, device_token = ? WHERE game_id = ? AND user_id = ?`,
		boolInt(eventNotifications), token, gameID, userID,
	)
	if err != nil {
		return fmt.Errorf("set player notifications: %w", err)
	}
	return nil
}

// ClearDeviceToken forgets token for the player. The per-game token is
// nulled when it matches, and so is the user's own token, since a player
// without a per-game token is pushed on that one.
func (s *GameStore) ClearDeviceToken(ctx context.Context, gameID, userID int64, token string) error {
	if token == "" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear device token: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE game_players SET device_token = NULL WHERE game_id = ? AND user_id = ? AND device_token = ?`,
		gameID, userID, token,
	)
	if err != nil {
		return fmt.Errorf("clear player device token: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE users SET device_token = '' WHERE id = ? AND device_token = ?`, userID, token)
	if err != nil {
		return fmt.Errorf("clear user device token: %w", err)
	}
	return tx.Commit()
}

func scanPlayer(scanner interface{ Scan(...any) error }) (*model.Player, error) {
	var p model.Player
	var notif, confirmed int
	err := scanner.Scan(&p.UserID, &p.Username, &p.Email, &p.DeviceToken, &p.Badge, &notif, &confirmed)
	if err != nil {
		return nil, err
	}
	p.EventNotifications = notif != 0
	p.Confirmed = confirmed != 0
	return &p, nil
}

const playerSelect = `SELECT u.id, u.username, u.email,
	COALESCE(NULLIF(gp.device_token, ''), u.device_token),
	gp.badge, gp.event_notifications, gp.confirmed
	FROM game_players gp JOIN users u ON u.id = gp.user_id`

// ListPlayers returns the game's roster ordered by user id.
func (s *GameStore) ListPlayers(ctx context.Context, gameID int64) ([]model.Player, error) {
	rows, err := s.db.QueryContext(ctx, playerSelect+` WHERE gp.game_id = ? ORDER BY u.id ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []model.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

// GetPlayer returns a single roster entry, or nil if the user is not in the game.
func (s *GameStore) GetPlayer(ctx context.Context, gameID, userID int64) (*model.Player, error) {
	row := s.db.QueryRowContext(ctx, playerSelect+` WHERE gp.game_id = ? AND gp.user_id = ?`, gameID, userID)
	p, err := scanPlayer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

// AddPlayerBadge atomically adds delta to the player's per-game badge.
func (s *GameStore) AddPlayerBadge(ctx context.Context, gameID, userID int64, delta int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE game_players SET badge = badge + ? WHERE game_id = ? AND user_id = ?`,
		delta, gameID, userID,
	)
	if err != nil {
		return fmt.Errorf("add player badge: %w", err)
	}
	return requireRow(result, "game player", userID)
}

// InitiationCheck reports whether every player in the game has confirmed.
func (s *GameStore) InitiationCheck(ctx context.Context, gameID int64) (bool, error) {
	var pending int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_players WHERE game_id = ? AND confirmed = 0`,
		gameID,
	).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("count unconfirmed players: %w", err)
	}
	return pending == 0, nil
}
