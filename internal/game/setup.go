package game

import (
	"context"
	"strings"

	"github.com/dukerupert/choregame/internal/model"
	"github.com/dukerupert/choregame/internal/websocket"
)

// Invitee identifies a user to add to a game by email.
type Invitee struct {
	Email string
}

// AddPlayers finds or creates a user for every invitee and adds them to the
// game. Users who already have a password join confirmed; the rest are
// flagged invited and stay unconfirmed until they join. The commissioner is
// set when commissionerID is non-zero. It returns the new roster.
func (s *Service) AddPlayers(ctx context.Context, gameID int64, invitees []Invitee, commissionerID int64) ([]model.Player, error) {
	const op = "add players"

	g, err := s.stores.Games.GetByID(ctx, gameID)
	if err != nil {
		return nil, storeFailure(op, err)
	}
	if g == nil {
		return nil, notFound(op, "game", gameID)
	}

	emails := make([]string, 0, len(invitees))
	for _, inv := range invitees {
		e := strings.ToLower(strings.TrimSpace(inv.Email))
		if e == "" {
			return nil, invalid(op, "invitee email is required")
		}
		emails = append(emails, e)
	}

	if commissionerID != 0 {
		u, err := s.stores.Users.GetByID(ctx, commissionerID)
		if err != nil {
			return nil, storeFailure(op, err)
		}
		if u == nil {
			return nil, notFound(op, "user", commissionerID)
		}
	}

	for _, e := range emails {
		u, created, err := s.stores.Users.FindOrCreateByEmail(ctx, e)
		if err != nil {
			return nil, storeFailure(op, err)
		}
		joined := u.Joined()
		if !joined {
			if err := s.stores.Users.MarkInvited(ctx, u.ID); err != nil {
				return nil, storeFailure(op, err)
			}
		}
		if err := s.stores.Games.AddPlayer(ctx, gameID, u.ID, joined, !joined); err != nil {
			return nil, storeFailure(op, err)
		}
		s.logger.DebugContext(ctx, "player added", "game_id", gameID, "user_id", u.ID, "new_user", created)
	}

	if commissionerID != 0 {
		if err := s.stores.Games.SetCommissioner(ctx, gameID, commissionerID); err != nil {
			return nil, storeFailure(op, err)
		}
	}

	players, err := s.stores.Games.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, storeFailure(op, err)
	}
	return players, nil
}

// InitiationCheck reports whether every player has confirmed.
func (s *Service) InitiationCheck(ctx context.Context, gameID int64) (bool, error) {
	const op = "initiation check"

	g, err := s.stores.Games.GetByID(ctx, gameID)
	if err != nil {
		return false, storeFailure(op, err)
	}
	if g == nil {
		return false, notFound(op, "game", gameID)
	}
	ready, err := s.stores.Games.InitiationCheck(ctx, gameID)
	if err != nil {
		return false, storeFailure(op, err)
	}
	return ready, nil
}

// JoinResult is a player's roster entry after joining, and whether every
// player has now confirmed.
type JoinResult struct {
	Player *model.Player `json:"player"`
	Ready  bool          `json:"ready"`
}

// JoinGame confirms userID's seat in the game. An invited user sets their
// password here; a user who already has one must supply it.
func (s *Service) JoinGame(ctx context.Context, gameID, userID int64, password string) (*JoinResult, error) {
	const op = "join game"

	if password == "" {
		return nil, invalid(op, "password is required")
	}

	g, err := s.stores.Games.GetByID(ctx, gameID)
	if err != nil {
		return nil, storeFailure(op, err)
	}
	if g == nil {
		return nil, notFound(op, "game", gameID)
	}
	p, err := s.stores.Games.GetPlayer(ctx, gameID, userID)
	if err != nil {
		return nil, storeFailure(op, err)
	}
	if p == nil {
		return nil, notFound(op, "player", userID)
	}
	u, err := s.stores.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeFailure(op, err)
	}
	if u == nil {
		return nil, notFound(op, "user", userID)
	}

	if u.Joined() {
		ok, err := s.stores.Users.CheckPassword(ctx, userID, password)
		if err != nil {
			return nil, storeFailure(op, err)
		}
		if !ok {
			return nil, &Error{Kind: ErrCredentials, Op: op}
		}
	} else if err := s.stores.Users.SetPassword(ctx, userID, password); err != nil {
		return nil, storeFailure(op, err)
	}

	if err := s.stores.Games.ConfirmPlayer(ctx, gameID, userID); err != nil {
		return nil, storeFailure(op, err)
	}

	p, err = s.stores.Games.GetPlayer(ctx, gameID, userID)
	if err != nil {
		return nil, storeFailure(op, err)
	}
	ready, err := s.stores.Games.InitiationCheck(ctx, gameID)
	if err != nil {
		return nil, storeFailure(op, err)
	}

	s.logger.InfoContext(ctx, "player joined", "game_id", gameID, "user_id", userID, "ready", ready)
	if s.hub != nil {
		s.hub.Broadcast(websocket.NewMessage(gameID, "player", "joined", userID, map[string]any{
			"ready": ready,
		}))
	}
	return &JoinResult{Player: p, Ready: ready}, nil
}
