package game

import (
	"context"

	"github.com/dukerupert/choregame/internal/model"
	"github.com/dukerupert/choregame/internal/store"
)

// Party is a snapshot of one notification recipient, read once when a
// transition's side effects start.
type Party struct {
	UserID             int64
	Username           string
	Email              string
	DeviceToken        string
	EventNotifications bool
	Badge              int
}

// Notifiable reports whether any delivery channel reaches the party.
func (p Party) Notifiable() bool {
	return p.EventNotifications || p.DeviceToken != ""
}

func partyFromPlayer(p model.Player) Party {
	return Party{
		UserID:             p.UserID,
		Username:           p.Username,
		Email:              p.Email,
		DeviceToken:        p.DeviceToken,
		EventNotifications: p.EventNotifications,
		Badge:              p.Badge,
	}
}

// Resolver computes who a transition concerns.
type Resolver struct {
	games *store.GameStore
	users *store.UserStore
}

func NewResolver(games *store.GameStore, users *store.UserStore) *Resolver {
	return &Resolver{games: games, users: users}
}

// ResolveParties returns the game's current roster ordered by user id,
// without excludeUserID. Pass 0 to keep everyone. A game with no players
// yields an empty slice.
func (r *Resolver) ResolveParties(ctx context.Context, gameID, excludeUserID int64) ([]Party, error) {
	const op = "resolve parties"

	g, err := r.games.GetByID(ctx, gameID)
	if err != nil {
		return nil, storeFailure(op, err)
	}
	if g == nil {
		return nil, notFound(op, "game", gameID)
	}

	players, err := r.games.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, storeFailure(op, err)
	}

	parties := make([]Party, 0, len(players))
	for _, p := range players {
		if p.UserID == excludeUserID {
			continue
		}
		parties = append(parties, partyFromPlayer(p))
	}
	return parties, nil
}

// ResolveDecisionPair returns the challenger and commissioner of c. Either may
// have left the game since the challenge was raised; their user record is
// used then, with email notifications on.
func (r *Resolver) ResolveDecisionPair(ctx context.Context, c *model.Challenge) (challenger, commissioner Party, err error) {
	challenger, err = r.resolveUser(ctx, c.GameID, c.UserID)
	if err != nil {
		return Party{}, Party{}, err
	}
	commissioner, err = r.resolveUser(ctx, c.GameID, c.CommissionerID)
	if err != nil {
		return Party{}, Party{}, err
	}
	return challenger, commissioner, nil
}

// ResolveCommissioner returns the commissioner of c, falling back to their
// user record like ResolveDecisionPair.
func (r *Resolver) ResolveCommissioner(ctx context.Context, c *model.Challenge) (Party, error) {
	return r.resolveUser(ctx, c.GameID, c.CommissionerID)
}

func (r *Resolver) resolveUser(ctx context.Context, gameID, userID int64) (Party, error) {
	const op = "resolve user"

	p, err := r.games.GetPlayer(ctx, gameID, userID)
	if err != nil {
		return Party{}, storeFailure(op, err)
	}
	if p != nil {
		return partyFromPlayer(*p), nil
	}

	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return Party{}, storeFailure(op, err)
	}
	if u == nil {
		return Party{}, notFound(op, "user", userID)
	}
	return Party{
		UserID:             u.ID,
		Username:           u.Username,
		Email:              u.Email,
		DeviceToken:        u.DeviceToken,
		EventNotifications: true,
		Badge:              u.Badge,
	}, nil
}
