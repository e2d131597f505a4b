package game

import (
	"context"
	"errors"
	"testing"
)

func TestAddPlayers(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	joined := f.addUser(t, "bob")
	if err := f.stores.Users.SetPassword(ctx, joined.ID, "hunter22"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	players, err := f.svc.AddPlayers(ctx, f.game.ID, []Invitee{
		{Email: "bob@example.com"},
		{Email: "  New.Person@Example.com "},
	}, joined.ID)
	if err != nil {
		t.Fatalf("add players: %v", err)
	}
	if len(players) != 3 {
		t.Fatalf("players = %d, want 3", len(players))
	}

	newcomer, err := f.stores.Users.GetByEmail(ctx, "new.person@example.com")
	if err != nil || newcomer == nil {
		t.Fatalf("newcomer not created: %v", err)
	}
	for _, p := range players {
		if want := p.UserID != newcomer.ID; p.Confirmed != want {
			t.Errorf("player %d confirmed = %v, want %v", p.UserID, p.Confirmed, want)
		}
	}
	if !newcomer.Invited {
		t.Error("unregistered user should be marked invited")
	}
	bob := f.user(t, "bob")
	if bob.Invited {
		t.Error("registered user should not be marked invited")
	}

	g, _ := f.stores.Games.GetByID(ctx, f.game.ID)
	if g.CommissionerID == nil || *g.CommissionerID != joined.ID {
		t.Errorf("commissioner = %v, want bob", g.CommissionerID)
	}

	ready, err := f.svc.InitiationCheck(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("initiation check: %v", err)
	}
	if ready {
		t.Error("invited newcomer has not joined, game should not be ready")
	}
}

func TestJoinGame(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	if _, err := f.svc.AddPlayers(ctx, f.game.ID, []Invitee{{Email: "dana@example.com"}}, 0); err != nil {
		t.Fatalf("add players: %v", err)
	}
	dana, _ := f.stores.Users.GetByEmail(ctx, "dana@example.com")

	res, err := f.svc.JoinGame(ctx, f.game.ID, dana.ID, "first-password")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !res.Player.Confirmed || !res.Ready {
		t.Errorf("join result = %+v, want confirmed and ready", res)
	}
	u, _ := f.stores.Users.GetByID(ctx, dana.ID)
	if !u.Joined() || u.Invited {
		t.Errorf("dana joined=%v invited=%v, want joined and not invited", u.Joined(), u.Invited)
	}
	if got := f.hub.types(); len(got) != 1 || got[0] != "player_joined" {
		t.Errorf("broadcasts = %v, want [player_joined]", got)
	}

	// Once a password is set it must be supplied again, not replaced.
	if _, err := f.svc.JoinGame(ctx, f.game.ID, dana.ID, "other-password"); !errors.Is(err, ErrCredentials) {
		t.Errorf("wrong password: err = %v, want ErrCredentials", err)
	}
	if ok, _ := f.stores.Users.CheckPassword(ctx, dana.ID, "first-password"); !ok {
		t.Error("original password should still match")
	}
	if _, err := f.svc.JoinGame(ctx, f.game.ID, dana.ID, "first-password"); err != nil {
		t.Errorf("rejoin with the right password: %v", err)
	}
}

func TestJoinGameValidation(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()
	outsider := f.addUser(t, "outsider")

	if _, err := f.svc.JoinGame(ctx, f.game.ID, f.id("alice"), ""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty password: err = %v, want ErrValidation", err)
	}
	if _, err := f.svc.JoinGame(ctx, 999, f.id("alice"), "pw"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing game: err = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.JoinGame(ctx, f.game.ID, outsider.ID, "pw"); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-player: err = %v, want ErrNotFound", err)
	}
}

func TestAddPlayersValidation(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	if _, err := f.svc.AddPlayers(ctx, 999, nil, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing game: err = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.AddPlayers(ctx, f.game.ID, []Invitee{{Email: " "}}, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("blank email: err = %v, want ErrValidation", err)
	}
	if _, err := f.svc.AddPlayers(ctx, f.game.ID, nil, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing commissioner: err = %v, want ErrNotFound", err)
	}
}

func TestInitiationCheckPending(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	late := f.addUser(t, "late")
	if err := f.stores.Games.AddPlayer(ctx, f.game.ID, late.ID, false, true); err != nil {
		t.Fatalf("add player: %v", err)
	}

	ready, err := f.svc.InitiationCheck(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("initiation check: %v", err)
	}
	if ready {
		t.Error("unconfirmed player should block initiation")
	}
	if _, err := f.svc.InitiationCheck(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
