package game

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/choregame/internal/model"
)

func TestResolvePartiesExcludesActor(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	r := NewResolver(f.stores.Games, f.stores.Users)

	parties, err := r.ResolveParties(context.Background(), f.game.ID, f.id("bob"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(parties) != 2 {
		t.Fatalf("parties = %d, want 2", len(parties))
	}
	if parties[0].UserID != f.id("alice") || parties[1].UserID != f.id("carol") {
		t.Errorf("order = %d,%d, want alice,carol", parties[0].UserID, parties[1].UserID)
	}
	if parties[0].DeviceToken != "token-alice" || !parties[0].EventNotifications {
		t.Errorf("alice = %+v", parties[0])
	}

	all, err := r.ResolveParties(context.Background(), f.game.ID, 0)
	if err != nil {
		t.Fatalf("resolve all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("parties = %d, want 3", len(all))
	}
}

func TestResolvePartiesEmptyAndMissing(t *testing.T) {
	f := newFixture(t)
	r := NewResolver(f.stores.Games, f.stores.Users)

	parties, err := r.ResolveParties(context.Background(), f.game.ID, 0)
	if err != nil {
		t.Fatalf("empty game: %v", err)
	}
	if len(parties) != 0 {
		t.Errorf("parties = %d, want 0", len(parties))
	}

	_, err = r.ResolveParties(context.Background(), 999, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolvePartiesDeviceTokenFallback(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	r := NewResolver(f.stores.Games, f.stores.Users)

	if err := f.stores.Users.SetDeviceToken(ctx, f.id("bob"), "user-token"); err != nil {
		t.Fatalf("set device token: %v", err)
	}
	if err := f.stores.Games.SetPlayerNotifications(ctx, f.game.ID, f.id("bob"), true, ""); err != nil {
		t.Fatalf("clear game token: %v", err)
	}
	if err := f.stores.Users.SetDeviceToken(ctx, f.id("alice"), "ignored"); err != nil {
		t.Fatalf("set device token: %v", err)
	}

	parties, err := r.ResolveParties(ctx, f.game.ID, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if parties[0].DeviceToken != "token-alice" {
		t.Errorf("alice token = %q, want the per-game token", parties[0].DeviceToken)
	}
	if parties[1].DeviceToken != "user-token" {
		t.Errorf("bob token = %q, want the user token", parties[1].DeviceToken)
	}
}

func TestResolveDecisionPair(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	outsider := f.addUser(t, "referee")
	r := NewResolver(f.stores.Games, f.stores.Users)

	c := &model.Challenge{GameID: f.game.ID, UserID: f.id("carol"), CommissionerID: outsider.ID}
	challenger, commissioner, err := r.ResolveDecisionPair(context.Background(), c)
	if err != nil {
		t.Fatalf("resolve pair: %v", err)
	}
	if challenger.UserID != f.id("carol") || challenger.DeviceToken != "token-carol" {
		t.Errorf("challenger = %+v", challenger)
	}
	if commissioner.UserID != outsider.ID || commissioner.Email != "referee@example.com" || !commissioner.EventNotifications {
		t.Errorf("commissioner = %+v", commissioner)
	}

	c.CommissionerID = 999
	if _, _, err := r.ResolveDecisionPair(context.Background(), c); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveCommissionerIgnoresChallenger(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	r := NewResolver(f.stores.Games, f.stores.Users)

	c := &model.Challenge{GameID: f.game.ID, UserID: 999, CommissionerID: f.id("alice")}
	commissioner, err := r.ResolveCommissioner(context.Background(), c)
	if err != nil {
		t.Fatalf("resolve commissioner: %v", err)
	}
	if commissioner.UserID != f.id("alice") || commissioner.DeviceToken != "token-alice" {
		t.Errorf("commissioner = %+v", commissioner)
	}
}

func TestPartyNotifiable(t *testing.T) {
	if (Party{}).Notifiable() {
		t.Error("party without channels should not be notifiable")
	}
	if !(Party{DeviceToken: "x"}).Notifiable() || !(Party{EventNotifications: true}).Notifiable() {
		t.Error("either channel makes a party notifiable")
	}
}
