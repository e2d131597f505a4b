package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/choregame/internal/model"
)

type gameFixture struct {
	games *GameStore
	users *UserStore
	tasks *TaskStore
	game  *model.Game
	ids   []int64
}

func setupGameFixture(t *testing.T, names ...string) *gameFixture {
	t.Helper()
	db := setupTestDB(t)
	ctx := context.Background()

	f := &gameFixture{
		games: NewGameStore(db),
		users: NewUserStore(db),
		tasks: NewTaskStore(db),
	}
	game, err := f.games.Create(ctx, "Apartment 4B", nil)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	f.game = game

	for _, name := range names {
		u, err := f.users.Create(ctx, name, name+"@example.com", "")
		if err != nil {
			t.Fatalf("create user %s: %v", name, err)
		}
		if err := f.games.AddPlayer(ctx, game.ID, u.ID, true, false); err != nil {
			t.Fatalf("add player %s: %v", name, err)
		}
		f.ids = append(f.ids, u.ID)
	}
	return f
}

func TestGameCreate(t *testing.T) {
	f := setupGameFixture(t)

	if f.game.Name != "Apartment 4B" {
		t.Errorf("name = %q, want %q", f.game.Name, "Apartment 4B")
	}
	if f.game.Status != "Active" {
		t.Errorf("status = %q, want Active", f.game.Status)
	}
	if f.game.CommissionerID != nil {
		t.Error("expected no commissioner")
	}
}

func TestGameSetCommissioner(t *testing.T) {
	f := setupGameFixture(t, "alice")
	ctx := context.Background()

	if err := f.games.SetCommissioner(ctx, f.game.ID, f.ids[0]); err != nil {
		t.Fatalf("set commissioner: %v", err)
	}
	g, _ := f.games.GetByID(ctx, f.game.ID)
	if g.CommissionerID == nil || *g.CommissionerID != f.ids[0] {
		t.Errorf("commissioner_id = %v, want %d", g.CommissionerID, f.ids[0])
	}
}

func TestListPlayersOrdered(t *testing.T) {
	f := setupGameFixture(t, "alice", "bob", "carol")

	players, err := f.games.ListPlayers(context.Background(), f.game.ID)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	if len(players) != 3 {
		t.Fatalf("expected 3 players, got %d", len(players))
	}
	for i, p := range players {
		if p.UserID != f.ids[i] {
			t.Errorf("players[%d].UserID = %d, want %d", i, p.UserID, f.ids[i])
		}
		if !p.EventNotifications {
			t.Errorf("players[%d] expected event notifications on by default", i)
		}
	}
}

func TestListPlayersEmptyGame(t *testing.T) {
	f := setupGameFixture(t)

	players, err := f.games.ListPlayers(context.Background(), f.game.ID)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	if len(players) != 0 {
		t.Errorf("expected no players, got %d", len(players))
	}
}

func TestAddPlayerTwiceIsNoop(t *testing.T) {
	f := setupGameFixture(t, "alice")
	ctx := context.Background()

	if err := f.games.AddPlayer(ctx, f.game.ID, f.ids[0], false, true); err != nil {
		t.Fatalf("add player again: %v", err)
	}
	p, _ := f.games.GetPlayer(ctx, f.game.ID, f.ids[0])
	if !p.Confirmed {
		t.Error("existing row should be untouched")
	}
}

func TestPlayerDeviceTokenFallback(t *testing.T) {
	f := setupGameFixture(t, "alice")
	ctx := context.Background()
	id := f.ids[0]

	if err := f.users.SetDeviceToken(ctx, id, "user-token"); err != nil {
		t.Fatalf("set user token: %v", err)
	}
	p, _ := f.games.GetPlayer(ctx, f.game.ID, id)
	if p.DeviceToken != "user-token" {
		t.Errorf("device_token = %q, want user-token", p.DeviceToken)
	}

	if err := f.games.SetPlayerNotifications(ctx, f.game.ID, id, false, "game-token"); err != nil {
		t.Fatalf("set player notifications: %v", err)
	}
	p, _ = f.games.GetPlayer(ctx, f.game.ID, id)
	if p.DeviceToken != "game-token" {
		t.Errorf("device_token = %q, want game-token", p.DeviceToken)
	}
	if p.EventNotifications {
		t.Error("expected event notifications off")
	}
}

func TestClearDeviceToken(t *testing.T) {
	f := setupGameFixture(t, "alice")
	ctx := context.Background()
	id := f.ids[0]

	f.users.SetDeviceToken(ctx, id, "user-token")
	f.games.SetPlayerNotifications(ctx, f.game.ID, id, true, "game-token")

	// A stale token that matches nothing leaves both in place.
	if err := f.games.ClearDeviceToken(ctx, f.game.ID, id, "old-token"); err != nil {
		t.Fatalf("clear unmatched: %v", err)
	}
	p, _ := f.games.GetPlayer(ctx, f.game.ID, id)
	if p.DeviceToken != "game-token" {
		t.Fatalf("device_token = %q, want game-token", p.DeviceToken)
	}

	if err := f.games.ClearDeviceToken(ctx, f.game.ID, id, "game-token"); err != nil {
		t.Fatalf("clear game token: %v", err)
	}
	p, _ = f.games.GetPlayer(ctx, f.game.ID, id)
	if p.DeviceToken != "user-token" {
		t.Errorf("device_token = %q, want fallback user-token", p.DeviceToken)
	}
	if !p.EventNotifications {
		t.Error("clearing the token should not touch email settings")
	}

	if err := f.games.ClearDeviceToken(ctx, f.game.ID, id, "user-token"); err != nil {
		t.Fatalf("clear user token: %v", err)
	}
	p, _ = f.games.GetPlayer(ctx, f.game.ID, id)
	if p.DeviceToken != "" {
		t.Errorf("device_token = %q, want empty", p.DeviceToken)
	}
}

func TestAddPlayerBadge(t *testing.T) {
	f := setupGameFixture(t, "alice")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := f.games.AddPlayerBadge(ctx, f.game.ID, f.ids[0], 1); err != nil {
			t.Fatalf("add badge: %v", err)
		}
	}
	p, _ := f.games.GetPlayer(ctx, f.game.ID, f.ids[0])
	if p.Badge != 4 {
		t.Errorf("badge = %d, want 4", p.Badge)
	}

	err := f.games.AddPlayerBadge(ctx, f.game.ID, 9999, 1)
	if !errors.Is(err, ErrNoRows) {
		t.Errorf("expected ErrNoRows for non-player, got %v", err)
	}
}

func TestInitiationCheck(t *testing.T) {
	f := setupGameFixture(t, "alice")
	ctx := context.Background()

	ready, err := f.games.InitiationCheck(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("initiation check: %v", err)
	}
	if !ready {
		t.Error("expected ready with all players confirmed")
	}

	u, _ := f.users.Create(ctx, "bob", "bob@example.com", "")
	f.games.AddPlayer(ctx, f.game.ID, u.ID, false, true)

	ready, _ = f.games.InitiationCheck(ctx, f.game.ID)
	if ready {
		t.Error("expected not ready with an unconfirmed player")
	}

	f.games.ConfirmPlayer(ctx, f.game.ID, u.ID)
	ready, _ = f.games.InitiationCheck(ctx, f.game.ID)
	if !ready {
		t.Error("expected ready after confirm")
	}
}

func TestTaskCRUD(t *testing.T) {
	f := setupGameFixture(t)
	ctx := context.Background()

	task, err := f.tasks.Create(ctx, f.game.ID, "Take out trash", 5)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.GameID != f.game.ID {
		t.Errorf("game_id = %d, want %d", task.GameID, f.game.ID)
	}

	got, _ := f.tasks.GetByID(ctx, task.ID)
	if got == nil || got.Name != "Take out trash" {
		t.Errorf("got = %+v", got)
	}

	f.tasks.Create(ctx, f.game.ID, "Dishes", 3)
	tasks, err := f.tasks.ListByGame(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Name != "Dishes" {
		t.Errorf("tasks = %+v", tasks)
	}
}
