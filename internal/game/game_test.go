package game

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukerupert/choregame/internal/database"
	"github.com/dukerupert/choregame/internal/email"
	"github.com/dukerupert/choregame/internal/metrics"
	"github.com/dukerupert/choregame/internal/model"
	"github.com/dukerupert/choregame/internal/push"
	"github.com/dukerupert/choregame/internal/store"
	"github.com/dukerupert/choregame/internal/websocket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentEmail struct {
	tmpl email.Template
	to   string
	data email.Data
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	fail map[string]error
}

func (f *fakeMailer) Send(_ context.Context, tmpl email.Template, to string, data email.Data) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{tmpl: tmpl, to: to, data: data})
	return f.fail[to]
}

// recipients returns the addresses tmpl was sent to.
func (f *fakeMailer) recipients(tmpl email.Template) map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	got := make(map[string]bool)
	for _, s := range f.sent {
		if s.tmpl == tmpl {
			got[s.to] = true
		}
	}
	return got
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakePusher struct {
	mu      sync.Mutex
	sent    []push.Message
	fail    map[string]error
	panicOn string
	// hang holds tokens whose sends block until ctx is done.
	hang map[string]bool
}

func (f *fakePusher) Send(ctx context.Context, msg push.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	err := f.fail[msg.Token]
	hang := f.hang[msg.Token]
	f.mu.Unlock()
	if msg.Token != "" && msg.Token == f.panicOn {
		panic("push transport exploded")
	}
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakePusher) byToken() map[string]push.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	got := make(map[string]push.Message)
	for _, m := range f.sent {
		got[m.Token] = m
	}
	return got
}

type fakeHub struct {
	mu   sync.Mutex
	msgs []websocket.Message
}

func (h *fakeHub) Broadcast(msg websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

func (h *fakeHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, m := range h.msgs {
		out = append(out, m.Type)
	}
	return out
}

type fixture struct {
	svc     *Service
	stores  Stores
	mailer  *fakeMailer
	pusher  *fakePusher
	hub     *fakeHub
	metrics *metrics.Metrics
	game    *model.Game
	task    *model.Task
	users   map[string]*model.User
}

// newFixture creates a game whose players are names, in order. The first
// player is the commissioner. Every player has email notifications on and a
// device token "token-<name>".
func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	f := &fixture{
		stores: Stores{
			Users:      store.NewUserStore(db),
			Games:      store.NewGameStore(db),
			Tasks:      store.NewTaskStore(db),
			Events:     store.NewEventStore(db),
			Challenges: store.NewChallengeStore(db),
			Mail:       store.NewMailStore(db),
		},
		mailer:  &fakeMailer{},
		pusher:  &fakePusher{},
		hub:     &fakeHub{},
		metrics: metrics.New(),
		users:   make(map[string]*model.User),
	}
	f.svc = NewService(f.stores, f.mailer, f.pusher, f.hub, Config{FanOutLimit: 4}, discardLogger(), f.metrics)
	t.Cleanup(f.svc.Wait)

	f.game, err = f.stores.Games.Create(ctx, "Apartment 4B", nil)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	f.task, err = f.stores.Tasks.Create(ctx, f.game.ID, "Dishes", 10)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	for i, name := range names {
		u := f.addUser(t, name)
		if err := f.stores.Games.AddPlayer(ctx, f.game.ID, u.ID, true, false); err != nil {
			t.Fatalf("add player %s: %v", name, err)
		}
		if err := f.stores.Games.SetPlayerNotifications(ctx, f.game.ID, u.ID, true, "token-"+name); err != nil {
			t.Fatalf("set notifications %s: %v", name, err)
		}
		if i == 0 {
			if err := f.stores.Games.SetCommissioner(ctx, f.game.ID, u.ID); err != nil {
				t.Fatalf("set commissioner: %v", err)
			}
		}
	}
	return f
}

func (f *fixture) addUser(t *testing.T, name string) *model.User {
	t.Helper()
	u, err := f.stores.Users.Create(context.Background(), name, name+"@example.com", "")
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	f.users[name] = u
	return u
}

func (f *fixture) id(name string) int64 {
	return f.users[name].ID
}

// complete records name completing the fixture task and waits for side effects.
func (f *fixture) complete(t *testing.T, name string) *model.Event {
	t.Helper()
	e, err := f.svc.CompleteTask(context.Background(), CompleteTaskInput{
		UserID:    f.id(name),
		GameID:    f.game.ID,
		TaskID:    f.task.ID,
		BeforePic: "before.jpg",
		AfterPic:  "after.jpg",
	})
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	f.svc.Wait()
	return e
}

func (f *fixture) challenge(t *testing.T, eventID int64, challenger, commissioner string) *model.Challenge {
	t.Helper()
	c, err := f.svc.CreateChallenge(context.Background(), CreateChallengeInput{
		EventID:        eventID,
		GameID:         f.game.ID,
		ChallengerID:   f.id(challenger),
		CommissionerID: f.id(commissioner),
		Description:    "the sink is still full",
	})
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	f.svc.Wait()
	return c
}

// mailOfType returns recipient id -> row for the challenge's rows of type kind.
func (f *fixture) mailOfType(t *testing.T, challengeID int64, kind Kind) map[int64]model.Mail {
	t.Helper()
	rows, err := f.stores.Mail.ListByChallenge(context.Background(), challengeID)
	if err != nil {
		t.Fatalf("list mail: %v", err)
	}
	got := make(map[int64]model.Mail)
	for _, m := range rows {
		if m.Type != string(kind) {
			continue
		}
		if _, dup := got[m.RecipientID]; dup {
			t.Errorf("duplicate %s mail for recipient %d", kind, m.RecipientID)
		}
		got[m.RecipientID] = m
	}
	return got
}

func (f *fixture) player(t *testing.T, name string) *model.Player {
	t.Helper()
	p, err := f.stores.Games.GetPlayer(context.Background(), f.game.ID, f.id(name))
	if err != nil || p == nil {
		t.Fatalf("get player %s: %v", name, err)
	}
	return p
}

func (f *fixture) user(t *testing.T, name string) *model.User {
	t.Helper()
	u, err := f.stores.Users.GetByID(context.Background(), f.id(name))
	if err != nil || u == nil {
		t.Fatalf("get user %s: %v", name, err)
	}
	return u
}
