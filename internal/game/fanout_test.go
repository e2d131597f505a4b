package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dukerupert/choregame/internal/email"
	"github.com/dukerupert/choregame/internal/metrics"
	"github.com/dukerupert/choregame/internal/push"
)

func TestKindTemplates(t *testing.T) {
	tests := map[Kind]email.Template{
		KindEventCompleted:    email.NotifyPlayers,
		KindEventChallenged:   email.ChallengeNotification,
		KindChallengeAccepted: email.ChallengeAccepted,
		KindChallengeRejected: email.ChallengeRejected,
	}
	for kind, want := range tests {
		if got := kind.Template(); got != want {
			t.Errorf("%s template = %q, want %q", kind, got, want)
		}
	}
}

func TestFanOutChannels(t *testing.T) {
	mailer := &fakeMailer{}
	pusher := &fakePusher{}
	n := NewNotifier(mailer, pusher, nil, 2, discardLogger(), metrics.New())

	parties := []Party{
		{UserID: 1, Username: "both", Email: "both@example.com", EventNotifications: true, DeviceToken: "tok-1", Badge: 3},
		{UserID: 2, Username: "email", Email: "email@example.com", EventNotifications: true},
		{UserID: 3, Username: "push", Email: "push@example.com", DeviceToken: "tok-3"},
		{UserID: 4, Username: "none", Email: "none@example.com"},
	}
	payload := Payload{GameID: 12, ActorName: "bob", TaskName: "Dishes", PushBody: "bob just completed Dishes!", BadgeDelta: 1}

	deliveries := n.FanOut(context.Background(), KindEventCompleted, parties, payload)

	if len(deliveries) != len(parties) {
		t.Fatalf("deliveries = %d, want %d", len(deliveries), len(parties))
	}
	want := []struct{ email, push bool }{{true, true}, {true, false}, {false, true}, {false, false}}
	for i, d := range deliveries {
		if d.UserID != parties[i].UserID {
			t.Errorf("delivery %d user = %d, want %d", i, d.UserID, parties[i].UserID)
		}
		if d.Email.Attempted != want[i].email || d.Push.Attempted != want[i].push {
			t.Errorf("delivery %d attempted = %v/%v, want %v/%v", i, d.Email.Attempted, d.Push.Attempted, want[i].email, want[i].push)
		}
		if d.Email.Attempted && !d.Email.OK() || d.Push.Attempted && !d.Push.OK() {
			t.Errorf("delivery %d = %+v, want success", i, d)
		}
	}

	emails := mailer.recipients(email.NotifyPlayers)
	if len(emails) != 2 || !emails["both@example.com"] || !emails["email@example.com"] {
		t.Errorf("emails = %v", emails)
	}
	for _, s := range mailer.sent {
		if s.to == "both@example.com" && (s.data.RecipientName != "both" || s.data.ActorName != "bob" || s.data.GameID != 12) {
			t.Errorf("email data = %+v", s.data)
		}
	}

	pushes := pusher.byToken()
	if len(pushes) != 2 {
		t.Fatalf("pushes = %d, want 2", len(pushes))
	}
	if got := pushes["tok-1"].Badge; got != 4 {
		t.Errorf("badge = %d, want stored 3 + 1", got)
	}
	if got := pushes["tok-3"].Data["gameId"]; got != "12" {
		t.Errorf("gameId = %q, want 12", got)
	}
}

func TestFanOutIsolatesFailures(t *testing.T) {
	mailer := &fakeMailer{fail: map[string]error{"a@example.com": errors.New("bounced")}}
	pusher := &fakePusher{panicOn: "tok-b"}
	m := metrics.New()
	n := NewNotifier(mailer, pusher, nil, 1, discardLogger(), m)

	parties := []Party{
		{UserID: 1, Email: "a@example.com", EventNotifications: true, DeviceToken: "tok-a"},
		{UserID: 2, Email: "b@example.com", EventNotifications: true, DeviceToken: "tok-b"},
		{UserID: 3, Email: "c@example.com", EventNotifications: true, DeviceToken: "tok-c"},
	}

	deliveries := n.FanOut(context.Background(), KindChallengeAccepted, parties, Payload{GameID: 1})

	if deliveries[0].Email.OK() || !deliveries[0].Push.OK() {
		t.Errorf("party a = %+v, want email failed, push ok", deliveries[0])
	}
	if !deliveries[1].Email.OK() || deliveries[1].Push.Err == nil {
		t.Errorf("party b = %+v, want email ok, push failed", deliveries[1])
	}
	if !deliveries[2].Email.OK() || !deliveries[2].Push.OK() {
		t.Errorf("party c = %+v, want both ok", deliveries[2])
	}

	if got := testutil.ToFloat64(m.Deliveries.WithLabelValues("challengeAccepted", "email", metrics.ResultError)); got != 1 {
		t.Errorf("email errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Deliveries.WithLabelValues("challengeAccepted", "push", metrics.ResultOK)); got != 2 {
		t.Errorf("push ok = %v, want 2", got)
	}
}

func TestFanOutEmpty(t *testing.T) {
	mailer := &fakeMailer{}
	n := NewNotifier(mailer, &fakePusher{}, nil, 0, discardLogger(), metrics.New())

	deliveries := n.FanOut(context.Background(), KindEventCompleted, nil, Payload{})
	if len(deliveries) != 0 {
		t.Errorf("deliveries = %d, want 0", len(deliveries))
	}
	if mailer.count() != 0 {
		t.Error("no email expected")
	}
}

func TestFanOutDisabledChannels(t *testing.T) {
	n := NewNotifier(nil, nil, nil, 4, discardLogger(), metrics.New())

	deliveries := n.FanOut(context.Background(), KindEventCompleted, []Party{
		{UserID: 1, Email: "a@example.com", EventNotifications: true, DeviceToken: "tok"},
	}, Payload{})

	if deliveries[0].Email.Attempted || deliveries[0].Push.Attempted {
		t.Errorf("delivery = %+v, want nothing attempted", deliveries[0])
	}
}

type clearedToken struct {
	gameID, userID int64
	token          string
}

type fakeClearer struct {
	mu      sync.Mutex
	cleared []clearedToken
}

func (c *fakeClearer) ClearDeviceToken(_ context.Context, gameID, userID int64, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, clearedToken{gameID, userID, token})
	return nil
}

func TestFanOutClearsExpiredTokens(t *testing.T) {
	pusher := &fakePusher{fail: map[string]error{
		"tok-dead":  fmt.Errorf("send: %w", push.ErrExpired),
		"tok-flaky": errors.New("timeout"),
	}}
	clearer := &fakeClearer{}
	n := NewNotifier(nil, pusher, clearer, 2, discardLogger(), metrics.New())

	n.FanOut(context.Background(), KindEventCompleted, []Party{
		{UserID: 1, DeviceToken: "tok-ok"},
		{UserID: 2, DeviceToken: "tok-dead"},
		{UserID: 3, DeviceToken: "tok-flaky"},
	}, Payload{GameID: 7})

	if len(clearer.cleared) != 1 {
		t.Fatalf("cleared = %+v, want only the expired token", clearer.cleared)
	}
	if got := clearer.cleared[0]; got != (clearedToken{7, 2, "tok-dead"}) {
		t.Errorf("cleared = %+v", got)
	}
}

type slowPusher struct {
	active, peak atomic.Int32
}

func (s *slowPusher) Send(context.Context, push.Message) error {
	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	s.active.Add(-1)
	return nil
}

func TestFanOutRespectsLimit(t *testing.T) {
	pusher := &slowPusher{}
	n := NewNotifier(nil, pusher, nil, 3, discardLogger(), metrics.New())

	var parties []Party
	for i := int64(1); i <= 10; i++ {
		parties = append(parties, Party{UserID: i, DeviceToken: "tok"})
	}
	n.FanOut(context.Background(), KindChallengeAccepted, parties, Payload{})

	if got := pusher.peak.Load(); got > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", got)
	}
}
