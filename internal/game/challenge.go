// Package game runs the chore game's state transitions: task completions,
// challenges and commissioner decisions. Each transition commits its state
// change synchronously, then resolves recipients, fans out notifications and
// writes the reward and mail ledgers in the background.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/choregame/internal/metrics"
	"github.com/dukerupert/choregame/internal/model"
	"github.com/dukerupert/choregame/internal/push"
	"github.com/dukerupert/choregame/internal/store"
	"github.com/dukerupert/choregame/internal/websocket"
)

const defaultBackgroundTimeout = 30 * time.Second

// Stores groups the persistence collaborators.
type Stores struct {
	Users      *store.UserStore
	Games      *store.GameStore
	Tasks      *store.TaskStore
	Events     *store.EventStore
	Challenges *store.ChallengeStore
	Mail       *store.MailStore
}

// Broadcaster pushes live updates to connected clients.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

type Config struct {
	FanOutLimit       int
	BackgroundTimeout time.Duration
}

// Service owns the challenge state machine.
type Service struct {
	stores   Stores
	resolver *Resolver
	notifier *Notifier
	rewards  *RewardLedger
	mail     *MailLedger
	hub      Broadcaster
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	wg sync.WaitGroup
}

// NewService wires the pipeline. mailer, pusher and hub may be nil.
func NewService(stores Stores, mailer Mailer, pusher push.Sender, hub Broadcaster, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Service {
	timeout := cfg.BackgroundTimeout
	if timeout <= 0 {
		timeout = defaultBackgroundTimeout
	}
	logger = logger.With("component", "game")
	return &Service{
		stores:   stores,
		resolver: NewResolver(stores.Games, stores.Users),
		notifier: NewNotifier(mailer, pusher, stores.Games, cfg.FanOutLimit, logger, m),
		rewards:  NewRewardLedger(stores.Games, stores.Users, logger, m),
		mail:     NewMailLedger(stores.Mail, logger, m),
		hub:      hub,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
	}
}

// Wait blocks until every background pipeline started so far has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// LedgerResult counts the ledger writes of one transition.
type LedgerResult struct {
	MailWritten   int
	MailFailed    []int64
	RewardsFailed []int64
}

// transition carries one state change through load, commit, resolve, notify
// and ledger.
type transition struct {
	id   string
	kind Kind

	// load
	game           *model.Game
	task           *model.Task
	event          *model.Event
	challenge      *model.Challenge
	completer      *model.User
	challenger     *model.User
	commissionerID int64
	description    string
	beforePic      string
	afterPic       string

	// resolve
	parties []Party

	// notify
	deliveries []Delivery

	// ledger
	ledger LedgerResult
}

func newTransition(kind Kind) transition {
	return transition{id: uuid.NewString(), kind: kind}
}

// --- Entry points ---

type CompleteTaskInput struct {
	UserID    int64
	GameID    int64
	TaskID    int64
	BeforePic string
	AfterPic  string
}

// CompleteTask records a completion and, in the background, tells the other
// players, bumps their badges and pays the completer.
func (s *Service) CompleteTask(ctx context.Context, in CompleteTaskInput) (*model.Event, error) {
	t, err := s.loadCompletion(ctx, in)
	if err != nil {
		return nil, err
	}
	t, err = s.commit(ctx, t)
	if err != nil {
		return nil, err
	}
	s.settleAsync(ctx, t)
	return t.event, nil
}

type CreateChallengeInput struct {
	EventID        int64
	GameID         int64
	ChallengerID   int64
	CommissionerID int64
	Description    string
}

// CreateChallenge disputes an event and notifies the commissioner.
func (s *Service) CreateChallenge(ctx context.Context, in CreateChallengeInput) (*model.Challenge, error) {
	t, err := s.loadChallenge(ctx, in)
	if err != nil {
		return nil, err
	}
	t, err = s.commit(ctx, t)
	if err != nil {
		return nil, err
	}
	s.settleAsync(ctx, t)
	return t.challenge, nil
}

// ParseDecision converts a decision string to a terminal status.
func ParseDecision(decision string) (model.ChallengeStatus, error) {
	switch status := model.ChallengeStatus(strings.TrimSpace(decision)); status {
	case model.ChallengeAccepted, model.ChallengeRejected:
		return status, nil
	}
	return "", invalid("decide challenge", "decision must be %q or %q, got %q",
		model.ChallengeAccepted, model.ChallengeRejected, decision)
}

// DecideChallenge moves a Pending challenge to Accepted or Rejected. A
// challenge that is already decided is left untouched and ErrAlreadyDecided
// is returned.
func (s *Service) DecideChallenge(ctx context.Context, challengeID int64, decision string) (*model.Challenge, error) {
	status, err := ParseDecision(decision)
	if err != nil {
		return nil, err
	}
	t, err := s.loadDecision(ctx, challengeID, status)
	if err != nil {
		return nil, err
	}
	t, err = s.commit(ctx, t)
	if err != nil {
		return nil, err
	}
	s.settleAsync(ctx, t)
	return t.challenge, nil
}

// --- load ---

func (s *Service) loadCompletion(ctx context.Context, in CompleteTaskInput) (transition, error) {
	const op = "complete task"
	t := newTransition(KindEventCompleted)

	if in.UserID <= 0 || in.GameID <= 0 || in.TaskID <= 0 {
		return t, invalid(op, "user, game and task ids are required")
	}

	var err error
	if t.game, err = s.stores.Games.GetByID(ctx, in.GameID); err != nil {
		return t, storeFailure(op, err)
	}
	if t.game == nil {
		return t, notFound(op, "game", in.GameID)
	}
	if t.task, err = s.stores.Tasks.GetByID(ctx, in.TaskID); err != nil {
		return t, storeFailure(op, err)
	}
	if t.task == nil {
		return t, notFound(op, "task", in.TaskID)
	}
	if t.task.GameID != in.GameID {
		return t, invalid(op, "task %d does not belong to game %d", in.TaskID, in.GameID)
	}
	if t.completer, err = s.stores.Users.GetByID(ctx, in.UserID); err != nil {
		return t, storeFailure(op, err)
	}
	if t.completer == nil {
		return t, notFound(op, "user", in.UserID)
	}

	t.beforePic = in.BeforePic
	t.afterPic = in.AfterPic
	return t, nil
}

func (s *Service) loadChallenge(ctx context.Context, in CreateChallengeInput) (transition, error) {
	const op = "create challenge"
	t := newTransition(KindEventChallenged)

	if in.EventID <= 0 || in.GameID <= 0 || in.ChallengerID <= 0 || in.CommissionerID <= 0 {
		return t, invalid(op, "event, game, challenger and commissioner ids are required")
	}

	t, err := s.loadEvent(ctx, op, t, in.EventID)
	if err != nil {
		return t, err
	}
	if t.event.GameID != in.GameID {
		return t, invalid(op, "event %d does not belong to game %d", in.EventID, in.GameID)
	}

	if t.challenger, err = s.stores.Users.GetByID(ctx, in.ChallengerID); err != nil {
		return t, storeFailure(op, err)
	}
	if t.challenger == nil {
		return t, notFound(op, "user", in.ChallengerID)
	}
	commissioner, err := s.stores.Users.GetByID(ctx, in.CommissionerID)
	if err != nil {
		return t, storeFailure(op, err)
	}
	if commissioner == nil {
		return t, notFound(op, "user", in.CommissionerID)
	}

	t.commissionerID = in.CommissionerID
	t.description = strings.TrimSpace(in.Description)
	return t, nil
}

func (s *Service) loadDecision(ctx context.Context, challengeID int64, status model.ChallengeStatus) (transition, error) {
	const op = "decide challenge"
	kind := KindChallengeRejected
	if status == model.ChallengeAccepted {
		kind = KindChallengeAccepted
	}
	t := newTransition(kind)

	if challengeID <= 0 {
		return t, invalid(op, "challenge id is required")
	}

	var err error
	if t.challenge, err = s.stores.Challenges.GetByID(ctx, challengeID); err != nil {
		return t, storeFailure(op, err)
	}
	if t.challenge == nil {
		return t, notFound(op, "challenge", challengeID)
	}
	if t.challenge.Status.Terminal() {
		return t, &Error{Kind: ErrAlreadyDecided, Op: op,
			Err: fmt.Errorf("challenge %d is %s", challengeID, t.challenge.Status)}
	}

	if t, err = s.loadEvent(ctx, op, t, t.challenge.EventID); err != nil {
		return t, err
	}
	if t.challenger, err = s.stores.Users.GetByID(ctx, t.challenge.UserID); err != nil {
		return t, storeFailure(op, err)
	}
	if t.challenger == nil {
		return t, notFound(op, "user", t.challenge.UserID)
	}
	t.commissionerID = t.challenge.CommissionerID
	return t, nil
}

// loadEvent fills the event, its game, task and completer.
func (s *Service) loadEvent(ctx context.Context, op string, t transition, eventID int64) (transition, error) {
	var err error
	if t.event, err = s.stores.Events.GetByID(ctx, eventID); err != nil {
		return t, storeFailure(op, err)
	}
	if t.event == nil {
		return t, notFound(op, "event", eventID)
	}
	if t.game, err = s.stores.Games.GetByID(ctx, t.event.GameID); err != nil {
		return t, storeFailure(op, err)
	}
	if t.game == nil {
		return t, notFound(op, "game", t.event.GameID)
	}
	if t.task, err = s.stores.Tasks.GetByID(ctx, t.event.TaskID); err != nil {
		return t, storeFailure(op, err)
	}
	if t.task == nil {
		return t, notFound(op, "task", t.event.TaskID)
	}
	if t.completer, err = s.stores.Users.GetByID(ctx, t.event.CompletedByID); err != nil {
		return t, storeFailure(op, err)
	}
	if t.completer == nil {
		return t, notFound(op, "user", t.event.CompletedByID)
	}
	return t, nil
}

// --- commit ---

// commit performs the state-defining write. Nothing after it can undo it.
func (s *Service) commit(ctx context.Context, t transition) (transition, error) {
	var err error
	switch t.kind {
	case KindEventCompleted:
		t.event, err = s.stores.Events.Create(ctx, t.game.ID, t.task.ID, t.completer.ID, t.beforePic, t.afterPic)
		if err != nil {
			return t, storeFailure("complete task", err)
		}
		s.broadcast(t, "event", "created", t.event.ID)

	case KindEventChallenged:
		t.challenge, err = s.stores.Challenges.Create(ctx, t.event.ID, t.game.ID, t.commissionerID, t.challenger.ID, t.description)
		if err != nil {
			return t, storeFailure("create challenge", err)
		}
		s.broadcast(t, "challenge", "created", t.challenge.ID)

	case KindChallengeAccepted, KindChallengeRejected:
		const op = "decide challenge"
		status := model.ChallengeRejected
		if t.kind == KindChallengeAccepted {
			status = model.ChallengeAccepted
		}
		resolved, err := s.stores.Challenges.Resolve(ctx, t.challenge.ID, status, status == model.ChallengeAccepted)
		if err != nil {
			return t, storeFailure(op, err)
		}
		current, err := s.stores.Challenges.GetByID(ctx, t.challenge.ID)
		if err != nil {
			return t, storeFailure(op, err)
		}
		if current == nil {
			return t, notFound(op, "challenge", t.challenge.ID)
		}
		if !resolved {
			return t, &Error{Kind: ErrAlreadyDecided, Op: op,
				Err: fmt.Errorf("challenge %d is %s", current.ID, current.Status)}
		}
		t.challenge = current
		if status == model.ChallengeAccepted {
			t.event.Rejected = false
		}
		s.broadcast(t, "challenge", strings.ToLower(string(status)), t.challenge.ID)

	default:
		return t, fmt.Errorf("commit: unknown transition kind %q", t.kind)
	}

	s.metrics.Transitions.WithLabelValues(string(t.kind)).Inc()
	s.logger.InfoContext(ctx, "transition committed",
		"kind", t.kind,
		"transition_id", t.id,
		"game_id", t.game.ID,
	)
	return t, nil
}

func (s *Service) broadcast(t transition, entity, action string, id int64) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(websocket.NewMessage(t.game.ID, entity, action, id, map[string]any{
		"transition_id": t.id,
	}))
}

// --- background ---

// settleAsync runs the side-effect stages detached from the request.
func (s *Service) settleAsync(ctx context.Context, t transition) {
	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	s.metrics.BackgroundTasks.Inc()
	go func() {
		defer s.wg.Done()
		defer s.metrics.BackgroundTasks.Dec()
		defer func() {
			if r := recover(); r != nil {
				s.logger.ErrorContext(ctx, "transition side effects panicked",
					"kind", t.kind,
					"transition_id", t.id,
					"panic", r,
				)
			}
		}()

		if _, err := s.settle(ctx, t); err != nil {
			s.logger.ErrorContext(ctx, "transition side effects abandoned",
				"kind", t.kind,
				"transition_id", t.id,
				"error", err,
			)
		}
	}()
}

// settle runs resolve, notify and ledger. Only a resolve failure is
// returned; delivery and ledger failures are recorded on the transition.
// Delivery and ledger each get their own timeout.
func (s *Service) settle(ctx context.Context, t transition) (transition, error) {
	deliverCtx, cancelDeliver := context.WithTimeout(ctx, s.timeout)
	defer cancelDeliver()

	t, err := s.resolve(deliverCtx, t)
	if err != nil {
		return t, err
	}
	t = s.notify(deliverCtx, t)

	ledgerCtx, cancelLedger := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancelLedger()
	t = s.record(ledgerCtx, t)

	s.logger.InfoContext(ctx, "transition settled",
		"kind", t.kind,
		"transition_id", t.id,
		"parties", len(t.parties),
		"mail_written", t.ledger.MailWritten,
		"mail_failed", len(t.ledger.MailFailed),
		"rewards_failed", len(t.ledger.RewardsFailed),
	)
	return t, nil
}

// --- resolve ---

func (s *Service) resolve(ctx context.Context, t transition) (transition, error) {
	switch t.kind {
	case KindEventCompleted:
		parties, err := s.resolver.ResolveParties(ctx, t.game.ID, t.completer.ID)
		if err != nil {
			return t, err
		}
		for _, p := range parties {
			if p.Notifiable() {
				t.parties = append(t.parties, p)
			}
		}

	case KindEventChallenged:
		commissioner, err := s.resolver.ResolveCommissioner(ctx, t.challenge)
		if err != nil {
			return t, err
		}
		t.parties = []Party{commissioner}

	case KindChallengeRejected:
		challenger, _, err := s.resolver.ResolveDecisionPair(ctx, t.challenge)
		if err != nil {
			return t, err
		}
		t.parties = []Party{challenger}

	case KindChallengeAccepted:
		parties, err := s.resolver.ResolveParties(ctx, t.game.ID, 0)
		if err != nil {
			return t, err
		}
		t.parties = parties
	}
	return t, nil
}

// --- notify ---

func (s *Service) notify(ctx context.Context, t transition) transition {
	t.deliveries = s.notifier.FanOut(ctx, t.kind, t.parties, t.payload())
	return t
}

func (t transition) payload() Payload {
	p := Payload{
		GameID:        t.game.ID,
		CompleterName: t.completer.Username,
		TaskName:      t.task.Name,
	}
	switch t.kind {
	case KindEventCompleted:
		p.ActorName = t.completer.Username
		p.PushTitle = "Task completed"
		p.PushBody = t.completer.Username + " just completed " + t.task.Name + "!"
		p.BadgeDelta = 1
	case KindEventChallenged:
		p.ActorName = t.challenger.Username
		p.Description = t.challenge.Description
		p.PushTitle = "New challenge"
		p.PushBody = t.challenger.Username + " challenged " + t.completer.Username + "'s " + t.task.Name
	case KindChallengeAccepted:
		p.ActorName = t.challenger.Username
		p.PushTitle = "Challenge accepted"
		p.PushBody = "The commissioner accepted " + t.challenger.Username + "'s challenge of " + t.task.Name
	case KindChallengeRejected:
		p.ActorName = t.challenger.Username
		p.PushTitle = "Challenge rejected"
		p.PushBody = "The commissioner rejected your challenge of " + t.task.Name
	}
	return p
}

// --- ledger ---

// record writes one mail row per resolved party and, for completions, the
// badge and currency rewards. Each write stands alone.
func (s *Service) record(ctx context.Context, t transition) transition {
	refs := MailRefs{
		TransitionID: t.id,
		EventID:      t.event.ID,
		GameID:       t.game.ID,
	}
	switch t.kind {
	case KindEventCompleted:
		refs.UserID = &t.completer.ID
	case KindEventChallenged, KindChallengeAccepted:
		refs.UserID = &t.challenger.ID
	}
	if t.challenge != nil {
		refs.ChallengeID = &t.challenge.ID
	}

	for _, p := range t.parties {
		if err := s.mail.RecordMail(ctx, p.UserID, t.kind, refs); err != nil {
			t.ledger.MailFailed = append(t.ledger.MailFailed, p.UserID)
			continue
		}
		t.ledger.MailWritten++
	}

	if t.kind == KindEventCompleted {
		for _, p := range t.parties {
			if err := s.rewards.ApplyReward(ctx, p.UserID, t.game.ID, 1, FieldBadge); err != nil {
				t.ledger.RewardsFailed = append(t.ledger.RewardsFailed, p.UserID)
			}
		}
		if err := s.rewards.ApplyReward(ctx, t.completer.ID, t.game.ID, CompletionCurrency, FieldLifetimeCurrency); err != nil {
			t.ledger.RewardsFailed = append(t.ledger.RewardsFailed, t.completer.ID)
		}
	}
	return t
}
