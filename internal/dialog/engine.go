package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/sshbot/core/logger"
	"github.com/m3rciful/sshbot/internal/remote"
	"github.com/m3rciful/sshbot/internal/sessionstore"
)

// Config holds the limits the engine enforces.
type Config struct {
	MaxConnectionsPerUser int
	IdleTimeout           time.Duration
	MaxOutputLength       int
	PageSize              int
	ConnectTimeout        time.Duration
	CommandTimeout        time.Duration
	MaxEditSize           int64
	MaxTransferSize       int64
	DefaultPort           int
	SearchMaxResults      int

	// MailboxSize bounds the queued events per user.
	MailboxSize int
	// WorkerIdle is how long a user's worker waits for input before exiting.
	WorkerIdle time.Duration
	// RestoreAttempts and RestoreBackoff tune reconnects at startup.
	RestoreAttempts int
	RestoreBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConnectionsPerUser <= 0 {
		c.MaxConnectionsPerUser = 3
	}
	if c.MaxOutputLength <= 0 {
		c.MaxOutputLength = 50000
	}
	if c.PageSize <= 0 {
		c.PageSize = 3500
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 60 * time.Second
	}
	if c.MaxEditSize <= 0 {
		c.MaxEditSize = 1 << 20
	}
	if c.MaxTransferSize <= 0 {
		c.MaxTransferSize = 20 << 20
	}
	if c.DefaultPort <= 0 {
		c.DefaultPort = 22
	}
	if c.SearchMaxResults <= 0 {
		c.SearchMaxResults = 50
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 32
	}
	if c.WorkerIdle <= 0 {
		c.WorkerIdle = time.Minute
	}
	if c.RestoreAttempts <= 0 {
		c.RestoreAttempts = 3
	}
	if c.RestoreBackoff <= 0 {
		c.RestoreBackoff = time.Second
	}
	return c
}

// Deps are the collaborators of an Engine. Dialogs and Sessions default to
// in-memory stores; Sealer defaults to not persisting credentials.
type Deps struct {
	Dialer   remote.Dialer
	Store    sessionstore.Store
	Sealer   sessionstore.Sealer
	Replier  Replier
	Dialogs  DialogStore
	Sessions SessionRegistry
	Now      func() time.Time
	NewID    func() string
}

// Engine serializes each user's events on a dedicated worker goroutine.
type Engine struct {
	cfg      Config
	dialer   remote.Dialer
	store    sessionstore.Store
	sealer   sessionstore.Sealer
	replier  Replier
	dialogs  DialogStore
	sessions SessionRegistry
	now      func() time.Time
	newID    func() string

	table   map[State]map[EventKind]step
	actions map[Action]actionSpec

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// stepped observes every handled event.
	stepped func(Event)

	mu     sync.Mutex
	boxes  map[int64]*mailbox
	closed bool
}

// New builds an engine. Close releases its workers and live connections.
func New(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Dialer == nil:
		return nil, errors.New("dialog: dialer is required")
	case deps.Store == nil:
		return nil, errors.New("dialog: session store is required")
	case deps.Replier == nil:
		return nil, errors.New("dialog: replier is required")
	}
	if deps.Sealer == nil {
		deps.Sealer = sessionstore.NopSealer{}
	}
	if deps.Dialogs == nil {
		deps.Dialogs = NewMemoryDialogs()
	}
	if deps.Sessions == nil {
		deps.Sessions = NewMemorySessions()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg.withDefaults(),
		dialer:   deps.Dialer,
		store:    deps.Store,
		sealer:   deps.Sealer,
		replier:  deps.Replier,
		dialogs:  deps.Dialogs,
		sessions: deps.Sessions,
		now:      deps.Now,
		newID:    deps.NewID,
		table:    transitionTable(),
		actions:  actionTable(),
		ctx:      ctx,
		stop:     stop,
		boxes:    make(map[int64]*mailbox),
	}, nil
}

type mailbox struct {
	queue chan Event
	// inflight counts events accepted but not yet handled.
	inflight atomic.Int64

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelCauseFunc
}

// preempt cancels the running step and invalidates everything queued so far.
func (mb *mailbox) preempt() uint64 {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.gen++
	if mb.cancel != nil {
		mb.cancel(errPreempted)
	}
	return mb.gen
}

func (mb *mailbox) current() uint64 {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.gen
}

// begin registers the cancel func of a step unless the event is stale.
func (mb *mailbox) begin(gen uint64, cancel context.CancelCauseFunc) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if gen < mb.gen {
		return false
	}
	mb.cancel = cancel
	return true
}

func (mb *mailbox) end() {
	mb.mu.Lock()
	mb.cancel = nil
	mb.mu.Unlock()
}

// Dispatch queues ev for its user. Events of one user are handled strictly
// in arrival order; a disconnect first cancels the operation in flight.
func (e *Engine) Dispatch(ctx context.Context, ev Event) error {
	if ev.UserID == 0 {
		return errors.New("dialog: event without user id")
	}
	ev.ctx = ctx

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	mb, ok := e.boxes[ev.UserID]
	if !ok {
		mb = &mailbox{queue: make(chan Event, e.cfg.MailboxSize)}
		e.boxes[ev.UserID] = mb
		e.wg.Add(1)
		go e.serve(ev.UserID, mb)
	}
	if preempts(ev) {
		ev.gen = mb.preempt()
	} else {
		ev.gen = mb.current()
	}
	mb.inflight.Add(1)
	select {
	case mb.queue <- ev:
		return nil
	default:
		mb.inflight.Add(-1)
		return ErrBusy
	}
}

func preempts(ev Event) bool {
	return (ev.Kind == EventButton || ev.Kind == EventCommand) && ev.Action == ActionDisconnect
}

func (e *Engine) serve(userID int64, mb *mailbox) {
	defer e.wg.Done()
	idle := time.NewTimer(e.cfg.WorkerIdle)
	defer idle.Stop()
	for {
		select {
		case ev := <-mb.queue:
			e.handle(mb, ev)
			idle.Reset(e.cfg.WorkerIdle)
		case <-idle.C:
			e.mu.Lock()
			if len(mb.queue) == 0 {
				delete(e.boxes, userID)
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
			idle.Reset(e.cfg.WorkerIdle)
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) handle(mb *mailbox, ev Event) {
	parent := ev.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	stopAfter := context.AfterFunc(e.ctx, func() { cancel(context.Canceled) })
	defer func() {
		mb.end()
		mb.inflight.Add(-1)
		stopAfter()
		cancel(nil)
		if e.stepped != nil {
			e.stepped(ev)
		}
	}()

	if !mb.begin(ev.gen, cancel) {
		logger.Debug(ctx, logger.ComponentDialog, "event_discarded",
			slog.Int64("user_id", ev.UserID),
			slog.String("kind", ev.Kind.String()),
		)
		return
	}

	t := &turn{ctx: ctx, ev: ev}
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, logger.ComponentDialog, "step_panic",
				slog.Int64("user_id", ev.UserID),
				slog.String("kind", ev.Kind.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			next := e.rest(t)
			next.UserID = ev.UserID
			next.UpdatedAt = e.now()
			e.dialogs.Put(next)
			e.reply(t, Reply{Text: "⚠️ Internal error, the request was aborted.", Menu: e.menuFor(t)})
		}
	}()
	e.run(t)
}

// run executes one transition for t.ev.
func (e *Engine) run(t *turn) {
	userID := t.ev.UserID
	t.dlg = e.dialogs.Get(userID)
	t.sess = e.sessions.Get(userID)
	if t.sess != nil {
		t.ctx = logger.WithSession(t.ctx, t.sess.ID, t.sess.Target().String())
	}
	from := t.dlg.Step

	if t.ev.Kind != eventRestore {
		e.expireIfIdle(t)
	}
	if t.sess != nil && t.ev.Kind != eventIdleCheck && t.ev.Kind != eventRestore {
		t.sess.LastActivity = e.now()
	}

	var next Dialog
	if fn, ok := e.table[t.dlg.Step][t.ev.Kind]; ok {
		next = fn(e, t)
	} else {
		next = e.unexpected(t)
	}

	if preempted(t.ctx) {
		logger.Info(t.ctx, logger.ComponentDialog, "step_preempted",
			slog.Int64("user_id", userID),
			slog.String("state", string(from)),
		)
		return
	}
	next.UserID = userID
	next.UpdatedAt = e.now()
	if next.Step == "" {
		next.Step = StateIdle
	}
	if next.Step == StateIdle && next.Output == nil && next.Err == nil {
		e.dialogs.Clear(userID)
	} else {
		e.dialogs.Put(next)
	}
	if from != next.Step || t.ev.Kind != eventIdleCheck {
		logger.Debug(t.ctx, logger.ComponentDialog, "transition",
			slog.Int64("user_id", userID),
			slog.String("kind", t.ev.Kind.String()),
			slog.String("action", string(t.ev.Action)),
			slog.String("state", string(from)),
			slog.String("next_state", string(next.Step)),
		)
	}
}

func preempted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errPreempted)
}

// State reports the user's current step.
func (e *Engine) State(userID int64) State {
	return e.dialogs.Get(userID).Step
}

// Pending reports whether the user has events queued or being handled.
func (e *Engine) Pending(userID int64) bool {
	e.mu.Lock()
	mb, ok := e.boxes[userID]
	e.mu.Unlock()
	return ok && mb.inflight.Load() > 0
}

// Restore loads every persisted session and queues a reconnect for each.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	records, err := e.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	queued := 0
	for i := range records {
		rec := records[i]
		ev := Event{Kind: eventRestore, UserID: rec.UserID, record: &rec}
		if err := e.Dispatch(ctx, ev); err != nil {
			logger.Warn(ctx, logger.ComponentDialog, "restore_enqueue_failed",
				slog.Int64("user_id", rec.UserID),
				slog.String("err", err.Error()),
			)
			continue
		}
		queued++
	}
	logger.Info(ctx, logger.ComponentDialog, "restore_queued",
		slog.Int("count", queued),
	)
	return queued, nil
}

// SweepIdle asks the worker of every connected user, and of every user
// stopped halfway through a prompt, to check its idle timeout.
func (e *Engine) SweepIdle(ctx context.Context) int {
	seen := make(map[int64]struct{})
	var users []int64
	for _, s := range e.sessions.All() {
		seen[s.UserID] = struct{}{}
		users = append(users, s.UserID)
	}
	for _, d := range e.dialogs.All() {
		if d.Step == StateIdle {
			continue
		}
		if _, ok := seen[d.UserID]; ok {
			continue
		}
		seen[d.UserID] = struct{}{}
		users = append(users, d.UserID)
	}
	n := 0
	for _, userID := range users {
		if err := e.Dispatch(ctx, Event{Kind: eventIdleCheck, UserID: userID}); err == nil {
			n++
		}
	}
	return n
}

// Close stops the workers and closes live connections. Persisted records are
// kept so the sessions are restored on the next start.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.stop()
	e.wg.Wait()

	var errs []error
	for _, s := range e.sessions.All() {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", s.ID, err))
		}
		e.sessions.Remove(s.UserID)
	}
	return errors.Join(errs...)
}
