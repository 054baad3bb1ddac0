// Package session runs the lifecycle of the single active pair: subscribe,
// fetch the snapshot, seed a fresh reconciler, then feed it live ticks.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/yourusername/quantstream/pkg/client"
	"github.com/yourusername/quantstream/pkg/model"
	"github.com/yourusername/quantstream/pkg/stream"
)

var (
	ErrNoSelection = errors.New("no active selection")
	ErrNotFailed   = errors.New("session is not in failed state")
	ErrSuperseded  = errors.New("selection changed while seeding")
	ErrStopped     = errors.New("session manager stopped")
)

// State of the active session.
type State string

const (
	StateIdle    State = "idle"
	StateSeeding State = "seeding"
	StateLive    State = "live"
	StateFailed  State = "failed"
)

// Config tunes the manager.
type Config struct {
	// PendingLimit bounds ticks held while the snapshot is being fetched.
	PendingLimit int
	// QueueSize is the buffer between the live source and the consumer.
	QueueSize int
	// FetchTimeout bounds one snapshot request (0 = caller's context only).
	FetchTimeout time.Duration
}

const (
	DefaultPendingLimit = 1024
	DefaultQueueSize    = 4096
)

// Status is a point-in-time view of the manager.
type Status struct {
	State          State           `json:"state"`
	Session        string          `json:"session,omitempty"`
	Selection      model.Selection `json:"selection"`
	LastError      string          `json:"last_error,omitempty"`
	SeededAt       time.Time       `json:"seeded_at,omitempty"`
	SeedBars       int             `json:"seed_bars"`
	Pending        int             `json:"pending"`
	DroppedPreSeed int64           `json:"dropped_pre_seed"`
	LeakedTicks    int64           `json:"leaked_ticks"`
	Reconciler     stream.Stats    `json:"reconciler"`
}

type taggedTick struct {
	tag  uuid.UUID
	tick model.LiveTick
}

// Manager owns at most one active pair session.
type Manager struct {
	live      client.LiveSource
	snapshots client.SnapshotSource
	sink      stream.Sink
	cfg       Config

	ticks chan taggedTick
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.Mutex
	state     State
	tag       uuid.UUID
	selection model.Selection
	hasSel    bool
	sub       client.Subscription
	rec       *stream.Reconciler
	pending   []model.LiveTick
	lastErr   error
	seededAt  time.Time
	seedBars  int
	dropped   int64
	leaked    int64
	warned    map[string]bool
	listeners []func(State)

	cron    *cron.Cron
	stopped bool
}

// NewManager wires a manager; call Start before Activate.
func NewManager(live client.LiveSource, snapshots client.SnapshotSource, sink stream.Sink, cfg Config) *Manager {
	if cfg.PendingLimit <= 0 {
		cfg.PendingLimit = DefaultPendingLimit
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if sink == nil {
		sink = stream.Discard
	}
	return &Manager{
		live:      live,
		snapshots: snapshots,
		sink:      sink,
		cfg:       cfg,
		ticks:     make(chan taggedTick, cfg.QueueSize),
		done:      make(chan struct{}),
		state:     StateIdle,
		warned:    make(map[string]bool),
	}
}

// OnStateChange registers fn to be called on every state transition.
// fn runs with the manager locked and must not call back into it.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
	fn(m.state)
}

// Start launches the consumer goroutine.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.consume()
	log.Println("[Session] Manager started")
}

// Stop unsubscribes, stops the scheduler and the consumer.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.unsubscribeLocked()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	close(m.done)
	m.wg.Wait()
	log.Println("[Session] Manager stopped")
}

// ScheduleReload reloads the snapshot on a cron spec (with seconds field).
// An empty spec disables the schedule.
func (m *Manager) ScheduleReload(spec string) error {
	if spec == "" {
		return nil
	}
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.fetchTimeout())
		defer cancel()
		if err := m.Reload(ctx); err != nil && !errors.Is(err, ErrNoSelection) {
			log.Printf("[Session] Scheduled reload failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("register reload %q: %w", spec, err)
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	old := m.cron
	m.cron = c
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	c.Start()
	log.Printf("[Session] Snapshot reload scheduled: %s", spec)
	return nil
}

func (m *Manager) fetchTimeout() time.Duration {
	if m.cfg.FetchTimeout > 0 {
		return m.cfg.FetchTimeout
	}
	return time.Minute
}

// Activate switches to sel: the previous subscription is torn down, a new
// tag is minted, the live feed is subscribed (ticks buffer until seeded)
// and the snapshot is fetched and seeded.
func (m *Manager) Activate(ctx context.Context, sel model.Selection) error {
	sel = sel.Normalize()
	if err := sel.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	m.unsubscribeLocked()

	tag := uuid.New()
	m.tag = tag
	m.selection = sel
	m.hasSel = true
	m.rec = nil
	m.pending = nil
	m.lastErr = nil
	m.seededAt = time.Time{}
	m.seedBars = 0
	m.dropped = 0
	m.leaked = 0
	m.warned = make(map[string]bool)
	m.setStateLocked(StateSeeding)

	sub, err := m.live.Subscribe(sel, func(tick model.LiveTick) {
		select {
		case m.ticks <- taggedTick{tag: tag, tick: tick}:
		case <-m.done:
		}
	})
	if err != nil {
		m.lastErr = fmt.Errorf("subscribe %s: %w", sel.Pair(), err)
		m.setStateLocked(StateFailed)
		m.mu.Unlock()
		return m.lastErr
	}
	m.sub = sub
	m.mu.Unlock()

	log.Printf("[Session] Activated %s (session %s)", sel, tag)
	return m.seed(ctx, tag, sel)
}

// Retry refetches the snapshot after a failure, keeping the subscription
// and every tick buffered meanwhile.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateFailed {
		m.mu.Unlock()
		return ErrNotFailed
	}
	if m.sub == nil {
		// Subscription itself failed; start over.
		sel := m.selection
		m.mu.Unlock()
		return m.Activate(ctx, sel)
	}
	tag, sel := m.tag, m.selection
	m.lastErr = nil
	m.setStateLocked(StateSeeding)
	m.mu.Unlock()

	log.Printf("[Session] Retrying snapshot for %s", sel.Pair())
	return m.seed(ctx, tag, sel)
}

// Reload restarts the active selection from a fresh snapshot.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	sel, ok := m.selection, m.hasSel
	m.mu.Unlock()
	if !ok {
		return ErrNoSelection
	}
	return m.Activate(ctx, sel)
}

// Deactivate drops the active session and returns to idle.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unsubscribeLocked()
	m.tag = uuid.Nil
	m.hasSel = false
	m.rec = nil
	m.pending = nil
	m.lastErr = nil
	m.setStateLocked(StateIdle)
}

func (m *Manager) seed(ctx context.Context, tag uuid.UUID, sel model.Selection) error {
	if m.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.FetchTimeout)
		defer cancel()
	}
	snap, fetchErr := m.snapshots.FetchSnapshot(ctx, sel)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tag != tag || m.stopped {
		return ErrSuperseded
	}
	if fetchErr != nil {
		return m.failLocked(fetchErr)
	}
	if snap == nil {
		snap = &model.Snapshot{}
	}

	rec := stream.NewReconciler(tag.String(), sel, m.sink)
	if _, err := rec.Seed(snap); err != nil {
		return m.failLocked(err)
	}
	m.rec = rec
	m.seededAt = time.Now()
	m.seedBars = len(snap.Bars)

	pending := m.pending
	m.pending = nil
	for _, tick := range pending {
		m.applyLocked(tick)
	}
	m.setStateLocked(StateLive)

	log.Printf("[Session] %s live: %d bars seeded, %d buffered ticks replayed, %d dropped",
		sel.Pair(), len(snap.Bars), len(pending), m.dropped)
	return nil
}

func (m *Manager) failLocked(err error) error {
	m.lastErr = err
	m.setStateLocked(StateFailed)
	log.Printf("[Session] %s seed failed: %v", m.selection.Pair(), err)
	return err
}

func (m *Manager) consume() {
	defer m.wg.Done()
	for {
		select {
		case tt := <-m.ticks:
			m.process(tt)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) process(tt taggedTick) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tt.tag != m.tag {
		m.leaked++
		m.warnOnceLocked("leaked", "[Session] Discarding tick from a replaced session (%s)", tt.tag)
		return
	}
	if m.rec == nil {
		m.bufferLocked(tt.tick)
		return
	}
	m.applyLocked(tt.tick)
}

func (m *Manager) bufferLocked(tick model.LiveTick) {
	if len(m.pending) >= m.cfg.PendingLimit {
		m.pending = append(m.pending[:0], m.pending[1:]...)
		m.dropped++
		m.warnOnceLocked("dropped", "[Session] Pre-seed buffer full (%d), dropping oldest ticks", m.cfg.PendingLimit)
	}
	m.pending = append(m.pending, tick)
}

func (m *Manager) applyLocked(tick model.LiveTick) {
	if _, err := m.rec.OnLiveTick(tick); err != nil {
		m.warnOnceLocked("apply", "[Session] Tick rejected: %v", err)
	}
}

func (m *Manager) warnOnceLocked(key, format string, args ...any) {
	if m.warned[key] {
		return
	}
	m.warned[key] = true
	log.Printf(format, args...)
}

func (m *Manager) unsubscribeLocked() {
	if m.sub == nil {
		return
	}
	if err := m.sub.Unsubscribe(); err != nil {
		log.Printf("[Session] Unsubscribe failed: %v", err)
	}
	m.sub = nil
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	for _, fn := range m.listeners {
		fn(s)
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of the manager.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:          m.state,
		Selection:      m.selection,
		SeededAt:       m.seededAt,
		SeedBars:       m.seedBars,
		Pending:        len(m.pending),
		DroppedPreSeed: m.dropped,
		LeakedTicks:    m.leaked,
	}
	if m.tag != uuid.Nil {
		st.Session = m.tag.String()
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	if m.rec != nil {
		st.Reconciler = m.rec.Stats()
	}
	return st
}
