package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/quantstream/pkg/client"
	"github.com/yourusername/quantstream/pkg/model"
)

type fakeSub struct {
	live *fakeLive
	idx  int
}

func (s *fakeSub) Unsubscribe() error {
	s.live.mu.Lock()
	defer s.live.mu.Unlock()
	s.live.active[s.idx] = false
	return nil
}

type fakeLive struct {
	mu       sync.Mutex
	handlers []func(model.LiveTick)
	active   []bool
	err      error
}

func (f *fakeLive) Subscribe(_ model.Selection, h func(model.LiveTick)) (client.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.handlers = append(f.handlers, h)
	f.active = append(f.active, true)
	return &fakeSub{live: f, idx: len(f.handlers) - 1}, nil
}

// emit delivers to the newest active subscription.
func (f *fakeLive) emit(tick model.LiveTick) {
	f.mu.Lock()
	var h func(model.LiveTick)
	for i := len(f.handlers) - 1; i >= 0; i-- {
		if f.active[i] {
			h = f.handlers[i]
			break
		}
	}
	f.mu.Unlock()
	if h != nil {
		h(tick)
	}
}

func (f *fakeLive) handler(i int) func(model.LiveTick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[i]
}

type fakeSnapshots struct {
	mu    sync.Mutex
	snap  *model.Snapshot
	err   error
	gate  chan struct{}
	calls int
}

func (f *fakeSnapshots) FetchSnapshot(ctx context.Context, _ model.Selection) (*model.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err
}

func (f *fakeSnapshots) set(snap *model.Snapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap, f.err = snap, err
}

type recordSink struct {
	mu     sync.Mutex
	seeds  []model.SeriesSet
	events []model.PointEvent
}

func (s *recordSink) Seeded(set model.SeriesSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeds = append(s.seeds, set)
}

func (s *recordSink) Append(ev model.PointEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) spreadTimes() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, ev := range s.events {
		if ev.Metric == model.MetricSpread {
			out = append(out, ev.Time.Unix())
		}
	}
	return out
}

func (s *recordSink) seedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seeds)
}

var pair = model.Selection{BaseSymbol: "BTCUSDT", HedgeSymbol: "ETHUSDT", Timeframe: model.Timeframe1m, WindowSize: 10}

func snapshot(n int, start int64) *model.Snapshot {
	bars := make([]model.HistoricalBar, n)
	for i := range bars {
		ts := time.Unix(start+int64(i)*60, 0).UTC()
		bars[i] = model.HistoricalBar{
			Time:   ts,
			YOHLC:  &model.OHLC{Close: 100 + float64(i)},
			XOHLC:  &model.OHLC{Close: 50 + float64(i%3)},
			Spread: model.Some(float64(i)),
		}
	}
	return &model.Snapshot{Bars: bars}
}

func tickAt(sec int64) model.LiveTick {
	return model.LiveTick{
		Time:   time.Unix(sec, 0).UTC(),
		YPrice: model.Some(float64(sec % 97)),
		XPrice: model.Some(float64(sec % 13)),
		Spread: model.Some(1),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeLive, *fakeSnapshots, *recordSink) {
	t.Helper()
	live := &fakeLive{}
	snaps := &fakeSnapshots{snap: snapshot(10, 600)}
	sink := &recordSink{}
	m := NewManager(live, snaps, sink, cfg)
	m.Start()
	t.Cleanup(m.Stop)
	return m, live, snaps, sink
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestManager_ActivateAndStream(t *testing.T) {
	m, live, _, sink := newTestManager(t, Config{})

	if err := m.Activate(context.Background(), pair); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	st := m.Status()
	if st.State != StateLive || st.SeedBars != 10 || st.Session == "" {
		t.Fatalf("Status() = %+v", st)
	}

	live.emit(tickAt(1200))
	live.emit(tickAt(1230))
	waitFor(t, "two spread points", func() bool { return len(sink.spreadTimes()) == 2 })

	if got := m.Status().Reconciler.Ticks; got != 2 {
		t.Errorf("Reconciler.Ticks = %d, want 2", got)
	}
}

func TestManager_BuffersUntilSeeded(t *testing.T) {
	m, live, snaps, sink := newTestManager(t, Config{})
	snaps.gate = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- m.Activate(context.Background(), pair) }()
	waitFor(t, "seeding", func() bool { return m.State() == StateSeeding && m.Status().Session != "" })
	waitFor(t, "subscription", func() bool { live.mu.Lock(); defer live.mu.Unlock(); return len(live.handlers) == 1 })

	for _, sec := range []int64{1150, 1170, 1200} {
		live.emit(tickAt(sec))
	}
	waitFor(t, "three pending ticks", func() bool { return m.Status().Pending == 3 })
	if n := len(sink.spreadTimes()); n != 0 {
		t.Fatalf("%d points emitted before seed", n)
	}

	close(snaps.gate)
	if err := <-errc; err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	if got := sink.spreadTimes(); !equalInts(got, []int64{1150, 1170, 1200}) {
		t.Errorf("replayed spread times = %v", got)
	}
	if st := m.Status(); st.State != StateLive || st.Pending != 0 || st.DroppedPreSeed != 0 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestManager_PreSeedOverflowIsCounted(t *testing.T) {
	m, live, snaps, sink := newTestManager(t, Config{PendingLimit: 2})
	snaps.gate = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- m.Activate(context.Background(), pair) }()
	waitFor(t, "subscription", func() bool { live.mu.Lock(); defer live.mu.Unlock(); return len(live.handlers) == 1 })

	for sec := int64(1150); sec < 1200; sec += 10 {
		live.emit(tickAt(sec))
	}
	waitFor(t, "overflow", func() bool { return m.Status().DroppedPreSeed == 3 })

	close(snaps.gate)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if got := sink.spreadTimes(); !equalInts(got, []int64{1180, 1190}) {
		t.Errorf("spread times = %v, want the two newest", got)
	}
	if m.Status().DroppedPreSeed != 3 {
		t.Errorf("DroppedPreSeed reset by seeding")
	}
}

func TestManager_FailureAndRetry(t *testing.T) {
	m, live, snaps, sink := newTestManager(t, Config{})
	snaps.set(nil, client.ErrSnapshotUnavailable)

	err := m.Activate(context.Background(), pair)
	if !errors.Is(err, client.ErrSnapshotUnavailable) {
		t.Fatalf("Activate() error = %v", err)
	}
	st := m.Status()
	if st.State != StateFailed || st.LastError == "" {
		t.Fatalf("Status() = %+v", st)
	}

	live.emit(tickAt(1200))
	waitFor(t, "buffered tick", func() bool { return m.Status().Pending == 1 })

	snaps.set(snapshot(10, 600), nil)
	if err := m.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if st := m.Status(); st.State != StateLive || st.LastError != "" {
		t.Errorf("Status() after retry = %+v", st)
	}
	if got := sink.spreadTimes(); !equalInts(got, []int64{1200}) {
		t.Errorf("spread times = %v", got)
	}

	if err := m.Retry(context.Background()); !errors.Is(err, ErrNotFailed) {
		t.Errorf("Retry() while live = %v", err)
	}
}

func TestManager_SwitchDiscardsLeakedTicks(t *testing.T) {
	m, live, _, sink := newTestManager(t, Config{})
	if err := m.Activate(context.Background(), pair); err != nil {
		t.Fatal(err)
	}
	first := m.Status().Session
	oldHandler := live.handler(0)

	next := model.Selection{BaseSymbol: "SOLUSDT", HedgeSymbol: "ETHUSDT", Timeframe: model.Timeframe1m, WindowSize: 20}
	if err := m.Activate(context.Background(), next); err != nil {
		t.Fatal(err)
	}
	if m.Status().Session == first {
		t.Fatal("session id not renewed")
	}

	// A tick already in flight on the old subscription.
	oldHandler(tickAt(5000))
	waitFor(t, "leaked tick", func() bool { return m.Status().LeakedTicks == 1 })
	if n := len(sink.spreadTimes()); n != 0 {
		t.Errorf("leaked tick produced %d points", n)
	}

	live.emit(tickAt(1200))
	waitFor(t, "tick on new session", func() bool { return len(sink.spreadTimes()) == 1 })
	if sink.seedCount() != 2 {
		t.Errorf("seeds = %d, want 2", sink.seedCount())
	}
}

func TestManager_ReloadAndDeactivate(t *testing.T) {
	m, _, snaps, sink := newTestManager(t, Config{})
	if err := m.Reload(context.Background()); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Reload() without selection = %v", err)
	}

	if err := m.Activate(context.Background(), pair); err != nil {
		t.Fatal(err)
	}
	first := m.Status().Session
	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if m.Status().Session == first || sink.seedCount() != 2 || snaps.calls != 2 {
		t.Errorf("reload: session %s -> %s, seeds %d, fetches %d", first, m.Status().Session, sink.seedCount(), snaps.calls)
	}

	m.Deactivate()
	if st := m.Status(); st.State != StateIdle || st.Session != "" {
		t.Errorf("Status() after Deactivate = %+v", st)
	}
}

func TestManager_StateListenerAndValidation(t *testing.T) {
	m, _, _, _ := newTestManager(t, Config{})

	var mu sync.Mutex
	var states []State
	m.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := m.Activate(context.Background(), model.Selection{BaseSymbol: "BTC", HedgeSymbol: "btc"}); !errors.Is(err, model.ErrInvalidSelection) {
		t.Errorf("Activate(same symbols) = %v", err)
	}
	if err := m.Activate(context.Background(), pair); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateIdle, StateSeeding, StateLive}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestManager_ScheduleReload(t *testing.T) {
	m, _, _, _ := newTestManager(t, Config{})
	if err := m.ScheduleReload(""); err != nil {
		t.Errorf("empty spec: %v", err)
	}
	if err := m.ScheduleReload("not a cron"); err == nil {
		t.Error("invalid spec accepted")
	}
	if err := m.ScheduleReload("0 */5 * * * *"); err != nil {
		t.Errorf("valid spec: %v", err)
	}
}
