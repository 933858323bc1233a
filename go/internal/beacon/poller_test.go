package beacon

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// fakeClock is the part of clockwork's fake clock the tests drive.
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, n int) error
}

type fetchResult struct {
	raw map[string]any
	err error
	// took is how far the fake clock moves during the fetch.
	took time.Duration
}

type scriptedFetcher struct {
	mu      sync.Mutex
	clock   fakeClock
	results []fetchResult
	calls   int
}

func (f *scriptedFetcher) FetchStatus(ctx context.Context) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := f.results[len(f.results)-1]
	if f.calls < len(f.results) {
		r = f.results[f.calls]
	}
	f.calls++
	if r.took > 0 {
		f.clock.Advance(r.took)
	}
	return r.raw, r.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	states []PlaybackState
	debugs []StatusDebug
}

func (p *recordingPublisher) Publish(state PlaybackState, debug StatusDebug) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
	p.debugs = append(p.debugs, debug)
}

var playingStatus = map[string]any{
	"status":           json.Number("1"),
	"status_name":      "playing",
	"current_sequence": "xmas01.fseq",
	"seconds_played":   json.Number("3.5"),
}

func newTestPoller(clock fakeClock, results ...fetchResult) (*Poller, *scriptedFetcher, *recordingPublisher) {
	fetcher := &scriptedFetcher{clock: clock, results: results}
	pub := &recordingPublisher{}
	tr := NewTranslator(ElapsedField{Name: "seconds_played", Unit: ElapsedSeconds}, stubAudio{"xmas01": "/music/xmas01.mp3"})
	cfg := DefaultPollerConfig()
	cfg.SourceURL = "http://fpp.test/api/fppd/status"
	return NewPoller(fetcher, tr, pub, clock, cfg, nil), fetcher, pub
}

func TestPollerTick_MidpointTimestamp(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	clock := clockwork.NewFakeClockAt(start)
	p, _, _ := newTestPoller(clock, fetchResult{raw: playingStatus, took: 40 * time.Millisecond})

	state := p.Tick(context.Background())
	if want := start.UnixMilli() + 20; state.ServerMs != want {
		t.Fatalf("server_ms = %d, want midpoint %d", state.ServerMs, want)
	}
}

func TestPollerTick_FailureHoldsLastState(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	p, _, pub := newTestPoller(clock,
		fetchResult{raw: playingStatus},
		fetchResult{err: errors.New("connection refused")},
	)

	first := p.Tick(context.Background())
	clock.Advance(100 * time.Millisecond)
	second := p.Tick(context.Background())

	if second.ServerMs <= first.ServerMs {
		t.Fatalf("server_ms did not increase: %d -> %d", first.ServerMs, second.ServerMs)
	}
	if second.WithServerMs(first.ServerMs) != first {
		t.Fatalf("state changed on failure: %+v -> %+v", first, second)
	}
	if len(pub.states) != 2 {
		t.Fatalf("expected two publishes, got %d", len(pub.states))
	}
	if !pub.debugs[0].Healthy || pub.debugs[1].Healthy {
		t.Fatalf("unexpected health flags %+v", pub.debugs)
	}
	if pub.debugs[1].SourceURL != "http://fpp.test/api/fppd/status" {
		t.Fatalf("debug source missing: %+v", pub.debugs[1])
	}
}

func TestPollerTick_FailureBeforeFirstSuccessIsIdle(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	p, _, _ := newTestPoller(clock, fetchResult{err: context.DeadlineExceeded})

	state := p.Tick(context.Background())
	if state != IdleState(clock.Now().UnixMilli()) {
		t.Fatalf("expected idle state, got %+v", state)
	}
}

func TestPollerTick_ServerMsNeverDecreases(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	p, _, _ := newTestPoller(clock, fetchResult{raw: playingStatus})

	first := p.Tick(context.Background())
	// Simulate the wall clock being stepped backwards.
	p.clock = clockwork.NewFakeClockAt(time.UnixMilli(1_600_000_000_000))
	second := p.Tick(context.Background())
	if second.ServerMs < first.ServerMs {
		t.Fatalf("server_ms went backwards: %d -> %d", first.ServerMs, second.ServerMs)
	}
}

func TestPollerNextSleep(t *testing.T) {
	p, _, _ := newTestPoller(clockwork.NewFakeClock(), fetchResult{raw: playingStatus})

	tests := []struct {
		elapsed time.Duration
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{30 * time.Millisecond, 70 * time.Millisecond},
		{95 * time.Millisecond, 10 * time.Millisecond},
		{100 * time.Millisecond, 10 * time.Millisecond},
		{2 * time.Second, 10 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.nextSleep(tt.elapsed); got != tt.want {
			t.Fatalf("nextSleep(%s) = %s, want %s", tt.elapsed, got, tt.want)
		}
	}
}

func TestPollerRun_TicksOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	p, fetcher, pub := newTestPoller(clock, fetchResult{raw: playingStatus, took: 30 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()

	// After the first tick the loop waits 100ms minus the 30ms fetch.
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("poller never slept: %v", err)
	}
	if fetcher.Calls() != 1 {
		t.Fatalf("expected one fetch, got %d", fetcher.Calls())
	}

	clock.Advance(69 * time.Millisecond)
	if fetcher.Calls() != 1 {
		t.Fatalf("ticked early")
	}
	clock.Advance(time.Millisecond)
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("poller never slept again: %v", err)
	}
	if fetcher.Calls() != 2 {
		t.Fatalf("expected second fetch, got %d", fetcher.Calls())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for i := 1; i < len(pub.states); i++ {
		if pub.states[i].ServerMs < pub.states[i-1].ServerMs {
			t.Fatalf("server_ms decreased between ticks")
		}
	}
}
