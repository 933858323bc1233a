package beacon

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// StatusFetcher performs one blocking read of the upstream player status.
type StatusFetcher interface {
	FetchStatus(ctx context.Context) (map[string]any, error)
}

// StatePublisher receives every state produced by the poller.
type StatePublisher interface {
	Publish(state PlaybackState, debug StatusDebug)
}

// PollerConfig controls the poll cadence.
type PollerConfig struct {
	Interval     time.Duration
	MinSleep     time.Duration
	FetchTimeout time.Duration
	SourceURL    string
}

// DefaultPollerConfig polls ten times a second.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:     100 * time.Millisecond,
		MinSleep:     10 * time.Millisecond,
		FetchTimeout: time.Second,
	}
}

// Poller drives the fetch -> translate -> publish loop.
type Poller struct {
	fetcher    StatusFetcher
	translator *Translator
	publisher  StatePublisher
	clock      clockwork.Clock
	config     PollerConfig
	metrics    MetricsCollector

	// Owned by the Run goroutine.
	last      *PlaybackState
	lastDebug StatusDebug
	failures  int
}

// NewPoller creates a poller. A nil clock means the real clock.
func NewPoller(fetcher StatusFetcher, translator *Translator, publisher StatePublisher, clock clockwork.Clock, config PollerConfig, metrics MetricsCollector) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &Poller{
		fetcher:    fetcher,
		translator: translator,
		publisher:  publisher,
		clock:      clock,
		config:     config,
		metrics:    metrics,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().
		Str("source", p.config.SourceURL).
		Dur("interval", p.config.Interval).
		Msg("status poller started")

	for {
		start := p.clock.Now()
		p.Tick(ctx)

		select {
		case <-ctx.Done():
			log.Info().Msg("status poller shutting down")
			return nil
		case <-p.clock.After(p.nextSleep(p.clock.Since(start))):
		}
	}
}

// nextSleep shortens the wait by the time already spent in the tick, but never below MinSleep.
func (p *Poller) nextSleep(elapsed time.Duration) time.Duration {
	sleep := p.config.Interval - elapsed
	if sleep < p.config.MinSleep {
		return p.config.MinSleep
	}
	return sleep
}

// Tick runs one poll iteration and returns the state it published.
func (p *Poller) Tick(ctx context.Context) PlaybackState {
	start := p.clock.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	raw, err := p.fetcher.FetchStatus(fetchCtx)
	cancel()
	end := p.clock.Now()

	// The midpoint of the request is the best guess for when fppd sampled its position
	serverMs := (start.UnixMilli() + end.UnixMilli()) / 2
	if p.last != nil && serverMs < p.last.ServerMs {
		serverMs = p.last.ServerMs
	}

	p.metrics.RecordPoll(err == nil, end.Sub(start))
	if err != nil {
		raw = nil
		if !errors.Is(ctx.Err(), context.Canceled) {
			p.noteFailure(err)
		}
	} else {
		p.noteSuccess()
	}

	state, debug, ok := p.translator.Translate(raw, serverMs)
	if !ok {
		if p.last != nil {
			state = p.last.WithServerMs(serverMs)
			debug = p.lastDebug
		} else {
			state = IdleState(serverMs)
			debug = StatusDebug{Status: -1}
		}
		debug.Healthy = false
	}
	debug.SourceURL = p.config.SourceURL

	p.last = &state
	p.lastDebug = debug

	p.publisher.Publish(state, debug)

	log.Debug().
		Str("state", string(state.State)).
		Str("track", state.TrackBase).
		Int64("pos_ms", state.PositionMs).
		Int64("server_ms", state.ServerMs).
		Msg("status tick")

	return state
}

func (p *Poller) noteFailure(err error) {
	p.failures++
	if p.failures == 1 {
		log.Warn().
			Err(err).
			Str("source", p.config.SourceURL).
			Msg("upstream status unavailable, holding last state")
		return
	}
	log.Debug().
		Err(err).
		Int("consecutive_failures", p.failures).
		Msg("upstream status fetch failed")
}

func (p *Poller) noteSuccess() {
	if p.failures > 0 {
		log.Info().
			Int("failed_polls", p.failures).
			Msg("upstream status recovered")
	}
	p.failures = 0
}
