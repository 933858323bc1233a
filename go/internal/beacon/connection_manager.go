package beacon

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Session is a live client connection as seen by the ConnectionManager.
type Session interface {
	ID() string
	Label() string
	// Send queues msg for delivery without blocking.
	Send(msg []byte) error
	// Close tears the session down. It must be safe to call more than once.
	Close()
}

// ConnectionManager owns the registry of client sessions and the current
// PlaybackState, and fans state updates out to every session.
type ConnectionManager struct {
	mu       sync.RWMutex
	sessions map[Session]struct{}
	current  *PlaybackState
	debug    StatusDebug

	metrics MetricsCollector
}

// NewConnectionManager creates an empty registry
func NewConnectionManager(metrics MetricsCollector) *ConnectionManager {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &ConnectionManager{
		sessions: make(map[Session]struct{}),
		metrics:  metrics,
	}
}

// Register adds a session and immediately queues the current state to it, if any.
func (cm *ConnectionManager) Register(s Session) error {
	cm.mu.Lock()
	cm.sessions[s] = struct{}{}
	count := len(cm.sessions)

	var err error
	if cm.current != nil {
		var msg []byte
		msg, err = cm.current.Encode()
		if err == nil {
			err = s.Send(msg)
		}
	}
	cm.mu.Unlock()

	cm.metrics.RecordSessions(count)
	log.Info().
		Str("connection_id", s.ID()).
		Str("remote", s.Label()).
		Int("total_connections", count).
		Msg("client connected")

	if err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", s.ID()).
			Msg("failed to send initial state")
		cm.Unregister(s)
		return err
	}
	return nil
}

// Unregister removes and closes a session. Removing an unknown session is a no-op.
func (cm *ConnectionManager) Unregister(s Session) {
	cm.mu.Lock()
	_, exists := cm.sessions[s]
	delete(cm.sessions, s)
	count := len(cm.sessions)
	cm.mu.Unlock()

	s.Close()
	if !exists {
		return
	}

	cm.metrics.RecordSessions(count)
	log.Info().
		Str("connection_id", s.ID()).
		Str("remote", s.Label()).
		Int("total_connections", count).
		Msg("client disconnected")
}

// Publish makes state current and broadcasts it.
func (cm *ConnectionManager) Publish(state PlaybackState, debug StatusDebug) {
	cm.mu.Lock()
	cm.current = &state
	cm.debug = debug
	cm.mu.Unlock()

	cm.Broadcast(state)
}

// Broadcast sends state to every registered session without changing the current state.
// Sessions that fail delivery are removed after the fan-out completes.
func (cm *ConnectionManager) Broadcast(state PlaybackState) {
	cm.mu.RLock()
	targets := cm.snapshotLocked()
	cm.mu.RUnlock()

	cm.deliver(state, targets)
}

func (cm *ConnectionManager) snapshotLocked() []Session {
	if len(cm.sessions) == 0 {
		return nil
	}
	targets := make([]Session, 0, len(cm.sessions))
	for s := range cm.sessions {
		targets = append(targets, s)
	}
	return targets
}

func (cm *ConnectionManager) deliver(state PlaybackState, targets []Session) {
	if len(targets) == 0 {
		return
	}

	// Marshal the state once
	msg, err := state.Encode()
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal state for broadcast")
		return
	}

	var dead []Session
	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			log.Debug().
				Err(err).
				Str("connection_id", s.ID()).
				Msg("state delivery failed")
			dead = append(dead, s)
		}
	}

	for _, s := range dead {
		cm.Unregister(s)
	}

	cm.metrics.RecordBroadcast(len(targets)-len(dead), len(dead))
}

// Current returns the current state, or false before the first publish.
func (cm *ConnectionManager) Current() (PlaybackState, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.current == nil {
		return PlaybackState{}, false
	}
	return *cm.current, true
}

// CurrentStatus returns the current state together with its upstream debug fields.
func (cm *ConnectionManager) CurrentStatus() (StatusResponse, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.current == nil {
		return StatusResponse{}, false
	}
	return StatusResponse{PlaybackState: *cm.current, StatusDebug: cm.debug}, true
}

// Count returns the number of registered sessions.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.sessions)
}

// CloseAll closes every session, used on shutdown.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	targets := cm.snapshotLocked()
	cm.mu.Unlock()

	for _, s := range targets {
		cm.Unregister(s)
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := map[string]interface{}{
		"total_connections": len(cm.sessions),
		"has_state":         cm.current != nil,
	}
	if cm.current != nil {
		stats["state"] = string(cm.current.State)
		stats["track"] = cm.current.TrackBase
		stats["server_ms"] = cm.current.ServerMs
	}
	return stats
}
