package beacon

import (
	"encoding/json"
)

// PlayState is the coarse transport state of the player.
type PlayState string

const (
	PlayStatePlay  PlayState = "play"
	PlayStatePause PlayState = "pause"
	PlayStateStop  PlayState = "stop"
)

// PlaybackState is an immutable snapshot of the player, replaced wholesale on every poll tick.
type PlaybackState struct {
	State      PlayState `json:"state"`
	TrackBase  string    `json:"base"`
	PositionMs int64     `json:"pos_ms"`
	AudioURL   string    `json:"mp3_url"`
	ServerMs   int64     `json:"server_ms"`
}

// IdleState is the record reported before the first successful poll.
func IdleState(serverMs int64) PlaybackState {
	return PlaybackState{
		State:    PlayStateStop,
		ServerMs: serverMs,
	}
}

// WithServerMs returns a copy of the state stamped with a new server time.
func (s PlaybackState) WithServerMs(serverMs int64) PlaybackState {
	s.ServerMs = serverMs
	return s
}

// Encode serializes the state into the compact push message sent to clients.
func (s PlaybackState) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// StatusDebug carries the raw upstream fields behind the last translated state.
type StatusDebug struct {
	SourceURL  string  `json:"debug_src"`
	Status     int     `json:"debug_status"`
	StatusName string  `json:"debug_status_name"`
	Sequence   string  `json:"debug_seq"`
	Elapsed    float64 `json:"debug_elapsed"`
	Healthy    bool    `json:"debug_healthy"`
}

// StatusResponse is served by the HTTP status endpoint.
type StatusResponse struct {
	PlaybackState
	StatusDebug
}
