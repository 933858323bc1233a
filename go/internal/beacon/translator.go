package beacon

import (
	"encoding/json"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
)

// Upstream status fields read from fppd.
const (
	fieldStatusName      = "status_name"
	fieldStatusCode      = "status"
	fieldCurrentSequence = "current_sequence"
)

// ElapsedUnit is the unit of the upstream elapsed-time field.
type ElapsedUnit string

const (
	ElapsedMilliseconds ElapsedUnit = "ms"
	ElapsedSeconds      ElapsedUnit = "s"
)

// ElapsedField names an upstream field carrying playback position and its unit.
type ElapsedField struct {
	Name string
	Unit ElapsedUnit
}

// knownElapsedFields are the position fields fppd has exposed across versions.
var knownElapsedFields = []ElapsedField{
	{Name: "milliseconds_elapsed", Unit: ElapsedMilliseconds},
	{Name: "seconds_played", Unit: ElapsedSeconds},
}

// AudioLookup maps a track base name to a playable asset URL.
type AudioLookup interface {
	Resolve(base string) string
}

// Translator converts raw fppd status payloads into PlaybackState records.
type Translator struct {
	elapsed []ElapsedField
	audio   AudioLookup
}

// NewTranslator creates a translator that reads position from primary first and
// falls back to the other known elapsed fields when primary is absent.
func NewTranslator(primary ElapsedField, audio AudioLookup) *Translator {
	fields := []ElapsedField{primary}
	for _, f := range knownElapsedFields {
		if f.Name != primary.Name {
			fields = append(fields, f)
		}
	}
	return &Translator{
		elapsed: fields,
		audio:   audio,
	}
}

// Translate returns the state for raw, or ok=false when raw is nil (fetch failed).
func (t *Translator) Translate(raw map[string]any, serverMs int64) (PlaybackState, StatusDebug, bool) {
	if raw == nil {
		return PlaybackState{}, StatusDebug{}, false
	}

	statusName := asString(raw[fieldStatusName])
	statusCode := -1
	if f, ok := asFloat(raw[fieldStatusCode]); ok {
		statusCode = int(f)
	}

	seq := asString(raw[fieldCurrentSequence])
	base := TrackBase(seq)

	elapsed, posMs := t.position(raw)

	state := PlaybackState{
		State:      ClassifyStatus(statusName, statusCode),
		TrackBase:  base,
		PositionMs: posMs,
		ServerMs:   serverMs,
	}
	if base != "" && t.audio != nil {
		state.AudioURL = t.audio.Resolve(base)
	}

	debug := StatusDebug{
		Status:     statusCode,
		StatusName: statusName,
		Sequence:   seq,
		Elapsed:    elapsed,
		Healthy:    true,
	}

	return state, debug, true
}

func (t *Translator) position(raw map[string]any) (float64, int64) {
	for _, field := range t.elapsed {
		v, ok := asFloat(raw[field.Name])
		if !ok {
			continue
		}
		ms := v
		if field.Unit == ElapsedSeconds {
			ms = v * 1000.0
		}
		if ms < 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
			return v, 0
		}
		return v, int64(ms)
	}
	return 0, 0
}

// ClassifyStatus maps fppd's status name and numeric code to a PlayState.
// A recognized status name wins over the code.
func ClassifyStatus(statusName string, statusCode int) PlayState {
	switch strings.ToLower(strings.TrimSpace(statusName)) {
	case "playing", "play":
		return PlayStatePlay
	case "paused", "pause":
		return PlayStatePause
	case "idle", "stopped", "stop":
		return PlayStateStop
	}

	switch statusCode {
	case 1:
		return PlayStatePlay
	case 2:
		return PlayStatePause
	default:
		return PlayStateStop
	}
}

// TrackBase returns the file name of a sequence path without directory or extension.
func TrackBase(sequence string) string {
	if sequence == "" {
		return ""
	}
	name := path.Base(strings.ReplaceAll(sequence, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	if ext := path.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
