package beacon

import (
	"encoding/json"
	"testing"
)

type stubAudio map[string]string

func (s stubAudio) Resolve(base string) string { return s[base] }

func TestClassifyStatus_Precedence(t *testing.T) {
	names := map[string]PlayState{
		"playing": PlayStatePlay,
		"Play":    PlayStatePlay,
		"PAUSED":  PlayStatePause,
		"pause":   PlayStatePause,
		"idle":    PlayStateStop,
		"stopped": PlayStateStop,
		"Stop":    PlayStateStop,
	}
	codes := map[int]PlayState{
		-1: PlayStateStop,
		0:  PlayStateStop,
		1:  PlayStatePlay,
		2:  PlayStatePause,
		3:  PlayStateStop,
	}

	// Recognized names win regardless of the code.
	for name, want := range names {
		for code := range codes {
			if got := ClassifyStatus(name, code); got != want {
				t.Fatalf("ClassifyStatus(%q, %d) = %s, want %s", name, code, got, want)
			}
		}
	}

	// Unknown or empty names fall back to the code.
	for _, name := range []string{"", "testing", "unknown"} {
		for code, want := range codes {
			if got := ClassifyStatus(name, code); got != want {
				t.Fatalf("ClassifyStatus(%q, %d) = %s, want %s", name, code, got, want)
			}
		}
	}
}

func TestTrackBase(t *testing.T) {
	tests := map[string]string{
		"":                          "",
		"xmas01.fseq":               "xmas01",
		"/home/fpp/seq/xmas01.fseq": "xmas01",
		"playlists\\carol.fseq":     "carol",
		"no_extension":              "no_extension",
		"multi.part.name.fseq":      "multi.part.name",
		".hidden":                   ".hidden",
	}
	for in, want := range tests {
		if got := TrackBase(in); got != want {
			t.Fatalf("TrackBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTranslate_NilMeansNoUpdate(t *testing.T) {
	tr := NewTranslator(ElapsedField{Name: "seconds_played", Unit: ElapsedSeconds}, nil)
	if _, _, ok := tr.Translate(nil, 1000); ok {
		t.Fatalf("expected no update for nil payload")
	}
}

func TestTranslate_FullPayload(t *testing.T) {
	tr := NewTranslator(
		ElapsedField{Name: "seconds_played", Unit: ElapsedSeconds},
		stubAudio{"xmas01": "/music/xmas01.mp3"},
	)

	raw := map[string]any{
		"status":           json.Number("1"),
		"status_name":      "idle",
		"current_sequence": "xmas01.fseq",
		"seconds_played":   json.Number("12.345"),
	}
	state, debug, ok := tr.Translate(raw, 5000)
	if !ok {
		t.Fatalf("expected update")
	}

	want := PlaybackState{
		State:      PlayStateStop,
		TrackBase:  "xmas01",
		PositionMs: 12345,
		AudioURL:   "/music/xmas01.mp3",
		ServerMs:   5000,
	}
	if state != want {
		t.Fatalf("Translate = %+v, want %+v", state, want)
	}
	if debug.Status != 1 || debug.StatusName != "idle" || debug.Sequence != "xmas01.fseq" || !debug.Healthy {
		t.Fatalf("unexpected debug record %+v", debug)
	}
}

func TestTranslate_ElapsedUnits(t *testing.T) {
	raw := map[string]any{
		"status":               2.0,
		"milliseconds_elapsed": "4200",
		"seconds_played":       "9",
	}

	ms := NewTranslator(ElapsedField{Name: "milliseconds_elapsed", Unit: ElapsedMilliseconds}, nil)
	state, _, _ := ms.Translate(raw, 1)
	if state.PositionMs != 4200 || state.State != PlayStatePause {
		t.Fatalf("ms translator got %+v", state)
	}

	sec := NewTranslator(ElapsedField{Name: "seconds_played", Unit: ElapsedSeconds}, nil)
	state, _, _ = sec.Translate(raw, 1)
	if state.PositionMs != 9000 {
		t.Fatalf("seconds translator got pos %d", state.PositionMs)
	}

	// The configured field is missing, so the other known field is used.
	delete(raw, "milliseconds_elapsed")
	state, _, _ = ms.Translate(raw, 1)
	if state.PositionMs != 9000 {
		t.Fatalf("fallback got pos %d", state.PositionMs)
	}
}

func TestTranslate_MissingFieldsDefault(t *testing.T) {
	tr := NewTranslator(ElapsedField{Name: "seconds_played", Unit: ElapsedSeconds}, stubAudio{})
	state, debug, ok := tr.Translate(map[string]any{}, 77)
	if !ok {
		t.Fatalf("expected update for empty object")
	}
	if state != (PlaybackState{State: PlayStateStop, ServerMs: 77}) {
		t.Fatalf("unexpected state %+v", state)
	}
	if debug.Status != -1 {
		t.Fatalf("expected status -1 for missing code, got %d", debug.Status)
	}

	state, _, _ = tr.Translate(map[string]any{"seconds_played": -3.0}, 77)
	if state.PositionMs != 0 {
		t.Fatalf("negative elapsed should clamp to 0, got %d", state.PositionMs)
	}
}
