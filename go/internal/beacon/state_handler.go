package beacon

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// FallbackVersion is reported when no VERSION file can be read.
const FallbackVersion = "1.6.0"

// StateHandler serves the current playback state and build version over plain HTTP
type StateHandler struct {
	manager      *ConnectionManager
	clock        clockwork.Clock
	sourceURL    string
	versionFiles []string
}

// NewStateHandler creates a new state handler
func NewStateHandler(manager *ConnectionManager, clock clockwork.Clock, sourceURL string, versionFiles []string) *StateHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StateHandler{
		manager:      manager,
		clock:        clock,
		sourceURL:    sourceURL,
		versionFiles: versionFiles,
	}
}

// HandleStatus returns the current state plus upstream debug fields
func (h *StateHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, ok := h.manager.CurrentStatus()
	if !ok {
		status = StatusResponse{
			PlaybackState: IdleState(h.clock.Now().UnixMilli()),
			StatusDebug:   StatusDebug{SourceURL: h.sourceURL, Status: -1},
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Debug().Err(err).Msg("failed to write status response")
	}
}

// HandleVersion returns the installed version as plain text
func (h *StateHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(ReadVersion(h.versionFiles)))
}

// RegisterStateRoutes registers the state routes with an HTTP mux
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/status", h.HandleStatus)
	mux.HandleFunc("/version", h.HandleVersion)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// ReadVersion returns the trimmed contents of the first readable, non-empty file in paths.
func ReadVersion(paths []string) string {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			return v
		}
	}
	return FallbackVersion
}
