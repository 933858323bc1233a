package beacon

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fppsync/go/internal/synclog"
)

// Service is the sync beacon: status poller, client sessions and the HTTP surface around them
type Service struct {
	manager      *ConnectionManager
	wsHandler    *WebSocketHandler
	stateHandler *StateHandler
	portal       *PortalHandler
	poller       *Poller
	reports      *synclog.Logger
	config       Config
}

// Config holds configuration for the beacon service
type Config struct {
	ConnectionConfig ConnectionConfig
	PollerConfig     PollerConfig
	Elapsed          ElapsedField

	MusicDir        string
	AudioURLPrefix  string
	AudioExtensions []string

	SyncLog synclog.Options

	PortalURL    string
	VersionFiles []string
}

// DefaultConfig returns default configuration for the beacon
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		PollerConfig:     DefaultPollerConfig(),
		Elapsed:          ElapsedField{Name: "seconds_played", Unit: ElapsedSeconds},
		MusicDir:         "/home/fpp/media/music",
		AudioURLPrefix:   "/music/",
		AudioExtensions:  DefaultAudioExtensions,
		SyncLog: synclog.Options{
			Path:     "/home/fpp/media/logs/fppsync-clients.log",
			MaxBytes: synclog.DefaultMaxBytes,
		},
	}
}

// NewService creates a new beacon service polling fetcher
func NewService(config Config, fetcher StatusFetcher, clock clockwork.Clock, metrics MetricsCollector) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}

	manager := NewConnectionManager(metrics)

	resolver := NewAudioResolver(os.DirFS(config.MusicDir), config.AudioURLPrefix, config.AudioExtensions)
	translator := NewTranslator(config.Elapsed, resolver)

	logOpts := config.SyncLog
	if logOpts.Clock == nil {
		logOpts.Clock = clock
	}
	reports := synclog.New(logOpts)

	return &Service{
		manager:      manager,
		wsHandler:    NewWebSocketHandler(manager, reports, clock, config.ConnectionConfig, metrics),
		stateHandler: NewStateHandler(manager, clock, config.PollerConfig.SourceURL, config.VersionFiles),
		portal:       NewPortalHandler(config.PortalURL),
		poller:       NewPoller(fetcher, translator, manager, clock, config.PollerConfig, metrics),
		reports:      reports,
		config:       config,
	}
}

// Start runs the poller until ctx is cancelled, then closes every session
func (s *Service) Start(ctx context.Context) error {
	log.Info().
		Str("music_dir", s.config.MusicDir).
		Str("sync_log", s.reports.Path()).
		Msg("starting sync beacon")

	err := s.poller.Run(ctx)
	s.Stop()
	return err
}

// Stop closes all client sessions
func (s *Service) Stop() {
	s.manager.CloseAll()
	log.Info().Msg("sync beacon stopped")
}

// RegisterRoutes registers websocket, state, portal and music routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	s.portal.RegisterPortalRoutes(mux)

	if prefix := s.config.AudioURLPrefix; strings.HasPrefix(prefix, "/") && strings.HasSuffix(prefix, "/") && s.config.MusicDir != "" {
		mux.Handle(prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(s.config.MusicDir))))
	}

	log.Info().Msg("sync beacon routes registered")
}

// GetStats returns statistics about the beacon service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.manager.GetConnectionStats()
	stats["service"] = "fppsync"
	stats["version"] = ReadVersion(s.config.VersionFiles)
	return stats
}
