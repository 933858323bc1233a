// Package beaconconfig loads the sync beacon's settings from an optional YAML
// file and FPPSYNC_* environment variables, in that order of precedence.
package beaconconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the beacon settings.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	Upstream struct {
		StatusURL    string        `yaml:"status_url"`
		PollInterval time.Duration `yaml:"poll_interval"`
		MinSleep     time.Duration `yaml:"min_sleep"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
		ElapsedField string        `yaml:"elapsed_field"`
		ElapsedUnit  string        `yaml:"elapsed_unit"`
	} `yaml:"upstream"`

	Audio struct {
		MusicDir   string   `yaml:"music_dir"`
		URLPrefix  string   `yaml:"url_prefix"`
		Extensions []string `yaml:"extensions"`
	} `yaml:"audio"`

	SyncLog struct {
		Path     string `yaml:"path"`
		MaxBytes int64  `yaml:"max_bytes"`
	} `yaml:"sync_log"`

	WebSocket struct {
		MaxMessageSize int64         `yaml:"max_message_size"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		SendBuffer     int           `yaml:"send_buffer"`
	} `yaml:"websocket"`

	PortalURL    string   `yaml:"portal_url"`
	VersionFiles []string `yaml:"version_files"`
}

// Default returns the settings used on a stock FPP install.
func Default() Config {
	var c Config
	c.ListenAddr = ":8080"
	c.LogLevel = "info"

	c.Upstream.StatusURL = "http://127.0.0.1/api/fppd/status"
	c.Upstream.PollInterval = 100 * time.Millisecond
	c.Upstream.MinSleep = 10 * time.Millisecond
	c.Upstream.FetchTimeout = time.Second
	c.Upstream.ElapsedField = "seconds_played"
	c.Upstream.ElapsedUnit = "s"

	c.Audio.MusicDir = "/home/fpp/media/music"
	c.Audio.URLPrefix = "/music/"
	c.Audio.Extensions = []string{"mp3", "m4a", "mp4", "aac", "ogg", "wav"}

	c.SyncLog.Path = "/home/fpp/media/logs/fppsync-clients.log"
	c.SyncLog.MaxBytes = 5 << 20

	c.WebSocket.MaxMessageSize = 4096
	c.WebSocket.PingInterval = 20 * time.Second
	c.WebSocket.ReadTimeout = 30 * time.Second
	c.WebSocket.WriteTimeout = 10 * time.Second
	c.WebSocket.SendBuffer = 64

	c.PortalURL = "http://192.168.50.1/listen/"
	c.VersionFiles = []string{
		"VERSION",
		"/home/fpp/fpp-listener-sync/VERSION",
	}
	return c
}

// Load reads path (if non-empty) over the defaults and then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.ListenAddr, "FPPSYNC_LISTEN_ADDR")
	setString(&c.LogLevel, "FPPSYNC_LOG_LEVEL")
	setString(&c.Upstream.StatusURL, "FPPSYNC_STATUS_URL")
	errs = append(errs, setDuration(&c.Upstream.PollInterval, "FPPSYNC_POLL_INTERVAL"))
	errs = append(errs, setDuration(&c.Upstream.FetchTimeout, "FPPSYNC_FETCH_TIMEOUT"))
	setString(&c.Upstream.ElapsedField, "FPPSYNC_ELAPSED_FIELD")
	setString(&c.Upstream.ElapsedUnit, "FPPSYNC_ELAPSED_UNIT")
	setString(&c.Audio.MusicDir, "FPPSYNC_MUSIC_DIR")
	setString(&c.Audio.URLPrefix, "FPPSYNC_AUDIO_URL_PREFIX")
	if v := os.Getenv("FPPSYNC_AUDIO_EXTENSIONS"); v != "" {
		c.Audio.Extensions = splitList(v)
	}
	setString(&c.SyncLog.Path, "FPPSYNC_SYNC_LOG")
	errs = append(errs, setInt64(&c.SyncLog.MaxBytes, "FPPSYNC_SYNC_LOG_MAX_BYTES"))
	setString(&c.PortalURL, "FPPSYNC_PORTAL_URL")

	return errors.Join(errs...)
}

// Validate rejects settings the beacon cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if u, err := url.Parse(c.Upstream.StatusURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.status_url %q must be an absolute URL", c.Upstream.StatusURL))
	}
	if c.Upstream.PollInterval <= 0 {
		errs = append(errs, errors.New("upstream.poll_interval must be positive"))
	}
	if c.Upstream.MinSleep <= 0 {
		errs = append(errs, errors.New("upstream.min_sleep must be positive"))
	}
	if c.Upstream.FetchTimeout <= 0 {
		errs = append(errs, errors.New("upstream.fetch_timeout must be positive"))
	}
	if c.Upstream.ElapsedField == "" {
		errs = append(errs, errors.New("upstream.elapsed_field is required"))
	}
	if c.Upstream.ElapsedUnit != "ms" && c.Upstream.ElapsedUnit != "s" {
		errs = append(errs, fmt.Errorf("upstream.elapsed_unit %q must be \"ms\" or \"s\"", c.Upstream.ElapsedUnit))
	}
	if !strings.HasPrefix(c.Audio.URLPrefix, "/") {
		errs = append(errs, fmt.Errorf("audio.url_prefix %q must start with /", c.Audio.URLPrefix))
	}
	if len(c.Audio.Extensions) == 0 {
		errs = append(errs, errors.New("audio.extensions must not be empty"))
	}
	if c.SyncLog.Path == "" {
		errs = append(errs, errors.New("sync_log.path is required"))
	}
	if c.SyncLog.MaxBytes <= 0 {
		errs = append(errs, errors.New("sync_log.max_bytes must be positive"))
	}
	if c.WebSocket.MaxMessageSize <= 0 || c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 || c.WebSocket.SendBuffer <= 0 {
		errs = append(errs, errors.New("websocket settings must be positive"))
	}

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
