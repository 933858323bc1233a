package beaconconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Upstream.PollInterval != 100*time.Millisecond || cfg.Upstream.FetchTimeout != time.Second {
		t.Fatalf("unexpected poll timings %+v", cfg.Upstream)
	}
	if cfg.SyncLog.MaxBytes != 5<<20 {
		t.Fatalf("unexpected sync log threshold %d", cfg.SyncLog.MaxBytes)
	}
	if strings.Join(cfg.Audio.Extensions, ",") != "mp3,m4a,mp4,aac,ogg,wav" {
		t.Fatalf("unexpected extension order %v", cfg.Audio.Extensions)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fppsync.yaml")
	yml := `
listen_addr: ":9000"
upstream:
  poll_interval: 250ms
  elapsed_field: milliseconds_elapsed
  elapsed_unit: ms
audio:
  extensions: [ogg, mp3]
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	t.Setenv("FPPSYNC_LISTEN_ADDR", ":9100")
	t.Setenv("FPPSYNC_SYNC_LOG_MAX_BYTES", "1024")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ListenAddr != ":9100" {
		t.Fatalf("env did not override file: %q", cfg.ListenAddr)
	}
	if cfg.Upstream.PollInterval != 250*time.Millisecond || cfg.Upstream.ElapsedUnit != "ms" {
		t.Fatalf("file values not applied: %+v", cfg.Upstream)
	}
	if cfg.Upstream.FetchTimeout != time.Second {
		t.Fatalf("defaults lost for unset keys: %+v", cfg.Upstream)
	}
	if strings.Join(cfg.Audio.Extensions, ",") != "ogg,mp3" || cfg.SyncLog.MaxBytes != 1024 {
		t.Fatalf("unexpected audio/log settings %+v %+v", cfg.Audio, cfg.SyncLog)
	}
}

func TestLoad_InvalidSettings(t *testing.T) {
	tests := map[string]string{
		"FPPSYNC_ELAPSED_UNIT":       "minutes",
		"FPPSYNC_POLL_INTERVAL":      "fast",
		"FPPSYNC_STATUS_URL":         "/api/fppd/status",
		"FPPSYNC_SYNC_LOG_MAX_BYTES": "-1",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
