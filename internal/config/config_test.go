package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conf.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	return path
}

func TestLoadFileEmbeddedDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConf(t, "# empty override\n"))
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:8765" {
		t.Fatalf("HTTPAddr=%q, want 127.0.0.1:8765", cfg.HTTPAddr)
	}
	if cfg.OSC.Host != "127.0.0.1" || cfg.OSC.Port != 9000 {
		t.Fatalf("OSC=%+v, want 127.0.0.1:9000", cfg.OSC)
	}
	if cfg.AuthToken != "" {
		t.Fatalf("AuthToken=%q, want empty by default", cfg.AuthToken)
	}
	if !cfg.Quota.FailOpen {
		t.Fatal("Quota.FailOpen=false, want true by default")
	}
	if cfg.Capture.MaxDurationSeconds != 30 {
		t.Fatalf("Capture.MaxDurationSeconds=%d, want 30", cfg.Capture.MaxDurationSeconds)
	}
	if len(cfg.Whitelist) == 0 {
		t.Fatal("Whitelist empty, want the default prefixes")
	}
}

func TestLoadFileOverrides(t *testing.T) {
	cfg, err := LoadFile(writeConf(t, `
system_config:
  host: 0.0.0.0
  port: 9100
auth_token: sekrit
max_move_seconds: 3
quota:
  fail_open: false
  categories:
    chat:
      - limit: 10
        window_seconds: 60
`))
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	if cfg.HTTPAddr != "0.0.0.0:9100" {
		t.Fatalf("HTTPAddr=%q, want 0.0.0.0:9100", cfg.HTTPAddr)
	}
	if cfg.AuthToken != "sekrit" {
		t.Fatalf("AuthToken=%q", cfg.AuthToken)
	}
	if cfg.MaxMoveSeconds != 3 {
		t.Fatalf("MaxMoveSeconds=%v, want 3", cfg.MaxMoveSeconds)
	}
	if cfg.Quota.FailOpen {
		t.Fatal("Quota.FailOpen=true, want false from file")
	}
	windows := cfg.Quota.Categories["chat"]
	if len(windows) != 1 || windows[0].Limit != 10 || windows[0].WindowSeconds != 60 {
		t.Fatalf("chat windows=%v, want one 10/60s window", windows)
	}
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("BRIDGE_AUTH_TOKEN", "from-env")

	cfg, err := LoadFile(writeConf(t, "auth_token: from-file\n"))
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if cfg.AuthToken != "from-env" {
		t.Fatalf("AuthToken=%q, want the environment to win", cfg.AuthToken)
	}
}

func TestCaptureCeilingIsClamped(t *testing.T) {
	cfg, err := LoadFile(writeConf(t, "capture:\n  max_duration_seconds: 120\n"))
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if cfg.Capture.MaxDurationSeconds != 30 {
		t.Fatalf("MaxDurationSeconds=%d, want clamped to 30", cfg.Capture.MaxDurationSeconds)
	}
}

func TestDerivedPathsAreRootRelative(t *testing.T) {
	path := writeConf(t, "audit:\n  dir: my-audit\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "my-audit")
	if cfg.Audit.Dir != want {
		t.Fatalf("Audit.Dir=%q, want %q", cfg.Audit.Dir, want)
	}
}
