package gridconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenSettingsMissing(t *testing.T) {
	paths := &Paths{ConfigPath: filepath.Join(t.TempDir(), "settings.json")}
	cfg, err := Load(paths)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ScrollbackLines != DefaultScrollback {
		t.Errorf("expected default scrollback %d, got %d", DefaultScrollback, cfg.ScrollbackLines)
	}
	if cfg.RemoteBind != DefaultBindAddress {
		t.Errorf("expected default bind address %q, got %q", DefaultBindAddress, cfg.RemoteBind)
	}
}

func TestLoadClampsScrollbackBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"scrollback_lines": 5}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(&Paths{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ScrollbackLines != MinScrollback {
		t.Errorf("expected clamp to min %d, got %d", MinScrollback, cfg.ScrollbackLines)
	}

	if err := os.WriteFile(path, []byte(`{"scrollback_lines": 999999999}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(&Paths{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ScrollbackLines != MaxScrollback {
		t.Errorf("expected clamp to max %d, got %d", MaxScrollback, cfg.ScrollbackLines)
	}
}

func TestLoadToleratesMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(&Paths{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load() should not error on malformed file, got %v", err)
	}
	if cfg.ScrollbackLines != DefaultScrollback {
		t.Errorf("expected fallback to defaults, got %d", cfg.ScrollbackLines)
	}
}

func TestSavePreservesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"theme": "gruvbox"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(&Paths{ConfigPath: path})
	if err != nil {
		t.Fatal(err)
	}
	cfg.RemoteBind = "0.0.0.0:9000"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["theme"] != "gruvbox" {
		t.Errorf("expected unknown key 'theme' preserved, got %v", payload["theme"])
	}
	if payload["remote_bind_address"] != "0.0.0.0:9000" {
		t.Errorf("expected updated bind address saved, got %v", payload["remote_bind_address"])
	}
}

func TestShellProfileByNameFallsBackToDefault(t *testing.T) {
	cfg := defaultConfig()
	cfg.ShellProfiles = []ShellProfile{{Name: "default", Path: "/bin/bash"}, {Name: "zsh", Path: "/bin/zsh"}}
	cfg.DefaultShell = "default"

	if p := cfg.ShellProfileByName("zsh"); p.Path != "/bin/zsh" {
		t.Errorf("expected zsh profile, got %+v", p)
	}
	if p := cfg.ShellProfileByName(""); p.Path != "/bin/bash" {
		t.Errorf("expected default profile for empty name, got %+v", p)
	}
	if p := cfg.ShellProfileByName("missing"); p.Path != "/bin/bash" {
		t.Errorf("expected fallback to first profile for unknown name, got %+v", p)
	}
}
