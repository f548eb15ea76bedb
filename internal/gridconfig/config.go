package gridconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	// DefaultScrollback is used when settings.json omits scrollback_lines.
	DefaultScrollback = 10000
	// MinScrollback and MaxScrollback bound the configurable scrollback length.
	MinScrollback = 100
	MaxScrollback = 100000

	// DefaultBindAddress is the remote server's default listen address.
	DefaultBindAddress = "127.0.0.1:7777"
)

// ShellProfile describes one named shell a terminal session can be spawned
// with: the binary to exec, default args, and environment overrides applied
// on top of the process environment.
type ShellProfile struct {
	Name string            `json:"name"`
	Path string            `json:"path"`
	Args []string          `json:"args,omitempty"`
	Env  map[string]string `json:"env,omitempty"`
}

// Hooks names external commands run on lifecycle events. Each is optional;
// an empty string disables that hook.
type Hooks struct {
	OnSessionStart string `json:"on_session_start,omitempty"`
	OnSessionExit  string `json:"on_session_exit,omitempty"`
	OnWorkspaceOpen string `json:"on_workspace_open,omitempty"`
}

// Config holds global preferences loaded from settings.json, merged over
// built-in defaults. Fields absent from the file keep their default value.
type Config struct {
	Paths *Paths `json:"-"`

	ScrollbackLines int            `json:"scrollback_lines"`
	ShellProfiles   []ShellProfile `json:"shell_profiles"`
	DefaultShell    string         `json:"default_shell"`
	RemoteBind      string         `json:"remote_bind_address"`
	Hooks           Hooks          `json:"hooks"`
}

func defaultConfig() Config {
	return Config{
		ScrollbackLines: DefaultScrollback,
		ShellProfiles:   []ShellProfile{defaultShellProfile()},
		DefaultShell:    "default",
		RemoteBind:      DefaultBindAddress,
	}
}

func defaultShellProfile() ShellProfile {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return ShellProfile{Name: "default", Path: shell}
}

// Load reads settings.json at paths.ConfigPath, if present, and overlays it
// on top of the built-in defaults. A missing or malformed file is not an
// error: Load falls back to defaults, matching the teacher's tolerant
// settings-file handling.
func Load(paths *Paths) (*Config, error) {
	cfg := defaultConfig()
	cfg.Paths = paths

	data, err := os.ReadFile(paths.ConfigPath)
	if err != nil {
		return &cfg, nil
	}

	var raw struct {
		ScrollbackLines *int           `json:"scrollback_lines"`
		ShellProfiles   []ShellProfile `json:"shell_profiles"`
		DefaultShell    *string        `json:"default_shell"`
		RemoteBind      *string        `json:"remote_bind_address"`
		Hooks           *Hooks         `json:"hooks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return &cfg, nil
	}

	if raw.ScrollbackLines != nil {
		cfg.ScrollbackLines = clampScrollback(*raw.ScrollbackLines)
	}
	if len(raw.ShellProfiles) > 0 {
		cfg.ShellProfiles = raw.ShellProfiles
	}
	if raw.DefaultShell != nil {
		cfg.DefaultShell = *raw.DefaultShell
	}
	if raw.RemoteBind != nil {
		cfg.RemoteBind = *raw.RemoteBind
	}
	if raw.Hooks != nil {
		cfg.Hooks = *raw.Hooks
	}

	return &cfg, nil
}

func clampScrollback(n int) int {
	if n < MinScrollback {
		return MinScrollback
	}
	if n > MaxScrollback {
		return MaxScrollback
	}
	return n
}

// Save writes the config back to settings.json, preserving unknown top-level
// keys already present in the file the way the teacher's SaveUISettings does.
func (c *Config) Save() error {
	if c == nil || c.Paths == nil {
		return nil
	}
	path := c.Paths.ConfigPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	payload := map[string]any{}
	if existing, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(existing, &payload)
	}

	encoded, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var ours map[string]any
	if err := json.Unmarshal(encoded, &ours); err != nil {
		return err
	}
	for k, v := range ours {
		payload[k] = v
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ShellProfileByName returns the named profile. An empty name resolves to
// DefaultShell; a name with no matching profile yields the first configured
// profile, or a $SHELL-based profile when none are configured.
func (c *Config) ShellProfileByName(name string) ShellProfile {
	if name == "" {
		name = c.DefaultShell
	}
	for _, p := range c.ShellProfiles {
		if p.Name == name {
			return p
		}
	}
	if len(c.ShellProfiles) > 0 {
		return c.ShellProfiles[0]
	}
	return defaultShellProfile()
}
