package gridconfig

import (
	"os"
	"path/filepath"
)

// Paths holds all the file system paths used by a gridmux workspace host.
type Paths struct {
	Home            string // ~/.gridmux
	WorkspacesRoot  string // ~/.gridmux/workspaces
	ConfigPath      string // ~/.gridmux/settings.json
	KeybindingsPath string // ~/.gridmux/keybindings.json
	PairingRegistry string // ~/.gridmux/pairings.json
	CacheRoot       string // ~/.gridmux/cache
}

// DefaultPaths returns the default paths configuration, rooted at the
// user's home directory.
func DefaultPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	root := filepath.Join(home, ".gridmux")

	return &Paths{
		Home:            root,
		WorkspacesRoot:  filepath.Join(root, "workspaces"),
		ConfigPath:      filepath.Join(root, "settings.json"),
		KeybindingsPath: filepath.Join(root, "keybindings.json"),
		PairingRegistry: filepath.Join(root, "pairings.json"),
		CacheRoot:       filepath.Join(root, "cache"),
	}, nil
}

// EnsureDirectories creates all required directories if they don't exist.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.Home,
		p.WorkspacesRoot,
		p.CacheRoot,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}
