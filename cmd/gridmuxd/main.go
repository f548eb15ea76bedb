// Command gridmuxd is the headless remote-control daemon: it owns the
// Workspace, the PTY-backed terminal sessions, the app runtime registry,
// and the HTTP+WebSocket remote server, persisting workspace state to
// disk as it changes. It has no GUI, mirroring the teacher's own amux
// binary's headless-vs-TUI split but dropping the TUI branch entirely,
// since rendering is out of scope here.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/andyrewlee/gridmux/internal/apprt"
	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/dispatch"
	"github.com/andyrewlee/gridmux/internal/gridconfig"
	"github.com/andyrewlee/gridmux/internal/hostsessions"
	"github.com/andyrewlee/gridmux/internal/logging"
	"github.com/andyrewlee/gridmux/internal/persist"
	"github.com/andyrewlee/gridmux/internal/remoteserver"
)

// Version info, set by the release build via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("gridmuxd %s (commit: %s)\n", version, commit)
		return
	}

	paths, err := gridconfig.DefaultPaths()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridmuxd: resolve paths: %v\n", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "gridmuxd: create directories: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Initialize(paths.CacheRoot, logging.LevelInfo); err != nil {
		fmt.Fprintf(os.Stderr, "gridmuxd: warning: could not initialize logging: %v\n", err)
	}
	defer logging.Close()
	logging.Info("gridmuxd %s starting", version)

	cfg, err := gridconfig.Load(paths)
	if err != nil {
		logging.Error("failed to load config: %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group := asyncutil.NewGroup(ctx)
	defer group.Close()

	workspacePath := filepath.Join(paths.WorkspacesRoot, "workspace.json")
	ws := persist.LoadWorkspace(group, workspacePath)
	store := persist.NewWorkspaceStore(group, workspacePath, ws)
	defer store.Watch()()

	settingsWatcher, err := persist.NewSettingsWatcher(group, paths, func(reloaded *gridconfig.Config) {
		logging.Info("settings.json reloaded externally")
		*cfg = *reloaded
	})
	if err != nil {
		logging.Warn("settings watcher disabled: %v", err)
	} else {
		defer settingsWatcher.Close()
	}

	tokens := remoteserver.NewTokenStore()
	pty := remoteserver.NewPTYBroadcaster()
	appStates := remoteserver.NewAppStateBroadcaster()

	sessions := hostsessions.New(group, cfg, pty)
	apps := apprt.NewRegistry(group, appStates)
	apps.RegisterFactory("task_browser", apprt.NewTaskBrowser)

	backend := &dispatch.LocalBackend{Workspace: ws, Sessions: sessions, Apps: apps}
	bridge := remoteserver.NewBridge(ctx, backend)

	server := remoteserver.NewServer(remoteserver.Config{BindAddr: cfg.RemoteBind}, bridge, ws, sessions, tokens, pty, appStates, sessions)
	remoteserver.Version = version

	code := tokens.IssuePairingCode()
	logging.Info("remote server listening on %s; pairing code: %s", cfg.RemoteBind, code)
	fmt.Printf("gridmuxd listening on %s\npairing code: %s (valid 120s)\n", cfg.RemoteBind, code)

	if err := server.Start(ctx); err != nil {
		logging.Error("remote server stopped with error: %v", err)
	}

	if err := store.Flush(); err != nil {
		logging.Error("final workspace flush failed: %v", err)
	}
	logging.Info("gridmuxd shutdown complete")
}
