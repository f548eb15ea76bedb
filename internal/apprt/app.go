// Package apprt implements the app-pane runtime: a registry mapping
// app_id to a typed view-state/action contract, with a debounced
// broadcaster hook so a change to any app pane's state reaches subscribers
// at most every 100ms.
package apprt

import (
	"encoding/json"

	"github.com/andyrewlee/gridmux/internal/dispatch"
)

// maxViewStateListLen bounds any list embedded in a view state so a
// snapshot stays cheap to serialize and broadcast regardless of how much
// underlying data an app is tracking.
const maxViewStateListLen = 200

// TruncateList caps s to maxViewStateListLen elements, returning whether
// truncation happened so a view state can report it.
func TruncateList[T any](s []T) ([]T, bool) {
	if len(s) <= maxViewStateListLen {
		return s, false
	}
	return s[:maxViewStateListLen], true
}

// App is one live app pane instance. ViewState and HandleAction are the
// only two operations the runtime needs; an app may hold arbitrary
// internal state and background work behind this interface.
type App interface {
	// KindTag identifies which factory produced this instance, echoed
	// back in app_state_changed broadcasts.
	KindTag() string
	// ViewState serializes the app's current externally visible state.
	// It must contain only plain values: no UI handles, no wall-clock
	// timestamps.
	ViewState() (json.RawMessage, error)
	// HandleAction deserializes action into the app's concrete action
	// type and applies it, synchronously or by starting background work
	// whose progress later appears in ViewState.
	HandleAction(action json.RawMessage) dispatch.ActionResult
	// Close releases any resources (background tasks, subscriptions) the
	// app holds. Called once, when the pane is dropped.
	Close()
}

// Factory constructs a fresh App instance for one pane.
type Factory func() (App, error)

// Publisher is the broadcaster hook: publish the latest view state for
// appID, of the given kind. Implementations
// debounce or fan out to WebSocket subscribers; the registry calls this
// at most every publishDebounce per app.
type Publisher interface {
	Publish(appID, kind string, viewState json.RawMessage)
}

// NopPublisher discards every publish call, useful when no remote server
// is wired up (e.g. a headless bench run).
type NopPublisher struct{}

func (NopPublisher) Publish(string, string, json.RawMessage) {}
