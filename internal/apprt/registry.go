package apprt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/dispatch"
	"github.com/andyrewlee/gridmux/internal/logging"
)

// publishDebounce coalesces bursts of app-state changes (e.g. rapid agent
// output) into one broadcast per app every 100ms.
const publishDebounce = 100 * time.Millisecond

type entry struct {
	app   App
	kind  string
	timer *asyncutil.Timer
}

// Registry is the app_id -> {kind_tag, view_state, handle_action} table,
// populated on pane construction and cleared on drop. It satisfies
// dispatch.AppRegistry, so the dispatcher can create,
// close, and route actions to apps without importing this package's
// concrete types.
type Registry struct {
	mu        sync.Mutex
	group     *asyncutil.Group
	factories map[string]Factory
	apps      map[string]*entry
	publisher Publisher
}

// NewRegistry creates an empty registry. group ties each app's debounce
// timer to the caller's lifetime; publisher receives the debounced
// view-state broadcasts.
func NewRegistry(group *asyncutil.Group, publisher Publisher) *Registry {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Registry{
		group:     group,
		factories: make(map[string]Factory),
		apps:      make(map[string]*entry),
		publisher: publisher,
	}
}

// RegisterFactory makes kindTag constructible via Create.
func (r *Registry) RegisterFactory(kindTag string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kindTag] = factory
}

// Create instantiates a new app of kindTag and registers it under a fresh
// app_id.
func (r *Registry) Create(kindTag string) (string, error) {
	r.mu.Lock()
	factory, ok := r.factories[kindTag]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("apprt: unknown app kind %q", kindTag)
	}

	app, err := factory()
	if err != nil {
		return "", fmt.Errorf("apprt: create %q: %w", kindTag, err)
	}

	id := uuid.NewString()
	r.mu.Lock()
	r.apps[id] = &entry{app: app, kind: kindTag}
	r.mu.Unlock()

	r.schedulePublish(id)
	return id, nil
}

// Close drops the app registered under appID, releasing its resources.
func (r *Registry) Close(appID string) error {
	r.mu.Lock()
	e, ok := r.apps[appID]
	if ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(r.apps, appID)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("apprt: unknown app %q", appID)
	}
	e.app.Close()
	return nil
}

// HandleAction deserializes action against the app registered under
// appID and invokes its handler, then schedules a debounced view-state
// publish since any action may have mutated state.
func (r *Registry) HandleAction(appID string, action json.RawMessage) dispatch.ActionResult {
	r.mu.Lock()
	e, ok := r.apps[appID]
	r.mu.Unlock()
	if !ok {
		return dispatch.Failure(fmt.Sprintf("apprt: unknown app %q", appID))
	}

	result := e.app.HandleAction(action)
	r.schedulePublish(appID)
	return result
}

// ViewState returns the current view state for appID, bypassing the
// publish debounce — used to answer GET /v1/state directly.
func (r *Registry) ViewState(appID string) (json.RawMessage, string, error) {
	r.mu.Lock()
	e, ok := r.apps[appID]
	r.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("apprt: unknown app %q", appID)
	}
	data, err := e.app.ViewState()
	return data, e.kind, err
}

func (r *Registry) schedulePublish(appID string) {
	r.mu.Lock()
	e, ok := r.apps[appID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if e.timer != nil {
		r.mu.Unlock()
		return
	}
	e.timer = r.group.AfterFunc("apprt-publish", publishDebounce, func() {
		r.publishNow(appID)
	})
	r.mu.Unlock()
}

func (r *Registry) publishNow(appID string) {
	r.mu.Lock()
	e, ok := r.apps[appID]
	if ok {
		e.timer = nil
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	data, err := e.app.ViewState()
	if err != nil {
		logging.Warn("apprt: view_state for %s failed: %v", appID, err)
		return
	}
	r.publisher.Publish(appID, e.kind, data)
}
