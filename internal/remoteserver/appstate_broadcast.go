package remoteserver

import (
	"encoding/json"
	"sync"
)

// AppStateMessage is one fan-out item: the latest view state for one app.
type AppStateMessage struct {
	AppID     string          `json:"app_id"`
	KindTag   string          `json:"kind_tag"`
	ViewState json.RawMessage `json:"view_state"`
}

type appStateSub struct {
	ch chan AppStateMessage
}

// AppStateBroadcaster fans the already-debounced app-state publishes from
// an apprt.Registry out to every remote subscriber of that app. It
// implements apprt.Publisher directly (rather than importing apprt, which
// in turn imports dispatch, which this package's server also imports) so
// the dependency stays one-directional.
//
// Per subscriber the latest message wins: a lagging subscriber never
// needs a sequence of intermediate states, only the freshest one, so this
// reuses the capacity-1 coalescing-channel idiom from
// internal/workspace/notify.go rather than the bounded-drop idiom
// PTYBroadcaster uses for byte streams.
type AppStateBroadcaster struct {
	mu   sync.Mutex
	subs map[string]map[int]*appStateSub
	next int
}

// NewAppStateBroadcaster creates an empty broadcaster.
func NewAppStateBroadcaster() *AppStateBroadcaster {
	return &AppStateBroadcaster{subs: make(map[string]map[int]*appStateSub)}
}

// Publish implements apprt.Publisher.
func (b *AppStateBroadcaster) Publish(appID, kind string, viewState json.RawMessage) {
	msg := AppStateMessage{AppID: appID, KindTag: kind, ViewState: viewState}

	b.mu.Lock()
	subs := b.subs[appID]
	chans := make([]*appStateSub, 0, len(subs))
	for _, s := range subs {
		chans = append(chans, s)
	}
	b.mu.Unlock()

	for _, s := range chans {
		select {
		case s.ch <- msg:
		default:
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- msg:
			default:
			}
		}
	}
}

// Subscribe returns a feed of state messages for appID and an unsubscribe
// func.
func (b *AppStateBroadcaster) Subscribe(appID string) (<-chan AppStateMessage, func()) {
	sub := &appStateSub{ch: make(chan AppStateMessage, 1)}

	b.mu.Lock()
	if b.subs[appID] == nil {
		b.subs[appID] = make(map[int]*appStateSub)
	}
	id := b.next
	b.next++
	b.subs[appID][id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs[appID], id)
		if len(b.subs[appID]) == 0 {
			delete(b.subs, appID)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}
