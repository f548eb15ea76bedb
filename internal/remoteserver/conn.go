package remoteserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andyrewlee/gridmux/internal/dispatch"
	"github.com/andyrewlee/gridmux/internal/layout"
	"github.com/andyrewlee/gridmux/internal/logging"
	"github.com/andyrewlee/gridmux/internal/term"
)

// Timings grounded in the teacher pack's WebSocket client idiom
// (_examples/sandia-minimega-minimega/phenix/web/broker/client.go): a
// ping period comfortably inside the pong deadline, and a write deadline
// per message so a stalled peer doesn't wedge the write goroutine.
const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 30 * time.Second
	wsPingPeriod = (wsPongWait * 8) / 10
	wsMaxMsgSize = MaxFrameSize
)

// wsClientMsg is the tagged union of every client->server JSON message
// type the protocol names. send_text/send_special_key/resize address a
// terminal directly by terminal_id, the same addressing the binary input
// frame (type 3) uses via its stream_id -> terminal_id mapping, rather
// than the project+path addressing POST /v1/actions uses — a live
// terminal session has a stable ID independent of where it currently
// sits in a layout tree.
type wsClientMsg struct {
	Type string `json:"type"`

	Token string `json:"token,omitempty"`

	TerminalIDs []string `json:"terminal_ids,omitempty"`
	AppIDs      []string `json:"app_ids,omitempty"`

	AppID  string          `json:"app_id,omitempty"`
	Action json.RawMessage `json:"action,omitempty"`

	TerminalID string          `json:"terminal_id,omitempty"`
	Text       string          `json:"text,omitempty"`
	Key        term.SpecialKey `json:"key,omitempty"`
	Cols       int             `json:"cols,omitempty"`
	Rows       int             `json:"rows,omitempty"`
}

func serverMsg(msgType string, fields map[string]any) map[string]any {
	out := map[string]any{"type": msgType}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// conn is one authenticated WebSocket client: its own read/write
// goroutines and the set of PTY/app-state subscriptions it currently
// holds, torn down together on disconnect.
type conn struct {
	srv  *Server
	ws   *websocket.Conn
	send chan any

	done     chan struct{}
	closeErr sync.Once

	mu          sync.Mutex
	authed      bool
	ptySubs     map[string]*PTYSubscription // terminal_id -> subscription
	streamIndex map[uint32]string           // stream_id -> terminal_id
	appCancels  map[string]func()
}

func newConn(srv *Server, ws *websocket.Conn) *conn {
	return &conn{
		srv:         srv,
		ws:          ws,
		send:        make(chan any, 256),
		done:        make(chan struct{}),
		ptySubs:     make(map[string]*PTYSubscription),
		streamIndex: make(map[uint32]string),
		appCancels:  make(map[string]func()),
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("remoteserver: websocket upgrade failed: %v", err)
		return
	}
	c := newConn(s, ws)
	s.registerConn(c)
	go c.writeLoop()
	c.readLoop()
}

func (c *conn) stop() {
	c.closeErr.Do(func() {
		close(c.done)
		c.srv.unregisterConn(c)
		c.mu.Lock()
		for _, sub := range c.ptySubs {
			sub.Close()
		}
		for _, cancel := range c.appCancels {
			cancel()
		}
		c.mu.Unlock()
		c.ws.Close()
	})
}

// isAuthed reports whether this conn completed the auth handshake, so
// the state_changed broadcaster doesn't push to sockets that haven't
// authenticated yet.
func (c *conn) isAuthed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed
}

func (c *conn) readLoop() {
	defer c.stop()

	c.ws.SetReadLimit(wsMaxMsgSize)
	c.ws.SetReadDeadline(time.Now().Add(wsPongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			c.handleBinaryFrame(data)
		case websocket.TextMessage:
			c.handleJSONMessage(data)
		}
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer c.stop()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if frame, ok := msg.([]byte); ok {
				if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
					return
				}
				continue
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (c *conn) handleBinaryFrame(data []byte) {
	frameType, streamID, payload, err := DecodeFrame(data)
	if err != nil || frameType != FrameInput {
		return
	}
	c.mu.Lock()
	terminalID, ok := c.streamIndex[streamID]
	authed := c.authed
	c.mu.Unlock()
	if !ok || !authed {
		return
	}
	h, ok := c.srv.sessions.Get(layout.Id(terminalID))
	if !ok {
		return
	}
	if err := h.SendInput(payload); err != nil {
		c.sendJSON(serverMsg("error", map[string]any{"error": err.Error(), "terminal_id": terminalID}))
	}
}

func (c *conn) handleJSONMessage(data []byte) {
	var msg wsClientMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendJSON(serverMsg("error", map[string]any{"error": "malformed message"}))
		return
	}

	switch msg.Type {
	case "auth":
		c.handleAuth(msg)
	case "ping":
		c.sendJSON(serverMsg("pong", nil))
	case "subscribe":
		c.requireAuthed(func() { c.handleSubscribe(msg) })
	case "unsubscribe":
		c.requireAuthed(func() { c.handleUnsubscribe(msg) })
	case "subscribe_apps":
		c.requireAuthed(func() { c.handleSubscribeApps(msg) })
	case "unsubscribe_apps":
		c.requireAuthed(func() { c.handleUnsubscribeApps(msg) })
	case "app_action":
		c.requireAuthed(func() { c.handleAppAction(msg) })
	case "send_text":
		c.requireAuthed(func() {
			c.withSession(msg.TerminalID, func(h dispatch.TerminalHandle) error {
				return h.SendInput([]byte(msg.Text))
			})
		})
	case "send_special_key":
		c.requireAuthed(func() {
			c.withSession(msg.TerminalID, func(h dispatch.TerminalHandle) error {
				return h.SendSpecialKey(msg.Key)
			})
		})
	case "resize":
		c.requireAuthed(func() {
			c.withSession(msg.TerminalID, func(h dispatch.TerminalHandle) error {
				h.Resize(msg.Cols, msg.Rows)
				return nil
			})
		})
	default:
		c.sendJSON(serverMsg("error", map[string]any{"error": "unknown message type"}))
	}
}

func (c *conn) requireAuthed(fn func()) {
	c.mu.Lock()
	ok := c.authed
	c.mu.Unlock()
	if !ok {
		c.sendJSON(serverMsg("auth_failed", map[string]any{"error": "not authenticated"}))
		return
	}
	fn()
}

func (c *conn) handleAuth(msg wsClientMsg) {
	if !c.srv.tokens.Validate(msg.Token) {
		c.sendJSON(serverMsg("auth_failed", map[string]any{"error": "invalid or expired token"}))
		return
	}
	c.mu.Lock()
	c.authed = true
	c.mu.Unlock()
	c.sendJSON(serverMsg("auth_ok", nil))
}

func (c *conn) withSession(terminalID string, fn func(dispatch.TerminalHandle) error) {
	h, ok := c.srv.sessions.Get(layout.Id(terminalID))
	if !ok {
		c.sendJSON(serverMsg("error", map[string]any{"error": "terminal session not live", "terminal_id": terminalID}))
		return
	}
	if err := fn(h); err != nil {
		c.sendJSON(serverMsg("error", map[string]any{"error": err.Error(), "terminal_id": terminalID}))
	}
}

func (c *conn) handleAppAction(msg wsClientMsg) {
	result := c.srv.bridge.Dispatch(context.Background(), dispatch.ActionRequest{
		Type:   dispatch.ActionAppAction,
		AppID:  msg.AppID,
		Action: msg.Action,
	})
	c.sendJSON(serverMsg("action_result", map[string]any{"result": result}))
}

func (c *conn) handleSubscribe(msg wsClientMsg) {
	mappings := make(map[string]uint32, len(msg.TerminalIDs))
	for _, id := range msg.TerminalIDs {
		c.mu.Lock()
		_, already := c.ptySubs[id]
		c.mu.Unlock()
		if already {
			continue
		}
		sub := c.srv.pty.Subscribe(layout.Id(id))
		c.mu.Lock()
		c.ptySubs[id] = sub
		c.streamIndex[sub.StreamID] = id
		c.mu.Unlock()
		mappings[id] = sub.StreamID
		go c.pumpPTY(id, sub)

		if c.srv.snaps != nil {
			if data, err := c.srv.snaps.Snapshot(id); err == nil {
				c.srv.pty.SendSnapshot(sub, data)
			}
		}
	}
	c.sendJSON(serverMsg("subscribed", map[string]any{"mappings": mappings}))
}

func (c *conn) handleUnsubscribe(msg wsClientMsg) {
	for _, id := range msg.TerminalIDs {
		c.mu.Lock()
		sub, ok := c.ptySubs[id]
		if ok {
			delete(c.ptySubs, id)
			delete(c.streamIndex, sub.StreamID)
		}
		c.mu.Unlock()
		if ok {
			sub.Close()
		}
	}
}

func (c *conn) pumpPTY(terminalID string, sub *PTYSubscription) {
	lastDropped := uint64(0)
	for frame := range sub.Frames {
		if d := sub.Dropped(); d > lastDropped {
			lastDropped = d
			c.sendJSON(serverMsg("dropped", map[string]any{"count": d}))
			if c.srv.snaps != nil {
				if data, err := c.srv.snaps.Snapshot(terminalID); err == nil {
					if resync, err := EncodeFrame(FrameSnapshot, sub.StreamID, data); err == nil {
						c.sendBinary(resync)
					}
				}
			}
		}
		c.sendBinary(frame)
	}
}

func (c *conn) handleSubscribeApps(msg wsClientMsg) {
	for _, appID := range msg.AppIDs {
		c.mu.Lock()
		_, already := c.appCancels[appID]
		c.mu.Unlock()
		if already {
			continue
		}
		feed, cancel := c.srv.apps.Subscribe(appID)
		c.mu.Lock()
		c.appCancels[appID] = cancel
		c.mu.Unlock()
		go c.pumpAppState(feed)
	}
}

func (c *conn) handleUnsubscribeApps(msg wsClientMsg) {
	for _, appID := range msg.AppIDs {
		c.mu.Lock()
		cancel, ok := c.appCancels[appID]
		delete(c.appCancels, appID)
		c.mu.Unlock()
		if ok {
			cancel()
		}
	}
}

func (c *conn) pumpAppState(feed <-chan AppStateMessage) {
	for msg := range feed {
		c.sendJSON(serverMsg("app_state_changed", map[string]any{
			"app_id":   msg.AppID,
			"app_kind": msg.KindTag,
			"state":    msg.ViewState,
		}))
	}
}

func (c *conn) sendJSON(msg any) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

func (c *conn) sendBinary(frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	}
}
