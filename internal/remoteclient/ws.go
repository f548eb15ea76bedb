package remoteclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andyrewlee/gridmux/internal/layout"
	"github.com/andyrewlee/gridmux/internal/logging"
	"github.com/andyrewlee/gridmux/internal/remoteserver"
	"github.com/andyrewlee/gridmux/internal/term"
)

// wsServerMsg is the tagged union of every server->client JSON message
// type the protocol names, decoded loosely since only a handful of
// fields matter to any one type.
type wsServerMsg struct {
	Type string `json:"type"`

	Error string `json:"error,omitempty"`

	Mappings map[string]uint32 `json:"mappings,omitempty"`

	StateVersion uint64 `json:"state_version,omitempty"`

	AppID     string          `json:"app_id,omitempty"`
	AppKind   string          `json:"app_kind,omitempty"`
	ViewState json.RawMessage `json:"state,omitempty"`

	Count uint64 `json:"count,omitempty"`
}

// wsClientMsg mirrors remoteserver's own client->server message shape
// (unexported there), kept separate since the two packages intentionally
// don't share internals across the wire boundary.
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

// dialStream opens the /v1/stream WebSocket and authenticates with token
// as the first client frame.
func (c *Client) dialStream(ctx context.Context, token string) (*websocket.Conn, error) {
	wsURL, err := toWebSocketURL(c.cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL+"/v1/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if resp != nil {
		defer resp.Body.Close()
	}

	if err := conn.WriteJSON(wsClientMsg{Type: "auth", Token: token}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send auth frame: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var ack wsServerMsg
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read auth response: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if ack.Type != "auth_ok" {
		conn.Close()
		return nil, fmt.Errorf("authentication failed: %s", ack.Error)
	}

	return conn, nil
}

func toWebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("remoteclient: invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("remoteclient: unsupported scheme %q", u.Scheme)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// readLoop pumps incoming frames until the socket closes or ctx is
// cancelled. Binary frames carry PTY bytes; JSON frames carry every
// other server->client message.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()
	defer func() {
		select {
		case <-done:
		default:
			conn.Close()
		}
	}()

	c.mu.Lock()
	streamToTerminal := make(map[uint32]layout.Id)
	c.mu.Unlock()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			c.handleBinaryFrame(data, streamToTerminal)
		case websocket.TextMessage:
			c.handleJSONMessage(ctx, data, streamToTerminal)
		}
	}
}

func (c *Client) handleBinaryFrame(data []byte, streamToTerminal map[uint32]layout.Id) {
	frameType, streamID, payload, err := remoteserver.DecodeFrame(data)
	if err != nil {
		logging.Warn("remoteclient: malformed binary frame: %v", err)
		return
	}
	terminalID, ok := streamToTerminal[streamID]
	if !ok {
		return
	}
	shadow, ok := c.ShadowTerminal(terminalID)
	if !ok {
		return
	}
	switch frameType {
	case remoteserver.FrameLiveOutput:
		shadow.ApplyLiveOutput(payload)
	case remoteserver.FrameSnapshot:
		shadow.ApplySnapshot(payload)
	}
}

func (c *Client) handleJSONMessage(ctx context.Context, data []byte, streamToTerminal map[uint32]layout.Id) {
	var msg wsServerMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		logging.Warn("remoteclient: malformed server message: %v", err)
		return
	}

	switch msg.Type {
	case "subscribed":
		for terminalID, streamID := range msg.Mappings {
			streamToTerminal[streamID] = layout.Id(terminalID)
			c.mu.Lock()
			c.streamIDs[layout.Id(terminalID)] = streamID
			c.mu.Unlock()
		}
	case "state_changed":
		if err := c.RefreshState(ctx); err != nil {
			logging.Warn("remoteclient: refresh after state_changed: %v", err)
		}
	case "app_state_changed":
		if shadow, ok := c.ShadowApp(layout.Id(msg.AppID)); ok {
			shadow.Apply(msg.AppKind, msg.ViewState)
			c.mu.Lock()
			cb := c.onAppChange
			c.mu.Unlock()
			if cb != nil {
				cb(layout.Id(msg.AppID))
			}
		}
	case "dropped":
		logging.Warn("remoteclient: server dropped %d lagging frames", msg.Count)
	case "error":
		logging.Warn("remoteclient: server reported error: %s", msg.Error)
	case "pong":
	}
}

// subscribeTerminals requests live frames for ids, if a stream is
// currently connected. Until the reply arrives, SendText falls back to
// the JSON path.
func (c *Client) subscribeTerminals(ids []layout.Id) {
	conn := c.wsConn()
	if conn == nil {
		return
	}
	req := wsClientMsg{Type: "subscribe"}
	for _, id := range ids {
		req.TerminalIDs = append(req.TerminalIDs, string(id))
	}
	c.writeJSON(conn, req)
}

func (c *Client) subscribeApps(ids []layout.Id) {
	conn := c.wsConn()
	if conn == nil {
		return
	}
	req := wsClientMsg{Type: "subscribe_apps"}
	for _, id := range ids {
		req.AppIDs = append(req.AppIDs, string(id))
	}
	c.writeJSON(conn, req)
}

func (c *Client) wsConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) {
	c.wsWriteMu.Lock()
	defer c.wsWriteMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(v); err != nil {
		logging.Warn("remoteclient: write failed: %v", err)
	}
}

func (c *Client) writeBinary(conn *websocket.Conn, frame []byte) {
	c.wsWriteMu.Lock()
	defer c.wsWriteMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		logging.Warn("remoteclient: write failed: %v", err)
	}
}

// SendText sends keyboard input for terminalID. If the stream is already
// subscribed, it goes as a binary frame type 3 on that stream; otherwise
// it falls back to the JSON send_text message.
func (c *Client) SendText(terminalID layout.Id, text string) {
	conn := c.wsConn()
	if conn == nil {
		return
	}
	c.mu.Lock()
	streamID, subscribed := c.streamIDs[terminalID]
	c.mu.Unlock()

	if subscribed {
		frame, err := remoteserver.EncodeFrame(remoteserver.FrameInput, streamID, []byte(text))
		if err != nil {
			logging.Warn("remoteclient: encode input frame: %v", err)
			return
		}
		c.writeBinary(conn, frame)
		return
	}
	c.writeJSON(conn, wsClientMsg{Type: "send_text", TerminalID: string(terminalID), Text: text})
}

// SendSpecialKey sends a non-printable key for terminalID.
func (c *Client) SendSpecialKey(terminalID layout.Id, key term.SpecialKey) {
	conn := c.wsConn()
	if conn == nil {
		return
	}
	c.writeJSON(conn, wsClientMsg{Type: "send_special_key", TerminalID: string(terminalID), Key: key})
}

// Resize requests a PTY resize for terminalID and updates the local
// mirror to match.
func (c *Client) Resize(terminalID layout.Id, cols, rows int) {
	if shadow, ok := c.ShadowTerminal(terminalID); ok {
		shadow.Resize(cols, rows)
	}
	conn := c.wsConn()
	if conn == nil {
		return
	}
	c.writeJSON(conn, wsClientMsg{Type: "resize", TerminalID: string(terminalID), Cols: cols, Rows: rows})
}

// SendAppAction dispatches an app action over the live WebSocket
// connection rather than the REST endpoint, when one is open.
func (c *Client) SendAppAction(appID layout.Id, action json.RawMessage) {
	conn := c.wsConn()
	if conn == nil {
		return
	}
	c.writeJSON(conn, wsClientMsg{Type: "app_action", AppID: string(appID), Action: action})
}
