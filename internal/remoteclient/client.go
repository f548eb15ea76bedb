// Package remoteclient implements the outbound side of the remote-control
// protocol: a mirror of the remote server's state protocol usable
// identically by a desktop, web, or mobile shell. It drives the connection
// state machine,
// fetches and diffs full-state snapshots, maintains shadow terminal
// sessions and app mirrors, and keeps their PTY/app-state streams
// subscribed — all in the teacher's HTTP-client idiom
// (internal/linear.Client, internal/daytona.Client) plus a WebSocket
// reconnect loop grounded in the same pack's broker client pattern used
// by internal/remoteserver/conn.go.
package remoteclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/dispatch"
	"github.com/andyrewlee/gridmux/internal/layout"
	"github.com/andyrewlee/gridmux/internal/logging"
	"github.com/andyrewlee/gridmux/internal/workspace"
)

// State is the connection machine:
// Disconnected -> Connecting -> Paired | Error, with Reconnecting elided
// as an internal sub-state (tracked via the reconnect attempt counter,
// never exposed on State itself).
type State int

const (
	Disconnected State = iota
	Connecting
	Paired
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Paired:
		return "paired"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Backoff bounds: WS reconnect uses exponential backoff starting at
// 500ms, capped at 30s, with jitter.
const (
	backoffStart = 500 * time.Millisecond
	backoffCap   = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL is the server's HTTP origin, e.g. "http://127.0.0.1:7890".
	BaseURL string
	// Token is a previously stored bearer token; empty means Pair must be
	// called first.
	Token string
	// HTTPClient is optional; a 10s-timeout client is used if nil.
	HTTPClient *http.Client
	// Dialer is optional; gorilla's default dialer is used if nil.
	Dialer *websocket.Dialer
}

// Client is one remote instance's worth of shadow state: cached
// projects/layouts plus live terminal and app mirrors, kept in sync over
// HTTP + WebSocket.
type Client struct {
	cfg    Config
	client *http.Client
	dialer *websocket.Dialer

	mu           sync.Mutex
	token        string
	state        State
	lastErr      error
	stateVersion uint64
	shadow       *workspace.Workspace
	shadowGroup  *asyncutil.Group

	terminals map[layout.Id]*ShadowTerminal
	apps      map[layout.Id]*ShadowApp
	streamIDs map[layout.Id]uint32

	ws          *websocket.Conn
	wsWriteMu   sync.Mutex
	reconnectN  int
	onState     func(State)
	onAppChange func(layout.Id)
}

// NewClient builds a Client that has not yet connected. Call Run to drive
// the connection machine for the lifetime of ctx.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	group := asyncutil.NewGroup(context.Background())
	return &Client{
		cfg:         cfg,
		client:      httpClient,
		dialer:      dialer,
		token:       cfg.Token,
		state:       Disconnected,
		shadow:      workspace.New(group),
		shadowGroup: group,
		terminals:   make(map[layout.Id]*ShadowTerminal),
		apps:        make(map[layout.Id]*ShadowApp),
		streamIDs:   make(map[layout.Id]uint32),
	}
}

// OnStateChange registers a callback invoked whenever the connection
// machine transitions. Only the most recently registered callback is
// kept, mirroring the single-subscriber convenience the teacher's own
// observer hooks use at call sites with one listener.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnAppStateChange registers a callback invoked whenever a mirrored app's
// view state is updated from an app_state_changed message.
func (c *Client) OnAppStateChange(fn func(layout.Id)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAppChange = fn
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error that produced the most recent Error state,
// if any.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// StateVersion returns the state_version of the last snapshot applied.
func (c *Client) StateVersion() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateVersion
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.lastErr = err
	cb := c.onState
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// Close stops all shadow-terminal/app background work and closes the
// live WebSocket connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
	c.shadowGroup.Close()
}

// Run drives the connection machine for the lifetime of ctx: pair if
// needed, fetch+diff the initial snapshot, open the WebSocket stream, and
// reconnect with exponential backoff on any transport failure. It
// returns only when ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.setState(Connecting, nil)

		if err := c.connectOnce(ctx); err != nil {
			c.setState(Error, err)
			logging.Warn("remoteclient: connection attempt failed: %v", err)
		}

		c.mu.Lock()
		c.reconnectN++
		attempt := c.reconnectN
		c.mu.Unlock()

		delay := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connectOnce performs one full connection cycle: fetch+diff state, dial
// the WS stream, authenticate, and pump messages until the socket closes
// or ctx is cancelled. A clean return (nil) still means the caller should
// reconnect, since the WS loop only returns on disconnect.
func (c *Client) connectOnce(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return fmt.Errorf("remoteclient: no token; call Pair first")
	}

	if err := c.RefreshState(ctx); err != nil {
		return fmt.Errorf("remoteclient: initial state fetch: %w", err)
	}

	conn, err := c.dialStream(ctx, token)
	if err != nil {
		return fmt.Errorf("remoteclient: dial stream: %w", err)
	}
	c.mu.Lock()
	c.ws = conn
	c.reconnectN = 0
	c.streamIDs = make(map[layout.Id]uint32)
	c.mu.Unlock()

	c.setState(Paired, nil)
	c.resubscribeAll()
	c.readLoop(ctx, conn)
	return nil
}

// resubscribeAll re-sends subscribe/subscribe_apps for every shadow
// known at the time a (re)connection completes, since stream IDs are
// per-connection and every prior subscription is gone once the socket
// drops.
func (c *Client) resubscribeAll() {
	c.mu.Lock()
	terminalIDs := make([]layout.Id, 0, len(c.terminals))
	for id := range c.terminals {
		terminalIDs = append(terminalIDs, id)
	}
	appIDs := make([]layout.Id, 0, len(c.apps))
	for id := range c.apps {
		appIDs = append(appIDs, id)
	}
	c.mu.Unlock()

	if len(terminalIDs) > 0 {
		c.subscribeTerminals(terminalIDs)
	}
	if len(appIDs) > 0 {
		c.subscribeApps(appIDs)
	}
}

func backoffDelay(attempt int) time.Duration {
	d := backoffStart
	for i := 1; i < attempt && d < backoffCap; i++ {
		d *= 2
	}
	if d > backoffCap {
		d = backoffCap
	}
	return withJitter(d)
}

// withJitter applies up to ±20% random jitter around the base delay, the
// same proportional jitter the teacher's own retry helper applies
// (internal/sandbox.calculateDelay).
func withJitter(d time.Duration) time.Duration {
	jitterRange := float64(d) * 0.2
	j := (rand.Float64()*2 - 1) * jitterRange
	out := float64(d) + j
	if out < 0 {
		return d
	}
	return time.Duration(out)
}

func doJSON(ctx context.Context, client *http.Client, method, url, token string, body any, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("remoteclient: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("remoteclient: build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remoteclient: request failed: %w", err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("remoteclient: decode response: %w", err)
		}
	}
	return resp, nil
}

// DispatchAction posts req to the server's action endpoint, mirroring
// dispatch.RemoteBackend's own POST /v1/actions client so both directions
// of the remote protocol share one request shape.
func (c *Client) DispatchAction(ctx context.Context, req dispatch.ActionRequest) dispatch.ActionResult {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	var result dispatch.ActionResult
	resp, err := doJSON(ctx, c.client, http.MethodPost, c.cfg.BaseURL+"/v1/actions", token, req, &result)
	if err != nil {
		return dispatch.Failure(err.Error())
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return dispatch.Failure("remoteclient: remote authentication rejected")
	}
	return result
}
