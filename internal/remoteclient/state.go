package remoteclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/andyrewlee/gridmux/internal/layout"
	"github.com/andyrewlee/gridmux/internal/workspace"
)

// pairResponse mirrors remoteserver.tokenResponse, the shape both
// /v1/pair and /v1/refresh return.
type pairResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Pair exchanges a short pairing code (displayed on the desktop) for a
// bearer token. The token is cached on the Client for subsequent requests.
func (c *Client) Pair(ctx context.Context, code string) error {
	var resp pairResponse
	httpResp, err := doJSON(ctx, c.client, http.MethodPost, c.cfg.BaseURL+"/v1/pair", "", map[string]string{"code": code}, &resp)
	if err != nil {
		return err
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("remoteclient: pairing rejected (status %d)", httpResp.StatusCode)
	}
	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return nil
}

// Refresh exchanges the current token for a fresh one before it expires.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	var resp pairResponse
	httpResp, err := doJSON(ctx, c.client, http.MethodPost, c.cfg.BaseURL+"/v1/refresh", token, nil, &resp)
	if err != nil {
		return err
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("remoteclient: token expired, re-pairing required")
	}
	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return nil
}

// Token returns the currently cached bearer token, for callers that
// persist it across restarts and re-authenticate with the stored token.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// RefreshState fetches /v1/state, diffs it against the cached shadow
// workspace, creates shadow terminals/apps for newly observed IDs, drops
// ones no longer present, and auto-subscribes the new IDs' streams. Run
// once on connect and again on every server "state_changed" notification.
func (c *Client) RefreshState(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/state", nil)
	if err != nil {
		return fmt.Errorf("remoteclient: build state request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("remoteclient: state request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("remoteclient: state request unauthorized")
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("remoteclient: decode state response: %w", err)
	}

	var versioned struct {
		StateVersion uint64 `json:"state_version"`
	}
	if err := json.Unmarshal(raw, &versioned); err != nil {
		return fmt.Errorf("remoteclient: decode state_version: %w", err)
	}

	c.mu.Lock()
	shadow := c.shadow
	c.mu.Unlock()
	if err := shadow.UnmarshalJSON(raw); err != nil {
		return fmt.Errorf("remoteclient: apply state snapshot: %w", err)
	}

	c.mu.Lock()
	c.stateVersion = versioned.StateVersion
	c.mu.Unlock()

	c.reconcileShadows(ctx)
	return nil
}

// currentLeafIDs enumerates every Terminal/App leaf ID across every
// project's layout tree in the shadow workspace, using the same
// CollectLeaves walk the layout package exposes for focus cycling.
func (c *Client) currentLeafIDs() (terminals map[layout.Id]bool, apps map[layout.Id]bool) {
	terminals = make(map[layout.Id]bool)
	apps = make(map[layout.Id]bool)
	for _, p := range c.shadow.Projects() {
		if p.Layout == nil {
			continue
		}
		for _, leaf := range layout.CollectLeaves(p.Layout) {
			switch leaf.Kind {
			case layout.KindTerminal:
				if leaf.Node.TerminalId != nil {
					terminals[*leaf.Node.TerminalId] = true
				}
			case layout.KindApp:
				if leaf.Node.AppId != nil {
					apps[*leaf.Node.AppId] = true
				}
			}
		}
	}
	return terminals, apps
}

// reconcileShadows creates shadow mirrors for newly observed terminal/app
// IDs and tears down ones no longer present, auto-subscribing new
// terminal streams over the live WebSocket connection if one is open.
func (c *Client) reconcileShadows(ctx context.Context) {
	liveTerminals, liveApps := c.currentLeafIDs()

	c.mu.Lock()
	var newTerminals, staleTerminals []layout.Id
	for id := range liveTerminals {
		if _, ok := c.terminals[id]; !ok {
			newTerminals = append(newTerminals, id)
		}
	}
	for id := range c.terminals {
		if !liveTerminals[id] {
			staleTerminals = append(staleTerminals, id)
		}
	}
	for _, id := range newTerminals {
		c.terminals[id] = NewShadowTerminal()
	}
	for _, id := range staleTerminals {
		delete(c.terminals, id)
	}

	var newApps, staleApps []layout.Id
	for id := range liveApps {
		if _, ok := c.apps[id]; !ok {
			newApps = append(newApps, id)
		}
	}
	for id := range c.apps {
		if !liveApps[id] {
			staleApps = append(staleApps, id)
		}
	}
	for _, id := range newApps {
		c.apps[id] = &ShadowApp{}
	}
	for _, id := range staleApps {
		delete(c.apps, id)
	}
	c.mu.Unlock()

	if len(newTerminals) > 0 {
		c.subscribeTerminals(newTerminals)
	}
	if len(newApps) > 0 {
		c.subscribeApps(newApps)
	}
}

// ShadowTerminal looks up the mirrored terminal session for id, created
// once its ID was first observed in a state snapshot.
func (c *Client) ShadowTerminal(id layout.Id) (*ShadowTerminal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.terminals[id]
	return t, ok
}

// ShadowApp looks up the mirrored app view-state for id.
func (c *Client) ShadowApp(id layout.Id) (*ShadowApp, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.apps[id]
	return a, ok
}

// Projects returns the shadow workspace's cached project list, the
// client-side equivalent of reading the Workspace directly.
func (c *Client) Projects() []*workspace.Project {
	return c.shadow.Projects()
}
