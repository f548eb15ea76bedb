package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RemoteBackend serializes an ActionRequest as JSON and posts it to
// another gridmux instance's POST /v1/actions endpoint.
// Transport, auth, and 5xx failures all surface as a Failure result rather
// than an error return, matching the Backend interface's single return
// value.
type RemoteBackend struct {
	Client  *http.Client
	BaseURL string
	Token   string
}

// NewRemoteBackend builds a RemoteBackend with a sane request timeout if
// client is nil.
func NewRemoteBackend(client *http.Client, baseURL, token string) *RemoteBackend {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteBackend{Client: client, BaseURL: baseURL, Token: token}
}

// Dispatch posts req to the remote instance's action endpoint.
func (b *RemoteBackend) Dispatch(ctx context.Context, req ActionRequest) ActionResult {
	payload, err := json.Marshal(req)
	if err != nil {
		return Failure(err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/v1/actions", bytes.NewReader(payload))
	if err != nil {
		return Failure(err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.Token)
	}

	resp, err := b.Client.Do(httpReq)
	if err != nil {
		return Failure(fmt.Sprintf("dispatch: remote request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return Failure("dispatch: remote authentication rejected")
	}
	if resp.StatusCode >= 500 {
		return Failure(fmt.Sprintf("dispatch: remote server error: %d", resp.StatusCode))
	}

	var result ActionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Failure(fmt.Sprintf("dispatch: malformed remote response: %v", err))
	}
	return result
}
