// Package controlplane implements the agent's plain JSON/REST calls to
// the control plane: node registration, heartbeat, and unregistration.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/zexio-io/zexio-agent/internal/cryptoutil"
)

const defaultTimeout = 5 * time.Second

// Client talks to the control plane's node REST API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// NewClient returns a Client that targets baseURL (e.g.
// "https://control.zexio.io"). baseURL must not have a trailing
// slash.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     slog.Default().With("component", "controlplane"),
	}
}

// StatusError is returned by post when the control plane responds with
// a non-2xx status, so callers can distinguish client errors (4xx,
// fatal) from transient server/network failures (5xx, retryable) and
// detect specific statuses such as 403/404 on heartbeat.
type StatusError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Path, e.StatusCode, e.Body)
}

// RegisterRequest is the body of POST /api/nodes/register. The
// provisioning token is sent in both the header and the body so the
// control plane can rate-limit on the header alone before parsing the
// body.
type RegisterRequest struct {
	ProvisioningToken string `json:"provisioning_token"`
	Hostname          string `json:"hostname"`
	OSType            string `json:"os"`
	Arch              string `json:"arch"`
}

// RegisterResponse is the body returned by a successful registration.
// The control plane, not the agent, is authoritative for node identity:
// it mints NodeID and NodeSecret and hands them back here.
type RegisterResponse struct {
	NodeID     string `json:"node_id"`
	NodeSecret string `json:"node_secret"`
	RelayURL   string `json:"relay_url"`
}

// Register exchanges a provisioning token for a freshly minted node
// identity, the first step of the identity bootstrap flow.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.post(ctx, "/api/nodes/register", req.ProvisioningToken, req, &resp); err != nil {
		return nil, fmt.Errorf("controlplane: register: %w", err)
	}
	return &resp, nil
}

// HeartbeatRequest is the body of POST /api/nodes/heartbeat.
type HeartbeatRequest struct {
	NodeID     string `json:"node_id"`
	NodeSecret string `json:"node_secret"`
}

// Heartbeat tells the control plane the node is alive. It is called
// independently of the stats stream so that liveness tracking does not
// depend on the tunnel connection being up. The request body is signed
// with the node secret; a StatusError with StatusCode 403 or 404 means
// the control plane no longer recognizes this node and the caller
// should discard its local identity.
func (c *Client) Heartbeat(ctx context.Context, nodeID, nodeSecret string) error {
	req := HeartbeatRequest{NodeID: nodeID, NodeSecret: nodeSecret}
	if err := c.post(ctx, "/api/nodes/heartbeat", nodeSecret, req, nil); err != nil {
		return fmt.Errorf("controlplane: heartbeat: %w", err)
	}
	return nil
}

// UnregisterRequest is the body of POST /api/nodes/unregister.
type UnregisterRequest struct {
	NodeID     string `json:"node_id"`
	NodeSecret string `json:"node_secret"`
}

// Unregister tells the control plane this node is going away
// permanently (as opposed to a transient disconnect).
func (c *Client) Unregister(ctx context.Context, nodeID, nodeSecret string) error {
	req := UnregisterRequest{NodeID: nodeID, NodeSecret: nodeSecret}
	if err := c.post(ctx, "/api/nodes/unregister", nodeSecret, req, nil); err != nil {
		return fmt.Errorf("controlplane: unregister: %w", err)
	}
	return nil
}

// post issues a signed POST request. signingSecret is used both as the
// HMAC key for the X-Signature header and, during registration, as the
// provisioning token echoed in X-Provisioning-Token; the control plane
// verifies whichever one applies to the endpoint being called.
func (c *Client) post(ctx context.Context, path, signingSecret string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signingSecret != "" {
		req.Header.Set("X-Signature", cryptoutil.Sign([]byte(signingSecret), encoded))
	}
	if path == "/api/nodes/register" {
		req.Header.Set("X-Provisioning-Token", signingSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Path: path, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
