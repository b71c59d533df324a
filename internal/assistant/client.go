package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"concierge/api/internal/tree"
)

// Client calls an external assistant endpoint over HTTP. The endpoint takes
// the serialized tree and an instruction, and answers with a Reply.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds an HTTP-backed Architect.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type proposeRequest struct {
	Tree        *tree.Node `json:"tree"`
	Instruction string     `json:"instruction"`
}

// Propose sends the tree and instruction to the assistant service.
func (c *Client) Propose(ctx context.Context, root *tree.Node, instruction string) (Reply, error) {
	payload, err := json.Marshal(proposeRequest{Tree: root, Instruction: instruction})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal assistant request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/propose", bytes.NewReader(payload))
	if err != nil {
		return Reply{}, fmt.Errorf("build assistant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("call assistant: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Reply{}, fmt.Errorf("assistant returned %d: %s", resp.StatusCode, body)
	}

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("decode assistant reply: %w", err)
	}
	return reply, nil
}
