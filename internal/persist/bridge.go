// Package persist moves board snapshots between a live session and the board
// store behind the REST API.
package persist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"collabboard/internal/board"
	"collabboard/internal/store"
)

// Bridge loads and saves a room's snapshot.
type Bridge interface {
	Load(ctx context.Context, roomID string) (board.Snapshot, bool, error)
	Save(ctx context.Context, roomID string, snap board.Snapshot) error
}

// StatusError is returned for non-2xx API answers.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Message)
}

// HTTPBridge talks to the board REST API with a bearer token.
type HTTPBridge struct {
	base   *url.URL
	token  string
	client *http.Client
}

// NewHTTPBridge targets the API rooted at baseURL, e.g. "http://localhost:8081".
func NewHTTPBridge(baseURL, token string) (*HTTPBridge, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	return &HTTPBridge{base: u, token: token, client: &http.Client{Timeout: 10 * time.Second}}, nil
}

func (b *HTTPBridge) endpoint(parts ...string) string {
	return b.base.JoinPath(parts...).String()
}

func (b *HTTPBridge) do(ctx context.Context, op, method, target string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		msg := e.Message
		if msg == "" {
			msg = e.Error
		}
		return &StatusError{Op: op, Code: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func (b *HTTPBridge) Load(ctx context.Context, roomID string) (board.Snapshot, bool, error) {
	var resp struct {
		Data *board.Snapshot `json:"data"`
	}
	if err := b.do(ctx, "load board", http.MethodGet, b.endpoint("api", "whiteboard", roomID), nil, &resp); err != nil {
		return board.Snapshot{}, false, err
	}
	if resp.Data == nil {
		return board.Snapshot{}, false, nil
	}
	return *resp.Data, true, nil
}

func (b *HTTPBridge) Save(ctx context.Context, roomID string, snap board.Snapshot) error {
	return b.do(ctx, "save board", http.MethodPost, b.endpoint("api", "whiteboard", roomID), snap, nil)
}

// List returns the caller's boards, newest first.
func (b *HTTPBridge) List(ctx context.Context) ([]store.Summary, error) {
	var resp struct {
		Boards []store.Summary `json:"boards"`
	}
	if err := b.do(ctx, "list boards", http.MethodGet, b.endpoint("api", "whiteboards"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Boards, nil
}
