// Package liveclient holds the client half of live co-reading: the HTTP client
// plus the debounced position publisher, heartbeat loop and roster watcher that
// drive it.
package liveclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Position is a (surah, ayah) pair.
type Position struct {
	Surah int `json:"surah"`
	Ayah  int `json:"ayah"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Surah, p.Ayah)
}

// Session is the subset of a live session the client needs.
type Session struct {
	ID           string `json:"id"`
	BatchID      string `json:"batchId"`
	ChildID      string `json:"childId"`
	Status       string `json:"status"`
	CurrentSurah *int   `json:"currentSurah"`
	CurrentAyah  *int   `json:"currentAyah"`
	Version      int64  `json:"version"`
}

// Participant is one row of a scholar roster.
type Participant struct {
	BatchID    string    `json:"batchId"`
	BatchName  string    `json:"batchName"`
	ChildID    string    `json:"childId"`
	ChildName  string    `json:"childName"`
	Surah      *int      `json:"surah"`
	Ayah       *int      `json:"ayah"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Position returns the participant's position when known.
func (p Participant) Position() (Position, bool) {
	if p.Surah == nil || p.Ayah == nil {
		return Position{}, false
	}
	return Position{Surah: *p.Surah, Ayah: *p.Ayah}, true
}

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int                    `json:"status"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the live endpoints of the API with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client. baseURL includes the API prefix, e.g.
// http://localhost:8080/api/v1.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// StartSession starts or joins the batch for childID.
func (c *Client) StartSession(ctx context.Context, batchID, childID, childName string) (*Session, bool, error) {
	var out struct {
		Session *Session `json:"session"`
		Created bool     `json:"created"`
	}
	body := map[string]string{"childId": childID, "childName": childName}
	if err := c.do(ctx, http.MethodPost, "/live/batches/"+batchID+"/sessions", body, &out); err != nil {
		return nil, false, err
	}
	return out.Session, out.Created, nil
}

// Leave removes the child from the roster, optionally ending the session.
func (c *Client) Leave(ctx context.Context, batchID, childID string, end bool) error {
	body := map[string]interface{}{"childId": childID, "end": end}
	return c.do(ctx, http.MethodPost, "/live/batches/"+batchID+"/leave", body, nil)
}

// Ping sends one heartbeat.
func (c *Client) Ping(ctx context.Context, batchID, childID, childName string) error {
	body := map[string]string{"childId": childID, "childName": childName}
	return c.do(ctx, http.MethodPost, "/live/batches/"+batchID+"/ping", body, nil)
}

// UpdatePosition writes the session's reading position.
func (c *Client) UpdatePosition(ctx context.Context, sessionID string, pos Position) error {
	return c.do(ctx, http.MethodPut, "/live/sessions/"+sessionID+"/position", pos, nil)
}

// ActiveSessions fetches the merged roster of a scholar.
func (c *Client) ActiveSessions(ctx context.Context, scholarID string) ([]Participant, error) {
	var out []Participant
	if err := c.do(ctx, http.MethodGet, "/scholars/"+scholarID+"/live-sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, dest interface{}) error {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error *APIError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if envelope.Error == nil {
			envelope.Error = &APIError{Message: http.StatusText(resp.StatusCode)}
		}
		envelope.Error.Status = resp.StatusCode
		return envelope.Error
	}
	if dest == nil || len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, dest)
}
