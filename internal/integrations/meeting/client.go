// Package meeting talks to the external video meeting service that hosts
// class rooms.
package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/outbox"
)

// Client creates and closes rooms through the meeting service REST API.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient returns a client for the service at baseURL. A nil httpClient
// uses a client with a ten second timeout.
func NewClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid meeting service url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid meeting service url %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    parsed,
		token:      token,
		httpClient: httpClient,
		logger:     logger.With("component", "meeting"),
	}, nil
}

type createRoomRequest struct {
	ExternalID      string    `json:"external_id"`
	Topic           string    `json:"topic"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	HostID          string    `json:"host_id"`
	GuestID         string    `json:"guest_id"`
}

type createRoomResponse struct {
	RoomRef string `json:"room_ref"`
}

// CreateRoom provisions a room for a session. The session id travels as the
// external id so the service can deduplicate repeated requests.
func (c *Client) CreateRoom(ctx context.Context, request outbox.MeetingRoomPayload) (string, error) {
	body, err := json.Marshal(createRoomRequest{
		ExternalID:      request.SessionID,
		Topic:           request.Topic,
		StartsAt:        request.StartsAt.UTC(),
		DurationMinutes: request.DurationMinutes,
		HostID:          request.HostID,
		GuestID:         request.GuestID,
	})
	if err != nil {
		return "", fmt.Errorf("encode room request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/rooms", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", statusError("create room", resp)
	}

	var created createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode room response: %w", err)
	}
	if created.RoomRef == "" {
		return "", errors.New("meeting service returned an empty room reference")
	}

	c.logger.InfoContext(ctx, "meeting room created", "session_id", request.SessionID, "room_ref", created.RoomRef)
	return created.RoomRef, nil
}

// CloseRoom ends a room. Rooms the service has already discarded count as closed.
func (c *Client) CloseRoom(ctx context.Context, request outbox.MeetingClosePayload) error {
	resp, err := c.do(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(request.RoomRef), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusAccepted:
		return nil
	case http.StatusNotFound:
		c.logger.InfoContext(ctx, "meeting room already gone", "session_id", request.SessionID, "room_ref", request.RoomRef)
		return nil
	default:
		return statusError("close room", resp)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	target := c.baseURL.JoinPath(path)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build meeting request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("meeting service %s %s: %w", method, path, err)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("meeting service %s: unexpected status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
