package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPTransportConfig configures the JSON-over-HTTP transport.
type HTTPTransportConfig struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
}

// HTTPTransport speaks the server's sync wire protocol.
type HTTPTransport struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewHTTPTransport constructs a transport with a default client when none is
// supplied.
func NewHTTPTransport(cfg HTTPTransportConfig) (*HTTPTransport, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("client: base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
	}, nil
}

type wirePushChange struct {
	Op              string         `json:"op"`
	Entity          string         `json:"entity"`
	EntityID        string         `json:"entityId"`
	ClientUpdatedAt string         `json:"clientUpdatedAt"`
	Payload         map[string]any `json:"payload,omitempty"`
}

type wirePushRequest struct {
	Changes []wirePushChange `json:"changes"`
}

type wirePushResponse struct {
	ServerTime string           `json:"serverTime"`
	Applied    []string         `json:"applied"`
	Conflicts  []RemoteConflict `json:"conflicts"`
}

// Push submits the coalesced batch to POST /sync/push.
func (t *HTTPTransport) Push(ctx context.Context, changes []PendingChange) (PushResponse, error) {
	request := wirePushRequest{Changes: make([]wirePushChange, 0, len(changes))}
	for _, change := range changes {
		request.Changes = append(request.Changes, wirePushChange{
			Op:              change.Op,
			Entity:          change.Kind,
			EntityID:        change.EntityID,
			ClientUpdatedAt: change.ClientUpdatedAt.UTC().Format(time.RFC3339Nano),
			Payload:         change.Payload,
		})
	}

	body, err := json.Marshal(request)
	if err != nil {
		return PushResponse{}, fmt.Errorf("client: encode push: %w", err)
	}

	var wire wirePushResponse
	if err := t.do(ctx, http.MethodPost, t.baseURL+"/sync/push", body, &wire); err != nil {
		return PushResponse{}, err
	}

	serverTime, err := parseWireTime(wire.ServerTime)
	if err != nil {
		return PushResponse{}, fmt.Errorf("client: decode push server time: %w", err)
	}
	return PushResponse{
		ServerTime: serverTime,
		Applied:    wire.Applied,
		Conflicts:  wire.Conflicts,
	}, nil
}

type wirePullChange struct {
	Op        string         `json:"op"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entityId"`
	UpdatedAt string         `json:"updatedAt"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type wirePullResponse struct {
	ServerTime string           `json:"serverTime"`
	Changes    []wirePullChange `json:"changes"`
	NextCursor string           `json:"nextCursor"`
}

// Pull fetches one page of the change stream from GET /sync/pull.
func (t *HTTPTransport) Pull(ctx context.Context, since time.Time, limit int) (PullResponse, error) {
	query := url.Values{}
	query.Set("since", since.UTC().Format(time.RFC3339Nano))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var wire wirePullResponse
	if err := t.do(ctx, http.MethodGet, t.baseURL+"/sync/pull?"+query.Encode(), nil, &wire); err != nil {
		return PullResponse{}, err
	}

	serverTime, err := parseWireTime(wire.ServerTime)
	if err != nil {
		return PullResponse{}, fmt.Errorf("client: decode pull server time: %w", err)
	}
	nextCursor, err := parseWireTime(wire.NextCursor)
	if err != nil {
		return PullResponse{}, fmt.Errorf("client: decode pull cursor: %w", err)
	}

	response := PullResponse{
		ServerTime: serverTime,
		Changes:    make([]RemoteChange, 0, len(wire.Changes)),
		NextCursor: nextCursor,
	}
	for _, change := range wire.Changes {
		updatedAt, err := parseWireTime(change.UpdatedAt)
		if err != nil {
			return PullResponse{}, fmt.Errorf("client: decode change timestamp: %w", err)
		}
		response.Changes = append(response.Changes, RemoteChange{
			Op:        change.Op,
			Entity:    change.Entity,
			EntityID:  change.EntityID,
			UpdatedAt: updatedAt,
			Payload:   change.Payload,
		})
	}
	return response, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, requestURL string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if t.accessToken != "" {
		request.Header.Set("Authorization", "Bearer "+t.accessToken)
	}

	response, err := t.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("client: request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("client: server returned status %d", response.StatusCode)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func parseWireTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Unix(0, 0).UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
