package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"school-collab/internal/domain"
)

// Client is how the school backend reaches the relay's internal endpoints
type Client interface {
	PushDataSync(ctx context.Context, userID string, payload any) (int, error)
	PushSystemAlert(ctx context.Context, alert domain.SystemAlert) (int, error)
	ListPresence(ctx context.Context) ([]domain.CollaborationUser, error)
}

type SyncClient struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

func NewSyncClient(baseURL string, secret string) *SyncClient {
	return &SyncClient{
		baseURL: baseURL,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type deliveryResponse struct {
	Delivered int `json:"delivered"`
}

type presenceResponse struct {
	Users  []domain.CollaborationUser `json:"users"`
	Source string                     `json:"source"`
}

// PushDataSync broadcasts a data change and returns how many connections received it
func (s *SyncClient) PushDataSync(ctx context.Context, userID string, payload any) (int, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	body := map[string]any{
		"userId":  userID,
		"payload": json.RawMessage(encoded),
	}

	var resp deliveryResponse
	if err := s.do(ctx, http.MethodPost, "/internal/sync", body, &resp); err != nil {
		return 0, err
	}
	return resp.Delivered, nil
}

func (s *SyncClient) PushSystemAlert(ctx context.Context, alert domain.SystemAlert) (int, error) {
	var resp deliveryResponse
	if err := s.do(ctx, http.MethodPost, "/internal/alerts", alert, &resp); err != nil {
		return 0, err
	}
	return resp.Delivered, nil
}

// ListPresence returns who is online across relay instances
func (s *SyncClient) ListPresence(ctx context.Context) ([]domain.CollaborationUser, error) {
	var resp presenceResponse
	if err := s.do(ctx, http.MethodGet, "/internal/presence", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (s *SyncClient) do(ctx context.Context, method string, path string, payload any, out any) error {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Internal-Secret", s.secret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf(
			"sync server %s %s error: status=%d body=%s",
			method,
			path,
			resp.StatusCode,
			string(b),
		)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
