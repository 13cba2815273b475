package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"omnigate/pkg/types"
)

// HistoryClient talks to the history/analytics collaborator. Conversation
// saves are full replaces keyed by session id, so retrying a failed save
// is always safe.
type HistoryClient struct {
	baseURL string
	client  *http.Client
}

func NewHistoryClient(baseURL string, timeout time.Duration) *HistoryClient {
	return &HistoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
	}
}

// SessionMessages returns the stored transcript for a session, empty when
// the session has no history yet.
func (h *HistoryClient) SessionMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	url := h.baseURL + "/api/history/session/" + sessionID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: history/session returned %d", ErrCollaboratorStatus, resp.StatusCode)
	}

	var body struct {
		Data struct {
			Messages []types.Message `json:"messages"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return body.Data.Messages, nil
}

// SaveConversation replaces the stored transcript for the session.
func (h *HistoryClient) SaveConversation(ctx context.Context, conversation types.ConversationLog) error {
	payload, err := json.Marshal(conversation)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/history/conversation", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("history save failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: history/conversation returned %d", ErrCollaboratorStatus, resp.StatusCode)
	}
	return nil
}

// SaveSummary posts a session summary with its proficiency score delta.
func (h *HistoryClient) SaveSummary(ctx context.Context, update types.SummaryUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/history/summary", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("summary save failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: history/summary returned %d", ErrCollaboratorStatus, resp.StatusCode)
	}
	return nil
}
