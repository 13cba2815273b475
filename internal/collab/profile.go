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

// ProfileClient talks to the identity/goal collaborator. Profile and goal
// reads authenticate with the session's bearer token; task completion uses
// the internal unauthenticated route.
type ProfileClient struct {
	baseURL string
	client  *http.Client
}

func NewProfileClient(baseURL string, timeout time.Duration) *ProfileClient {
	return &ProfileClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
	}
}

// Profile fetches the caller's profile. The collaborator wraps it as
// {"data":{"user":{...}}}.
func (p *ProfileClient) Profile(ctx context.Context, token string) (types.UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/profile", nil)
	if err != nil {
		return types.UserProfile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return types.UserProfile{}, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.UserProfile{}, fmt.Errorf("%w: profile returned %d", ErrCollaboratorStatus, resp.StatusCode)
	}

	var body struct {
		Data struct {
			User types.UserProfile `json:"user"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return types.UserProfile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	return body.Data.User, nil
}

// ActiveGoal fetches the caller's active learning goal. A nil goal with a
// nil error means the user has none.
func (p *ProfileClient) ActiveGoal(ctx context.Context, token string) (*types.LearningGoal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/goals/active", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("active goal request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: goals/active returned %d", ErrCollaboratorStatus, resp.StatusCode)
	}

	var body struct {
		Data struct {
			Goal *types.LearningGoal `json:"goal"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode active goal: %w", err)
	}
	return body.Data.Goal, nil
}

// CompleteTask records a finished practice task against the user's goal.
// The collaborator resolves placeholder task references on its side.
func (p *ProfileClient) CompleteTask(ctx context.Context, userID, scenario, task string) error {
	payload, err := json.Marshal(map[string]string{
		"scenario": scenario,
		"task":     task,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/internal/users/%s/tasks/complete", p.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("task completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: tasks/complete returned %d", ErrCollaboratorStatus, resp.StatusCode)
	}
	return nil
}
