// Package collab holds HTTP clients for the collaborator services the
// gateway depends on: identity/goals, history, media storage, and speech
// synthesis. Every client degrades gracefully; callers decide whether a
// failure is fatal.
package collab

import (
	"errors"
	"net/http"
	"time"
)

var (
	ErrCollaboratorStatus = errors.New("collaborator returned non-success status")
	ErrEmptyResponse      = errors.New("collaborator returned empty response")
)

// newHTTPClient builds the shared transport used by all collaborator
// clients. One timeout covers dial, request, and body read.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
