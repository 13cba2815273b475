package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ttsVoiceModels maps realtime voice names to standalone synthesis
// models. Realtime voices are not available on the batch endpoint.
var ttsVoiceModels = map[string]string{
	"cherry": "sambert-zhimiao-emo-v1",
	"ryan":   "sambert-zhishuo-v1",
}

// TTSClient performs one-shot speech synthesis against a standalone
// endpoint, separate from the realtime conversational backend.
type TTSClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewTTSClient(endpoint, apiKey string, timeout time.Duration) *TTSClient {
	return &TTSClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   newHTTPClient(timeout),
	}
}

// Enabled reports whether an endpoint was configured.
func (t *TTSClient) Enabled() bool {
	return t.endpoint != ""
}

// Synthesize renders text to MP3 audio with the requested voice and
// returns the raw bytes.
func (t *TTSClient) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	model := voice
	if mapped, ok := ttsVoiceModels[strings.ToLower(voice)]; ok {
		model = mapped
	}

	payload, err := json.Marshal(map[string]any{
		"model": model,
		"input": map[string]string{"text": text},
		"parameters": map[string]any{
			"sample_rate": 24000,
			"format":      "mp3",
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tts returned %d", ErrCollaboratorStatus, resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tts response: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyResponse
	}
	return audio, nil
}
