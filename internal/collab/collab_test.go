package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"omnigate/pkg/types"
)

func TestProfileClientProfile(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"user":{"id":"u1","nickname":"Wei","native_language":"Chinese","target_language":"English"}}}`))
	}))
	defer server.Close()

	client := NewProfileClient(server.URL, 5*time.Second)
	profile, err := client.Profile(context.Background(), "tok-123")
	if err != nil {
		t.Fatalf("Profile() error: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotPath != "/profile" {
		t.Errorf("path = %q, want /profile", gotPath)
	}
	if profile.ID != "u1" || profile.NativeLanguage != "Chinese" {
		t.Errorf("unexpected profile: %+v", profile)
	}
}

func TestProfileClientProfileStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewProfileClient(server.URL, 5*time.Second)
	if _, err := client.Profile(context.Background(), "bad"); !errors.Is(err, ErrCollaboratorStatus) {
		t.Errorf("Profile() error = %v, want ErrCollaboratorStatus", err)
	}
}

func TestProfileClientActiveGoal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/goals/active" {
			t.Errorf("path = %q, want /goals/active", r.URL.Path)
		}
		w.Write([]byte(`{"data":{"goal":{"id":7,"type":"oral","current_proficiency":45}}}`))
	}))
	defer server.Close()

	client := NewProfileClient(server.URL, 5*time.Second)
	goal, err := client.ActiveGoal(context.Background(), "tok")
	if err != nil {
		t.Fatalf("ActiveGoal() error: %v", err)
	}
	if goal == nil {
		t.Fatal("ActiveGoal() returned nil goal")
	}
	if goal.Type != "oral" || goal.CurrentProficiency != 45 {
		t.Errorf("unexpected goal: %+v", goal)
	}
}

func TestProfileClientActiveGoalAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"goal":null}}`))
	}))
	defer server.Close()

	client := NewProfileClient(server.URL, 5*time.Second)
	goal, err := client.ActiveGoal(context.Background(), "tok")
	if err != nil {
		t.Fatalf("ActiveGoal() error: %v", err)
	}
	if goal != nil {
		t.Errorf("ActiveGoal() = %+v, want nil", goal)
	}
}

func TestProfileClientCompleteTask(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("internal route should not carry auth")
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewProfileClient(server.URL, 5*time.Second)
	err := client.CompleteTask(context.Background(), "u1", "Airport Check-in", "NEXT_PENDING_TASK")
	if err != nil {
		t.Fatalf("CompleteTask() error: %v", err)
	}
	if gotPath != "/internal/users/u1/tasks/complete" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["scenario"] != "Airport Check-in" || gotBody["task"] != "NEXT_PENDING_TASK" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestHistoryClientSessionMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/history/session/s1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"data":{"messages":[{"role":"user","content":"hi","timestamp":1000}]}}`))
	}))
	defer server.Close()

	client := NewHistoryClient(server.URL, 5*time.Second)
	messages, err := client.SessionMessages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("SessionMessages() error: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hi" {
		t.Errorf("messages = %+v", messages)
	}
}

func TestHistoryClientSessionMessagesNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHistoryClient(server.URL, 5*time.Second)
	messages, err := client.SessionMessages(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("SessionMessages() error = %v, want nil for 404", err)
	}
	if messages != nil {
		t.Errorf("messages = %+v, want nil", messages)
	}
}

func TestHistoryClientSaveConversation(t *testing.T) {
	var gotLog types.ConversationLog
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/history/conversation" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotLog)
	}))
	defer server.Close()

	client := NewHistoryClient(server.URL, 5*time.Second)
	err := client.SaveConversation(context.Background(), types.ConversationLog{
		SessionID: "s1",
		UserID:    "u1",
		Messages:  []types.Message{{Role: types.MessageRoleAssistant, Content: "hello", Timestamp: time.Unix(2000, 0).UTC()}},
		Topic:     "General Practice",
	})
	if err != nil {
		t.Fatalf("SaveConversation() error: %v", err)
	}
	if gotLog.SessionID != "s1" || len(gotLog.Messages) != 1 {
		t.Errorf("received log = %+v", gotLog)
	}
}

func TestHistoryClientSaveSummaryStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHistoryClient(server.URL, 5*time.Second)
	err := client.SaveSummary(context.Background(), types.SummaryUpdate{SessionID: "s1", UserID: "u1"})
	if !errors.Is(err, ErrCollaboratorStatus) {
		t.Errorf("SaveSummary() error = %v, want ErrCollaboratorStatus", err)
	}
}

func TestMediaClientUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/media/upload" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		file, header, err := r.FormFile("user_audio")
		if err != nil {
			t.Fatalf("FormFile(user_audio): %v", err)
		}
		defer file.Close()
		if header.Filename != "s1_1700000000.pcm" {
			t.Errorf("filename = %q", header.Filename)
		}
		w.Write([]byte(`{"data":{"user_audioUrl":"https://cdn.example.com/s1.pcm"}}`))
	}))
	defer server.Close()

	client := NewMediaClient(server.URL, 5*time.Second)
	url, err := client.Upload(context.Background(), "user_audio", "s1_1700000000.pcm", []byte{0, 1, 2})
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if url != "https://cdn.example.com/s1.pcm" {
		t.Errorf("url = %q", url)
	}
}

func TestMediaClientUploadEmptyData(t *testing.T) {
	client := NewMediaClient("http://unused", 5*time.Second)
	url, err := client.Upload(context.Background(), "ai_audio", "x.pcm", nil)
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if url != "" {
		t.Errorf("url = %q, want empty for empty data", url)
	}
}

func TestMediaClientUploadMissingURLKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	client := NewMediaClient(server.URL, 5*time.Second)
	url, err := client.Upload(context.Background(), "ai_audio", "x.pcm", []byte{1})
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if url != "" {
		t.Errorf("url = %q, want empty when key absent", url)
	}
}

func TestTTSClientEnabled(t *testing.T) {
	if (&TTSClient{}).Enabled() {
		t.Error("Enabled() = true with no endpoint")
	}
	if !NewTTSClient("http://tts", "key", time.Second).Enabled() {
		t.Error("Enabled() = false with endpoint configured")
	}
}

func TestTTSClientSynthesize(t *testing.T) {
	var gotReq struct {
		Model string `json:"model"`
		Input struct {
			Text string `json:"text"`
		} `json:"input"`
		Parameters struct {
			SampleRate int    `json:"sample_rate"`
			Format     string `json:"format"`
		} `json:"parameters"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Error("missing bearer auth")
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	client := NewTTSClient(server.URL, "key", 5*time.Second)
	audio, err := client.Synthesize(context.Background(), "hello world", "Cherry")
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Errorf("audio = %q", audio)
	}
	if gotReq.Model != "sambert-zhimiao-emo-v1" {
		t.Errorf("model = %q, want mapped sambert voice", gotReq.Model)
	}
	if gotReq.Input.Text != "hello world" {
		t.Errorf("text = %q", gotReq.Input.Text)
	}
	if gotReq.Parameters.Format != "mp3" || gotReq.Parameters.SampleRate != 24000 {
		t.Errorf("parameters = %+v", gotReq.Parameters)
	}
}

func TestTTSClientSynthesizeEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := NewTTSClient(server.URL, "", 5*time.Second)
	if _, err := client.Synthesize(context.Background(), "hi", "unknown-voice"); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Synthesize() error = %v, want ErrEmptyResponse", err)
	}
}

func TestTTSClientSynthesizeStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewTTSClient(server.URL, "", 5*time.Second)
	if _, err := client.Synthesize(context.Background(), "hi", "ryan"); !errors.Is(err, ErrCollaboratorStatus) {
		t.Errorf("Synthesize() error = %v, want ErrCollaboratorStatus", err)
	}
}
