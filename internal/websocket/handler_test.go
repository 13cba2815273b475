package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"omnigate/internal/upstream"
	"omnigate/internal/userctx"
	"omnigate/pkg/interfaces"
	"omnigate/pkg/types"
)

type stubDirectory struct{}

func (stubDirectory) Profile(ctx context.Context, token string) (types.UserProfile, error) {
	return types.UserProfile{
		ID:             "u1",
		NativeLanguage: "Chinese",
		TargetLanguage: "English",
	}, nil
}

func (stubDirectory) ActiveGoal(ctx context.Context, token string) (*types.LearningGoal, error) {
	return &types.LearningGoal{Type: "oral", CurrentProficiency: 50}, nil
}

type stubUpstream struct {
	events chan upstream.Event
}

func newStubUpstream() *stubUpstream {
	return &stubUpstream{events: make(chan upstream.Event)}
}

func (u *stubUpstream) Events() <-chan upstream.Event { return u.events }

func (u *stubUpstream) Connected() bool { return true }

func (u *stubUpstream) UpdateSession(opts upstream.SessionOptions) error { return nil }

func (u *stubUpstream) AppendAudio(audioB64 string) error { return nil }

func (u *stubUpstream) CreateResponse(instructions string) error { return nil }

func (u *stubUpstream) CancelResponse() error { return nil }

func (u *stubUpstream) Close() error { return nil }

func (u *stubUpstream) Err() error { return nil }

func newTestHandler() *Handler {
	return NewHandler(HandlerOptions{
		Registry: NewRegistry(),
		Resolver: userctx.NewResolver(stubDirectory{}),
		Dial: func(ctx context.Context) (interfaces.Upstream, error) {
			return newStubUpstream(), nil
		},
		HandshakeTimeout: 2 * time.Second,
		WriteTimeout:     2 * time.Second,
	})
}

func dialStream(t *testing.T, handler *Handler, query string) *gws.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler.HandleStream))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *gws.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	return frame
}

func TestHandleStreamSessionLifecycle(t *testing.T) {
	handler := newTestHandler()
	conn := dialStream(t, handler, "?userId=u1&sessionId=s1&token=tok")

	if err := conn.WriteJSON(types.Frame{Type: types.FrameSessionStart,
		Payload: json.RawMessage(`{"topic":"Travel"}`)}); err != nil {
		t.Fatalf("handshake write failed: %v", err)
	}

	established := readFrame(t, conn)
	if established["type"] != types.FrameConnectionEstablished {
		t.Fatalf("first frame = %v, want connection_established", established["type"])
	}
	payload := established["payload"].(map[string]interface{})
	if payload["connectionId"] != "s1" {
		t.Errorf("connectionId = %v", payload["connectionId"])
	}
	if payload["role"] != string(types.RoleOralTutor) {
		t.Errorf("role = %v", payload["role"])
	}

	if err := conn.WriteJSON(types.Frame{Type: types.FramePing}); err != nil {
		t.Fatalf("ping write failed: %v", err)
	}
	pong := readFrame(t, conn)
	if pong["type"] != types.FramePong {
		t.Errorf("frame = %v, want pong", pong["type"])
	}

	if got, exists := handler.registry.SessionConnection("s1"); !exists || got.UserID() != "u1" {
		t.Error("session not registered")
	}
}

func TestHandleStreamRejectsMalformedSessionID(t *testing.T) {
	handler := newTestHandler()
	conn := dialStream(t, handler, "?sessionId=not%20ok&token=tok")

	if err := conn.WriteJSON(types.Frame{Type: types.FrameSessionStart}); err != nil {
		t.Fatalf("handshake write failed: %v", err)
	}

	frame := readFrame(t, conn)
	if frame["type"] != types.FrameError {
		t.Fatalf("frame = %v, want error", frame["type"])
	}
	payload := frame["payload"].(map[string]interface{})
	if payload["type"] != types.ErrorTypeInvalidState {
		t.Errorf("error type = %v", payload["type"])
	}
}

func TestHandleStreamInvalidJSONKeepsSessionAlive(t *testing.T) {
	handler := newTestHandler()
	conn := dialStream(t, handler, "?userId=u1&sessionId=s2&token=tok")

	if err := conn.WriteJSON(types.Frame{Type: types.FrameSessionStart}); err != nil {
		t.Fatalf("handshake write failed: %v", err)
	}
	if frame := readFrame(t, conn); frame["type"] != types.FrameConnectionEstablished {
		t.Fatalf("first frame = %v", frame["type"])
	}

	if err := conn.WriteMessage(gws.TextMessage, []byte("{broken")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != types.FrameError {
		t.Fatalf("frame = %v, want error", frame["type"])
	}

	// The session survives the bad frame.
	if err := conn.WriteJSON(types.Frame{Type: types.FramePing}); err != nil {
		t.Fatalf("ping write failed: %v", err)
	}
	if frame := readFrame(t, conn); frame["type"] != types.FramePong {
		t.Errorf("frame = %v, want pong", frame["type"])
	}
}

func TestHandleStreamPreservesFirstNonHandshakeFrame(t *testing.T) {
	handler := newTestHandler()
	conn := dialStream(t, handler, "?userId=u1&sessionId=s3&token=tok")

	// No session_start; the client leads with a ping.
	if err := conn.WriteJSON(types.Frame{Type: types.FramePing}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	sawPong := false
	for i := 0; i < 3 && !sawPong; i++ {
		frame := readFrame(t, conn)
		switch frame["type"] {
		case types.FramePong:
			sawPong = true
		case types.FrameConnectionEstablished:
		default:
			t.Fatalf("unexpected frame %v", frame["type"])
		}
	}
	if !sawPong {
		t.Error("leading frame was dropped")
	}
}
