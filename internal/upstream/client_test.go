package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestClient spins up a backend stand-in, dials it, and hands the
// server side of the socket to the caller for scripting.
func dialTestClient(t *testing.T) (*Client, <-chan *websocket.Conn) {
	t.Helper()

	serverConns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, err := Dial(context.Background(), Config{URL: wsURL})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, serverConns
}

func TestClientDeliversEvents(t *testing.T) {
	client, serverConns := dialTestClient(t)
	server := <-serverConns

	msg := `{"type":"response.audio_transcript.delta","response_id":"r1","delta":"hi"}`
	if err := server.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}

	select {
	case ev := <-client.Events():
		if ev.Kind != KindTranscriptDelta || ev.Delta != "hi" || ev.ResponseID != "r1" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestClientCloseIsClean(t *testing.T) {
	client, serverConns := dialTestClient(t)
	<-serverConns

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}

	if _, open := <-client.Events(); open {
		t.Error("events channel still open after Close")
	}
	if err := client.Err(); err != nil {
		t.Errorf("Err() after Close = %v, want nil", err)
	}
	if err := client.CreateResponse(""); err != ErrClientClosed {
		t.Errorf("CreateResponse() after Close = %v, want ErrClientClosed", err)
	}
	if client.Connected() {
		t.Error("Connected() still true after Close")
	}
}

func TestClientRecordsTerminalError(t *testing.T) {
	client, serverConns := dialTestClient(t)
	server := <-serverConns

	// Drop the socket abruptly, no close handshake.
	if err := server.UnderlyingConn().Close(); err != nil {
		t.Fatalf("server drop failed: %v", err)
	}

	select {
	case _, open := <-client.Events():
		if open {
			t.Fatal("expected closed events channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed")
	}

	if client.Err() == nil {
		t.Error("Err() = nil, want the terminal read error")
	}
	if err := client.AppendAudio("UEND"); err != ErrNotConnected {
		t.Errorf("AppendAudio() after drop = %v, want ErrNotConnected", err)
	}
}
