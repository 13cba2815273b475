package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"omnigate/internal/bridge"
	"omnigate/internal/userctx"
	"omnigate/pkg/interfaces"
	"omnigate/pkg/types"
)

// Handler accepts /stream connections, performs the session handshake,
// and hands the socket to a bridge session for the rest of its life.
type Handler struct {
	registry *Registry
	resolver *userctx.Resolver
	history  interfaces.HistoryStore

	dial      bridge.Dialer
	bridgeCfg bridge.Config
	collab    bridge.Collaborators

	upgrader         websocket.Upgrader
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	sendBuffer       int
}

// HandlerOptions carries everything a Handler needs.
type HandlerOptions struct {
	Registry         *Registry
	Resolver         *userctx.Resolver
	History          interfaces.HistoryStore
	Dial             bridge.Dialer
	BridgeConfig     bridge.Config
	Collaborators    bridge.Collaborators
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SendBuffer       int
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &Handler{
		registry:  opts.Registry,
		resolver:  opts.Resolver,
		history:   opts.History,
		dial:      opts.Dial,
		bridgeCfg: opts.BridgeConfig,
		collab:    opts.Collaborators,
		upgrader: websocket.Upgrader{
			// Browsers connect from arbitrary dev origins; the gateway
			// sits behind an API gateway that enforces origin policy.
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		handshakeTimeout: opts.HandshakeTimeout,
		writeTimeout:     opts.WriteTimeout,
		sendBuffer:       opts.SendBuffer,
	}
}

// handshake is the merged view of query parameters and the optional
// session_start frame. Handshake values win over query values.
type handshake struct {
	userID    string
	sessionID string
	token     string
	scenario  string
	topic     string
}

// HandleStream upgrades the request and runs the full session lifecycle:
// handshake, context resolution, history restore, backend dial, then the
// read pump until the client leaves.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hs := handshake{
		userID:    q.Get("userId"),
		sessionID: q.Get("sessionId"),
		token:     q.Get("token"),
		scenario:  q.Get("scenario"),
		topic:     q.Get("topic"),
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	wsConn := NewConnection(conn, h.sendBuffer, h.writeTimeout)

	log.Printf("WS connect: user=%s session=%s scenario=%s", hs.userID, hs.sessionID, hs.scenario)

	// The first frame may be a session_start refining the handshake, or
	// immediate input that must not be lost.
	pending, err := h.awaitHandshake(conn, &hs)
	if err != nil {
		log.Printf("Handshake failed: %v", err)
		_ = wsConn.Close()
		return
	}

	if hs.sessionID == "" {
		hs.sessionID = uuid.New().String()
	}
	if !types.IsValidID(hs.sessionID) || (hs.userID != "" && !types.IsValidID(hs.userID)) {
		_ = wsConn.WriteJSON(map[string]interface{}{
			"type":    types.FrameError,
			"payload": types.ErrorPayload{Error: "Invalid identifier format", Type: types.ErrorTypeInvalidState},
		})
		_ = wsConn.Close()
		return
	}

	ctx := r.Context()

	uc := h.resolver.Resolve(ctx, hs.token)
	if hs.userID == "" {
		hs.userID = uc.UserID
	}
	uc.UserID = hs.userID
	if hs.topic != "" {
		uc.Topic = hs.topic
	}
	uc.ApplyScenario(hs.scenario)

	role := userctx.ComputeRole(uc)
	log.Printf("Session %s: assigned role %s", hs.sessionID, role)

	var restored []types.Message
	if h.history != nil {
		restored, err = h.history.SessionMessages(ctx, hs.sessionID)
		if err != nil {
			log.Printf("Session %s: history restore failed: %v", hs.sessionID, err)
			restored = nil
		}
	}
	log.Printf("Session %s: history loaded (%d messages)", hs.sessionID, len(restored))

	sess := bridge.NewSession(uc, role, wsConn, h.dial, h.bridgeCfg, h.collab,
		hs.sessionID, hs.scenario, restored)

	// The first backend dial is fatal: a session that cannot reach the
	// backend should fail loudly instead of accepting input into a void.
	if err := sess.Start(ctx); err != nil {
		log.Printf("Session %s: %v", hs.sessionID, err)
		_ = wsConn.WriteJSON(map[string]interface{}{
			"type":    types.FrameError,
			"payload": types.ErrorPayload{Error: "Backend connection failed", Type: types.ErrorTypeConnection},
		})
		_ = wsConn.Close()
		return
	}

	wsConn.SetIdentity(hs.userID, hs.sessionID)
	h.registry.Register(wsConn)

	// A frame that arrived alongside the handshake means the client is
	// already talking; let its response open the conversation instead of
	// a greeting.
	if pending != nil {
		sess.SkipWelcome()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	go sess.Run(runCtx)

	if pending != nil {
		sess.Deliver(*pending)
	}

	h.readPump(conn, wsConn, sess)

	sess.CloseInput()
	cancel()
	h.registry.Unregister(wsConn)
	_ = wsConn.Close()
	log.Printf("Session %s: client disconnected", hs.sessionID)
}

// awaitHandshake reads the first frame under a deadline. A session_start
// frame merges into the handshake and is consumed; anything else is
// returned for delivery once the session is running.
func (h *Handler) awaitHandshake(conn *websocket.Conn, hs *handshake) (*types.Frame, error) {
	if err := conn.SetReadDeadline(time.Now().Add(h.handshakeTimeout)); err != nil {
		return nil, err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	if messageType == websocket.BinaryMessage {
		// The client started streaming immediately.
		frame := audioFrame(data)
		return &frame, nil
	}

	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, ErrHandshakeFailed
	}

	if frame.Type != types.FrameSessionStart {
		return &frame, nil
	}

	var start types.SessionStartPayload
	if frame.Payload != nil {
		if err := json.Unmarshal(frame.Payload, &start); err != nil {
			return nil, ErrHandshakeFailed
		}
	}
	if start.UserID != "" {
		hs.userID = start.UserID
	}
	if start.SessionID != "" {
		hs.sessionID = start.SessionID
	}
	if start.Token != "" {
		hs.token = start.Token
	}
	if start.Scenario != "" {
		hs.scenario = start.Scenario
	}
	if start.Topic != "" {
		hs.topic = start.Topic
	}
	log.Printf("Handshake received: user=%s session=%s", hs.userID, hs.sessionID)
	return nil, nil
}

// readPump forwards client frames into the session until the socket dies.
// Invalid JSON is answered with an error frame without ending the session.
func (h *Handler) readPump(conn *websocket.Conn, wsConn *Connection, sess *bridge.Session) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			sess.Deliver(audioFrame(data))
			continue
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame types.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = wsConn.WriteJSON(map[string]interface{}{
				"type":    types.FrameError,
				"payload": types.ErrorPayload{Error: "Invalid message format", Type: types.ErrorTypeInvalidJSON},
			})
			continue
		}
		sess.Deliver(frame)
	}
}

// audioFrame wraps raw binary audio as an audio_stream frame.
func audioFrame(data []byte) types.Frame {
	payload, _ := json.Marshal(types.AudioStreamPayload{
		AudioBuffer: base64.StdEncoding.EncodeToString(data),
	})
	return types.Frame{Type: types.FrameAudioStream, Payload: payload}
}
