// Package bridge owns the per-session conversation loop: it consumes
// client frames and backend events on a single goroutine, maintains the
// ordered conversation log, and drives reconnection, interruption, and
// heartbeat policy.
package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"omnigate/internal/audio"
	"omnigate/internal/prompt"
	"omnigate/internal/upstream"
	"omnigate/internal/userctx"
	"omnigate/pkg/interfaces"
	"omnigate/pkg/types"
)

// Dialer opens a fresh backend connection. The bridge calls it once at
// session start and again whenever actionable input arrives while the
// backend is down.
type Dialer func(ctx context.Context) (interfaces.Upstream, error)

// Config carries the timing knobs the session loop needs.
type Config struct {
	HeartbeatInterval time.Duration
	// SettleDelay is the pause between opening a backend connection and
	// sending the input that triggered it.
	SettleDelay time.Duration
	// CancelDelay is the pause after cancelling an in-flight response
	// before issuing the next one.
	CancelDelay time.Duration
	Voice       string
}

// Collaborators groups the external services a session talks to. Any of
// them may be nil; the corresponding side effect is then skipped.
type Collaborators struct {
	History interfaces.HistoryStore
	Media   interfaces.MediaUploader
	Scorer  interfaces.TaskScorer
	Archive interfaces.Archiver
}

// silenceB64 is 10ms of 16kHz mono 16-bit PCM silence, sent upstream on
// every heartbeat tick to keep the backend connection warm.
var silenceB64 = base64.StdEncoding.EncodeToString(make([]byte, 320))

// Session is one client conversation. All mutable state below the config
// fields is owned by the Run goroutine; other goroutines reach it only
// through the tasks channel.
type Session struct {
	ID       string
	UserID   string
	Role     types.Role
	scenario string

	userCtx userctx.Context
	conn    interfaces.ClientConn
	dial    Dialer
	cfg     Config
	collab  Collaborators

	up interfaces.Upstream // nil while disconnected

	interrupted        bool
	skipWelcome        bool
	currentResponseID  string
	ignoredResponseIDs map[string]struct{}
	messages           []types.Message
	responseText       string
	roleAnnounced      bool
	announcedRole      types.Role

	userAudio      audio.Buffer
	assistantAudio audio.Buffer
	userAudioURL   audio.URLSlot
	aiAudioURL     audio.URLSlot

	frames chan types.Frame
	tasks  chan func()
	done   chan struct{}
	hbDone chan struct{}

	closeOnce sync.Once
}

// NewSession builds a session around an accepted client connection. The
// conversation log starts from the restored history; an empty history
// marks the session as new and triggers the welcome turn in Run.
func NewSession(userCtx userctx.Context, role types.Role, conn interfaces.ClientConn,
	dial Dialer, cfg Config, collab Collaborators, sessionID, scenario string,
	history []types.Message) *Session {

	return &Session{
		ID:                 sessionID,
		UserID:             userCtx.UserID,
		Role:               role,
		scenario:           scenario,
		userCtx:            userCtx,
		conn:               conn,
		dial:               dial,
		cfg:                cfg,
		collab:             collab,
		ignoredResponseIDs: make(map[string]struct{}),
		messages:           history,
		announcedRole:      role,
		frames:             make(chan types.Frame, 64),
		tasks:              make(chan func(), 16),
		done:               make(chan struct{}),
		hbDone:             make(chan struct{}),
	}
}

// Start opens the first backend connection. A failure here is fatal for
// the session: the caller should reject the client instead of accepting a
// conversation that cannot produce a response.
func (s *Session) Start(ctx context.Context) error {
	if err := s.connectUpstream(ctx); err != nil {
		return fmt.Errorf("initial backend connection failed: %w", err)
	}

	s.send(outFrame{
		Type: types.FrameConnectionEstablished,
		Payload: map[string]interface{}{
			"connectionId": s.ID,
			"message":      fmt.Sprintf("Connected to realtime backend (Role: %s)", s.Role),
			"role":         s.Role,
		},
	})
	return nil
}

// Deliver hands one decoded client frame to the session loop. It blocks
// when the loop is busy, preserving client frame order.
func (s *Session) Deliver(frame types.Frame) {
	select {
	case s.frames <- frame:
	case <-s.done:
	}
}

// CloseInput signals that no more client frames will arrive. Run drains
// what is queued and tears the session down.
func (s *Session) CloseInput() {
	s.closeOnce.Do(func() { close(s.frames) })
}

// SkipWelcome suppresses the new-session greeting turn. The handler calls
// it before Run when the client's first frame was already input; the
// input-driven response then opens the conversation.
func (s *Session) SkipWelcome() {
	s.skipWelcome = true
}

// Run is the session loop. It returns when the client input closes, the
// context is cancelled, or a fatal error occurs; teardown always runs.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown()

	go s.heartbeat()

	if len(s.messages) == 0 && !s.skipWelcome {
		s.welcome(ctx)
	}

	for {
		select {
		case frame, ok := <-s.frames:
			if !ok {
				return
			}
			s.handleFrame(ctx, frame)

		case ev, ok := <-s.upstreamEvents():
			if !ok {
				s.dropUpstream()
				continue
			}
			s.handleEvent(ev)

		case fn := <-s.tasks:
			fn()

		case <-ctx.Done():
			return
		}
	}
}

// upstreamEvents returns the live event channel, or nil (which never
// fires in a select) while the backend is disconnected.
func (s *Session) upstreamEvents() <-chan upstream.Event {
	if s.up == nil {
		return nil
	}
	return s.up.Events()
}

// connectUpstream dials a fresh backend connection and pushes the system
// prompt, including restored history, before any input flows.
func (s *Session) connectUpstream(ctx context.Context) error {
	if s.up != nil {
		_ = s.up.Close()
		s.up = nil
	}

	up, err := s.dial(ctx)
	if err != nil {
		return err
	}

	system := prompt.WithHistory(prompt.System(s.userCtx, s.announcedRole), s.messages)
	if err := up.UpdateSession(upstream.SessionOptions{
		Instructions: system,
		Voice:        s.cfg.Voice,
	}); err != nil {
		_ = up.Close()
		return fmt.Errorf("failed to configure backend session: %w", err)
	}

	s.up = up
	s.roleAnnounced = false
	log.Printf("Session %s: backend connected (role=%s, history=%d msgs)", s.ID, s.announcedRole, len(s.messages))
	return nil
}

// ensureUpstream reconnects if the backend connection is gone, pausing
// for the settle delay so the new connection is ready for input.
func (s *Session) ensureUpstream(ctx context.Context) error {
	if s.up != nil && s.up.Connected() {
		return nil
	}
	log.Printf("Session %s: reconnecting backend on user input", s.ID)
	if err := s.connectUpstream(ctx); err != nil {
		return err
	}
	if s.cfg.SettleDelay > 0 {
		time.Sleep(s.cfg.SettleDelay)
	}
	return nil
}

// dropUpstream observes a dead backend connection. The session stays up;
// the next actionable frame triggers a reconnect.
func (s *Session) dropUpstream() {
	if s.up == nil {
		return
	}
	reason := s.up.Err()
	_ = s.up.Close()
	s.up = nil
	if reason != nil {
		log.Printf("Session %s: backend connection lost: %v", s.ID, reason)
	} else {
		log.Printf("Session %s: backend connection closed", s.ID)
	}
	s.send(outFrame{
		Type:    types.FrameInfo,
		Payload: "Backend connection closed (will reconnect on input)",
	})
}

// welcome runs the new-session greeting turn. The empty log is persisted
// first so the session is discoverable even if the user leaves before the
// greeting lands.
func (s *Session) welcome(ctx context.Context) {
	topic := s.topic()
	log.Printf("Session %s: new session, triggering welcome (role=%s, topic=%s)", s.ID, s.Role, topic)

	s.persistLog()

	if s.cfg.SettleDelay > 0 {
		time.Sleep(s.cfg.SettleDelay)
	}
	if s.up == nil {
		return
	}
	if err := s.up.CreateResponse(prompt.Welcome(s.Role, s.userCtx, topic)); err != nil {
		log.Printf("Session %s: welcome trigger failed: %v", s.ID, err)
	}
}

// topic is the persisted practice focus for this session.
func (s *Session) topic() string {
	if s.userCtx.Topic != "" {
		return s.userCtx.Topic
	}
	if s.scenario != "" {
		return s.scenario
	}
	return "General Practice"
}

// heartbeat keeps both hops alive: a ping frame to the client and a
// silence frame upstream on every tick. The upstream write is routed
// through the tasks channel so only the Run goroutine touches s.up.
func (s *Session) heartbeat() {
	defer close(s.hbDone)

	if s.cfg.HeartbeatInterval <= 0 {
		<-s.done
		return
	}

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteJSON(outFrame{
				Type:    types.FramePing,
				Payload: map[string]interface{}{"timestamp": time.Now().Unix()},
			}); err != nil {
				return
			}
			s.enqueue(func() {
				if s.up != nil && s.up.Connected() {
					if err := s.up.AppendAudio(silenceB64); err != nil {
						log.Printf("Session %s: heartbeat silence failed: %v", s.ID, err)
					}
				}
			})

		case <-s.done:
			return
		}
	}
}

// enqueue schedules fn on the Run goroutine. Dropped silently once the
// session is done.
func (s *Session) enqueue(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.done:
	}
}

// teardown stops the heartbeat, closes the backend connection, and tells
// the client the session ended.
func (s *Session) teardown() {
	close(s.done)
	<-s.hbDone

	if s.up != nil {
		_ = s.up.Close()
		s.up = nil
	}

	s.send(outFrame{
		Type:    types.FrameConnectionClosed,
		Payload: map[string]interface{}{"reason": "client_disconnected"},
	})
	log.Printf("Session %s: cleaned up", s.ID)
}
