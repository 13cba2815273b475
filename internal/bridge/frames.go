package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"time"

	"omnigate/internal/detector"
	"omnigate/internal/prompt"
	"omnigate/internal/upstream"
	"omnigate/pkg/types"
)

// outFrame is the generic server-to-client envelope. Frames that carry a
// response id or role set those fields; everything else leaves them empty
// so they stay off the wire.
type outFrame struct {
	Type       string      `json:"type"`
	Payload    interface{} `json:"payload,omitempty"`
	Role       types.Role  `json:"role,omitempty"`
	ResponseID string      `json:"responseId,omitempty"`
}

// transcriptionFrame relays user speech recognition results. IsFinal is
// always serialized; a partial result with the field omitted would be
// indistinguishable from a final one.
type transcriptionFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// send writes one frame to the client. Write failures are logged, not
// propagated; the read side notices the dead connection and ends the loop.
func (s *Session) send(v interface{}) {
	if err := s.conn.WriteJSON(v); err != nil {
		log.Printf("Session %s: client write failed: %v", s.ID, err)
	}
}

func (s *Session) sendError(message, errType string) {
	s.send(outFrame{
		Type:    types.FrameError,
		Payload: types.ErrorPayload{Error: message, Type: errType},
	})
}

// handleFrame dispatches one client frame. Actionable frames clear the
// interruption flag and may trigger a backend reconnect first.
func (s *Session) handleFrame(ctx context.Context, frame types.Frame) {
	if types.IsActionable(frame.Type) {
		s.interrupted = false
		if err := s.ensureUpstream(ctx); err != nil {
			log.Printf("Session %s: backend reconnect failed: %v", s.ID, err)
			s.sendError("Conversation not established", types.ErrorTypeInvalidState)
			return
		}
	}

	switch frame.Type {
	case types.FrameAudioStream:
		s.handleAudioStream(frame.Payload)

	case types.FrameTextMessage, types.FrameInputText:
		s.handleTextMessage(frame.Payload)

	case types.FrameUserAudioEnded:
		s.handleUserAudioEnded()

	case types.FrameInterruption:
		s.handleInterruption()

	case types.FrameSwitchMode:
		s.handleSwitchMode(frame.Payload)

	case types.FramePing:
		s.send(outFrame{Type: types.FramePong})

	case types.FrameSessionStart:
		// The handshake is consumed before the loop starts; a second one
		// is a client state error.
		s.sendError("Session already started", types.ErrorTypeInvalidState)

	default:
		log.Printf("Session %s: ignoring unknown frame type %q", s.ID, frame.Type)
	}
}

func (s *Session) handleAudioStream(raw json.RawMessage) {
	var payload types.AudioStreamPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.AudioBuffer == "" {
		log.Printf("Session %s: audio_stream frame without audioBuffer", s.ID)
		return
	}

	if err := s.up.AppendAudio(payload.AudioBuffer); err != nil {
		log.Printf("Session %s: failed to forward audio: %v", s.ID, err)
		s.sendError("Message processing failed", types.ErrorTypeProcessing)
		return
	}

	// Keep a copy for the post-turn upload.
	if chunk, err := base64.StdEncoding.DecodeString(payload.AudioBuffer); err == nil {
		s.userAudio.Append(chunk)
	}
}

func (s *Session) handleTextMessage(raw json.RawMessage) {
	var payload types.TextMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Text == "" {
		return
	}
	text := payload.Text
	log.Printf("Session %s: user text message (%d chars)", s.ID, len(text))

	// Abandon any in-flight response before starting the next turn.
	if err := s.up.CancelResponse(); err == nil && s.cfg.CancelDelay > 0 {
		time.Sleep(s.cfg.CancelDelay)
	}

	if detector.IsStopCommand(text) {
		log.Printf("Session %s: stop command detected, forcing summary", s.ID)
		if err := s.up.UpdateSession(upstream.SessionOptions{
			Instructions: prompt.StopInstruction,
			Voice:        s.cfg.Voice,
		}); err != nil {
			log.Printf("Session %s: failed to push stop instructions: %v", s.ID, err)
		}
		if err := s.up.CreateResponse(prompt.StopInstruction); err != nil {
			log.Printf("Session %s: failed to trigger stop turn: %v", s.ID, err)
		}
		return
	}

	if err := s.up.CreateResponse(prompt.TurnInput(text)); err != nil {
		log.Printf("Session %s: failed to trigger response: %v", s.ID, err)
		s.sendError("Message processing failed", types.ErrorTypeProcessing)
	}
}

// handleUserAudioEnded closes the user's audio turn: the captured PCM is
// uploaded in the background and the backend is asked to respond.
func (s *Session) handleUserAudioEnded() {
	log.Printf("Session %s: user audio ended", s.ID)

	if data := s.userAudio.Swap(); data != nil {
		s.uploadUserAudio(data)
	}

	if err := s.up.CreateResponse(""); err != nil {
		log.Printf("Session %s: failed to trigger response: %v", s.ID, err)
		s.sendError("Message processing failed", types.ErrorTypeProcessing)
	}
}

// handleInterruption marks the current turn dead. Every queued and future
// event carrying the turn's response id is discarded.
func (s *Session) handleInterruption() {
	s.interrupted = true
	if s.currentResponseID != "" {
		s.ignoredResponseIDs[s.currentResponseID] = struct{}{}
		log.Printf("Session %s: ignoring response %s after interruption", s.ID, s.currentResponseID)
	}
	if s.up != nil && s.up.Connected() {
		if err := s.up.CancelResponse(); err != nil {
			log.Printf("Session %s: failed to cancel response: %v", s.ID, err)
		}
	}
}

// handleSwitchMode changes the announced persona and re-instructs the
// backend. The session's assigned role is fixed; only the conversational
// register changes.
func (s *Session) handleSwitchMode(raw json.RawMessage) {
	var payload types.SwitchModePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.sendError("Invalid message format", types.ErrorTypeInvalidJSON)
		return
	}

	role := types.Role(payload.Mode)
	if !types.IsValidRole(role) {
		s.sendError("Unknown mode: "+payload.Mode, types.ErrorTypeInvalidState)
		return
	}

	s.announcedRole = role
	if s.up != nil && s.up.Connected() {
		system := prompt.WithHistory(prompt.System(s.userCtx, role), s.messages)
		if err := s.up.UpdateSession(upstream.SessionOptions{
			Instructions: system,
			Voice:        s.cfg.Voice,
		}); err != nil {
			log.Printf("Session %s: failed to push mode instructions: %v", s.ID, err)
		}
	}

	s.roleAnnounced = true
	s.send(outFrame{
		Type:    types.FrameRoleSwitch,
		Payload: map[string]interface{}{"role": role},
	})
	log.Printf("Session %s: switched mode to %s", s.ID, role)
}
