package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"omnigate/internal/audio"
	"omnigate/internal/detector"
	"omnigate/internal/upstream"
	"omnigate/internal/userctx"
	"omnigate/pkg/types"
)

// sideEffectTimeout bounds each fire-and-forget collaborator call.
const sideEffectTimeout = 10 * time.Second

// handleEvent processes one backend event. Events tagged with an ignored
// response id are dropped before any other handling, so an interrupted
// turn produces zero client output no matter how late its events arrive.
func (s *Session) handleEvent(ev upstream.Event) {
	if ev.ResponseID != "" {
		s.currentResponseID = ev.ResponseID
		if _, ignored := s.ignoredResponseIDs[ev.ResponseID]; ignored {
			return
		}
	}

	switch ev.Kind {
	case upstream.KindAudioDelta:
		if s.interrupted {
			return
		}
		if chunk, err := base64.StdEncoding.DecodeString(ev.Delta); err == nil {
			s.assistantAudio.Append(chunk)
		}
		s.send(outFrame{
			Type:       types.FrameAudioResponse,
			Payload:    ev.Delta,
			Role:       s.announcedRole,
			ResponseID: s.currentResponseID,
		})

	case upstream.KindTranscriptDelta:
		if s.interrupted {
			return
		}
		s.responseText += ev.Delta
		if !s.roleAnnounced {
			s.roleAnnounced = true
			s.send(outFrame{
				Type:    types.FrameRoleSwitch,
				Payload: map[string]interface{}{"role": s.announcedRole},
			})
		}
		s.send(outFrame{
			Type:       types.FrameTextResponse,
			Payload:    ev.Delta,
			ResponseID: s.currentResponseID,
		})

	case upstream.KindAudioDone:
		if data := s.assistantAudio.Swap(); data != nil {
			s.uploadAssistantAudio(data, s.currentResponseID)
		}

	case upstream.KindTranscriptDone, upstream.KindTextDone:
		s.finishAssistantTurn()

	case upstream.KindInputTranscriptDelta:
		s.send(transcriptionFrame{Type: types.FrameTranscription, Text: ev.Delta, IsFinal: false})

	case upstream.KindInputTranscriptDone:
		s.finishUserTranscript(ev.Transcript)

	case upstream.KindError:
		log.Printf("Session %s: backend error: %s", s.ID, ev.Message)
		s.sendError(ev.Message, types.ErrorTypeUpstream)

	default:
		log.Printf("Session %s: unhandled backend event %q: %s", s.ID, ev.Type, ev.Raw)
	}
}

// finishAssistantTurn finalizes the accumulated assistant text: it is
// cleaned, logged, persisted, and scanned for completion and sentiment
// signals. An interrupted turn is discarded wholesale.
func (s *Session) finishAssistantTurn() {
	s.roleAnnounced = false

	if s.interrupted {
		s.responseText = ""
		s.assistantAudio.Swap()
		return
	}

	clean := detector.Clean(s.responseText)
	s.responseText = ""
	log.Printf("Session %s: assistant turn finished (%d chars)", s.ID, len(clean))

	if clean != "" {
		msg := types.Message{
			Role:      types.MessageRoleAssistant,
			Content:   clean,
			Timestamp: time.Now().UTC(),
		}
		if url, ok := s.aiAudioURL.Take(); ok {
			msg.AudioURL = url
		}
		s.appendMessage(msg)
	}

	result := detector.Detect(clean)
	if result.Completed {
		s.creditTaskCompletion()
	}
	if result.Delta != 0 {
		s.reportProficiencyDelta(result.Delta)
	}
}

// appendMessage validates a finished message and commits it to the log.
// A message that fails validation is dropped so a blank or mis-tagged
// turn never reaches the stored transcript.
func (s *Session) appendMessage(msg types.Message) {
	if err := msg.Validate(); err != nil {
		log.Printf("Session %s: dropping invalid %s message: %v", s.ID, msg.Role, err)
		return
	}
	s.messages = append(s.messages, msg)
	s.persistLog()
}

// finishUserTranscript resolves the user's final speech transcript into
// the log, replacing the placeholder left by the audio upload when one
// exists.
func (s *Session) finishUserTranscript(text string) {
	if text == "" {
		return
	}
	log.Printf("Session %s: user transcription final (%d chars)", s.ID, len(text))

	if n := len(s.messages); n > 0 &&
		s.messages[n-1].Role == types.MessageRoleUser &&
		s.messages[n-1].Content == types.PlaceholderContent {
		s.messages[n-1].Content = text
		s.persistLog()
	} else {
		msg := types.Message{
			Role:      types.MessageRoleUser,
			Content:   text,
			Timestamp: time.Now().UTC(),
		}
		if url, ok := s.userAudioURL.Take(); ok {
			msg.AudioURL = url
		}
		s.appendMessage(msg)
	}

	s.send(transcriptionFrame{Type: types.FrameTranscription, Text: text, IsFinal: true})
}

// uploadUserAudio ships the captured user PCM to the media collaborator.
// The completion re-enters the session loop via the tasks channel to
// attach the URL to the log.
func (s *Session) uploadUserAudio(data []byte) {
	if s.collab.Media == nil {
		return
	}
	filename := fmt.Sprintf("%s_%d.pcm", s.ID, time.Now().Unix())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		url, err := s.collab.Media.Upload(ctx, audio.DirectionUser, filename, data)
		if err != nil || url == "" {
			if err != nil {
				log.Printf("Session %s: user audio upload failed: %v", s.ID, err)
			}
			return
		}
		log.Printf("Session %s: user audio uploaded: %s", s.ID, url)

		s.enqueue(func() {
			s.send(outFrame{
				Type:    types.FrameAudioURL,
				Payload: map[string]interface{}{"url": url, "role": types.MessageRoleUser},
			})

			// Attach to the trailing placeholder when one exists;
			// otherwise open a new placeholder message for the transcript
			// still in flight.
			if n := len(s.messages); n > 0 &&
				s.messages[n-1].Role == types.MessageRoleUser &&
				s.messages[n-1].Content == types.PlaceholderContent {
				s.messages[n-1].AudioURL = url
			} else {
				s.userAudioURL.Put(url)
				s.messages = append(s.messages, types.Message{
					Role:      types.MessageRoleUser,
					Content:   types.PlaceholderContent,
					AudioURL:  url,
					Timestamp: time.Now().UTC(),
				})
			}
			s.persistLog()
		})
	}()
}

// uploadAssistantAudio ships one finished assistant audio turn. If the
// matching assistant message is already in the log, the URL attaches in
// place; otherwise it waits in the slot for the turn finalizer.
func (s *Session) uploadAssistantAudio(data []byte, responseID string) {
	if s.collab.Media == nil {
		return
	}
	filename := fmt.Sprintf("%s_%d.pcm", s.ID, time.Now().Unix())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		url, err := s.collab.Media.Upload(ctx, audio.DirectionAssistant, filename, data)
		if err != nil || url == "" {
			if err != nil {
				log.Printf("Session %s: assistant audio upload failed: %v", s.ID, err)
			}
			return
		}
		log.Printf("Session %s: assistant audio uploaded: %s", s.ID, url)

		s.enqueue(func() {
			s.send(outFrame{
				Type:       types.FrameAudioURL,
				Payload:    map[string]interface{}{"url": url, "role": types.MessageRoleAssistant},
				ResponseID: responseID,
			})

			if n := len(s.messages); n > 0 && s.messages[n-1].Role == types.MessageRoleAssistant {
				s.messages[n-1].AudioURL = url
				s.persistLog()
			} else {
				s.aiAudioURL.Put(url)
			}
		})
	}()
}

// persistLog snapshots the conversation and replaces the stored transcript
// in the background. On failure the payload is journaled locally for the
// flusher to retry.
func (s *Session) persistLog() {
	if s.collab.History == nil {
		return
	}

	snapshot := make([]types.Message, len(s.messages))
	copy(snapshot, s.messages)

	conversation := types.ConversationLog{
		SessionID: s.ID,
		UserID:    s.UserID,
		Messages:  snapshot,
		Topic:     s.topic(),
		EndTime:   time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		err := s.collab.History.SaveConversation(ctx, conversation)
		if err == nil {
			return
		}
		log.Printf("Session %s: history save failed: %v", s.ID, err)

		if s.collab.Archive == nil {
			return
		}
		payload, merr := json.Marshal(conversation)
		if merr != nil {
			return
		}
		if jerr := s.collab.Archive.Journal(ctx, s.ID, payload); jerr != nil {
			log.Printf("Session %s: archive journal failed: %v", s.ID, jerr)
		}
	}()
}

// creditTaskCompletion reports a detected task completion to the scoring
// collaborator and notifies the client.
func (s *Session) creditTaskCompletion() {
	log.Printf("Session %s: task completion detected", s.ID)

	s.send(outFrame{
		Type:    types.FrameTaskCompleted,
		Payload: map[string]interface{}{"task": "Task Completed"},
	})

	if s.collab.Scorer == nil || s.UserID == "" {
		return
	}
	scenario := userctx.ScenarioTitle(s.topic())
	if scenario == "" {
		scenario = "Unknown"
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := s.collab.Scorer.CompleteTask(ctx, s.UserID, scenario, detector.PlaceholderTask); err != nil {
			log.Printf("Session %s: task completion report failed: %v", s.ID, err)
		}
	}()
}

// reportProficiencyDelta posts a silent score update tied to the active
// goal.
func (s *Session) reportProficiencyDelta(delta int) {
	if s.collab.History == nil {
		return
	}

	update := types.SummaryUpdate{
		SessionID:             s.ID,
		UserID:                s.UserID,
		Summary:               "Auto-update via keyword spotting",
		Feedback:              "Keyword detected",
		ProficiencyScoreDelta: delta,
	}
	if s.userCtx.Goal != nil {
		update.GoalID = s.userCtx.Goal.ID
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := s.collab.History.SaveSummary(ctx, update); err != nil {
			log.Printf("Session %s: proficiency update failed: %v", s.ID, err)
		}
	}()
}
