package upstream

import (
	"encoding/json"
	"strings"
)

// Raw event names spoken by the realtime backend.
const (
	eventAudioDelta          = "response.audio.delta"
	eventTranscriptDelta     = "response.audio_transcript.delta"
	eventAudioDone           = "response.audio.done"
	eventTranscriptDone      = "response.audio_transcript.done"
	eventTextDone            = "response.text.done"
	eventInputTranscriptDone = "conversation.item.input_audio_transcription.completed"
	eventError               = "error"
)

// Kind is the normalized event discriminator. The set is closed; anything
// the decoder does not recognize becomes KindUnknown and is carried with
// its raw payload so callers can decide what to do with it.
type Kind int

const (
	KindUnknown Kind = iota
	KindAudioDelta
	KindTranscriptDelta
	KindAudioDone
	KindTranscriptDone
	KindTextDone
	KindInputTranscriptDelta
	KindInputTranscriptDone
	KindError
)

// Event is one normalized upstream event. ResponseID is extracted at decode
// time, checking the header-scoped id, then the top-level response id, then
// the top-level request id; it is empty when the backend sent none.
type Event struct {
	Kind       Kind
	Type       string
	ResponseID string
	Delta      string // base64 PCM for audio deltas, text for transcript deltas
	Transcript string // final user transcript
	Message    string // error description for KindError
	Raw        json.RawMessage
}

// IsDelta reports whether the event is a partial frame that must be
// forwarded to the client immediately.
func (e Event) IsDelta() bool {
	return e.Kind == KindAudioDelta || e.Kind == KindTranscriptDelta || e.Kind == KindInputTranscriptDelta
}

// IsTerminal reports whether the event finalizes the assistant turn.
func (e Event) IsTerminal() bool {
	return e.Kind == KindAudioDone || e.Kind == KindTranscriptDone || e.Kind == KindTextDone
}

type rawEvent struct {
	Type   string `json:"type"`
	Header struct {
		ResponseID string `json:"response_id"`
	} `json:"header"`
	ResponseID string `json:"response_id"`
	RequestID  string `json:"request_id"`
	Delta      string `json:"delta"`
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	Error      struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func decodeEvent(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, err
	}

	ev := Event{
		Type: raw.Type,
		Raw:  append(json.RawMessage(nil), data...),
	}

	// Response id priority: header-scoped, then response id, then request id.
	switch {
	case raw.Header.ResponseID != "":
		ev.ResponseID = raw.Header.ResponseID
	case raw.ResponseID != "":
		ev.ResponseID = raw.ResponseID
	default:
		ev.ResponseID = raw.RequestID
	}

	switch raw.Type {
	case eventAudioDelta:
		ev.Kind = KindAudioDelta
		ev.Delta = raw.Delta
	case eventTranscriptDelta:
		ev.Kind = KindTranscriptDelta
		ev.Delta = raw.Delta
	case eventAudioDone:
		ev.Kind = KindAudioDone
	case eventTranscriptDone:
		ev.Kind = KindTranscriptDone
	case eventTextDone:
		ev.Kind = KindTextDone
	case eventInputTranscriptDone:
		ev.Kind = KindInputTranscriptDone
		ev.Transcript = raw.Transcript
	case eventError:
		ev.Kind = KindError
		ev.Message = raw.Error.Message
		if ev.Message == "" {
			ev.Message = raw.Message
		}
	default:
		// Partial user transcripts arrive under backend-version-specific
		// names; match on shape rather than pinning every variant.
		if strings.Contains(raw.Type, "input") && strings.Contains(raw.Type, "transcript") {
			ev.Kind = KindInputTranscriptDelta
			ev.Delta = firstNonEmpty(raw.Delta, raw.Text, raw.Transcript)
		} else {
			ev.Kind = KindUnknown
		}
	}

	return ev, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
