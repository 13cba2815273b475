// Package detector implements heuristic completion and sentiment scanning
// over finalized assistant turns. It is best-effort signal extraction from
// text, not intent parsing: the affirmation sets are fixed and the task
// being completed is never identified here.
package detector

import (
	"regexp"
	"strings"
)

// PlaceholderTask is sent to the scoring collaborator when a completion is
// detected. The collaborator resolves which pending task it names.
const PlaceholderTask = "NEXT_PENDING_TASK"

// Score deltas. Completion overrides sentiment, so at most one delta is
// ever emitted per turn.
const (
	DeltaCompletion = 5
	DeltaPositive   = 1
	DeltaNegative   = -1
)

var completionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bperfect\b`),
	regexp.MustCompile(`\bexcellent\b`),
	regexp.MustCompile(`\bmission accomplished\b`),
	regexp.MustCompile(`\byou nailed it\b`),
	regexp.MustCompile(`\bcorrect!`),
}

var (
	positivePattern = regexp.MustCompile(`\b(good|nice|great|well done)\b`)
	negativePattern = regexp.MustCompile(`\b(try again|not quite|almost)\b`)
)

// Structured-action fragments the model occasionally emits despite
// instructions. They are stripped before scoring and before the text
// enters the conversation log.
var (
	jsonBlockPattern = regexp.MustCompile("(?is)```json.*?```")
	actionPattern    = regexp.MustCompile(`(?is)\{"action":.*?\}`)
)

// Result is the outcome of scanning one finalized assistant turn.
type Result struct {
	Completed bool
	Delta     int
}

// Clean strips vendor structured-action fragments from assistant text.
func Clean(text string) string {
	text = jsonBlockPattern.ReplaceAllString(text, "")
	text = actionPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Detect scans cleaned assistant text. Checks run in priority order:
// completion, then positive sentiment, then corrective sentiment. A
// completion match absorbs any sentiment match.
func Detect(text string) Result {
	lower := strings.ToLower(text)

	for _, p := range completionPatterns {
		if p.MatchString(lower) {
			return Result{Completed: true, Delta: DeltaCompletion}
		}
	}
	if positivePattern.MatchString(lower) {
		return Result{Delta: DeltaPositive}
	}
	if negativePattern.MatchString(lower) {
		return Result{Delta: DeltaNegative}
	}
	return Result{}
}

// StopKeywords deterministically end a session regardless of model state.
var StopKeywords = []string{"STOP", "QUIT", "BYE", "GOODBYE", "SUMMARIZE", "END SESSION"}

// IsStopCommand reports whether typed user text contains a session-ending
// keyword. Matching is case-insensitive on the whole input.
func IsStopCommand(text string) bool {
	upper := strings.ToUpper(text)
	for _, k := range StopKeywords {
		if strings.Contains(upper, k) {
			return true
		}
	}
	return false
}
