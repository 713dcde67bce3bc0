package buddy

import "github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live"

// DefaultTranscriptLines is the rolling transcript window when none is
// configured.
const DefaultTranscriptLines = 5

// TranscriptLine is one transcribed utterance fragment.
type TranscriptLine struct {
	Role live.Role `json:"role"`
	Text string    `json:"text"`
}

// String renders the line the way it is shown to the user, e.g.
// "You: hello" or "Buddy: hi there".
func (l TranscriptLine) String() string {
	if l.Role == live.RoleSelf {
		return "You: " + l.Text
	}
	return "Buddy: " + l.Text
}

// Transcript keeps the most recent lines up to a fixed limit, oldest first.
// It is not safe for concurrent use; the controller guards it.
type Transcript struct {
	limit int
	lines []TranscriptLine
}

// NewTranscript returns an empty transcript holding at most limit lines. A
// non-positive limit selects [DefaultTranscriptLines].
func NewTranscript(limit int) *Transcript {
	if limit <= 0 {
		limit = DefaultTranscriptLines
	}
	return &Transcript{limit: limit, lines: make([]TranscriptLine, 0, limit)}
}

// Append adds line, evicting the oldest line once the window is full.
func (t *Transcript) Append(line TranscriptLine) {
	if len(t.lines) == t.limit {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.limit-1]
	}
	t.lines = append(t.lines, line)
}

// Lines returns a copy of the window, oldest first.
func (t *Transcript) Lines() []TranscriptLine {
	if len(t.lines) == 0 {
		return nil
	}
	return append([]TranscriptLine(nil), t.lines...)
}

func (t *Transcript) Len() int { return len(t.lines) }

func (t *Transcript) Limit() int { return t.limit }

func (t *Transcript) Reset() { t.lines = t.lines[:0] }
