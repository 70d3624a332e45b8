package assistant

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxTranscriptChars is the transcript budget sent to the model
	// (2000 tokens at roughly three characters each).
	MaxTranscriptChars = 2000 * 3

	truncationMarker = "...[CONTENT TRUNCATED FOR EFFICIENCY]..."

	// minSentenceLen filters filler out of fallback notes.
	minSentenceLen = 20
)

var nowFunc = time.Now

// Notes is the output of the notes service.
type Notes struct {
	Text string
	// Generated is false when the notes came from the local fallback.
	Generated bool
}

// TrimTranscript keeps the first third and the tail of text when it exceeds
// max characters.
func TrimTranscript(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	head := max / 3
	tail := max - head
	return string(r[:head]) + truncationMarker + string(r[len(r)-tail:])
}

// FallbackNotes builds notes from the transcript itself: the first three and
// last two sentences long enough to carry content.
func FallbackNotes(transcript string, at time.Time) string {
	var sentences []string
	for _, s := range strings.Split(transcript, ".") {
		s = strings.TrimSpace(s)
		if len(s) > minSentenceLen {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) > 5 {
		sentences = append(sentences[:3:3], sentences[len(sentences)-2:]...)
	}

	var b strings.Builder
	b.WriteString("LECTURE NOTES\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", at.Format("2006-01-02 15:04"))
	b.WriteString("KEY POINTS:\n")
	if len(sentences) == 0 {
		b.WriteString("No content available for notes.\n")
	}
	for _, s := range sentences {
		fmt.Fprintf(&b, "- %s.\n", s)
	}
	return b.String()
}

// Export wraps notes in the downloadable artifact format and returns the
// artifact together with a suggested file name.
func Export(classID, notes string, at time.Time) (artifact, filename string) {
	var b strings.Builder
	b.WriteString("INSTRUCTIFY CLASS NOTES\n")
	b.WriteString("======================\n")
	fmt.Fprintf(&b, "Class ID: %s\n", classID)
	fmt.Fprintf(&b, "Generated: %s\n", at.Format("2006-01-02 15:04:05"))
	b.WriteString("======================\n\n")
	b.WriteString(notes)

	filename = fmt.Sprintf("class-notes-%s-%s.txt", classID, at.Format("2006-01-02_15-04-05"))
	return b.String(), filename
}
