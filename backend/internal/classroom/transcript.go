package classroom

import (
	"strings"
	"time"
)

// TranscriptChunk is one piece of the teacher's speech-to-text feed.
type TranscriptChunk struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// AppendTranscript stores a chunk. Blank text and released classrooms are
// rejected with ErrEmptyChunk and ErrClosed.
func (c *Classroom) AppendTranscript(text string, at time.Time) (TranscriptChunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TranscriptChunk{}, NewError("append transcript", ErrEmptyChunk)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return TranscriptChunk{}, WrapError("append transcript", ErrClosed, c.ID)
	}
	if at.IsZero() {
		at = c.now()
	}
	chunk := TranscriptChunk{Text: text, Timestamp: at}
	c.transcript = append(c.transcript, chunk)
	return chunk, nil
}

// Transcript returns a copy of all chunks in arrival order.
func (c *Classroom) Transcript() []TranscriptChunk {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]TranscriptChunk(nil), c.transcript...)
}

// TranscriptText joins all chunks with single spaces.
func (c *Classroom) TranscriptText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	parts := make([]string, len(c.transcript))
	for i, ch := range c.transcript {
		parts[i] = ch.Text
	}
	return strings.Join(parts, " ")
}
