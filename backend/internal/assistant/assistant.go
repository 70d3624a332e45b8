// Package assistant is the classroom's moderation, question answering and
// note taking gateway. A local keyword filter always runs; everything else
// goes to a language model when one is configured.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Model is a text completion backend.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Verdict is the moderation result for one chat message.
type Verdict struct {
	Allowed    bool
	IsDoubt    bool
	Confidence float64
	Reason     string
	Category   string
}

// ModerationRequest is a chat message plus the recent teacher lines around it.
type ModerationRequest struct {
	Text    string
	Context []string
	// ClassifyDoubt asks whether the message is an academic question for the teacher.
	ClassifyDoubt bool
}

// Gateway is what the signal router consumes.
type Gateway interface {
	Moderate(ctx context.Context, req ModerationRequest) (Verdict, error)
	Answer(ctx context.Context, query string, history []string) (string, error)
	Notes(ctx context.Context, transcript string) (Notes, error)
}

const (
	RefusalQuery    = "I cannot respond to that message. Please keep our conversation educational and appropriate. If you have academic questions, I'm here to help with those."
	RefusalResponse = "I cannot provide that information. Please ask an educational question and I'll be happy to help."
	Apology         = "I'm experiencing technical difficulties. Please try asking your question again or reach out to your teacher directly."
)

// Assistant implements Gateway. A nil Model leaves only the keyword layer.
type Assistant struct {
	model Model
}

func New(model Model) *Assistant {
	return &Assistant{model: model}
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSON decodes the first {...} block of a model reply into v.
func extractJSON(text string, v any) error {
	m := jsonObject.FindString(text)
	if m == "" {
		return fmt.Errorf("no json object in reply")
	}
	return json.Unmarshal([]byte(m), v)
}

type safetyReply struct {
	IsSafe     *bool   `json:"is_safe"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Category   string  `json:"category"`
}

type doubtReply struct {
	IsGenuineDoubt bool    `json:"is_genuine_doubt"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
	Category       string  `json:"category"`
}

// screen runs the keyword layer and then the model's safety check. When the
// model is missing or unusable the keyword verdict is returned together with
// ErrGatewayUnavailable.
func (a *Assistant) screen(ctx context.Context, op, text string) (Verdict, error) {
	if v, blocked := keywordFilter(text); blocked {
		return v, nil
	}

	passed := Verdict{Allowed: true, Confidence: 0.8, Reason: "No harmful keywords detected", Category: "safe"}
	if a.model == nil {
		return passed, WrapError(op, ErrGatewayUnavailable, "no model configured")
	}

	out, err := a.model.Generate(ctx, safetyPrompt(text))
	if err != nil {
		return passed, unavailable(op, err)
	}
	var safety safetyReply
	if err := extractJSON(out, &safety); err != nil || safety.IsSafe == nil {
		return passed, WrapError(op, ErrGatewayUnavailable, "unparseable safety reply")
	}
	if !*safety.IsSafe {
		return Verdict{
			Allowed:    false,
			Confidence: safety.Confidence,
			Reason:     safety.Reason,
			Category:   safety.Category,
		}, nil
	}
	return Verdict{Allowed: true, Confidence: safety.Confidence, Reason: safety.Reason, Category: "safe"}, nil
}

// Moderate screens a chat message and, when asked, classifies it as a doubt
// for the teacher.
func (a *Assistant) Moderate(ctx context.Context, req ModerationRequest) (Verdict, error) {
	v, err := a.screen(ctx, "moderate", req.Text)
	if err != nil || !v.Allowed || !req.ClassifyDoubt {
		return v, err
	}

	out, err := a.model.Generate(ctx, doubtPrompt(req.Text, req.Context))
	if err != nil {
		slog.Debug("doubt classification failed", "err", err)
		return v, nil
	}
	var doubt doubtReply
	if err := extractJSON(out, &doubt); err != nil {
		slog.Debug("doubt classification unparseable", "err", err)
		return v, nil
	}
	if doubt.IsGenuineDoubt {
		v.IsDoubt = true
		v.Confidence = doubt.Confidence
		v.Reason = doubt.Reason
		v.Category = doubt.Category
	}
	return v, nil
}

// Answer replies to a private student question. The question and the answer
// both go through the safety screen; an unsafe one is replaced by a refusal
// rather than an error. A screen that cannot reach the model lets the text
// through.
func (a *Assistant) Answer(ctx context.Context, query string, history []string) (string, error) {
	v, err := a.screen(ctx, "answer", query)
	if !v.Allowed {
		slog.Info("blocked ai query", "reason", v.Reason, "category", v.Category)
		return RefusalQuery, nil
	}
	if a.model == nil {
		return "", err
	}
	if err != nil {
		slog.Debug("query screen unavailable", "err", err)
	}

	out, err := a.model.Generate(ctx, answerPrompt(query, history))
	if err != nil {
		return "", unavailable("answer", err)
	}

	v, err = a.screen(ctx, "answer", out)
	if !v.Allowed {
		slog.Warn("blocked ai response", "reason", v.Reason, "category", v.Category)
		return RefusalResponse, nil
	}
	if err != nil {
		slog.Debug("response screen unavailable", "err", err)
	}
	return out, nil
}

// Notes turns a transcript into study notes. A failing model falls back to
// an extract of the transcript's own sentences.
func (a *Assistant) Notes(ctx context.Context, transcript string) (Notes, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Notes{}, WrapError("notes", ErrEmptyTranscript, "")
	}
	if a.model != nil {
		out, err := a.model.Generate(ctx, notesPrompt(TrimTranscript(transcript, MaxTranscriptChars)))
		if err == nil {
			return Notes{Text: out, Generated: true}, nil
		}
		slog.Warn("notes generation failed, using fallback", "err", err)
	}
	return Notes{Text: FallbackNotes(transcript, nowFunc())}, nil
}

// unavailable folds any model failure into ErrGatewayUnavailable.
func unavailable(op string, err error) error {
	if errors.Is(err, ErrGatewayUnavailable) {
		return err
	}
	return WrapError(op, ErrGatewayUnavailable, err.Error())
}

func formatContext(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}
