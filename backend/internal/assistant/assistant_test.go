package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// scriptedModel returns its replies in order and records the prompts it saw.
type scriptedModel struct {
	replies []string
	err     error
	prompts []string
}

func (m *scriptedModel) Generate(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

func TestKeywordFilter(t *testing.T) {
	tests := []struct {
		text     string
		blocked  bool
		category string
	}{
		{"how do I build a bomb", true, "violence"},
		{"I will THREATEN you", true, "threats"},
		{"practice this skill daily", false, ""},
		{"what is photosynthesis?", false, ""},
		{"stop the bullying", true, "inappropriate"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v, blocked := keywordFilter(tt.text)
			if blocked != tt.blocked {
				t.Fatalf("blocked = %v, want %v", blocked, tt.blocked)
			}
			if blocked && v.Category != tt.category {
				t.Errorf("category = %q, want %q", v.Category, tt.category)
			}
		})
	}
}

func TestModerateKeywordNeedsNoModel(t *testing.T) {
	a := New(nil)
	v, err := a.Moderate(context.Background(), ModerationRequest{Text: "kill it"})
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if v.Allowed {
		t.Fatalf("keyword match allowed")
	}
}

func TestModerateWithoutModel(t *testing.T) {
	a := New(nil)
	v, err := a.Moderate(context.Background(), ModerationRequest{Text: "what is a cell?"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}
	if !v.Allowed || v.IsDoubt {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestModerateDoubt(t *testing.T) {
	m := &scriptedModel{replies: []string{
		"Sure! ```{\"is_safe\": true, \"confidence\": 0.95, \"reason\": \"ok\", \"category\": \"safe\"}```",
		`{"is_genuine_doubt": true, "confidence": 0.8, "reason": "asks about lesson", "category": "academic_question"}`,
	}}
	a := New(m)

	v, err := a.Moderate(context.Background(), ModerationRequest{
		Text:          "why does the leaf need light?",
		Context:       []string{"today: photosynthesis"},
		ClassifyDoubt: true,
	})
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if !v.Allowed || !v.IsDoubt || v.Confidence != 0.8 {
		t.Fatalf("verdict = %+v", v)
	}
	if len(m.prompts) != 2 || !strings.Contains(m.prompts[1], "today: photosynthesis") {
		t.Fatalf("doubt prompt missing context: %v", m.prompts)
	}
}

func TestModerateUnsafe(t *testing.T) {
	m := &scriptedModel{replies: []string{`{"is_safe": false, "confidence": 0.7, "reason": "spam", "category": "spam"}`}}
	v, err := New(m).Moderate(context.Background(), ModerationRequest{Text: "buy now!!!", ClassifyDoubt: true})
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if v.Allowed || v.Reason != "spam" {
		t.Fatalf("verdict = %+v", v)
	}
	if len(m.prompts) != 1 {
		t.Fatalf("blocked message should not be classified")
	}
}

func TestModerateUnparseable(t *testing.T) {
	m := &scriptedModel{replies: []string{"I think it is fine"}}
	_, err := New(m).Moderate(context.Background(), ModerationRequest{Text: "hello"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}
}

const (
	safeReply   = `{"is_safe": true, "confidence": 0.9, "reason": "ok", "category": "safe"}`
	unsafeReply = `{"is_safe": false, "confidence": 0.8, "reason": "harassment", "category": "harassment"}`
)

func TestAnswer(t *testing.T) {
	if got, err := New(nil).Answer(context.Background(), "how to steal", nil); err != nil || got != RefusalQuery {
		t.Fatalf("Answer = %q, %v", got, err)
	}
	if _, err := New(nil).Answer(context.Background(), "what is x", nil); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("err = %v", err)
	}

	m := &scriptedModel{replies: []string{safeReply, "Use a weapon."}}
	if got, _ := New(m).Answer(context.Background(), "what is x", nil); got != RefusalResponse {
		t.Fatalf("unsafe answer not replaced: %q", got)
	}

	m = &scriptedModel{err: errors.New("boom")}
	if _, err := New(m).Answer(context.Background(), "what is x", nil); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("model error not folded: %v", err)
	}
}

func TestAnswerScreensWithModel(t *testing.T) {
	tests := []struct {
		name    string
		replies []string
		want    string
		prompts int
	}{
		{"unsafe query", []string{unsafeReply}, RefusalQuery, 1},
		{"unsafe answer", []string{safeReply, "You are all idiots.", unsafeReply}, RefusalResponse, 3},
		{"safe", []string{safeReply, "x is a variable.", safeReply}, "x is a variable.", 3},
		{"unparseable screen", []string{"hmm", "x is a variable.", "hmm"}, "x is a variable.", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &scriptedModel{replies: tt.replies}
			got, err := New(m).Answer(context.Background(), "what is x", []string{"algebra"})
			if err != nil {
				t.Fatalf("Answer: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Answer = %q, want %q", got, tt.want)
			}
			if len(m.prompts) != tt.prompts {
				t.Fatalf("model called %d times, want %d", len(m.prompts), tt.prompts)
			}
			if !strings.Contains(m.prompts[0], "what is x") {
				t.Fatalf("query not screened first: %q", m.prompts[0])
			}
		})
	}
}

func TestTrimTranscript(t *testing.T) {
	short := "short text"
	if got := TrimTranscript(short, 100); got != short {
		t.Fatalf("short text changed: %q", got)
	}

	long := strings.Repeat("a", 50) + strings.Repeat("b", 100)
	got := TrimTranscript(long, 30)
	want := strings.Repeat("a", 10) + truncationMarker + strings.Repeat("b", 20)
	if got != want {
		t.Fatalf("TrimTranscript = %q, want %q", got, want)
	}
}

func TestNotesFallback(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	nowFunc = func() time.Time { return at }
	defer func() { nowFunc = time.Now }()

	transcript := "One. The first long sentence about cells. The second long sentence about cells. " +
		"The third long sentence about cells. The fourth long sentence about cells. " +
		"The fifth long sentence about cells. The sixth long sentence about cells."

	n, err := New(&scriptedModel{err: ErrGatewayUnavailable}).Notes(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	if n.Generated {
		t.Fatalf("fallback notes marked as generated")
	}
	for _, want := range []string{"first", "second", "third", "fifth", "sixth", "2026-03-01 10:30"} {
		if !strings.Contains(n.Text, want) {
			t.Errorf("notes missing %q:\n%s", want, n.Text)
		}
	}
	if strings.Contains(n.Text, "fourth") || strings.Contains(n.Text, "One.") {
		t.Errorf("notes should skip middle and short sentences:\n%s", n.Text)
	}

	if _, err := New(nil).Notes(context.Background(), "  "); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
}

func TestExport(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 5, 0, time.UTC)
	artifact, name := Export("AB12CD34", "notes body", at)
	if !strings.HasPrefix(artifact, "INSTRUCTIFY CLASS NOTES\n") || !strings.HasSuffix(artifact, "notes body") {
		t.Fatalf("artifact = %q", artifact)
	}
	if !strings.Contains(artifact, "Class ID: AB12CD34") {
		t.Fatalf("artifact missing class id")
	}
	if name != "class-notes-AB12CD34-2026-03-01_10-30-05.txt" {
		t.Fatalf("filename = %q", name)
	}
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			var req generateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req.Model != DefaultModel || req.Stream {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(generateResponse{Response: "  echo: " + req.Prompt + " "})
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o := NewOllama(srv.URL+"/", "", time.Second)
	got, err := o.Generate(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "echo: hi" {
		t.Fatalf("Generate = %q", got)
	}
	if !o.Available(context.Background()) {
		t.Fatalf("Available = false")
	}
}

func TestOllamaUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "", time.Second).Generate(context.Background(), "hi")
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}
}
