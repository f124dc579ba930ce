package extractor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/meridian-research/prism/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeModel returns an httptest server that answers every chat-completions
// call with the given content string.
func fakeModel(t *testing.T, content string) (*httptest.Server, *llm.Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	client := llm.NewClient(llm.Config{APIKey: "test-key", Model: "test-model"})
	client.SetTestTransport(srv.URL)
	return srv, client
}

func TestExtract_Themes(t *testing.T) {
	content := `{"themes": [{"theme_name": "Pricing concerns", "description": "Participants worry about cost", "key_points": ["too expensive"], "related_quotes": ["it costs too much"]}]}`
	srv, client := fakeModel(t, content)
	defer srv.Close()

	ext := New(client, testLogger())
	rec := ext.Extract(context.Background(), "s1_chunk_000", "segment text", KindThemes)

	if rec.IsFallback {
		t.Fatalf("unexpected fallback: %s", rec.ErrorDetail)
	}
	if rec.Kind != KindThemes || rec.SegmentID != "s1_chunk_000" {
		t.Errorf("record identity wrong: %+v", rec)
	}
	if len(rec.Themes) != 1 || rec.Themes[0].Name != "Pricing concerns" {
		t.Errorf("unexpected themes: %+v", rec.Themes)
	}
}

func TestExtract_FencedResponseIsRepaired(t *testing.T) {
	content := "```json\n{\"quotes\": [{\"quote_text\": \"I love it\", \"speaker\": \"P1\", \"sentiment\": \"positive\",}],}\n```"
	srv, client := fakeModel(t, content)
	defer srv.Close()

	ext := New(client, testLogger())
	rec := ext.Extract(context.Background(), "s1_chunk_000", "segment text", KindQuotes)

	if rec.IsFallback {
		t.Fatalf("unexpected fallback: %s", rec.ErrorDetail)
	}
	if len(rec.Quotes) != 1 || rec.Quotes[0].Speaker != "P1" {
		t.Errorf("unexpected quotes: %+v", rec.Quotes)
	}
}

func TestExtract_MalformedResponseFallsBack(t *testing.T) {
	srv, client := fakeModel(t, "I could not produce JSON for this segment, sorry.")
	defer srv.Close()

	ext := New(client, testLogger())
	rec := ext.Extract(context.Background(), "s1_chunk_001", "segment text", KindInsights)

	if !rec.IsFallback {
		t.Fatal("expected fallback record")
	}
	if rec.Insights == nil || len(rec.Insights) != 0 {
		t.Errorf("fallback must carry an empty non-nil slice, got %#v", rec.Insights)
	}
	if rec.ErrorDetail == "" {
		t.Error("fallback must carry error detail")
	}
}

func TestExtract_MissingKeyFallsBack(t *testing.T) {
	// Valid JSON, wrong envelope: themes requested, quotes returned.
	srv, client := fakeModel(t, `{"quotes": []}`)
	defer srv.Close()

	ext := New(client, testLogger())
	rec := ext.Extract(context.Background(), "s1_chunk_002", "segment text", KindThemes)

	if !rec.IsFallback {
		t.Fatal("expected fallback when expected key is missing")
	}
	if !strings.Contains(rec.ErrorDetail, "themes") {
		t.Errorf("error detail should name the missing key, got %q", rec.ErrorDetail)
	}
}

func TestExtract_ServerErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()
	client := llm.NewClient(llm.Config{APIKey: "test-key", Model: "test-model"})
	client.SetTestTransport(srv.URL)

	ext := New(client, testLogger())
	rec := ext.Extract(context.Background(), "s1_chunk_003", "segment text", KindPatterns)

	if !rec.IsFallback {
		t.Fatal("expected fallback on model error")
	}
	if rec.Patterns == nil || len(rec.Patterns) != 0 {
		t.Errorf("fallback must carry an empty non-nil slice, got %#v", rec.Patterns)
	}
}

func TestFallback_Shape(t *testing.T) {
	for _, kind := range AllKinds() {
		rec := Fallback("seg", kind, "detail")
		if !rec.IsFallback || rec.Kind != kind || rec.ErrorDetail != "detail" {
			t.Errorf("kind %s: bad fallback %+v", kind, rec)
		}
		if rec.ItemCount() != 0 {
			t.Errorf("kind %s: fallback must be empty", kind)
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range AllKinds() {
		got, err := ParseKind(string(kind))
		if err != nil || got != kind {
			t.Errorf("ParseKind(%q) = %q, %v", kind, got, err)
		}
	}
	if _, err := ParseKind("sentiment"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
