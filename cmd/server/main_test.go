package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/platform/config"
)

func TestHealthEndpoints(t *testing.T) {
	healthy := readinessCheck{name: "database", check: func(context.Context) error { return nil }}
	down := readinessCheck{name: "cache", check: func(context.Context) error { return errors.New("connection refused") }}

	tests := []struct {
		name       string
		checks     []readinessCheck
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz without checks returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz with healthy checks returns 200",
			checks:     []readinessCheck{healthy},
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz with failing check returns 503",
			checks:     []readinessCheck{healthy, down},
			path:       "/readyz",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `"cache":"connection refused"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(tt.checks...)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantDebug bool
		wantText  bool
	}{
		{"json info", config.LogConfig{Level: "info", Format: "json"}, false, false},
		{"text debug", config.LogConfig{Level: "debug", Format: "text"}, true, true},
		{"bad level falls back to info", config.LogConfig{Level: "loud", Format: "json"}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLogger(tt.cfg)
			if got := l.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			_, isText := l.Handler().(*slog.TextHandler)
			if isText != tt.wantText {
				t.Errorf("text handler = %v, want %v", isText, tt.wantText)
			}
		})
	}
}

type stubProcessor struct {
	out []chat.OutboundMessage
	err error
}

func (s stubProcessor) ProcessMessage(context.Context, chat.InboundMessage) ([]chat.OutboundMessage, error) {
	return s.out, s.err
}

func TestHandleMessage(t *testing.T) {
	mock := &chat.MockChannel{}
	gw := chat.NewGateway()
	gw.Register("mock", mock)

	in := chat.InboundMessage{Channel: "mock", UserID: "42", Text: "/start"}
	handleMessage(context.Background(), stubProcessor{out: []chat.OutboundMessage{{Text: "one"}, {Text: "two"}}}, gw)(in)

	sent := mock.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	if sent[0].UserID != "42" || sent[0].Channel != "mock" || sent[1].Text != "two" {
		t.Errorf("sent = %+v", sent)
	}

	handleMessage(context.Background(), stubProcessor{err: errors.New("invalid user id")}, gw)(in)
	if len(mock.Sent()) != 2 {
		t.Error("a failed message should not produce replies")
	}
}

func TestSeedContent(t *testing.T) {
	dir := t.TempDir()
	bundle := `code: SCIENCE
text: Basic science
lessons:
  - text: Atoms
    video_url: https://example.com/v
    notes_url: https://example.com/n
    questions:
      - text: Smallest unit?
        options: [atom, cell]
        correct: 1
`
	if err := os.WriteFile(filepath.Join(dir, "science.yaml"), []byte(bundle), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	store := content.NewMemoryStore()
	if err := seedContent(ctx, dir, store, "./img/default.jpg"); err != nil {
		t.Fatalf("seedContent() error = %v", err)
	}
	l, err := store.GetLesson(ctx, "SCIENCE_lesson-1")
	if err != nil {
		t.Fatalf("GetLesson() error = %v", err)
	}
	if l.Photo != "./img/default.jpg" {
		t.Errorf("Photo = %q, want default", l.Photo)
	}

	if err := seedContent(ctx, filepath.Join(dir, "missing"), store, ""); err == nil {
		t.Error("seedContent() with a missing dir should fail")
	}
}
