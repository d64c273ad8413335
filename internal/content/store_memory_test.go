package content_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/lesson-bot/internal/content"
)

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, content.NewMemoryStore())
}

func TestMemoryStore_FailWith(t *testing.T) {
	s := content.NewMemoryStore()
	boom := errors.New("boom")
	s.FailWith = boom

	if _, err := s.CreateModule(context.Background(), content.Module{Code: "m"}); !errors.Is(err, boom) {
		t.Errorf("CreateModule() error = %v, want %v", err, boom)
	}
	if _, err := s.ListModules(context.Background()); err != nil {
		t.Errorf("ListModules() error = %v, reads should still work", err)
	}
}

func TestMemoryStore_QuestionsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := content.NewMemoryStore()
	_, _ = s.CreateModule(ctx, content.Module{Code: "m", Text: "M", Photo: "p"})
	_, _ = s.CreateLesson(ctx, content.Lesson{ModuleCode: "m", Code: "m_lesson-1", Text: "t", Photo: "p"})
	_, _ = s.CreateQuestion(ctx, content.Question{LessonCode: "m_lesson-1", Text: "q", Options: []string{"a", "b"}, Correct: 1})

	qs, _ := s.ListQuestions(ctx, "m_lesson-1")
	qs[0].Options[0] = "mutated"

	again, _ := s.ListQuestions(ctx, "m_lesson-1")
	if again[0].Options[0] != "a" {
		t.Errorf("stored option = %q, want %q", again[0].Options[0], "a")
	}
}
