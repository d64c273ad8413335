package content_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/lesson-bot/internal/content"
)

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, s content.Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.CreateModule(ctx, content.Module{Code: "algebra", Text: "Algebra", Photo: "a.jpg"}); err != nil {
		t.Fatalf("CreateModule() error = %v", err)
	}
	if _, err := s.CreateModule(ctx, content.Module{Code: "algebra", Text: "dup", Photo: "a.jpg"}); !errors.Is(err, content.ErrConflict) {
		t.Errorf("CreateModule() duplicate error = %v, want ErrConflict", err)
	}
	if _, err := s.GetModule(ctx, "missing"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("GetModule(missing) error = %v, want ErrNotFound", err)
	}

	for _, n := range []int{1, 2} {
		l := content.Lesson{ModuleCode: "algebra", Code: content.LessonCode("algebra", n), Text: "lesson", Photo: "p.jpg"}
		if _, err := s.CreateLesson(ctx, l); err != nil {
			t.Fatalf("CreateLesson(%d) error = %v", n, err)
		}
	}
	if _, err := s.CreateLesson(ctx, content.Lesson{ModuleCode: "nope", Code: "nope_lesson-1", Text: "x", Photo: "p"}); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("CreateLesson() unknown module error = %v, want ErrNotFound", err)
	}

	lessons, err := s.ListLessons(ctx, "algebra")
	if err != nil {
		t.Fatalf("ListLessons() error = %v", err)
	}
	if len(lessons) != 2 || lessons[0].Number != 1 || lessons[1].Number != 2 {
		t.Fatalf("ListLessons() = %+v, want lessons 1 and 2 in order", lessons)
	}
	if content.NextLessonCode("algebra", lessons) != "algebra_lesson-3" {
		t.Errorf("NextLessonCode() = %q", content.NextLessonCode("algebra", lessons))
	}

	if err := s.UpdateLesson(ctx, "algebra_lesson-1", content.LessonVideo, "https://v.example/1"); err != nil {
		t.Fatalf("UpdateLesson() error = %v", err)
	}
	got, err := s.GetLesson(ctx, "algebra_lesson-1")
	if err != nil {
		t.Fatalf("GetLesson() error = %v", err)
	}
	if got.VideoURL != "https://v.example/1" || got.Text != "lesson" {
		t.Errorf("GetLesson() = %+v, want only video changed", got)
	}
	if err := s.UpdateLesson(ctx, "algebra_lesson-9", content.LessonText, "x"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("UpdateLesson(missing) error = %v, want ErrNotFound", err)
	}

	q1, err := s.CreateQuestion(ctx, content.Question{LessonCode: "algebra_lesson-1", Text: "2+2?", Options: []string{"3", "4"}, Correct: 2})
	if err != nil {
		t.Fatalf("CreateQuestion() error = %v", err)
	}
	if _, err := s.CreateQuestion(ctx, content.Question{LessonCode: "algebra_lesson-1", Text: "3+3?", Options: []string{"6", "7", "8"}, Correct: 1, Photo: "q.jpg"}); err != nil {
		t.Fatalf("CreateQuestion() second error = %v", err)
	}
	if _, err := s.CreateQuestion(ctx, content.Question{LessonCode: "algebra_lesson-1", Text: "bad", Options: []string{"a", "b"}, Correct: 3}); !errors.Is(err, content.ErrInvalidQuestion) {
		t.Errorf("CreateQuestion() invalid error = %v, want ErrInvalidQuestion", err)
	}

	qs, err := s.ListQuestions(ctx, "algebra_lesson-1")
	if err != nil {
		t.Fatalf("ListQuestions() error = %v", err)
	}
	if len(qs) != 2 || qs[0].ID != q1.ID || len(qs[1].Options) != 3 || qs[1].Photo != "q.jpg" {
		t.Fatalf("ListQuestions() = %+v", qs)
	}

	q1.Options = []string{"3", "4", "5"}
	q1.Correct = 3
	if err := s.UpdateQuestion(ctx, q1); err != nil {
		t.Fatalf("UpdateQuestion() error = %v", err)
	}
	qs, _ = s.ListQuestions(ctx, "algebra_lesson-1")
	if qs[0].Correct != 3 || len(qs[0].Options) != 3 {
		t.Errorf("UpdateQuestion() stored %+v", qs[0])
	}
	if err := s.DeleteQuestion(ctx, qs[1].ID); err != nil {
		t.Fatalf("DeleteQuestion() error = %v", err)
	}
	if err := s.DeleteQuestion(ctx, qs[1].ID); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("DeleteQuestion() twice error = %v, want ErrNotFound", err)
	}

	u, err := s.EnsureUser(ctx, content.User{ID: 42, Username: "ann"})
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if u.Registered() {
		t.Error("new user should not be registered")
	}
	if err := s.UpdateUserName(ctx, 42, "Ann", "Lee"); err != nil {
		t.Fatalf("UpdateUserName() error = %v", err)
	}
	u, _ = s.EnsureUser(ctx, content.User{ID: 42})
	if u.FirstName != "Ann" || u.Username != "ann" {
		t.Errorf("EnsureUser() existing = %+v, want stored user kept", u)
	}
	if err := s.SetAdmin(ctx, 42, true); err != nil {
		t.Fatalf("SetAdmin() error = %v", err)
	}
	if u, _ := s.GetUser(ctx, 42); !u.IsAdmin {
		t.Error("SetAdmin() did not persist")
	}

	for i := 0; i < 2; i++ {
		if err := s.MarkLessonCompleted(ctx, 42, "algebra_lesson-1"); err != nil {
			t.Fatalf("MarkLessonCompleted() error = %v", err)
		}
	}
	if err := s.MarkLessonCompleted(ctx, 42, "algebra_lesson-2"); err != nil {
		t.Fatalf("MarkLessonCompleted() error = %v", err)
	}
	progress, _ := s.ListProgress(ctx, 42)
	if len(progress) != 2 {
		t.Errorf("ListProgress() len = %d, want 2", len(progress))
	}

	if err := s.SaveScore(ctx, content.Score{UserID: 42, TestCode: "algebra_test-1", Score: 1, Total: 2}); err != nil {
		t.Fatalf("SaveScore() error = %v", err)
	}
	if err := s.SaveScore(ctx, content.Score{UserID: 42, TestCode: "algebra_test-1", Score: 2, Total: 2}); err != nil {
		t.Fatalf("SaveScore() overwrite error = %v", err)
	}
	if err := s.SaveScore(ctx, content.Score{UserID: 42, TestCode: "algebra_test-2", Score: 0, Total: 1}); err != nil {
		t.Fatalf("SaveScore() error = %v", err)
	}
	scores, _ := s.ListScores(ctx, 42)
	if len(scores) != 2 || scores[0].Score != 2 {
		t.Errorf("ListScores() = %+v, want overwritten score 2 for test-1", scores)
	}

	if err := s.DeleteLesson(ctx, "algebra_lesson-2"); err != nil {
		t.Fatalf("DeleteLesson() error = %v", err)
	}
	res, err := s.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.ProgressRemoved != 1 || res.ScoresRemoved != 1 {
		t.Errorf("Reconcile() = %+v, want 1 progress and 1 score removed", res)
	}
	res, _ = s.Reconcile(ctx)
	if res.ProgressRemoved != 0 || res.ScoresRemoved != 0 {
		t.Errorf("second Reconcile() = %+v, want nothing removed", res)
	}

	if err := s.DeleteModule(ctx, "algebra"); err != nil {
		t.Fatalf("DeleteModule() error = %v", err)
	}
	if _, err := s.GetLesson(ctx, "algebra_lesson-1"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("lesson survived module delete: %v", err)
	}
	if qs, _ := s.ListQuestions(ctx, "algebra_lesson-1"); len(qs) != 0 {
		t.Errorf("questions survived module delete: %+v", qs)
	}
	res, _ = s.Reconcile(ctx)
	if res.ProgressRemoved != 1 || res.ScoresRemoved != 1 {
		t.Errorf("Reconcile() after module delete = %+v", res)
	}
}
