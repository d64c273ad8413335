// Package quiz tracks a student's test attempt and records its outcome.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/events"
)

var (
	ErrNoQuestions   = errors.New("lesson has no test questions")
	ErrInvalidOption = errors.New("option out of range")
	ErrFinished      = errors.New("attempt already finished")
)

// Attempt is an in-progress test. The question list is a snapshot taken at
// Start and does not change while the attempt runs.
type Attempt struct {
	LessonCode string             `json:"lesson_code"`
	TestCode   string             `json:"test_code"`
	Questions  []content.Question `json:"questions"`
	Index      int                `json:"index"`
	Correct    int                `json:"correct"`
	StartedAt  time.Time          `json:"started_at"`
}

// Outcome describes the effect of one answer.
type Outcome struct {
	Correct bool
	// Expected is the 1-based index of the right option.
	Expected int
	Done     bool
}

// Start begins an attempt over a copy of qs.
func Start(lessonCode string, qs []content.Question) (*Attempt, error) {
	if len(qs) == 0 {
		return nil, fmt.Errorf("start test for %s: %w", lessonCode, ErrNoQuestions)
	}
	snapshot := make([]content.Question, len(qs))
	for i, q := range qs {
		q.Options = append([]string(nil), q.Options...)
		snapshot[i] = q
	}
	return &Attempt{
		LessonCode: lessonCode,
		TestCode:   content.TestCodeFor(lessonCode),
		Questions:  snapshot,
		StartedAt:  time.Now(),
	}, nil
}

func (a *Attempt) Total() int {
	return len(a.Questions)
}

func (a *Attempt) Done() bool {
	return a.Index >= len(a.Questions)
}

// Perfect reports whether a finished attempt answered every question right.
func (a *Attempt) Perfect() bool {
	return a.Done() && a.Correct == a.Total()
}

// Current returns the question awaiting an answer.
func (a *Attempt) Current() (content.Question, bool) {
	if a.Done() {
		return content.Question{}, false
	}
	return a.Questions[a.Index], true
}

// Answer scores option n (1-based) against the current question and advances.
func (a *Attempt) Answer(n int) (Outcome, error) {
	q, ok := a.Current()
	if !ok {
		return Outcome{}, ErrFinished
	}
	if n < 1 || n > len(q.Options) {
		return Outcome{}, fmt.Errorf("answer %d of %d: %w", n, len(q.Options), ErrInvalidOption)
	}

	out := Outcome{Correct: n == q.Correct, Expected: q.Correct}
	if out.Correct {
		a.Correct++
	}
	a.Index++
	out.Done = a.Done()
	return out, nil
}

// Result is the persisted outcome of a finished attempt.
type Result struct {
	LessonCode string
	TestCode   string
	Score      int
	Total      int
	Passed     bool
	// LessonCompleted is true when this attempt created the progress row.
	LessonCompleted bool
}

// Service persists finished attempts.
type Service struct {
	store  content.Store
	events events.Logger
}

func NewService(store content.Store, logger events.Logger) *Service {
	if logger == nil {
		logger = events.NopLogger{}
	}
	return &Service{store: store, events: logger}
}

// Finish stores the latest score for the attempt's test and, for a perfect
// score, marks the lesson completed unless it already is.
func (s *Service) Finish(ctx context.Context, user content.User, a *Attempt) (Result, error) {
	if !a.Done() {
		return Result{}, fmt.Errorf("finish %s: attempt still running", a.TestCode)
	}
	if _, err := s.store.EnsureUser(ctx, user); err != nil {
		return Result{}, fmt.Errorf("ensure user: %w", err)
	}

	res := Result{
		LessonCode: a.LessonCode,
		TestCode:   a.TestCode,
		Score:      a.Correct,
		Total:      a.Total(),
		Passed:     a.Perfect(),
	}
	if err := s.store.SaveScore(ctx, content.Score{
		UserID:   user.ID,
		TestCode: a.TestCode,
		Score:    res.Score,
		Total:    res.Total,
	}); err != nil {
		return Result{}, err
	}

	if res.Passed {
		done, err := s.completed(ctx, user.ID, a.LessonCode)
		if err != nil {
			return Result{}, err
		}
		if !done {
			if err := s.store.MarkLessonCompleted(ctx, user.ID, a.LessonCode); err != nil {
				return Result{}, err
			}
			res.LessonCompleted = true
		}
	}

	events.Log(ctx, s.events, user.ID, events.TestCompleted, map[string]any{
		"test_code": res.TestCode,
		"score":     res.Score,
		"total":     res.Total,
		"passed":    res.Passed,
	})
	return res, nil
}

func (s *Service) completed(ctx context.Context, userID int64, lessonCode string) (bool, error) {
	progress, err := s.store.ListProgress(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range progress {
		if p.LessonCode == lessonCode {
			return true, nil
		}
	}
	return false, nil
}
