package content

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique code is already taken.
	ErrConflict = errors.New("already exists")
	// ErrInvalidQuestion is returned for questions that break the option invariants.
	ErrInvalidQuestion = errors.New("invalid question: need 2-3 options and a correct option within range")
)

// Store persists modules, lessons, questions, users, progress and scores.
type Store interface {
	ListModules(ctx context.Context) ([]Module, error)
	GetModule(ctx context.Context, code string) (Module, error)
	CreateModule(ctx context.Context, m Module) (Module, error)
	// DeleteModule removes the module with its lessons and their questions.
	DeleteModule(ctx context.Context, code string) error

	// ListLessons returns the module's lessons ordered by number.
	ListLessons(ctx context.Context, moduleCode string) ([]Lesson, error)
	AllLessons(ctx context.Context) ([]Lesson, error)
	GetLesson(ctx context.Context, code string) (Lesson, error)
	CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
	UpdateLesson(ctx context.Context, code string, field LessonField, value string) error
	// DeleteLesson removes the lesson and its questions.
	DeleteLesson(ctx context.Context, code string) error

	// ListQuestions returns the lesson's questions in creation order.
	ListQuestions(ctx context.Context, lessonCode string) ([]Question, error)
	CreateQuestion(ctx context.Context, q Question) (Question, error)
	UpdateQuestion(ctx context.Context, q Question) error
	DeleteQuestion(ctx context.Context, id int64) error

	GetUser(ctx context.Context, id int64) (User, error)
	// EnsureUser returns the stored user, creating it from u when absent.
	EnsureUser(ctx context.Context, u User) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUserName(ctx context.Context, id int64, firstName, lastName string) error
	SetAdmin(ctx context.Context, id int64, isAdmin bool) error

	ListProgress(ctx context.Context, userID int64) ([]Progress, error)
	// MarkLessonCompleted records completion; repeating it is a no-op.
	MarkLessonCompleted(ctx context.Context, userID int64, lessonCode string) error
	ListScores(ctx context.Context, userID int64) ([]Score, error)
	// SaveScore inserts or overwrites the user's score for the test code.
	SaveScore(ctx context.Context, s Score) error

	// Reconcile deletes progress and score rows whose lesson or test code no
	// longer matches a live lesson.
	Reconcile(ctx context.Context) (ReconcileResult, error)
}

// liveCodes collects the live lesson codes and their derived test codes.
func liveCodes(lessons []Lesson) (lessonCodes, testCodes map[string]struct{}) {
	lessonCodes = make(map[string]struct{}, len(lessons))
	testCodes = make(map[string]struct{}, len(lessons))
	for _, l := range lessons {
		lessonCodes[l.Code] = struct{}{}
		testCodes[l.TestCode()] = struct{}{}
	}
	return lessonCodes, testCodes
}
