// Package content holds the course entities (modules, lessons, test questions)
// and the per-user progress and test scores recorded against them.
package content

import "time"

// Module is a top-level group of lessons.
type Module struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Text  string `json:"text"`
	Photo string `json:"photo"`
}

// Lesson is a numbered content unit inside a module.
type Lesson struct {
	ID         int64  `json:"id"`
	ModuleID   int64  `json:"module_id"`
	ModuleCode string `json:"module_code"`
	Code       string `json:"code"`
	Number     int    `json:"number"`
	Text       string `json:"text"`
	Photo      string `json:"photo"`
	VideoURL   string `json:"video_url"`
	NotesURL   string `json:"notes_url"`
}

// TestCode returns the code under which scores for this lesson's test are kept.
func (l Lesson) TestCode() string {
	return TestCodeFor(l.Code)
}

// LessonField names a single editable lesson field.
type LessonField string

const (
	LessonText  LessonField = "text"
	LessonPhoto LessonField = "photo"
	LessonVideo LessonField = "video"
	LessonNotes LessonField = "notes"
)

// Question is one multiple-choice question attached to a lesson.
// Options holds two or three entries; Correct is 1-based.
type Question struct {
	ID         int64    `json:"id"`
	LessonCode string   `json:"lesson_code"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Correct    int      `json:"correct"`
	Photo      string   `json:"photo,omitempty"`
}

// Check reports whether the question satisfies the option invariants.
func (q Question) Check() error {
	if len(q.Options) < 2 || len(q.Options) > 3 {
		return ErrInvalidQuestion
	}
	for _, o := range q.Options {
		if o == "" {
			return ErrInvalidQuestion
		}
	}
	if q.Correct < 1 || q.Correct > len(q.Options) {
		return ErrInvalidQuestion
	}
	return nil
}

// User is a chat participant identified by the platform's numeric id.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"is_admin"`
}

// Registered reports whether the user has completed student registration.
func (u User) Registered() bool {
	return u.FirstName != "" || u.LastName != ""
}

// DisplayName returns the best available human-readable name.
func (u User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}

// Progress marks a lesson as completed by a user.
type Progress struct {
	UserID      int64     `json:"user_id"`
	LessonCode  string    `json:"lesson_code"`
	CompletedAt time.Time `json:"completed_at"`
}

// Score is the latest result of a user's attempt at a lesson test.
type Score struct {
	UserID    int64     `json:"user_id"`
	TestCode  string    `json:"test_code"`
	Score     int       `json:"score"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Percent returns the score as a percentage of the total.
func (s Score) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Score) / float64(s.Total) * 100
}

// ReconcileResult reports how many orphaned rows a reconciliation removed.
type ReconcileResult struct {
	ProgressRemoved int64
	ScoresRemoved   int64
}
