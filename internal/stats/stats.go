// Package stats computes student progress statistics for administrators.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/lesson-bot/internal/content"
)

// ErrUnknownFilter is returned by Students for an unrecognised filter.
var ErrUnknownFilter = errors.New("unknown statistics filter")

// ListLimit is how many students a filtered listing shows.
const ListLimit = 10

// Filter selects and orders students in a listing.
type Filter string

const (
	FilterLessonsBelowHalf Filter = "lessons_lt50"
	FilterLessonsHalfPlus  Filter = "lessons_ge50"
	FilterLessonsAll       Filter = "lessons_all"
	FilterTestsBelow50     Filter = "tests_lt50"
	FilterTestsAbove80     Filter = "tests_gt80"
	SortByLessons          Filter = "sort_lessons"
	SortByTests            Filter = "sort_tests"
)

// Filters lists every filter in menu order.
var Filters = []Filter{
	FilterLessonsBelowHalf,
	FilterLessonsHalfPlus,
	FilterLessonsAll,
	FilterTestsBelow50,
	FilterTestsAbove80,
	SortByLessons,
	SortByTests,
}

var filterTitles = map[Filter]string{
	FilterLessonsBelowHalf: "Students with less than 50% of lessons",
	FilterLessonsHalfPlus:  "Students with 50% of lessons or more",
	FilterLessonsAll:       "Students who completed every lesson",
	FilterTestsBelow50:     "Students with tests below 50%",
	FilterTestsAbove80:     "Students with tests above 80%",
	SortByLessons:          "Sorted by completed lessons",
	SortByTests:            "Sorted by average test score",
}

// Title returns the human-readable filter name.
func (f Filter) Title() string {
	return filterTitles[f]
}

// Overview aggregates progress over all users.
type Overview struct {
	Students         int
	Lessons          int
	CompletedLessons int
	PossibleLessons  int
	AvgCompletion    float64
	AvgTestScore     float64
}

// Student is one user's progress summary.
type Student struct {
	User       content.User
	Completed  []string
	Incomplete []string
	Scores     []content.Score
	Lessons    int
}

// CompletedCount returns the number of completed lessons.
func (s Student) CompletedCount() int {
	return len(s.Completed)
}

// LessonPercent returns completed lessons as a percentage of all lessons,
// or 0 when there are no lessons.
func (s Student) LessonPercent() float64 {
	if s.Lessons == 0 {
		return 0
	}
	return round2(float64(len(s.Completed)) / float64(s.Lessons) * 100)
}

// TestAverage returns the mean test percentage.
func (s Student) TestAverage() float64 {
	return AverageTestScore(s.Scores)
}

// AverageTestScore returns the mean of the scores' percentages, or 0 for none.
func AverageTestScore(scores []content.Score) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, sc := range scores {
		sum += sc.Percent()
	}
	return round2(sum / float64(len(scores)))
}

// ProgressBar renders "[🟩🟩⬜…] current/total" with ten cells.
func ProgressBar(current, total int) string {
	const cells = 10
	filled := 0
	if total > 0 {
		filled = cells * current / total
	}
	filled = max(0, min(filled, cells))
	return fmt.Sprintf("[%s%s] %d/%d", strings.Repeat("🟩", filled), strings.Repeat("⬜", cells-filled), current, total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Service reads progress data from the content store.
type Service struct {
	store content.Store
}

func NewService(store content.Store) *Service {
	return &Service{store: store}
}

// students loads every user's summary against the current lesson list.
func (s *Service) students(ctx context.Context) ([]Student, []content.Lesson, error) {
	lessons, err := s.store.AllLessons(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list lessons: %w", err)
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]Student, 0, len(users))
	for _, u := range users {
		st, err := s.summarize(ctx, u, lessons)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, st)
	}
	return out, lessons, nil
}

func (s *Service) summarize(ctx context.Context, u content.User, lessons []content.Lesson) (Student, error) {
	progress, err := s.store.ListProgress(ctx, u.ID)
	if err != nil {
		return Student{}, fmt.Errorf("list progress for user %d: %w", u.ID, err)
	}
	scores, err := s.store.ListScores(ctx, u.ID)
	if err != nil {
		return Student{}, fmt.Errorf("list scores for user %d: %w", u.ID, err)
	}

	done := make(map[string]bool, len(progress))
	for _, p := range progress {
		done[p.LessonCode] = true
	}
	st := Student{User: u, Scores: scores, Lessons: len(lessons)}
	for _, l := range lessons {
		if done[l.Code] {
			st.Completed = append(st.Completed, l.Code)
		} else {
			st.Incomplete = append(st.Incomplete, l.Code)
		}
	}
	return st, nil
}

// Overview returns totals across all users.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	students, lessons, err := s.students(ctx)
	if err != nil {
		return Overview{}, err
	}
	o := Overview{Students: len(students), Lessons: len(lessons)}
	o.PossibleLessons = o.Students * o.Lessons

	var testSum float64
	for _, st := range students {
		o.CompletedLessons += st.CompletedCount()
		testSum += st.TestAverage()
	}
	if o.PossibleLessons > 0 {
		o.AvgCompletion = round2(float64(o.CompletedLessons) / float64(o.PossibleLessons) * 100)
	}
	if o.Students > 0 {
		o.AvgTestScore = round2(testSum / float64(o.Students))
	}
	return o, nil
}

// Students returns every student matching f, in the filter's order. Callers
// show at most ListLimit of them.
func (s *Service) Students(ctx context.Context, f Filter) ([]Student, error) {
	if _, ok := filterTitles[f]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, f)
	}
	all, lessons, err := s.students(ctx)
	if err != nil {
		return nil, err
	}
	half := float64(len(lessons)) / 2

	var out []Student
	for _, st := range all {
		keep := true
		switch f {
		case FilterLessonsBelowHalf:
			keep = float64(st.CompletedCount()) < half
		case FilterLessonsHalfPlus:
			keep = float64(st.CompletedCount()) >= half
		case FilterLessonsAll:
			keep = len(lessons) > 0 && st.CompletedCount() == len(lessons)
		case FilterTestsBelow50:
			keep = st.TestAverage() < 50
		case FilterTestsAbove80:
			keep = st.TestAverage() > 80
		}
		if keep {
			out = append(out, st)
		}
	}

	switch f {
	case SortByLessons:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedCount() > out[j].CompletedCount() })
	case SortByTests:
		sort.SliceStable(out, func(i, j int) bool { return out[i].TestAverage() > out[j].TestAverage() })
	}
	return out, nil
}

// Student returns the summary of a single user.
func (s *Service) Student(ctx context.Context, userID int64) (Student, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Student{}, fmt.Errorf("get user %d: %w", userID, err)
	}
	lessons, err := s.store.AllLessons(ctx)
	if err != nil {
		return Student{}, fmt.Errorf("list lessons: %w", err)
	}
	return s.summarize(ctx, u, lessons)
}

// ExportXLSX builds a workbook with a students sheet and a scores sheet.
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	students, lessons, err := s.students(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const studentsSheet, scoresSheet = "Students", "Scores"
	if err := f.SetSheetName("Sheet1", studentsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(scoresSheet); err != nil {
		return nil, fmt.Errorf("add scores sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	rows := [][]any{{"ID", "First name", "Last name", "Username", "Admin", "Completed lessons", "Total lessons", "Lessons %", "Average test %"}}
	for _, st := range students {
		rows = append(rows, []any{
			st.User.ID, st.User.FirstName, st.User.LastName, st.User.Username, st.User.IsAdmin,
			st.CompletedCount(), len(lessons), st.LessonPercent(), st.TestAverage(),
		})
	}
	if err := writeRows(f, studentsSheet, rows, header); err != nil {
		return nil, err
	}

	rows = [][]any{{"User ID", "Test", "Score", "Total", "Percent", "Updated"}}
	for _, st := range students {
		for _, sc := range st.Scores {
			rows = append(rows, []any{st.User.ID, sc.TestCode, sc.Score, sc.Total, round2(sc.Percent()), sc.UpdatedAt.UTC().Format(time.RFC3339)})
		}
	}
	if err := writeRows(f, scoresSheet, rows, header); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(studentsSheet, "B", "D", 18); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}
