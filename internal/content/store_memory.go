package content

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu        sync.RWMutex
	nextID    int64
	modules   map[string]*Module
	lessons   map[string]*Lesson
	questions map[int64]*Question
	users     map[int64]*User
	progress  map[int64]map[string]Progress
	scores    map[int64]map[string]Score

	// FailWith, when set, makes every mutating call return it.
	FailWith error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		modules:   make(map[string]*Module),
		lessons:   make(map[string]*Lesson),
		questions: make(map[int64]*Question),
		users:     make(map[int64]*User),
		progress:  make(map[int64]map[string]Progress),
		scores:    make(map[int64]map[string]Score),
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) ListModules(_ context.Context) ([]Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Module, 0, len(s.modules))
	for _, m := range s.modules {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetModule(_ context.Context, code string) (Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.modules[code]
	if !ok {
		return Module{}, fmt.Errorf("module %s: %w", code, ErrNotFound)
	}
	return *m, nil
}

func (s *MemoryStore) CreateModule(_ context.Context, m Module) (Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return Module{}, s.FailWith
	}
	if _, ok := s.modules[m.Code]; ok {
		return Module{}, fmt.Errorf("module %s: %w", m.Code, ErrConflict)
	}
	m.ID = s.id()
	s.modules[m.Code] = &m
	return m, nil
}

func (s *MemoryStore) DeleteModule(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	if _, ok := s.modules[code]; !ok {
		return fmt.Errorf("module %s: %w", code, ErrNotFound)
	}
	delete(s.modules, code)
	for lc, l := range s.lessons {
		if l.ModuleCode == code {
			s.deleteLessonLocked(lc)
		}
	}
	return nil
}

func (s *MemoryStore) ListLessons(_ context.Context, moduleCode string) ([]Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Lesson
	for _, l := range s.lessons {
		if l.ModuleCode == moduleCode {
			out = append(out, *l)
		}
	}
	sortLessons(out)
	return out, nil
}

func (s *MemoryStore) AllLessons(_ context.Context) ([]Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Lesson, 0, len(s.lessons))
	for _, l := range s.lessons {
		out = append(out, *l)
	}
	sortLessons(out)
	return out, nil
}

func (s *MemoryStore) GetLesson(_ context.Context, code string) (Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lessons[code]
	if !ok {
		return Lesson{}, fmt.Errorf("lesson %s: %w", code, ErrNotFound)
	}
	return *l, nil
}

func (s *MemoryStore) CreateLesson(_ context.Context, l Lesson) (Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return Lesson{}, s.FailWith
	}
	m, ok := s.modules[l.ModuleCode]
	if !ok {
		return Lesson{}, fmt.Errorf("module %s: %w", l.ModuleCode, ErrNotFound)
	}
	if _, ok := s.lessons[l.Code]; ok {
		return Lesson{}, fmt.Errorf("lesson %s: %w", l.Code, ErrConflict)
	}
	if _, n, ok := ParseLessonCode(l.Code); ok {
		l.Number = n
	}
	l.ID = s.id()
	l.ModuleID = m.ID
	s.lessons[l.Code] = &l
	return l, nil
}

func (s *MemoryStore) UpdateLesson(_ context.Context, code string, field LessonField, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	l, ok := s.lessons[code]
	if !ok {
		return fmt.Errorf("lesson %s: %w", code, ErrNotFound)
	}
	switch field {
	case LessonText:
		l.Text = value
	case LessonPhoto:
		l.Photo = value
	case LessonVideo:
		l.VideoURL = value
	case LessonNotes:
		l.NotesURL = value
	default:
		return fmt.Errorf("unknown lesson field %q", field)
	}
	return nil
}

func (s *MemoryStore) DeleteLesson(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	if _, ok := s.lessons[code]; !ok {
		return fmt.Errorf("lesson %s: %w", code, ErrNotFound)
	}
	s.deleteLessonLocked(code)
	return nil
}

func (s *MemoryStore) deleteLessonLocked(code string) {
	delete(s.lessons, code)
	for id, q := range s.questions {
		if q.LessonCode == code {
			delete(s.questions, id)
		}
	}
}

func (s *MemoryStore) ListQuestions(_ context.Context, lessonCode string) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Question
	for _, q := range s.questions {
		if q.LessonCode == lessonCode {
			out = append(out, cloneQuestion(*q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateQuestion(_ context.Context, q Question) (Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return Question{}, s.FailWith
	}
	if err := q.Check(); err != nil {
		return Question{}, err
	}
	if _, ok := s.lessons[q.LessonCode]; !ok {
		return Question{}, fmt.Errorf("lesson %s: %w", q.LessonCode, ErrNotFound)
	}
	q = cloneQuestion(q)
	q.ID = s.id()
	s.questions[q.ID] = &q
	return cloneQuestion(q), nil
}

func (s *MemoryStore) UpdateQuestion(_ context.Context, q Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	if err := q.Check(); err != nil {
		return err
	}
	existing, ok := s.questions[q.ID]
	if !ok {
		return fmt.Errorf("question %d: %w", q.ID, ErrNotFound)
	}
	q = cloneQuestion(q)
	q.LessonCode = existing.LessonCode
	s.questions[q.ID] = &q
	return nil
}

func (s *MemoryStore) DeleteQuestion(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	if _, ok := s.questions[id]; !ok {
		return fmt.Errorf("question %d: %w", id, ErrNotFound)
	}
	delete(s.questions, id)
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return *u, nil
}

func (s *MemoryStore) EnsureUser(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[u.ID]; ok {
		return *existing, nil
	}
	if s.FailWith != nil {
		return User{}, s.FailWith
	}
	s.users[u.ID] = &u
	return u, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateUserName(_ context.Context, id int64, firstName, lastName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	u.FirstName = firstName
	u.LastName = lastName
	return nil
}

func (s *MemoryStore) SetAdmin(_ context.Context, id int64, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	u.IsAdmin = isAdmin
	return nil
}

func (s *MemoryStore) ListProgress(_ context.Context, userID int64) ([]Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Progress, 0, len(s.progress[userID]))
	for _, p := range s.progress[userID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessonCode < out[j].LessonCode })
	return out, nil
}

func (s *MemoryStore) MarkLessonCompleted(_ context.Context, userID int64, lessonCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	if s.progress[userID] == nil {
		s.progress[userID] = make(map[string]Progress)
	}
	if _, ok := s.progress[userID][lessonCode]; ok {
		return nil
	}
	s.progress[userID][lessonCode] = Progress{UserID: userID, LessonCode: lessonCode, CompletedAt: time.Now()}
	return nil
}

func (s *MemoryStore) ListScores(_ context.Context, userID int64) ([]Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Score, 0, len(s.scores[userID]))
	for _, sc := range s.scores[userID] {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestCode < out[j].TestCode })
	return out, nil
}

func (s *MemoryStore) SaveScore(_ context.Context, sc Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	if s.scores[sc.UserID] == nil {
		s.scores[sc.UserID] = make(map[string]Score)
	}
	if sc.UpdatedAt.IsZero() {
		sc.UpdatedAt = time.Now()
	}
	s.scores[sc.UserID][sc.TestCode] = sc
	return nil
}

func (s *MemoryStore) Reconcile(_ context.Context) (ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return ReconcileResult{}, s.FailWith
	}
	lessons := make([]Lesson, 0, len(s.lessons))
	for _, l := range s.lessons {
		lessons = append(lessons, *l)
	}
	lessonCodes, testCodes := liveCodes(lessons)

	var res ReconcileResult
	for _, byLesson := range s.progress {
		for code := range byLesson {
			if _, ok := lessonCodes[code]; !ok {
				delete(byLesson, code)
				res.ProgressRemoved++
			}
		}
	}
	for _, byTest := range s.scores {
		for code := range byTest {
			if _, ok := testCodes[code]; !ok {
				delete(byTest, code)
				res.ScoresRemoved++
			}
		}
	}
	return res, nil
}

func sortLessons(lessons []Lesson) {
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].ModuleCode != lessons[j].ModuleCode {
			return lessons[i].ModuleID < lessons[j].ModuleID
		}
		return lessons[i].Number < lessons[j].Number
	})
}

func cloneQuestion(q Question) Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}
