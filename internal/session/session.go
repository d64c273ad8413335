// Package session keeps each user's conversation state between messages: idle,
// inside a wizard at some step, or taking a test.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/quiz"
)

// Kind names a wizard family. The empty Kind means no wizard is active.
type Kind string

const (
	KindNone                Kind = ""
	KindUploadLesson        Kind = "upload_lesson"
	KindUpdateLesson        Kind = "update_lesson"
	KindDeleteLesson        Kind = "delete_lesson"
	KindAddModule           Kind = "add_module"
	KindDeleteModule        Kind = "delete_module"
	KindAddTest             Kind = "add_test"
	KindEditTest            Kind = "edit_test"
	KindAdminRegistration   Kind = "admin_registration"
	KindStudentRegistration Kind = "student_registration"
)

// Step names a state inside a wizard.
type Step string

// Draft is a test question being composed or edited.
type Draft struct {
	Text    string   `json:"text,omitempty"`
	Options []string `json:"options,omitempty"`
	Correct int      `json:"correct,omitempty"`
	Photo   string   `json:"photo,omitempty"`
}

// Question converts the draft into a question for lessonCode.
func (d Draft) Question(lessonCode string) content.Question {
	return content.Question{
		LessonCode: lessonCode,
		Text:       d.Text,
		Options:    append([]string(nil), d.Options...),
		Correct:    d.Correct,
		Photo:      d.Photo,
	}
}

// Data is the transient field set a wizard accumulates.
type Data struct {
	ModuleCode  string            `json:"module_code,omitempty"`
	LessonCode  string            `json:"lesson_code,omitempty"`
	Text        string            `json:"text,omitempty"`
	Photo       string            `json:"photo,omitempty"`
	VideoURL    string            `json:"video_url,omitempty"`
	NotesURL    string            `json:"notes_url,omitempty"`
	Field       string            `json:"field,omitempty"`
	Draft       Draft             `json:"draft"`
	QuestionID  int64             `json:"question_id,omitempty"`
	QuestionIdx int               `json:"question_idx,omitempty"`
	Proposed    *content.Question `json:"proposed,omitempty"`
	FirstName   string            `json:"first_name,omitempty"`
	// Return is the step an embedded sub-flow hands control back to.
	Return Step `json:"return,omitempty"`
}

// Session is the conversation state of one user.
type Session struct {
	UserID    int64         `json:"user_id"`
	Kind      Kind          `json:"kind,omitempty"`
	Step      Step          `json:"step,omitempty"`
	Data      Data          `json:"data"`
	Quiz      *quiz.Attempt `json:"quiz,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Active reports whether a wizard is running.
func (s *Session) Active() bool {
	return s.Kind != KindNone
}

// Reset returns the session to idle, dropping wizard data and any attempt.
func (s *Session) Reset() {
	s.Kind = KindNone
	s.Step = ""
	s.Data = Data{}
	s.Quiz = nil
}

// Begin enters the first step of a wizard with empty data.
func (s *Session) Begin(kind Kind, step Step) {
	s.Reset()
	s.Kind = kind
	s.Step = step
}

// Store persists sessions by user id.
type Store interface {
	// Get returns the user's session, or an idle one if none is stored.
	Get(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID int64) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]Session)}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return &Session{UserID: userID}, nil
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if s == nil || s.UserID == 0 {
		return fmt.Errorf("session user_id is required")
	}
	s.UpdatedAt = time.Now()

	m.mu.Lock()
	m.sessions[s.UserID] = *s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}
