package wizard

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/events"
	"github.com/p-n-ai/lesson-bot/internal/images"
	"github.com/p-n-ai/lesson-bot/internal/session"
)

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *content.MemoryStore
	imgs   *images.MemoryStorage
	events *events.MemoryLogger
	engine *Engine
	sess   *session.Session
	user   content.User
}

func newHarness(t *testing.T, secret AdminSecret) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		store:  content.NewMemoryStore(),
		imgs:   images.NewMemoryStorage(),
		events: events.NewMemoryLogger(),
		user:   content.User{ID: 1, FirstName: "Ada", IsAdmin: true},
	}
	h.engine = New(h.store, h.imgs, h.events, secret)
	h.sess = &session.Session{UserID: h.user.ID}
	return h
}

func (h *harness) start(kind session.Kind) []chat.OutboundMessage {
	h.t.Helper()
	out, err := h.engine.Start(h.ctx, h.sess, h.user, kind)
	if err != nil {
		h.t.Fatalf("Start(%s) error = %v", kind, err)
	}
	return out
}

func (h *harness) send(in Input) []chat.OutboundMessage {
	h.t.Helper()
	return h.engine.Handle(h.ctx, h.sess, h.user, in)
}

func (h *harness) expectStep(want session.Step) {
	h.t.Helper()
	if h.sess.Step != want {
		h.t.Fatalf("step = %q, want %q", h.sess.Step, want)
	}
}

func (h *harness) expectIdle() {
	h.t.Helper()
	if h.sess.Active() {
		h.t.Fatalf("session still active: kind=%q step=%q", h.sess.Kind, h.sess.Step)
	}
}

func (h *harness) module(code string) content.Module {
	h.t.Helper()
	m, err := h.store.CreateModule(h.ctx, content.Module{Code: code, Text: code + " module", Photo: "p.jpg"})
	if err != nil {
		h.t.Fatalf("CreateModule() error = %v", err)
	}
	return m
}

func (h *harness) lesson(moduleCode string) content.Lesson {
	h.t.Helper()
	existing, _ := h.store.ListLessons(h.ctx, moduleCode)
	l, err := h.store.CreateLesson(h.ctx, content.Lesson{
		ModuleCode: moduleCode,
		Code:       content.NextLessonCode(moduleCode, existing),
		Text:       "lesson text",
		Photo:      "l.jpg",
		VideoURL:   "https://video",
		NotesURL:   "https://notes",
	})
	if err != nil {
		h.t.Fatalf("CreateLesson() error = %v", err)
	}
	return l
}

func (h *harness) question(lessonCode string, options []string, correct int) content.Question {
	h.t.Helper()
	q, err := h.store.CreateQuestion(h.ctx, content.Question{LessonCode: lessonCode, Text: "Q?", Options: options, Correct: correct, Photo: "q.jpg"})
	if err != nil {
		h.t.Fatalf("CreateQuestion() error = %v", err)
	}
	return q
}

func last(t *testing.T, out []chat.OutboundMessage) chat.OutboundMessage {
	t.Helper()
	if len(out) == 0 {
		t.Fatal("no messages")
	}
	return out[len(out)-1]
}

func texts(out []chat.OutboundMessage) string {
	var parts []string
	for _, m := range out {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n---\n")
}

func expectWarning(t *testing.T, out []chat.OutboundMessage) {
	t.Helper()
	if !strings.HasPrefix(last(t, out).Text, "⚠️ ") {
		t.Fatalf("expected a warning reprompt, got %q", texts(out))
	}
}

func TestUploadLesson(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")

	out := h.start(session.KindUploadLesson)
	msg := last(t, out)
	if !hasToken(msg.Buttons, "module:MATH") {
		t.Fatalf("module prompt buttons = %+v, want module:MATH", msg.Buttons)
	}
	if !hasToken(msg.Buttons, TokenCancel) {
		t.Error("prompt has no cancel button")
	}

	h.send(Button("module:MATH"))
	h.expectStep("text")
	h.send(Text("Fractions"))
	h.expectStep("photo")
	h.send(Skip())
	h.expectStep("video")

	expectWarning(t, h.send(Text("ftp://video")))
	h.expectStep("video")

	h.send(Text("https://video/1"))
	h.expectStep("notes")
	out = h.send(Text("https://notes/1"))
	h.expectIdle()
	if !strings.Contains(texts(out), "MATH_lesson-1") {
		t.Errorf("final message = %q, want the new lesson code", texts(out))
	}

	l, err := h.store.GetLesson(h.ctx, "MATH_lesson-1")
	if err != nil {
		t.Fatalf("GetLesson() error = %v", err)
	}
	if l.Text != "Fractions" || l.Photo != images.DefaultReference || l.VideoURL != "https://video/1" || l.NotesURL != "https://notes/1" {
		t.Errorf("lesson = %+v", l)
	}
	if got := h.events.Types(); len(got) != 1 || got[0] != events.LessonCreated {
		t.Errorf("events = %v, want [%s]", got, events.LessonCreated)
	}
}

func TestUploadLessonNumbering(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	h.lesson("MATH")
	h.lesson("MATH")
	if err := h.store.DeleteLesson(h.ctx, "MATH_lesson-1"); err != nil {
		t.Fatal(err)
	}

	h.start(session.KindUploadLesson)
	h.send(Button("module:MATH"))
	h.send(Text("Next"))
	h.send(Image([]byte("jpeg")))
	h.send(Text("https://v"))
	h.send(Text("https://n"))

	l, err := h.store.GetLesson(h.ctx, "MATH_lesson-3")
	if err != nil {
		t.Fatalf("GetLesson(MATH_lesson-3) error = %v", err)
	}
	if !strings.HasPrefix(l.Photo, "mem://") {
		t.Errorf("photo = %q, want a stored image", l.Photo)
	}
}

func TestStartRefusals(t *testing.T) {
	h := newHarness(t, AdminSecret{})

	tests := []struct {
		name string
		user content.User
		kind session.Kind
		cfg  bool
		want error
	}{
		{name: "no modules for upload", user: h.user, kind: session.KindUploadLesson, cfg: true},
		{name: "no lessons for update", user: h.user, kind: session.KindUpdateLesson, cfg: true},
		{name: "no lessons for delete", user: h.user, kind: session.KindDeleteLesson, cfg: true},
		{name: "no lessons for add test", user: h.user, kind: session.KindAddTest, cfg: true},
		{name: "no lessons for edit test", user: h.user, kind: session.KindEditTest, cfg: true},
		{name: "no modules for delete", user: h.user, kind: session.KindDeleteModule, cfg: true},
		{name: "admin registration without secret", user: content.User{ID: 9}, kind: session.KindAdminRegistration, cfg: true},
		{name: "student in admin wizard", user: content.User{ID: 9}, kind: session.KindAddModule, want: ErrAdminOnly},
		{name: "unknown kind", user: h.user, kind: "bogus", want: ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &session.Session{UserID: tt.user.ID}
			_, err := h.engine.Start(h.ctx, s, tt.user, tt.kind)
			if tt.cfg {
				var cfg *ConfigurationError
				if !errors.As(err, &cfg) {
					t.Fatalf("Start() error = %v, want ConfigurationError", err)
				}
			} else if !errors.Is(err, tt.want) {
				t.Fatalf("Start() error = %v, want %v", err, tt.want)
			}
			if s.Active() {
				t.Errorf("session became active: %+v", s)
			}
		})
	}
}

type storeSnapshot struct {
	Modules   []content.Module
	Lessons   []content.Lesson
	Questions []content.Question
	Users     []content.User
}

func (h *harness) snapshot(lessonCode string) storeSnapshot {
	h.t.Helper()
	var snap storeSnapshot
	var err error
	if snap.Modules, err = h.store.ListModules(h.ctx); err != nil {
		h.t.Fatal(err)
	}
	if snap.Lessons, err = h.store.AllLessons(h.ctx); err != nil {
		h.t.Fatal(err)
	}
	if snap.Questions, err = h.store.ListQuestions(h.ctx, lessonCode); err != nil {
		h.t.Fatal(err)
	}
	if snap.Users, err = h.store.ListUsers(h.ctx); err != nil {
		h.t.Fatal(err)
	}
	return snap
}

func TestCancelLeavesStoreUnchanged(t *testing.T) {
	admin := content.User{ID: 1, FirstName: "Ada", IsAdmin: true}
	newcomer := content.User{ID: 5, Username: "newcomer"}
	registered := content.User{ID: 6, FirstName: "Bo", LastName: "Lee"}

	// Each path walks a wizard up to, but not including, its committing input.
	tests := []struct {
		kind  session.Kind
		user  content.User
		path  []Input
		steps []session.Step
	}{
		{
			kind:  session.KindUploadLesson,
			user:  admin,
			path:  []Input{Button("module:MATH"), Text("x"), Skip(), Text("https://v")},
			steps: []session.Step{"module", "text", "photo", "video", "notes"},
		},
		{
			kind:  session.KindUpdateLesson,
			user:  admin,
			path:  []Input{Button("module:MATH"), Button("lesson:MATH_lesson-1"), Button("field:text")},
			steps: []session.Step{"module", "lesson", "field", "value"},
		},
		{
			kind:  session.KindDeleteLesson,
			user:  admin,
			path:  []Input{Button("module:MATH"), Button("lesson:MATH_lesson-1")},
			steps: []session.Step{"module", "lesson", "confirm"},
		},
		{
			kind:  session.KindAddModule,
			user:  admin,
			path:  []Input{Text("NEW"), Text("New module")},
			steps: []session.Step{"code", "text", "photo"},
		},
		{
			kind:  session.KindDeleteModule,
			user:  admin,
			path:  []Input{Button("module:MATH")},
			steps: []session.Step{"module", "confirm"},
		},
		{
			kind:  session.KindAddTest,
			user:  admin,
			path:  []Input{Button("module:MATH"), Button("lesson:MATH_lesson-1"), Text("Q2?"), Text("a\nb"), Text("1"), Skip()},
			steps: []session.Step{"module", "lesson", "q_text", "q_options", "q_correct", "q_photo", "q_preview"},
		},
		{
			kind:  session.KindEditTest,
			user:  admin,
			path:  []Input{Button("module:MATH"), Button("lesson:MATH_lesson-1"), Button("question:1"), Button("field:question"), Text("Changed?")},
			steps: []session.Step{"module", "lesson", "pick", "field", "value", "preview"},
		},
		{
			kind:  session.KindEditTest,
			user:  admin,
			path:  []Input{Button("module:MATH"), Button("lesson:MATH_lesson-1"), Button("question:1"), Button("field:delete")},
			steps: []session.Step{"module", "lesson", "pick", "field", "delete"},
		},
		{
			kind:  session.KindEditTest,
			user:  admin,
			path:  []Input{Button("module:MATH"), Button("lesson:MATH_lesson-1"), Button(TokenAddQuestion), Text("Q2?"), Text("a\nb\nc"), Text("3")},
			steps: []session.Step{"module", "lesson", "pick", "q_text", "q_options", "q_correct", "q_photo"},
		},
		{
			kind:  session.KindAdminRegistration,
			user:  newcomer,
			steps: []session.Step{"code"},
		},
		{
			kind:  session.KindStudentRegistration,
			user:  newcomer,
			path:  []Input{Text("Maria")},
			steps: []session.Step{"first_name", "last_name"},
		},
		{
			kind:  session.KindStudentRegistration,
			user:  registered,
			path:  []Input{Button(TokenUpdate), Text("Maria")},
			steps: []session.Step{"confirm_update", "first_name", "last_name"},
		},
	}

	for _, tt := range tests {
		for n, want := range tt.steps {
			t.Run(fmt.Sprintf("%s/%s", tt.kind, want), func(t *testing.T) {
				h := newHarness(t, AdminSecret{Code: "s3cret"})
				h.module("MATH")
				l := h.lesson("MATH")
				h.question(l.Code, []string{"a", "b"}, 1)
				if _, err := h.store.EnsureUser(h.ctx, registered); err != nil {
					t.Fatal(err)
				}
				h.user = tt.user

				out := h.start(tt.kind)
				before := h.snapshot(l.Code)
				for _, in := range tt.path[:n] {
					out = h.send(in)
				}
				h.expectStep(want)
				if !hasToken(last(t, out).Buttons, TokenCancel) {
					t.Errorf("prompt for %s has no cancel button", want)
				}

				out = h.send(Button(TokenCancel))
				h.expectIdle()
				if got := last(t, out).Text; got != "❌ Cancelled." {
					t.Errorf("cancel reply = %q", got)
				}
				if after := h.snapshot(l.Code); !reflect.DeepEqual(before, after) {
					t.Errorf("store changed by a cancelled wizard:\nbefore %+v\nafter  %+v", before, after)
				}
				if h.imgs.Len() != 0 {
					t.Errorf("images stored = %d, want 0", h.imgs.Len())
				}
				if got := h.events.Types(); len(got) != 0 {
					t.Errorf("events = %v, want none", got)
				}
			})
		}
	}
}

func TestHandleIdleSession(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	if out := h.send(Text("hello")); out != nil {
		t.Errorf("Handle() on idle session = %v, want nil", out)
	}
}

func TestButtonsRequired(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	h.start(session.KindUploadLesson)

	expectWarning(t, h.send(Text("MATH")))
	h.expectStep("module")
	expectWarning(t, h.send(Button("module:NOPE")))
}

func TestUpdateLesson(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	h.module("EMPTY")
	l := h.lesson("MATH")

	msg := last(t, h.start(session.KindUpdateLesson))
	if hasToken(msg.Buttons, "module:EMPTY") {
		t.Error("module without lessons offered for update")
	}
	h.send(Button("module:MATH"))
	h.send(Button("lesson:" + l.Code))
	h.expectStep("field")

	h.send(Button("field:video"))
	h.expectStep("value")
	expectWarning(t, h.send(Text("not a link")))

	out := h.send(Text("https://video/new"))
	h.expectStep("field")
	if out[0].Text != "✅ Saved." {
		t.Errorf("first reply = %q, want saved notice", out[0].Text)
	}

	h.send(Button("field:text"))
	h.send(Button(TokenBack))
	h.expectStep("field")

	h.send(Button("field:photo"))
	h.send(Image([]byte("img")))
	h.send(Button(TokenFinish))
	h.expectIdle()

	got, _ := h.store.GetLesson(h.ctx, l.Code)
	if got.VideoURL != "https://video/new" {
		t.Errorf("video = %q", got.VideoURL)
	}
	if got.Text != l.Text {
		t.Errorf("text changed to %q", got.Text)
	}
	if !strings.HasPrefix(got.Photo, "mem://") {
		t.Errorf("photo = %q", got.Photo)
	}
	if n := len(h.events.Events()); n != 2 {
		t.Errorf("events = %d, want 2", n)
	}
}

func TestDeleteLessonReconciles(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	l1 := h.lesson("MATH")
	l2 := h.lesson("MATH")
	h.question(l1.Code, []string{"a", "b"}, 1)

	student := content.User{ID: 5}
	h.store.EnsureUser(h.ctx, student)
	h.store.MarkLessonCompleted(h.ctx, student.ID, l1.Code)
	h.store.MarkLessonCompleted(h.ctx, student.ID, l2.Code)
	h.store.SaveScore(h.ctx, content.Score{UserID: student.ID, TestCode: l1.TestCode(), Score: 1, Total: 1})

	h.start(session.KindDeleteLesson)
	h.send(Button("module:MATH"))
	h.send(Button("lesson:" + l1.Code))
	h.expectStep("confirm")
	h.send(Button(TokenConfirm))
	h.expectIdle()

	if _, err := h.store.GetLesson(h.ctx, l1.Code); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("GetLesson() error = %v, want ErrNotFound", err)
	}
	qs, _ := h.store.ListQuestions(h.ctx, l1.Code)
	if len(qs) != 0 {
		t.Errorf("questions left = %d", len(qs))
	}
	progress, _ := h.store.ListProgress(h.ctx, student.ID)
	if len(progress) != 1 || progress[0].LessonCode != l2.Code {
		t.Errorf("progress = %+v, want only %s", progress, l2.Code)
	}
	scores, _ := h.store.ListScores(h.ctx, student.ID)
	if len(scores) != 0 {
		t.Errorf("scores = %+v, want none", scores)
	}
}

func TestAddModule(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("PHYS")

	h.start(session.KindAddModule)
	expectWarning(t, h.send(Text("bad code!")))
	expectWarning(t, h.send(Text("PHYS")))
	h.expectStep("code")

	h.send(Text("MATH"))
	h.send(Text("Mathematics"))
	h.expectStep("photo")
	expectWarning(t, h.send(Skip()))
	h.expectStep("photo")

	h.send(Image([]byte("img")))
	h.expectIdle()

	m, err := h.store.GetModule(h.ctx, "MATH")
	if err != nil {
		t.Fatalf("GetModule() error = %v", err)
	}
	if m.Text != "Mathematics" || !strings.HasPrefix(m.Photo, "mem://") {
		t.Errorf("module = %+v", m)
	}
}

func TestDeleteModuleCascades(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	h.module("PHYS")
	l := h.lesson("MATH")
	keep := h.lesson("PHYS")
	h.question(l.Code, []string{"a", "b"}, 2)
	h.store.EnsureUser(h.ctx, content.User{ID: 5})
	h.store.MarkLessonCompleted(h.ctx, 5, l.Code)

	h.start(session.KindDeleteModule)
	h.send(Button("module:MATH"))
	h.send(Button(TokenConfirm))
	h.expectIdle()

	if _, err := h.store.GetModule(h.ctx, "MATH"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("GetModule() error = %v", err)
	}
	all, _ := h.store.AllLessons(h.ctx)
	if len(all) != 1 || all[0].Code != keep.Code {
		t.Errorf("lessons = %+v", all)
	}
	progress, _ := h.store.ListProgress(h.ctx, 5)
	if len(progress) != 0 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestAddTest(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	l := h.lesson("MATH")

	h.start(session.KindAddTest)
	h.send(Button("module:MATH"))
	h.send(Button("lesson:" + l.Code))
	h.expectStep("q_text")

	h.send(Text("2+2?"))
	expectWarning(t, h.send(Text("only one")))
	h.send(Text("3\n4\n5"))
	h.expectStep("q_correct")
	expectWarning(t, h.send(Text("4")))
	h.send(Button("question:2"))
	h.send(Skip())
	h.expectStep("q_preview")

	// Edit discards the draft.
	h.send(Button(TokenBack))
	h.expectStep("q_text")
	h.send(Text("2+2?"))
	h.send(Text("3\n4\n5"))
	h.send(Text("2"))
	h.send(Skip())
	msg := last(t, h.send(Skip()))
	if !strings.HasPrefix(msg.Text, "⚠️ ") {
		t.Fatalf("skip at preview should be rejected, got %q", msg.Text)
	}
	h.send(Button(TokenConfirm))
	h.expectStep("q_more")

	h.send(Button(TokenMore))
	h.send(Text("1+1?"))
	h.send(Text("1\n2"))
	h.send(Text("2"))
	h.send(Image([]byte("img")))
	h.send(Button(TokenConfirm))
	h.send(Button(TokenFinish))
	h.expectIdle()

	qs, _ := h.store.ListQuestions(h.ctx, l.Code)
	if len(qs) != 2 {
		t.Fatalf("questions = %d, want 2", len(qs))
	}
	if qs[0].Text != "2+2?" || qs[0].Correct != 2 || len(qs[0].Options) != 3 || qs[0].Photo != images.DefaultReference {
		t.Errorf("first question = %+v", qs[0])
	}
	if !strings.HasPrefix(qs[1].Photo, "mem://") {
		t.Errorf("second question photo = %q", qs[1].Photo)
	}
}

func (h *harness) editQuestion(l content.Lesson, idx string) {
	h.t.Helper()
	h.start(session.KindEditTest)
	h.send(Button("module:" + l.ModuleCode))
	h.send(Button("lesson:" + l.Code))
	h.expectStep("pick")
	h.send(Button("question:" + idx))
	h.expectStep("field")
}

func TestEditTestOptionsShrinkBelowCorrect(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	l := h.lesson("MATH")
	q := h.question(l.Code, []string{"a", "b", "c"}, 3)

	h.editQuestion(l, "1")
	h.send(Button("field:options"))
	expectWarning(t, h.send(Text("x\ny")))
	h.expectStep("value")

	got, _ := h.store.ListQuestions(h.ctx, l.Code)
	if len(got[0].Options) != 3 {
		t.Fatalf("options changed to %v", got[0].Options)
	}

	h.send(Text("x\ny\nz"))
	h.expectStep("preview")
	out := h.send(Button(TokenConfirm))
	h.expectStep("field")
	if out[0].Text != "✅ Question updated." {
		t.Errorf("notice = %q", out[0].Text)
	}

	got, _ = h.store.ListQuestions(h.ctx, l.Code)
	if got[0].ID != q.ID || strings.Join(got[0].Options, ",") != "x,y,z" || got[0].Correct != 3 {
		t.Errorf("question = %+v", got[0])
	}
}

func TestEditTestChangeCorrect(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	l := h.lesson("MATH")
	h.question(l.Code, []string{"a", "b"}, 1)

	h.editQuestion(l, "1")
	h.send(Button("field:correct"))
	expectWarning(t, h.send(Text("3")))
	h.send(Text("2"))
	h.expectStep("preview")

	// Going back drops the proposal.
	h.send(Button(TokenBack))
	h.expectStep("field")
	got, _ := h.store.ListQuestions(h.ctx, l.Code)
	if got[0].Correct != 1 {
		t.Fatalf("correct = %d, want unchanged 1", got[0].Correct)
	}

	h.send(Button("field:correct"))
	h.send(Button("question:2"))
	h.send(Button(TokenConfirm))
	got, _ = h.store.ListQuestions(h.ctx, l.Code)
	if got[0].Correct != 2 {
		t.Errorf("correct = %d, want 2", got[0].Correct)
	}
}

func TestEditTestAddQuestionReturnsToList(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	l := h.lesson("MATH")
	h.question(l.Code, []string{"a", "b"}, 1)

	h.start(session.KindEditTest)
	h.send(Button("module:MATH"))
	h.send(Button("lesson:" + l.Code))
	h.send(Button(TokenAddQuestion))
	h.expectStep("q_text")
	h.send(Text("New?"))
	h.send(Text("yes\nno"))
	h.send(Text("1"))
	h.send(Skip())
	out := h.send(Button(TokenConfirm))
	h.expectStep("pick")
	if out[0].Text != "✅ Question added." {
		t.Errorf("notice = %q", out[0].Text)
	}
	if h.sess.Data.Return != "" {
		t.Errorf("return step not cleared: %q", h.sess.Data.Return)
	}

	qs, _ := h.store.ListQuestions(h.ctx, l.Code)
	if len(qs) != 2 {
		t.Errorf("questions = %d, want 2", len(qs))
	}
	if !hasToken(last(t, out).Buttons, "question:2") {
		t.Error("list does not offer the new question")
	}
}

func TestEditTestDeleteQuestion(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	l := h.lesson("MATH")
	h.question(l.Code, []string{"a", "b"}, 1)
	h.question(l.Code, []string{"c", "d"}, 2)

	h.editQuestion(l, "2")
	h.send(Button("field:delete"))
	h.expectStep("delete")
	h.send(Button(TokenBack))
	h.expectStep("field")
	h.send(Button("field:delete"))
	h.send(Button(TokenConfirm))
	h.expectStep("pick")

	h.send(Button("question:1"))
	h.send(Button("field:delete"))
	out := h.send(Button(TokenConfirm))
	h.expectIdle()
	if !strings.Contains(texts(out), "no questions left") {
		t.Errorf("final reply = %q", texts(out))
	}
	if got := h.events.Types(); len(got) != 2 || got[1] != events.QuestionDeleted {
		t.Errorf("events = %v", got)
	}
}

func TestEditTestVanishedQuestionAborts(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	l := h.lesson("MATH")
	q := h.question(l.Code, []string{"a", "b"}, 1)

	h.editQuestion(l, "1")
	h.send(Button("field:question"))
	if err := h.store.DeleteQuestion(h.ctx, q.ID); err != nil {
		t.Fatal(err)
	}
	out := h.send(Text("Rewritten?"))
	h.expectIdle()
	if !strings.Contains(last(t, out).Text, "no longer exists") {
		t.Errorf("reply = %q", last(t, out).Text)
	}
}

func TestEditTestPickOutOfRange(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	l := h.lesson("MATH")
	h.question(l.Code, []string{"a", "b"}, 1)

	h.start(session.KindEditTest)
	h.send(Button("module:MATH"))
	h.send(Button("lesson:" + l.Code))
	expectWarning(t, h.send(Button("question:5")))
	h.expectStep("pick")
}

func TestStorageFailureAborts(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	h.start(session.KindUploadLesson)
	h.send(Button("module:MATH"))
	h.send(Text("x"))
	h.send(Skip())
	h.send(Text("https://v"))

	h.store.FailWith = errors.New("connection refused")
	out := h.send(Text("https://n"))
	h.expectIdle()
	if !strings.Contains(last(t, out).Text, "Something went wrong") {
		t.Errorf("reply = %q", last(t, out).Text)
	}
}

func TestImageSaveFailureReprompts(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.module("MATH")
	h.start(session.KindUploadLesson)
	h.send(Button("module:MATH"))
	h.send(Text("x"))

	h.imgs.FailWith = errors.New("disk full")
	expectWarning(t, h.send(Image([]byte("img"))))
	h.expectStep("photo")

	h.imgs.FailWith = nil
	h.send(Image([]byte("img")))
	h.expectStep("video")
}

func TestAdminLosesRightsMidWizard(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.start(session.KindAddModule)
	h.user.IsAdmin = false
	h.send(Text("MATH"))
	h.expectIdle()
}

func TestAdminRegistration(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-code"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		secret AdminSecret
		code   string
	}{
		{name: "plain code", secret: AdminSecret{Code: "s3cret"}, code: "s3cret"},
		{name: "bcrypt hash", secret: AdminSecret{Code: "ignored", Hash: string(hash)}, code: "hashed-code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.secret)
			h.user = content.User{ID: 42, Username: "mentor"}

			h.start(session.KindAdminRegistration)
			h.expectStep("code")
			for i := 0; i < 3; i++ {
				out := h.send(Text("wrong"))
				if !strings.Contains(last(t, out).Text, "Wrong code") {
					t.Fatalf("reply = %q", last(t, out).Text)
				}
			}
			h.expectStep("code")

			out := h.send(Text(" " + tt.code + " "))
			if !strings.Contains(last(t, out).Text, "Wrong code") {
				t.Fatalf("padded code reply = %q, want an exact match required", last(t, out).Text)
			}
			h.expectStep("code")

			h.send(Text(tt.code))
			h.expectIdle()
			u, err := h.store.GetUser(h.ctx, 42)
			if err != nil {
				t.Fatalf("GetUser() error = %v", err)
			}
			if !u.IsAdmin {
				t.Error("user was not granted admin")
			}
			if got := h.events.Types(); len(got) != 1 || got[0] != events.AdminRegistered {
				t.Errorf("events = %v", got)
			}
		})
	}
}

func TestAdminRegistrationAlreadyAdmin(t *testing.T) {
	h := newHarness(t, AdminSecret{Code: "x"})
	out := h.start(session.KindAdminRegistration)
	h.expectIdle()
	if !strings.Contains(texts(out), "already an administrator") {
		t.Errorf("reply = %q", texts(out))
	}
}

func TestStudentRegistration(t *testing.T) {
	h := newHarness(t, AdminSecret{})
	h.user = content.User{ID: 7, Username: "kid"}

	h.start(session.KindStudentRegistration)
	h.expectStep("first_name")
	expectWarning(t, h.send(Text("J0hn")))
	expectWarning(t, h.send(Text("John Paul")))
	h.send(Text("  John "))
	h.expectStep("last_name")
	out := h.send(Text("Smith"))
	h.expectIdle()
	if !strings.Contains(texts(out), "John Smith") {
		t.Errorf("reply = %q", texts(out))
	}

	u, _ := h.store.GetUser(h.ctx, 7)
	if u.FirstName != "John" || u.LastName != "Smith" || u.Username != "kid" {
		t.Errorf("user = %+v", u)
	}

	// A registered user is asked before the name is overwritten.
	h.start(session.KindStudentRegistration)
	h.expectStep("confirm_update")
	expectWarning(t, h.send(Text("yes")))
	h.send(Button(TokenUpdate))
	h.expectStep("first_name")
	h.send(Button(TokenCancel))
	h.expectIdle()

	u, _ = h.store.GetUser(h.ctx, 7)
	if u.FirstName != "John" {
		t.Errorf("cancel changed the name to %q", u.FirstName)
	}
}

func TestFormatQuestion(t *testing.T) {
	got := FormatQuestion(content.Question{Text: "Q", Options: []string{"a", "b"}, Correct: 2})
	want := "❓ Q\n\n1. a\n2. b\n\n✅ Correct answer: 2"
	if got != want {
		t.Errorf("FormatQuestion() = %q, want %q", got, want)
	}
}
