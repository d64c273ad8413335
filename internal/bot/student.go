package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/quiz"
	"github.com/p-n-ai/lesson-bot/internal/stats"
)

// Global button tokens.
const (
	tokenMenu       = "menu"
	prefixModule    = "show_module:"
	prefixLesson    = "show_lesson:"
	prefixTest      = "test:"
	prefixAnswer    = "answer:"
	tokenExitAdmin  = "exit_admin"
	tokenAdminHelp  = "admin_help"
	tokenStats      = "stats"
	tokenExport     = "export"
	prefixStart     = "start:"
	prefixStatsList = "stats:"
	prefixStudent   = "student:"
)

var titleCase = cases.Title(language.Und)

// moduleTitle renders a module code as a title, "MATH" -> "Math".
func moduleTitle(code string) string {
	return titleCase.String(strings.ReplaceAll(code, "_", " "))
}

func (e *Engine) handleButton(ctx context.Context, req *request, token string) []chat.OutboundMessage {
	switch {
	case token == tokenMenu:
		req.sess.Quiz = nil
		return e.moduleMenu(ctx)
	case strings.HasPrefix(token, prefixModule):
		req.sess.Quiz = nil
		return e.moduleCard(ctx, strings.TrimPrefix(token, prefixModule))
	case strings.HasPrefix(token, prefixLesson):
		req.sess.Quiz = nil
		return e.lessonCard(ctx, strings.TrimPrefix(token, prefixLesson))
	case strings.HasPrefix(token, prefixTest):
		return e.startTest(ctx, req, strings.TrimPrefix(token, prefixTest))
	case strings.HasPrefix(token, prefixAnswer):
		return e.answer(ctx, req, strings.TrimPrefix(token, prefixAnswer))
	}
	return e.handleAdminButton(ctx, req, token)
}

func (e *Engine) moduleMenu(ctx context.Context) []chat.OutboundMessage {
	modules, err := e.content.ListModules(ctx)
	if err != nil {
		slog.Error("failed to list modules", "error", err)
		return []chat.OutboundMessage{{Text: technicalError}}
	}
	if len(modules) == 0 {
		return []chat.OutboundMessage{{Text: "📚 There are no modules yet. Please come back later."}}
	}

	var b strings.Builder
	b.WriteString("👋 Choose a module to start:\n")
	var rows [][]chat.Button
	for _, m := range modules {
		title := moduleTitle(m.Code)
		fmt.Fprintf(&b, "\n— %s module", title)
		rows = append(rows, []chat.Button{{Text: "📘 " + title + " module", Data: prefixModule + m.Code}})
	}
	return []chat.OutboundMessage{{Text: b.String(), Buttons: rows}}
}

func (e *Engine) moduleCard(ctx context.Context, code string) []chat.OutboundMessage {
	m, err := e.content.GetModule(ctx, code)
	if err != nil {
		return notFoundOr(err, "⚠️ Module not found.")
	}
	lessons, err := e.content.ListLessons(ctx, code)
	if err != nil {
		slog.Error("failed to list lessons", "module", code, "error", err)
		return []chat.OutboundMessage{{Text: technicalError}}
	}

	var rows [][]chat.Button
	var row []chat.Button
	for _, l := range lessons {
		row = append(row, chat.Button{Text: fmt.Sprintf("📚 Lesson %d", l.Number), Data: prefixLesson + l.Code})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []chat.Button{{Text: "🔙 Modules", Data: tokenMenu}})

	text := fmt.Sprintf("📘 %s module\n%s\n\nChoose a lesson:", moduleTitle(m.Code), m.Text)
	if len(lessons) == 0 {
		text = fmt.Sprintf("📘 %s module\n%s\n\nThere are no lessons in this module yet.", moduleTitle(m.Code), m.Text)
	}
	return []chat.OutboundMessage{{Text: text, Photo: m.Photo, Buttons: rows}}
}

func lessonKeyboard(l content.Lesson) [][]chat.Button {
	return [][]chat.Button{
		{
			{Text: "▶️ Watch the video", URL: l.VideoURL},
			{Text: "📄 Read the notes", URL: l.NotesURL},
		},
		{{Text: "📝 Take the test", Data: prefixTest + l.Code}},
		{{Text: "🔙 Back", Data: prefixModule + l.ModuleCode}},
	}
}

func (e *Engine) lessonCard(ctx context.Context, code string) []chat.OutboundMessage {
	l, err := e.content.GetLesson(ctx, code)
	if err != nil {
		return notFoundOr(err, "⚠️ Lesson not found.")
	}
	return []chat.OutboundMessage{{
		Text:    fmt.Sprintf("📚 Lesson %d\n%s\n\nChoose an action:", l.Number, l.Text),
		Photo:   l.Photo,
		Buttons: lessonKeyboard(l),
	}}
}

func (e *Engine) startTest(ctx context.Context, req *request, lessonCode string) []chat.OutboundMessage {
	l, err := e.content.GetLesson(ctx, lessonCode)
	if err != nil {
		return notFoundOr(err, "⚠️ Lesson not found.")
	}
	qs, err := e.content.ListQuestions(ctx, l.Code)
	if err != nil {
		slog.Error("failed to list questions", "lesson", l.Code, "error", err)
		return []chat.OutboundMessage{{Text: technicalError}}
	}
	a, err := quiz.Start(l.Code, qs)
	if errors.Is(err, quiz.ErrNoQuestions) {
		return []chat.OutboundMessage{{
			Text:    "⚠️ This lesson has no test yet.",
			Buttons: [][]chat.Button{{{Text: "🔙 Back to the lesson", Data: prefixLesson + l.Code}}},
		}}
	}
	if err != nil {
		slog.Error("failed to start test", "lesson", l.Code, "error", err)
		return []chat.OutboundMessage{{Text: technicalError}}
	}
	req.sess.Quiz = a
	return []chat.OutboundMessage{questionMessage(a, l.Number, "")}
}

// questionMessage renders the attempt's current question with its options.
func questionMessage(a *quiz.Attempt, lessonNumber int, feedback string) chat.OutboundMessage {
	q, _ := a.Current()
	var b strings.Builder
	if feedback != "" {
		b.WriteString(feedback + "\n\n")
	}
	if a.Index == 0 {
		fmt.Fprintf(&b, "📝 Test for lesson %d\n", lessonNumber)
	} else {
		fmt.Fprintf(&b, "📝 Question %d\n", a.Index+1)
	}
	fmt.Fprintf(&b, "%s\n\n📊 Progress: %s", q.Text, stats.ProgressBar(a.Index+1, a.Total()))

	var rows [][]chat.Button
	for i, o := range q.Options {
		rows = append(rows, []chat.Button{{Text: "❓ " + o, Data: answerToken(a, i+1)}})
	}
	rows = append(rows, []chat.Button{{Text: "🔙 Back to the lesson", Data: prefixLesson + a.LessonCode}})
	return chat.OutboundMessage{Text: b.String(), Photo: q.Photo, Buttons: rows}
}

// answerToken binds an option to the test and question it was offered for,
// "answer:<test code>:<question index>:<option>".
func answerToken(a *quiz.Attempt, option int) string {
	return fmt.Sprintf("%s%s:%d:%d", prefixAnswer, a.TestCode, a.Index, option)
}

func parseAnswerToken(raw string) (testCode string, index, option int, ok bool) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, 0, false
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, false
	}
	option, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, false
	}
	return parts[0], index, option, true
}

func (e *Engine) answer(ctx context.Context, req *request, raw string) []chat.OutboundMessage {
	a := req.sess.Quiz
	testCode, index, n, ok := parseAnswerToken(raw)
	if a == nil || !ok || testCode != a.TestCode {
		return []chat.OutboundMessage{{
			Text:    "⚠️ This test is no longer active.",
			Buttons: [][]chat.Button{{{Text: "📚 Modules", Data: tokenMenu}}},
		}}
	}
	_, lessonNumber, _ := content.ParseLessonCode(a.LessonCode)
	if index != a.Index {
		// A repeated tap or a button under an earlier question.
		return []chat.OutboundMessage{questionMessage(a, lessonNumber, "⚠️ That question is already answered. Here is the current one.")}
	}

	outcome, err := a.Answer(n)
	if err != nil {
		return []chat.OutboundMessage{questionMessage(a, lessonNumber, "⚠️ Choose one of the options.")}
	}
	feedback := "✅ Correct!"
	if !outcome.Correct {
		feedback = "❌ Wrong"
	}
	if !outcome.Done {
		return []chat.OutboundMessage{questionMessage(a, lessonNumber, feedback)}
	}

	req.sess.Quiz = nil
	res, err := e.quiz.Finish(ctx, req.user, a)
	if err != nil {
		slog.Error("failed to save test result", "user_id", req.user.ID, "test", a.TestCode, "error", err)
		return []chat.OutboundMessage{{Text: "⚠️ Could not save your result. Please take the test again later."}}
	}

	l, err := e.content.GetLesson(ctx, a.LessonCode)
	if err != nil {
		// The lesson was deleted while the test ran; the score stays until the next reconcile.
		return []chat.OutboundMessage{{
			Text:    fmt.Sprintf("%s\n\n📝 Test finished\nResult: %d/%d", feedback, res.Score, res.Total),
			Buttons: [][]chat.Button{{{Text: "📚 Modules", Data: tokenMenu}}},
		}}
	}

	if res.Passed {
		return []chat.OutboundMessage{{
			Text:    fmt.Sprintf("%s\n\n🎉 Test passed!\nResult: %d/%d\nLesson %d completed!", feedback, res.Score, res.Total, l.Number),
			Photo:   l.Photo,
			Buttons: lessonKeyboard(l),
		}}
	}
	return []chat.OutboundMessage{{
		Text:  fmt.Sprintf("%s\n\n📝 Test finished\nResult: %d/%d\nAnswer every question correctly to complete the lesson.\nTry again:", feedback, res.Score, res.Total),
		Photo: l.Photo,
		Buttons: [][]chat.Button{{
			{Text: "🔄 Retry the test", Data: prefixTest + l.Code},
			{Text: "🔙 Back to the lesson", Data: prefixLesson + l.Code},
		}},
	}}
}

func notFoundOr(err error, notFound string) []chat.OutboundMessage {
	if errors.Is(err, content.ErrNotFound) {
		return []chat.OutboundMessage{{Text: notFound, Buttons: [][]chat.Button{{{Text: "📚 Modules", Data: tokenMenu}}}}}
	}
	slog.Error("failed to load content", "error", err)
	return []chat.OutboundMessage{{Text: technicalError}}
}
