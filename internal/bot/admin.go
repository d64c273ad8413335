package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/stats"
)

var adminActions = []struct {
	label string
	kind  session.Kind
}{
	{"📤 Upload lesson", session.KindUploadLesson},
	{"✏️ Update lessons", session.KindUpdateLesson},
	{"🗑 Delete lesson", session.KindDeleteLesson},
	{"📝 Add test", session.KindAddTest},
	{"✏️ Edit tests", session.KindEditTest},
	{"📚 Add module", session.KindAddModule},
	{"🗑 Delete module", session.KindDeleteModule},
}

// adminMenu lists the admin actions two per row.
func adminMenu(text string) chat.OutboundMessage {
	var buttons []chat.Button
	for _, a := range adminActions {
		buttons = append(buttons, chat.Button{Text: a.label, Data: prefixStart + string(a.kind)})
	}
	buttons = append(buttons,
		chat.Button{Text: "📊 Student progress", Data: tokenStats},
		chat.Button{Text: "❓ Help", Data: tokenAdminHelp},
		chat.Button{Text: "🚪 Exit", Data: tokenExitAdmin},
	)
	return chat.OutboundMessage{Text: text, ParseMode: "Markdown", Buttons: pairs(buttons)}
}

func statsKeyboard() [][]chat.Button {
	var buttons []chat.Button
	for _, f := range stats.Filters {
		buttons = append(buttons, chat.Button{Text: filterLabels[f], Data: prefixStatsList + string(f)})
	}
	buttons = append(buttons,
		chat.Button{Text: "📊 Overview", Data: tokenStats},
		chat.Button{Text: "📥 Export XLSX", Data: tokenExport},
		chat.Button{Text: "🚪 Exit", Data: tokenExitAdmin},
	)
	return pairs(buttons)
}

var filterLabels = map[stats.Filter]string{
	stats.FilterLessonsBelowHalf: "📚 Under 50% of lessons",
	stats.FilterLessonsHalfPlus:  "📚 50% of lessons or more",
	stats.FilterLessonsAll:       "📚 All lessons",
	stats.FilterTestsBelow50:     "📝 Tests < 50%",
	stats.FilterTestsAbove80:     "📝 Tests > 80%",
	stats.SortByLessons:          "🔢 Sort by lessons",
	stats.SortByTests:            "🔢 Sort by tests",
}

func pairs(buttons []chat.Button) [][]chat.Button {
	var rows [][]chat.Button
	for i := 0; i < len(buttons); i += 2 {
		rows = append(rows, buttons[i:min(i+2, len(buttons))])
	}
	return rows
}

func (e *Engine) handleAdminButton(ctx context.Context, req *request, token string) []chat.OutboundMessage {
	if token == tokenExitAdmin {
		return []chat.OutboundMessage{{Text: "👋 You left the admin menu."}}
	}
	if !req.user.IsAdmin {
		return []chat.OutboundMessage{adminOnly()}
	}

	switch {
	case strings.HasPrefix(token, prefixStart):
		return e.startWizard(ctx, req, session.Kind(strings.TrimPrefix(token, prefixStart)))
	case token == tokenAdminHelp:
		return []chat.OutboundMessage{{Text: adminHelpText, ParseMode: "Markdown", Buttons: adminMenu("").Buttons}}
	case token == tokenStats:
		return e.statsOverview(ctx)
	case token == tokenExport:
		return e.export(ctx)
	case strings.HasPrefix(token, prefixStatsList):
		return e.statsList(ctx, stats.Filter(strings.TrimPrefix(token, prefixStatsList)))
	case strings.HasPrefix(token, prefixStudent):
		id, err := strconv.ParseInt(strings.TrimPrefix(token, prefixStudent), 10, 64)
		if err != nil {
			return []chat.OutboundMessage{{Text: "⚠️ Student data not found.", Buttons: statsKeyboard()}}
		}
		return e.studentDetail(ctx, id)
	}

	slog.Warn("unknown button", "user_id", req.user.ID, "token", token)
	return []chat.OutboundMessage{{Text: "⚠️ This button is no longer active."}}
}

func (e *Engine) statsOverview(ctx context.Context) []chat.OutboundMessage {
	o, err := e.stats.Overview(ctx)
	if err != nil {
		slog.Error("failed to compute statistics", "error", err)
		return []chat.OutboundMessage{{Text: technicalError}}
	}
	if o.Students == 0 {
		return []chat.OutboundMessage{adminMenu("📊 *Student progress*\nℹ️ There is no student data yet.")}
	}
	return []chat.OutboundMessage{{
		Text: fmt.Sprintf("📊 Student progress\n✦ Students: %d\n✦ Lessons completed: %d/%d\n✦ Average lesson completion: %.2f%%\n✦ Average test score: %.2f%%\n\nChoose a filter or an action:",
			o.Students, o.CompletedLessons, o.PossibleLessons, o.AvgCompletion, o.AvgTestScore),
		Buttons: statsKeyboard(),
	}}
}

func studentName(u content.User) string {
	if name := u.DisplayName(); name != "" {
		return name
	}
	return fmt.Sprintf("Student %d", u.ID)
}

func (e *Engine) statsList(ctx context.Context, f stats.Filter) []chat.OutboundMessage {
	students, err := e.stats.Students(ctx, f)
	if errors.Is(err, stats.ErrUnknownFilter) {
		return []chat.OutboundMessage{{Text: "⚠️ Unknown filter.", Buttons: statsKeyboard()}}
	}
	if err != nil {
		slog.Error("failed to filter students", "filter", f, "error", err)
		return []chat.OutboundMessage{{Text: technicalError}}
	}
	if len(students) == 0 {
		return []chat.OutboundMessage{{Text: fmt.Sprintf("📊 %s\nℹ️ No students match this filter.", f.Title()), Buttons: statsKeyboard()}}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s\n✦ Students found: %d\n", f.Title(), len(students))
	var rows [][]chat.Button
	for _, st := range students[:min(len(students), stats.ListLimit)] {
		name := studentName(st.User)
		fmt.Fprintf(&b, "\n👤 %s\nLessons: %d/%d (%.2f%%)\nTests: %.2f%%\n", name, st.CompletedCount(), st.Lessons, st.LessonPercent(), st.TestAverage())
		rows = append(rows, []chat.Button{{Text: "👤 " + name, Data: prefixStudent + strconv.FormatInt(st.User.ID, 10)}})
	}
	if len(students) > stats.ListLimit {
		fmt.Fprintf(&b, "\nℹ️ Showing the first %d students.", stats.ListLimit)
	}
	return []chat.OutboundMessage{{Text: b.String(), Buttons: append(rows, statsKeyboard()...)}}
}

func (e *Engine) studentDetail(ctx context.Context, id int64) []chat.OutboundMessage {
	st, err := e.stats.Student(ctx, id)
	if errors.Is(err, content.ErrNotFound) {
		return []chat.OutboundMessage{{Text: "⚠️ Student data not found.", Buttons: statsKeyboard()}}
	}
	if err != nil {
		slog.Error("failed to load student", "student_id", id, "error", err)
		return []chat.OutboundMessage{{Text: technicalError}}
	}

	completed := bulleted(st.Completed, "✔️ ", "— No completed lessons")
	incomplete := bulleted(st.Incomplete, "❌ ", "— All lessons completed")
	var scores []string
	for _, sc := range st.Scores {
		scores = append(scores, fmt.Sprintf("%s: %d/%d (%.2f%%)", sc.TestCode, sc.Score, sc.Total, sc.Percent()))
	}

	return []chat.OutboundMessage{{
		Text: fmt.Sprintf("📋 Student profile\nName: %s\nID: %d\n\n✦ Learning progress\nCompleted lessons: %d/%d\n%s\n\n✦ Completed lessons\n%s\n\n✦ Incomplete lessons\n%s\n\n✦ Test results\n%s\nAverage score: %.2f%%",
			studentName(st.User), st.User.ID,
			st.CompletedCount(), st.Lessons, stats.ProgressBar(st.CompletedCount(), st.Lessons),
			completed, incomplete, bulleted(scores, "➤ ", "— No tests taken"), st.TestAverage()),
		Buttons: statsKeyboard(),
	}}
}

func bulleted(items []string, bullet, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return bullet + strings.Join(items, "\n"+bullet)
}

func (e *Engine) export(ctx context.Context) []chat.OutboundMessage {
	data, err := e.stats.ExportXLSX(ctx)
	if err != nil {
		slog.Error("failed to export statistics", "error", err)
		return []chat.OutboundMessage{{Text: "⚠️ Could not build the export. Please try again later."}}
	}
	return []chat.OutboundMessage{{
		Text:     "📥 Student statistics",
		Document: &chat.Document{Name: "students-" + time.Now().UTC().Format("20060102") + ".xlsx", Data: data},
	}}
}
