package wizard

import (
	"context"
	"fmt"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/events"
	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/validate"
)

func uploadLessonFlow() *flow {
	return &flow{
		admin: true,
		first: "module",
		begin: requireModules,
		steps: map[session.Step]step{
			"module": selectModuleStep("📤 New lesson.", false, "text"),
			"text": {
				prompt: staticPrompt("Send the lesson text (up to 1000 characters)."),
				accept: func(_ context.Context, _ *Engine, c *call, in Input) (transition, error) {
					text, err := textValue(in)
					if err != nil {
						return transition{}, err
					}
					if err := validate.CheckText(text); err != nil {
						return transition{}, err
					}
					c.data().Text = text
					return goTo("photo"), nil
				},
			},
			"photo": {
				prompt: func(context.Context, *Engine, *call) (chat.OutboundMessage, error) {
					return photoPrompt("Send the lesson photo, or press Skip to use the default image.", true), nil
				},
				accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
					ref, err := e.photo(ctx, in, true)
					if err != nil {
						return transition{}, err
					}
					c.data().Photo = ref
					return goTo("video"), nil
				},
			},
			"video": {
				prompt: staticPrompt("Send the video link (http:// or https://)."),
				accept: func(_ context.Context, _ *Engine, c *call, in Input) (transition, error) {
					url, err := urlValue(in)
					if err != nil {
						return transition{}, err
					}
					c.data().VideoURL = url
					return goTo("notes"), nil
				},
			},
			"notes": {
				prompt: staticPrompt("Send the lecture notes link (http:// or https://)."),
				accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
					url, err := urlValue(in)
					if err != nil {
						return transition{}, err
					}
					d := c.data()
					d.NotesURL = url

					existing, err := e.store.ListLessons(ctx, d.ModuleCode)
					if err != nil {
						return transition{}, err
					}
					l, err := e.store.CreateLesson(ctx, content.Lesson{
						ModuleCode: d.ModuleCode,
						Code:       content.NextLessonCode(d.ModuleCode, existing),
						Text:       d.Text,
						Photo:      d.Photo,
						VideoURL:   d.VideoURL,
						NotesURL:   d.NotesURL,
					})
					if err != nil {
						return transition{}, fmt.Errorf("create lesson: %w", err)
					}
					e.log(ctx, c, events.LessonCreated, map[string]any{"lesson_code": l.Code})
					return finish(fmt.Sprintf("✅ Lesson %s created.", l.Code)), nil
				},
			},
		},
	}
}

var lessonFieldLabels = []struct {
	field content.LessonField
	label string
}{
	{content.LessonText, "📝 Text"},
	{content.LessonPhoto, "🖼 Photo"},
	{content.LessonVideo, "🎬 Video link"},
	{content.LessonNotes, "📎 Notes link"},
}

func updateLessonFlow() *flow {
	return &flow{
		admin: true,
		first: "module",
		begin: requireLessons,
		steps: map[session.Step]step{
			"module": selectModuleStep("✏️ Update a lesson.", true, "lesson"),
			"lesson": selectLessonStep("field"),
			"field": {
				prompt: func(ctx context.Context, e *Engine, c *call) (chat.OutboundMessage, error) {
					l, err := e.store.GetLesson(ctx, c.data().LessonCode)
					if err != nil {
						return chat.OutboundMessage{}, err
					}
					var rows [][]chat.Button
					for _, f := range lessonFieldLabels {
						rows = append(rows, []chat.Button{{Text: f.label, Data: prefixField + string(f.field)}})
					}
					rows = append(rows, []chat.Button{finishButton})
					return chat.OutboundMessage{
						Text:    fmt.Sprintf("Lesson %s.\n\n%s\n\nWhat do you want to change?", l.Code, l.Text),
						Photo:   l.Photo,
						Buttons: rows,
					}, nil
				},
				accept: func(_ context.Context, _ *Engine, c *call, in Input) (transition, error) {
					if in.is(TokenFinish) {
						return finish("✅ Lesson update finished."), nil
					}
					v, ok := buttonValue(in, prefixField)
					if !ok || !validLessonField(content.LessonField(v)) {
						return transition{}, rejectf("Choose a field using the buttons.")
					}
					c.data().Field = v
					return goTo("value"), nil
				},
			},
			"value": {
				prompt: func(_ context.Context, _ *Engine, c *call) (chat.OutboundMessage, error) {
					back := []chat.Button{{Text: "⬅️ Back to fields", Data: TokenBack}}
					switch content.LessonField(c.data().Field) {
					case content.LessonPhoto:
						return photoPrompt("Send the new photo, or press Skip to use the default image.", true), nil
					case content.LessonText:
						return chat.OutboundMessage{Text: "Send the new lesson text.", Buttons: [][]chat.Button{back}}, nil
					default:
						return chat.OutboundMessage{Text: "Send the new link (http:// or https://).", Buttons: [][]chat.Button{back}}, nil
					}
				},
				accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
					d := c.data()
					field := content.LessonField(d.Field)
					if field != content.LessonPhoto && in.is(TokenBack) {
						return goTo("field"), nil
					}

					var value string
					var err error
					switch field {
					case content.LessonPhoto:
						value, err = e.photo(ctx, in, true)
					case content.LessonText:
						if value, err = textValue(in); err == nil {
							err = validate.CheckText(value)
						}
					default:
						value, err = urlValue(in)
					}
					if err != nil {
						return transition{}, err
					}

					if err := e.store.UpdateLesson(ctx, d.LessonCode, field, value); err != nil {
						return transition{}, fmt.Errorf("update lesson: %w", err)
					}
					e.log(ctx, c, events.LessonUpdated, map[string]any{"lesson_code": d.LessonCode, "field": d.Field})
					d.Field = ""
					return transition{next: "field", notice: "✅ Saved."}, nil
				},
			},
		},
	}
}

func deleteLessonFlow() *flow {
	return &flow{
		admin: true,
		first: "module",
		begin: requireLessons,
		steps: map[session.Step]step{
			"module": selectModuleStep("🗑 Delete a lesson.", true, "lesson"),
			"lesson": selectLessonStep("confirm"),
			"confirm": confirmStep(
				func(ctx context.Context, e *Engine, c *call) (string, error) {
					qs, err := e.store.ListQuestions(ctx, c.data().LessonCode)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("Delete lesson %s with its %d test question(s)? Student progress for it will be removed too.",
						c.data().LessonCode, len(qs)), nil
				},
				"",
				func(ctx context.Context, e *Engine, c *call, _ Input) (transition, error) {
					code := c.data().LessonCode
					if err := e.store.DeleteLesson(ctx, code); err != nil {
						return transition{}, fmt.Errorf("delete lesson: %w", err)
					}
					e.log(ctx, c, events.LessonDeleted, map[string]any{"lesson_code": code})
					if _, err := e.store.Reconcile(ctx); err != nil {
						return transition{}, fmt.Errorf("reconcile after deleting %s: %w", code, err)
					}
					return finish(fmt.Sprintf("✅ Lesson %s deleted.", code)), nil
				},
			),
		},
	}
}

func validLessonField(f content.LessonField) bool {
	for _, l := range lessonFieldLabels {
		if l.field == f {
			return true
		}
	}
	return false
}

func urlValue(in Input) (string, error) {
	s, err := textValue(in)
	if err != nil {
		return "", err
	}
	if err := validate.CheckURL(s); err != nil {
		return "", err
	}
	return s, nil
}

func staticPrompt(text string) promptFunc {
	return func(context.Context, *Engine, *call) (chat.OutboundMessage, error) {
		return chat.OutboundMessage{Text: text}, nil
	}
}
