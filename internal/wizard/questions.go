package wizard

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/events"
	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/validate"
)

// Question authoring steps shared by Add Test and Edit Test. After a
// confirmed add, control goes to Data.Return when set, otherwise to "more".
func authoringSteps(steps map[session.Step]step) {
	steps["q_text"] = step{
		prompt: func(_ context.Context, _ *Engine, c *call) (chat.OutboundMessage, error) {
			return chat.OutboundMessage{Text: fmt.Sprintf("Lesson %s. Send the question text.", c.data().LessonCode)}, nil
		},
		accept: func(_ context.Context, _ *Engine, c *call, in Input) (transition, error) {
			text, err := textValue(in)
			if err != nil {
				return transition{}, err
			}
			if err := validate.CheckText(text); err != nil {
				return transition{}, err
			}
			c.data().Draft = session.Draft{Text: text}
			return goTo("q_options"), nil
		},
	}
	steps["q_options"] = step{
		prompt: staticPrompt("Send 2 or 3 answer options, one per line."),
		accept: func(_ context.Context, _ *Engine, c *call, in Input) (transition, error) {
			text, err := textValue(in)
			if err != nil {
				return transition{}, err
			}
			opts, err := validate.CheckOptions(text)
			if err != nil {
				return transition{}, err
			}
			c.data().Draft.Options = opts
			return goTo("q_correct"), nil
		},
	}
	steps["q_correct"] = step{
		prompt: func(_ context.Context, _ *Engine, c *call) (chat.OutboundMessage, error) {
			return correctPrompt(c.data().Draft.Options), nil
		},
		accept: func(_ context.Context, _ *Engine, c *call, in Input) (transition, error) {
			n, err := indexValue(in, len(c.data().Draft.Options))
			if err != nil {
				return transition{}, err
			}
			c.data().Draft.Correct = n
			return goTo("q_photo"), nil
		},
	}
	steps["q_photo"] = step{
		prompt: func(context.Context, *Engine, *call) (chat.OutboundMessage, error) {
			return photoPrompt("Send a photo for the question, or press Skip to use the default image.", true), nil
		},
		accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
			ref, err := e.photo(ctx, in, true)
			if err != nil {
				return transition{}, err
			}
			c.data().Draft.Photo = ref
			return goTo("q_preview"), nil
		},
	}
	steps["q_preview"] = step{
		prompt: func(_ context.Context, _ *Engine, c *call) (chat.OutboundMessage, error) {
			q := c.data().Draft.Question(c.data().LessonCode)
			return previewMessage(q), nil
		},
		accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
			d := c.data()
			switch {
			case in.is(TokenBack):
				d.Draft = session.Draft{}
				return goTo("q_text"), nil
			case !in.is(TokenConfirm):
				return transition{}, rejectf("Press Confirm to save the question or Edit to start it over.")
			}

			q, err := e.store.CreateQuestion(ctx, d.Draft.Question(d.LessonCode))
			if err != nil {
				return transition{}, fmt.Errorf("create question: %w", err)
			}
			e.log(ctx, c, events.QuestionCreated, map[string]any{"lesson_code": d.LessonCode, "question_id": q.ID})
			d.Draft = session.Draft{}
			if d.Return != "" {
				next := d.Return
				d.Return = ""
				return transition{next: next, notice: "✅ Question added."}, nil
			}
			return goTo("q_more"), nil
		},
	}
}

func addTestFlow() *flow {
	steps := map[session.Step]step{
		"module": selectModuleStep("📝 Add test questions.", true, "lesson"),
		"lesson": selectLessonStep("q_text"),
		"q_more": {
			prompt: func(context.Context, *Engine, *call) (chat.OutboundMessage, error) {
				return chat.OutboundMessage{
					Text: "✅ Question saved. Add another one?",
					Buttons: [][]chat.Button{{
						{Text: "➕ Add another", Data: TokenMore},
						finishButton,
					}},
				}, nil
			},
			accept: func(_ context.Context, _ *Engine, _ *call, in Input) (transition, error) {
				switch {
				case in.is(TokenMore):
					return goTo("q_text"), nil
				case in.is(TokenFinish):
					return finish("✅ Test saved."), nil
				}
				return transition{}, rejectf("Press Add another or Finish.")
			},
		},
	}
	authoringSteps(steps)
	return &flow{admin: true, first: "module", begin: requireLessons, steps: steps}
}

var questionFields = []struct {
	field string
	label string
}{
	{"question", "📝 Question"},
	{"options", "🔢 Options"},
	{"correct", "✅ Correct answer"},
	{"photo", "🖼 Photo"},
	{"delete", "🗑 Delete"},
}

func editTestFlow() *flow {
	steps := map[session.Step]step{
		"module": selectModuleStep("✏️ Edit test questions.", true, "lesson"),
		"lesson": selectLessonStep("pick"),
		"pick": {
			prompt: func(ctx context.Context, e *Engine, c *call) (chat.OutboundMessage, error) {
				qs, err := e.store.ListQuestions(ctx, c.data().LessonCode)
				if err != nil {
					return chat.OutboundMessage{}, err
				}
				var b strings.Builder
				fmt.Fprintf(&b, "Lesson %s.", c.data().LessonCode)
				if len(qs) == 0 {
					b.WriteString("\n\nThere are no questions yet.")
				}
				var rows [][]chat.Button
				for i, q := range qs {
					fmt.Fprintf(&b, "\n%d. %s", i+1, q.Text)
					rows = append(rows, []chat.Button{{Text: fmt.Sprintf("%d. %s", i+1, shorten(q.Text, 40)), Data: fmt.Sprintf("%s%d", prefixQuestion, i+1)}})
				}
				rows = append(rows, []chat.Button{{Text: "➕ Add question", Data: TokenAddQuestion}, finishButton})
				return chat.OutboundMessage{Text: b.String(), Buttons: rows}, nil
			},
			accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
				d := c.data()
				switch {
				case in.is(TokenFinish):
					return finish("✅ Test editing finished."), nil
				case in.is(TokenAddQuestion):
					d.Draft = session.Draft{}
					d.Return = "pick"
					return goTo("q_text"), nil
				}
				n, ok := parseIndexToken(in)
				if !ok {
					return transition{}, rejectf("Choose a question using the buttons.")
				}
				qs, err := e.store.ListQuestions(ctx, d.LessonCode)
				if err != nil {
					return transition{}, err
				}
				if n > len(qs) {
					return transition{}, rejectf("There is no question %d.", n)
				}
				d.QuestionIdx = n
				d.QuestionID = qs[n-1].ID
				return goTo("field"), nil
			},
		},
		"field": {
			prompt: func(ctx context.Context, e *Engine, c *call) (chat.OutboundMessage, error) {
				q, err := e.currentQuestion(ctx, c)
				if err != nil {
					return chat.OutboundMessage{}, err
				}
				var rows [][]chat.Button
				for _, f := range questionFields {
					rows = append(rows, []chat.Button{{Text: f.label, Data: prefixField + f.field}})
				}
				rows = append(rows, []chat.Button{{Text: "⬅️ Questions", Data: TokenBack}})
				return chat.OutboundMessage{
					Text:    fmt.Sprintf("Question %d:\n\n%s\n\nWhat do you want to change?", c.data().QuestionIdx, FormatQuestion(q)),
					Photo:   q.Photo,
					Buttons: rows,
				}, nil
			},
			accept: func(_ context.Context, _ *Engine, c *call, in Input) (transition, error) {
				if in.is(TokenBack) {
					return goTo("pick"), nil
				}
				v, ok := buttonValue(in, prefixField)
				if !ok || !validQuestionField(v) {
					return transition{}, rejectf("Choose a field using the buttons.")
				}
				if v == "delete" {
					return goTo("delete"), nil
				}
				c.data().Field = v
				return goTo("value"), nil
			},
		},
		"value": {
			prompt: func(ctx context.Context, e *Engine, c *call) (chat.OutboundMessage, error) {
				switch c.data().Field {
				case "question":
					return chat.OutboundMessage{Text: "Send the new question text."}, nil
				case "options":
					return chat.OutboundMessage{Text: "Send 2 or 3 new answer options, one per line."}, nil
				case "correct":
					q, err := e.currentQuestion(ctx, c)
					if err != nil {
						return chat.OutboundMessage{}, err
					}
					return correctPrompt(q.Options), nil
				default:
					return photoPrompt("Send the new photo, or press Skip to use the default image.", true), nil
				}
			},
			accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
				q, err := e.currentQuestion(ctx, c)
				if err != nil {
					return transition{}, err
				}
				proposed := q
				proposed.Options = append([]string(nil), q.Options...)

				switch c.data().Field {
				case "question":
					text, err := textValue(in)
					if err != nil {
						return transition{}, err
					}
					if err := validate.CheckText(text); err != nil {
						return transition{}, err
					}
					proposed.Text = text
				case "options":
					text, err := textValue(in)
					if err != nil {
						return transition{}, err
					}
					opts, err := validate.CheckOptions(text)
					if err != nil {
						return transition{}, err
					}
					if q.Correct > len(opts) {
						return transition{}, rejectf("The correct answer is option %d, so at least %d options are needed. Change the correct answer first.", q.Correct, q.Correct)
					}
					proposed.Options = opts
				case "correct":
					n, err := indexValue(in, len(q.Options))
					if err != nil {
						return transition{}, err
					}
					proposed.Correct = n
				case "photo":
					ref, err := e.photo(ctx, in, true)
					if err != nil {
						return transition{}, err
					}
					proposed.Photo = ref
				default:
					return transition{}, fmt.Errorf("unknown question field %q", c.data().Field)
				}

				if err := proposed.Check(); err != nil {
					return transition{}, rejectf("This change would leave the question invalid.")
				}
				c.data().Proposed = &proposed
				return goTo("preview"), nil
			},
		},
		"preview": {
			prompt: func(_ context.Context, _ *Engine, c *call) (chat.OutboundMessage, error) {
				p := c.data().Proposed
				if p == nil {
					return chat.OutboundMessage{}, fmt.Errorf("edit preview without a proposed question: %w", content.ErrNotFound)
				}
				return previewMessage(*p), nil
			},
			accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
				d := c.data()
				switch {
				case in.is(TokenBack):
					d.Proposed = nil
					return goTo("field"), nil
				case !in.is(TokenConfirm):
					return transition{}, rejectf("Press Confirm to save the change or Edit to go back.")
				}
				if d.Proposed == nil {
					return transition{}, fmt.Errorf("edit preview without a proposed question: %w", content.ErrNotFound)
				}
				if err := e.store.UpdateQuestion(ctx, *d.Proposed); err != nil {
					return transition{}, fmt.Errorf("update question: %w", err)
				}
				e.log(ctx, c, events.QuestionUpdated, map[string]any{"question_id": d.Proposed.ID, "field": d.Field})
				d.Proposed = nil
				d.Field = ""
				return transition{next: "field", notice: "✅ Question updated."}, nil
			},
		},
		"delete": confirmStep(
			func(ctx context.Context, e *Engine, c *call) (string, error) {
				q, err := e.currentQuestion(ctx, c)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Delete question %d?\n\n%s", c.data().QuestionIdx, FormatQuestion(q)), nil
			},
			"field",
			func(ctx context.Context, e *Engine, c *call, _ Input) (transition, error) {
				d := c.data()
				if err := e.store.DeleteQuestion(ctx, d.QuestionID); err != nil {
					return transition{}, fmt.Errorf("delete question: %w", err)
				}
				e.log(ctx, c, events.QuestionDeleted, map[string]any{"question_id": d.QuestionID, "lesson_code": d.LessonCode})
				d.QuestionID, d.QuestionIdx = 0, 0

				remaining, err := e.store.ListQuestions(ctx, d.LessonCode)
				if err != nil {
					return transition{}, err
				}
				if len(remaining) == 0 {
					return finish("✅ Question deleted. This lesson has no questions left."), nil
				}
				return transition{next: "pick", notice: "✅ Question deleted."}, nil
			},
		),
	}
	authoringSteps(steps)
	return &flow{admin: true, first: "module", begin: requireLessons, steps: steps}
}

// currentQuestion reloads the question being edited by its stored id.
func (e *Engine) currentQuestion(ctx context.Context, c *call) (content.Question, error) {
	d := c.data()
	qs, err := e.store.ListQuestions(ctx, d.LessonCode)
	if err != nil {
		return content.Question{}, err
	}
	for _, q := range qs {
		if q.ID == d.QuestionID {
			return q, nil
		}
	}
	return content.Question{}, fmt.Errorf("question %d: %w", d.QuestionID, content.ErrNotFound)
}

func validQuestionField(f string) bool {
	for _, q := range questionFields {
		if q.field == f {
			return true
		}
	}
	return false
}

func previewMessage(q content.Question) chat.OutboundMessage {
	return chat.OutboundMessage{
		Text:  "👀 Preview:\n\n" + FormatQuestion(q),
		Photo: q.Photo,
		Buttons: [][]chat.Button{{
			confirmButton,
			{Text: "✏️ Edit", Data: TokenBack},
		}},
	}
}

func correctPrompt(options []string) chat.OutboundMessage {
	var b strings.Builder
	b.WriteString("Which option is correct? Send its number.\n")
	var row []chat.Button
	for i, o := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, o)
		n := fmt.Sprint(i + 1)
		row = append(row, chat.Button{Text: n, Data: prefixQuestion + n})
	}
	return chat.OutboundMessage{Text: b.String(), Buttons: [][]chat.Button{row}}
}

// indexValue accepts the option number typed as text or pressed as a button.
func indexValue(in Input, n int) (int, error) {
	if i, ok := parseIndexToken(in); ok {
		if i > n {
			return 0, rejectf("Send a number from 1 to %d.", n)
		}
		return i, nil
	}
	s, err := textValue(in)
	if err != nil {
		return 0, err
	}
	return validate.CheckAnswerIndex(s, n)
}

func shorten(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
