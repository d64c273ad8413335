package wizard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/validate"
)

var (
	cancelButton  = chat.Button{Text: "❌ Cancel", Data: TokenCancel}
	confirmButton = chat.Button{Text: "✅ Confirm", Data: TokenConfirm}
	skipButton    = chat.Button{Text: "⏭ Skip", Data: TokenSkip}
	finishButton  = chat.Button{Text: "🏁 Finish", Data: TokenFinish}
)

func hasToken(rows [][]chat.Button, token string) bool {
	for _, row := range rows {
		for _, b := range row {
			if b.Data == token {
				return true
			}
		}
	}
	return false
}

func rejectf(format string, args ...any) error {
	return &validate.Error{Reason: fmt.Sprintf(format, args...)}
}

// buttonValue returns the part of a button token after prefix.
func buttonValue(in Input, prefix string) (string, bool) {
	if in.Kind != InputButton || !strings.HasPrefix(in.Token, prefix) {
		return "", false
	}
	return strings.TrimPrefix(in.Token, prefix), true
}

func textValue(in Input) (string, error) {
	if in.Kind != InputText {
		return "", rejectf("Please send text.")
	}
	return strings.TrimSpace(in.Text), nil
}

func requireModules(ctx context.Context, e *Engine, _ *call) (transition, error) {
	modules, err := e.store.ListModules(ctx)
	if err != nil {
		return transition{}, err
	}
	if len(modules) == 0 {
		return transition{}, &ConfigurationError{Reason: "There are no modules yet. Add a module first."}
	}
	return transition{}, nil
}

func requireLessons(ctx context.Context, e *Engine, _ *call) (transition, error) {
	lessons, err := e.store.AllLessons(ctx)
	if err != nil {
		return transition{}, err
	}
	if len(lessons) == 0 {
		return transition{}, &ConfigurationError{Reason: "There are no lessons yet. Upload a lesson first."}
	}
	return transition{}, nil
}

// selectModuleStep lists modules as buttons. With withLessons, only modules
// that contain at least one lesson can be chosen.
func selectModuleStep(title string, withLessons bool, next session.Step) step {
	return step{
		prompt: func(ctx context.Context, e *Engine, _ *call) (chat.OutboundMessage, error) {
			modules, err := e.store.ListModules(ctx)
			if err != nil {
				return chat.OutboundMessage{}, err
			}
			var rows [][]chat.Button
			for _, m := range modules {
				if withLessons {
					lessons, err := e.store.ListLessons(ctx, m.Code)
					if err != nil {
						return chat.OutboundMessage{}, err
					}
					if len(lessons) == 0 {
						continue
					}
				}
				rows = append(rows, []chat.Button{{Text: m.Code, Data: prefixModule + m.Code}})
			}
			if len(rows) == 0 {
				return chat.OutboundMessage{}, &ConfigurationError{Reason: "There is nothing to choose from yet."}
			}
			return chat.OutboundMessage{Text: title + "\n\nChoose a module:", Buttons: rows}, nil
		},
		accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
			code, ok := buttonValue(in, prefixModule)
			if !ok {
				return transition{}, rejectf("Choose a module using the buttons.")
			}
			if _, err := e.store.GetModule(ctx, code); err != nil {
				return transition{}, err
			}
			if withLessons {
				lessons, err := e.store.ListLessons(ctx, code)
				if err != nil {
					return transition{}, err
				}
				if len(lessons) == 0 {
					return transition{}, rejectf("Module %s has no lessons yet. Choose another module.", code)
				}
			}
			c.data().ModuleCode = code
			return goTo(next), nil
		},
	}
}

func selectLessonStep(next session.Step) step {
	return step{
		prompt: func(ctx context.Context, e *Engine, c *call) (chat.OutboundMessage, error) {
			lessons, err := e.store.ListLessons(ctx, c.data().ModuleCode)
			if err != nil {
				return chat.OutboundMessage{}, err
			}
			if len(lessons) == 0 {
				return chat.OutboundMessage{}, fmt.Errorf("lessons of module %s: %w", c.data().ModuleCode, content.ErrNotFound)
			}
			var rows [][]chat.Button
			for _, l := range lessons {
				rows = append(rows, []chat.Button{{Text: fmt.Sprintf("Lesson %d", l.Number), Data: prefixLesson + l.Code}})
			}
			return chat.OutboundMessage{Text: fmt.Sprintf("Module %s. Choose a lesson:", c.data().ModuleCode), Buttons: rows}, nil
		},
		accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
			code, ok := buttonValue(in, prefixLesson)
			if !ok {
				return transition{}, rejectf("Choose a lesson using the buttons.")
			}
			l, err := e.store.GetLesson(ctx, code)
			if err != nil {
				return transition{}, err
			}
			if l.ModuleCode != c.data().ModuleCode {
				return transition{}, rejectf("Choose a lesson from module %s.", c.data().ModuleCode)
			}
			c.data().LessonCode = code
			return goTo(next), nil
		},
	}
}

// photo stores an uploaded image, or substitutes the default on skip when
// allowSkip is set. Other inputs are rejected.
func (e *Engine) photo(ctx context.Context, in Input, allowSkip bool) (string, error) {
	switch {
	case in.Kind == InputImage && len(in.Image) > 0:
		ref, err := e.images.Save(ctx, in.Image)
		if err != nil {
			slog.Warn("image save failed", "error", err)
			return "", rejectf("Could not save the image. Please send it again.")
		}
		return ref, nil
	case allowSkip && (in.Kind == InputSkip || in.is(TokenSkip)):
		return e.images.Default(), nil
	case allowSkip:
		return "", rejectf("Send a photo or press Skip.")
	default:
		return "", rejectf("Send a photo.")
	}
}

func photoPrompt(text string, allowSkip bool) chat.OutboundMessage {
	msg := chat.OutboundMessage{Text: text}
	if allowSkip {
		msg.Buttons = [][]chat.Button{{skipButton}}
	}
	return msg
}

// confirmStep is a yes/no gate. Cancel is handled by the driver; back, when
// backTo is set, returns to that step.
func confirmStep(text func(ctx context.Context, e *Engine, c *call) (string, error), backTo session.Step, onConfirm acceptFunc) step {
	return step{
		prompt: func(ctx context.Context, e *Engine, c *call) (chat.OutboundMessage, error) {
			t, err := text(ctx, e, c)
			if err != nil {
				return chat.OutboundMessage{}, err
			}
			row := []chat.Button{confirmButton}
			if backTo != "" {
				row = append(row, chat.Button{Text: "⬅️ Back", Data: TokenBack})
			}
			return chat.OutboundMessage{Text: t, Buttons: [][]chat.Button{row}}, nil
		},
		accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
			switch {
			case in.is(TokenConfirm):
				return onConfirm(ctx, e, c, in)
			case backTo != "" && in.is(TokenBack):
				return goTo(backTo), nil
			}
			return transition{}, rejectf("Press Confirm or Cancel.")
		},
	}
}

// parseIndexToken reads the 1-based index from a "question:<n>" token.
func parseIndexToken(in Input) (int, bool) {
	v, ok := buttonValue(in, prefixQuestion)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// FormatQuestion renders a question with its numbered options.
func FormatQuestion(q content.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❓ %s\n", q.Text)
	for i, o := range q.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, o)
	}
	fmt.Fprintf(&b, "\n\n✅ Correct answer: %d", q.Correct)
	return b.String()
}
