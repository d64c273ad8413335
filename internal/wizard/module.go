package wizard

import (
	"context"
	"errors"
	"fmt"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/events"
	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/validate"
)

func addModuleFlow() *flow {
	return &flow{
		admin: true,
		first: "code",
		steps: map[session.Step]step{
			"code": {
				prompt: staticPrompt("🧩 New module.\n\nSend the module code: up to 20 latin letters, digits or underscores."),
				accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
					code, err := textValue(in)
					if err != nil {
						return transition{}, err
					}
					if err := validate.CheckModuleCodeShape(code); err != nil {
						return transition{}, err
					}
					_, err = e.store.GetModule(ctx, code)
					switch {
					case err == nil:
						return transition{}, rejectf("Module code %s is already in use.", code)
					case !errors.Is(err, content.ErrNotFound):
						return transition{}, err
					}
					c.data().ModuleCode = code
					return goTo("text"), nil
				},
			},
			"text": {
				prompt: staticPrompt("Send the module description."),
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
					return photoPrompt("Send the module photo. A photo is required for modules.", false), nil
				},
				accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
					ref, err := e.photo(ctx, in, false)
					if err != nil {
						return transition{}, err
					}
					d := c.data()
					m, err := e.store.CreateModule(ctx, content.Module{Code: d.ModuleCode, Text: d.Text, Photo: ref})
					if err != nil {
						return transition{}, fmt.Errorf("create module: %w", err)
					}
					e.log(ctx, c, events.ModuleCreated, map[string]any{"module_code": m.Code})
					return finish(fmt.Sprintf("✅ Module %s created.", m.Code)), nil
				},
			},
		},
	}
}

func deleteModuleFlow() *flow {
	return &flow{
		admin: true,
		first: "module",
		begin: requireModules,
		steps: map[session.Step]step{
			"module": selectModuleStep("🗑 Delete a module.", false, "confirm"),
			"confirm": confirmStep(
				func(ctx context.Context, e *Engine, c *call) (string, error) {
					lessons, err := e.store.ListLessons(ctx, c.data().ModuleCode)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("Delete module %s with its %d lesson(s) and all their tests? Student progress for them will be removed too.",
						c.data().ModuleCode, len(lessons)), nil
				},
				"",
				func(ctx context.Context, e *Engine, c *call, _ Input) (transition, error) {
					code := c.data().ModuleCode
					if err := e.store.DeleteModule(ctx, code); err != nil {
						return transition{}, fmt.Errorf("delete module: %w", err)
					}
					e.log(ctx, c, events.ModuleDeleted, map[string]any{"module_code": code})
					if _, err := e.store.Reconcile(ctx); err != nil {
						return transition{}, fmt.Errorf("reconcile after deleting %s: %w", code, err)
					}
					return finish(fmt.Sprintf("✅ Module %s deleted.", code)), nil
				},
			),
		},
	}
}
