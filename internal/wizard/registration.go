package wizard

import (
	"context"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/events"
	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/validate"
)

func adminRegistrationFlow() *flow {
	return &flow{
		first: "code",
		begin: func(_ context.Context, e *Engine, c *call) (transition, error) {
			if c.user.IsAdmin {
				return finish("✅ You are already an administrator. Use /admin to open the admin menu."), nil
			}
			if !e.secret.configured() {
				return transition{}, &ConfigurationError{Reason: "Administrator registration is not available."}
			}
			return transition{}, nil
		},
		steps: map[session.Step]step{
			"code": {
				prompt: staticPrompt("🔐 Send the administrator code."),
				accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
					if in.Kind != InputText {
						return transition{}, rejectf("Please send text.")
					}
					// The code must match exactly, surrounding spaces included.
					if !e.secret.matches(in.Text) {
						return transition{}, rejectf("Wrong code. Try again.")
					}
					u, err := e.store.EnsureUser(ctx, c.user)
					if err != nil {
						return transition{}, fmt.Errorf("ensure user: %w", err)
					}
					if err := e.store.SetAdmin(ctx, u.ID, true); err != nil {
						return transition{}, fmt.Errorf("grant admin: %w", err)
					}
					e.log(ctx, c, events.AdminRegistered, nil)
					return finish("✅ You are now an administrator. Use /admin to open the admin menu."), nil
				},
			},
		},
	}
}

func (a AdminSecret) matches(code string) bool {
	if code == "" {
		return false
	}
	if a.Hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.Hash), []byte(code)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(a.Code), []byte(code)) == 1
}

func studentRegistrationFlow() *flow {
	return &flow{
		first: "first_name",
		begin: func(ctx context.Context, e *Engine, c *call) (transition, error) {
			u, err := e.store.EnsureUser(ctx, c.user)
			if err != nil {
				return transition{}, fmt.Errorf("ensure user: %w", err)
			}
			if u.Registered() {
				return goTo("confirm_update"), nil
			}
			return transition{}, nil
		},
		steps: map[session.Step]step{
			"confirm_update": {
				prompt: func(ctx context.Context, e *Engine, c *call) (chat.OutboundMessage, error) {
					u, err := e.store.GetUser(ctx, c.user.ID)
					if err != nil {
						return chat.OutboundMessage{}, err
					}
					return chat.OutboundMessage{
						Text: fmt.Sprintf("You are registered as %s. Do you want to change your name?", u.DisplayName()),
						Buttons: [][]chat.Button{{
							{Text: "✏️ Update", Data: TokenUpdate},
							cancelButton,
						}},
					}, nil
				},
				accept: func(_ context.Context, _ *Engine, _ *call, in Input) (transition, error) {
					if !in.is(TokenUpdate) {
						return transition{}, rejectf("Press Update or Cancel.")
					}
					return goTo("first_name"), nil
				},
			},
			"first_name": {
				prompt: staticPrompt("👤 Send your first name."),
				accept: func(_ context.Context, _ *Engine, c *call, in Input) (transition, error) {
					name, err := nameValue(in)
					if err != nil {
						return transition{}, err
					}
					c.data().FirstName = name
					return goTo("last_name"), nil
				},
			},
			"last_name": {
				prompt: staticPrompt("👤 Send your last name."),
				accept: func(ctx context.Context, e *Engine, c *call, in Input) (transition, error) {
					last, err := nameValue(in)
					if err != nil {
						return transition{}, err
					}
					first := c.data().FirstName
					if err := e.store.UpdateUserName(ctx, c.user.ID, first, last); err != nil {
						return transition{}, fmt.Errorf("update user name: %w", err)
					}
					e.log(ctx, c, events.UserRegistered, map[string]any{"first_name": first, "last_name": last})
					u := content.User{FirstName: first, LastName: last}
					return finish(fmt.Sprintf("✅ Thank you, %s! You are registered.", u.DisplayName())), nil
				},
			},
		},
	}
}

func nameValue(in Input) (string, error) {
	s, err := textValue(in)
	if err != nil {
		return "", err
	}
	return validate.CheckPersonName(s)
}
