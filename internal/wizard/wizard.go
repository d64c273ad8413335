// Package wizard runs the multi-step admin and registration dialogs.
//
// Each wizard kind is a table of named steps. A step renders a prompt and
// accepts one Input, returning the next step or an error. The driver in this
// file owns what every wizard shares: cancellation, re-prompting after a
// validation failure, and aborting to idle on missing data or storage errors.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/events"
	"github.com/p-n-ai/lesson-bot/internal/images"
	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/validate"
)

// InputKind tags an Input.
type InputKind int

const (
	InputText InputKind = iota + 1
	InputImage
	InputSkip
	InputButton
)

// Input is one user event delivered to the active wizard.
type Input struct {
	Kind  InputKind
	Text  string
	Image []byte
	Token string
}

func Text(s string) Input { return Input{Kind: InputText, Text: s} }

func Image(data []byte) Input { return Input{Kind: InputImage, Image: data} }

func Skip() Input { return Input{Kind: InputSkip} }

func Button(token string) Input { return Input{Kind: InputButton, Token: token} }

func (in Input) is(tok string) bool {
	return in.Kind == InputButton && in.Token == tok
}

// Button tokens understood by the wizards.
const (
	TokenCancel      = "cancel"
	TokenConfirm     = "confirm"
	TokenBack        = "back"
	TokenFinish      = "finish"
	TokenMore        = "more"
	TokenAddQuestion = "add_question"
	TokenUpdate      = "update"
	TokenSkip        = "skip"

	prefixModule   = "module:"
	prefixLesson   = "lesson:"
	prefixQuestion = "question:"
	prefixField    = "field:"
)

var (
	// ErrAdminOnly is returned by Start for admin wizards and non-admin users.
	ErrAdminOnly = errors.New("this action is for administrators only")
	// ErrUnknownKind is returned by Start for a kind with no wizard.
	ErrUnknownKind = errors.New("unknown wizard")
)

// ConfigurationError means a wizard cannot start because data or settings it
// depends on are missing.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// AdminSecret holds the admin registration code. Hash, when set, is a bcrypt
// hash and takes precedence over Code.
type AdminSecret struct {
	Code string
	Hash string
}

func (a AdminSecret) configured() bool {
	return a.Code != "" || a.Hash != ""
}

// Engine drives wizards against the content and image stores.
type Engine struct {
	store  content.Store
	images images.Storage
	events events.Logger
	secret AdminSecret
}

func New(store content.Store, imgs images.Storage, logger events.Logger, secret AdminSecret) *Engine {
	if logger == nil {
		logger = events.NopLogger{}
	}
	return &Engine{store: store, images: imgs, events: logger, secret: secret}
}

// call is the per-input context handed to steps.
type call struct {
	s    *session.Session
	user content.User
}

func (c *call) data() *session.Data {
	return &c.s.Data
}

type promptFunc func(ctx context.Context, e *Engine, c *call) (chat.OutboundMessage, error)
type acceptFunc func(ctx context.Context, e *Engine, c *call, in Input) (transition, error)

type step struct {
	prompt promptFunc
	accept acceptFunc
}

// transition is the result of a successful accept.
type transition struct {
	next   session.Step
	notice string
	done   bool
	final  []chat.OutboundMessage
}

func goTo(next session.Step) transition { return transition{next: next} }

func finish(notice string) transition { return transition{done: true, notice: notice} }

type flow struct {
	admin bool
	first session.Step
	// begin runs before the first prompt. It may refuse with a
	// ConfigurationError, pick another first step, or end immediately.
	begin func(ctx context.Context, e *Engine, c *call) (transition, error)
	steps map[session.Step]step
}

var flows map[session.Kind]*flow

func init() {
	flows = map[session.Kind]*flow{
		session.KindUploadLesson:        uploadLessonFlow(),
		session.KindUpdateLesson:        updateLessonFlow(),
		session.KindDeleteLesson:        deleteLessonFlow(),
		session.KindAddModule:           addModuleFlow(),
		session.KindDeleteModule:        deleteModuleFlow(),
		session.KindAddTest:             addTestFlow(),
		session.KindEditTest:            editTestFlow(),
		session.KindAdminRegistration:   adminRegistrationFlow(),
		session.KindStudentRegistration: studentRegistrationFlow(),
	}
}

// Start enters the first step of kind and returns its prompt. On error the
// session is left unchanged.
func (e *Engine) Start(ctx context.Context, s *session.Session, user content.User, kind session.Kind) ([]chat.OutboundMessage, error) {
	f, ok := flows[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if f.admin && !user.IsAdmin {
		return nil, ErrAdminOnly
	}

	probe := &session.Session{UserID: s.UserID}
	probe.Begin(kind, f.first)
	c := &call{s: probe, user: user}

	var out []chat.OutboundMessage
	if f.begin != nil {
		tr, err := f.begin(ctx, e, c)
		if err != nil {
			return nil, err
		}
		out = append(out, tr.messages()...)
		if tr.done {
			return out, nil
		}
		if tr.next != "" {
			probe.Step = tr.next
		}
	}

	msg, err := e.prompt(ctx, c)
	if err != nil {
		return nil, err
	}
	*s = *probe
	return append(out, msg), nil
}

// Handle feeds one input to the session's active wizard.
func (e *Engine) Handle(ctx context.Context, s *session.Session, user content.User, in Input) []chat.OutboundMessage {
	if !s.Active() {
		return nil
	}
	if in.is(TokenCancel) {
		slog.Info("wizard cancelled", "user_id", user.ID, "kind", s.Kind, "step", s.Step)
		s.Reset()
		return []chat.OutboundMessage{{Text: "❌ Cancelled."}}
	}

	f, ok := flows[s.Kind]
	if !ok {
		return e.abort(s, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind))
	}
	if f.admin && !user.IsAdmin {
		s.Reset()
		return []chat.OutboundMessage{{Text: "⛔ " + ErrAdminOnly.Error() + "."}}
	}
	st, ok := f.steps[s.Step]
	if !ok {
		return e.abort(s, fmt.Errorf("wizard %s has no step %q", s.Kind, s.Step))
	}

	c := &call{s: s, user: user}
	tr, err := st.accept(ctx, e, c, in)
	if err != nil {
		var verr *validate.Error
		if errors.As(err, &verr) {
			return e.reprompt(ctx, c, verr.Reason)
		}
		return e.abort(s, err)
	}

	out := tr.messages()
	if tr.done {
		s.Reset()
		return out
	}
	s.Step = tr.next
	msg, err := e.prompt(ctx, c)
	if err != nil {
		return append(out, e.abort(s, err)...)
	}
	return append(out, msg)
}

func (tr transition) messages() []chat.OutboundMessage {
	var out []chat.OutboundMessage
	if tr.notice != "" {
		out = append(out, chat.OutboundMessage{Text: tr.notice})
	}
	return append(out, tr.final...)
}

// prompt renders the current step and appends the cancel button.
func (e *Engine) prompt(ctx context.Context, c *call) (chat.OutboundMessage, error) {
	st, ok := flows[c.s.Kind].steps[c.s.Step]
	if !ok {
		return chat.OutboundMessage{}, fmt.Errorf("wizard %s has no step %q", c.s.Kind, c.s.Step)
	}
	msg, err := st.prompt(ctx, e, c)
	if err != nil {
		return chat.OutboundMessage{}, err
	}
	if !hasToken(msg.Buttons, TokenCancel) {
		msg.Buttons = append(msg.Buttons, []chat.Button{cancelButton})
	}
	return msg, nil
}

func (e *Engine) reprompt(ctx context.Context, c *call, reason string) []chat.OutboundMessage {
	msg, err := e.prompt(ctx, c)
	if err != nil {
		return e.abort(c.s, err)
	}
	msg.Text = "⚠️ " + reason + "\n\n" + msg.Text
	return []chat.OutboundMessage{msg}
}

// abort drops the wizard and explains why.
func (e *Engine) abort(s *session.Session, err error) []chat.OutboundMessage {
	kind, step := s.Kind, s.Step
	s.Reset()
	if errors.Is(err, content.ErrNotFound) {
		slog.Warn("wizard target vanished", "user_id", s.UserID, "kind", kind, "step", step, "error", err)
		return []chat.OutboundMessage{{Text: "⚠️ The selected item no longer exists. Start again from the menu."}}
	}
	var cfg *ConfigurationError
	if errors.As(err, &cfg) {
		return []chat.OutboundMessage{{Text: "⚠️ " + cfg.Reason}}
	}
	slog.Error("wizard failed", "user_id", s.UserID, "kind", kind, "step", step, "error", err)
	return []chat.OutboundMessage{{Text: "⚠️ Something went wrong while saving. Please try again."}}
}

func (e *Engine) log(ctx context.Context, c *call, eventType string, data map[string]any) {
	events.Log(ctx, e.events, c.user.ID, eventType, data)
}
