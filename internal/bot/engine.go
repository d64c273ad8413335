// Package bot dispatches chat events to commands, the active wizard, the
// active test attempt, or menu buttons, and renders the replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/quiz"
	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/stats"
	"github.com/p-n-ai/lesson-bot/internal/wizard"
)

// skipWords are typed answers that count as pressing Skip in a wizard.
var skipWords = map[string]bool{"нет": true, "skip": true, "no": true}

const technicalError = "⚠️ Something went wrong. Please try again later."

// EngineConfig holds dependencies for the bot engine.
type EngineConfig struct {
	Content  content.Store
	Sessions session.Store // defaults to an in-memory store
	Wizards  *wizard.Engine
	Quiz     *quiz.Service
	Stats    *stats.Service
}

// Engine is the chat event processor.
type Engine struct {
	content  content.Store
	sessions session.Store
	wizards  *wizard.Engine
	quiz     *quiz.Service
	stats    *stats.Service
	locks    userLocks
}

// NewEngine creates a bot engine.
func NewEngine(cfg EngineConfig) *Engine {
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}
	statsSvc := cfg.Stats
	if statsSvc == nil {
		statsSvc = stats.NewService(cfg.Content)
	}
	return &Engine{
		content:  cfg.Content,
		sessions: sessions,
		wizards:  cfg.Wizards,
		quiz:     cfg.Quiz,
		stats:    statsSvc,
		locks:    userLocks{locks: make(map[int64]*userLock)},
	}
}

// request is one inbound event with its resolved user and session.
type request struct {
	msg  chat.InboundMessage
	user content.User
	// known is false until the user has a stored row.
	known bool
	sess  *session.Session
}

// ProcessMessage handles one inbound event and returns the replies. Events of
// the same user are handled one at a time.
func (e *Engine) ProcessMessage(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error) {
	userID, err := strconv.ParseInt(msg.UserID, 10, 64)
	if err != nil || userID == 0 {
		return nil, fmt.Errorf("invalid user id %q", msg.UserID)
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	slog.Info("processing message",
		"channel", msg.Channel,
		"user_id", userID,
		"callback", msg.CallbackData,
		"has_image", msg.HasImage,
		"text_len", len(msg.Text),
	)

	req := &request{msg: msg}
	req.user, req.known, err = e.resolveUser(ctx, userID, msg)
	if err != nil {
		slog.Error("failed to load user", "user_id", userID, "error", err)
		return []chat.OutboundMessage{{Text: technicalError}}, nil
	}
	req.sess, err = e.sessions.Get(ctx, userID)
	if err != nil {
		slog.Error("failed to load session", "user_id", userID, "error", err)
		return []chat.OutboundMessage{{Text: technicalError}}, nil
	}

	out := e.dispatch(ctx, req)

	if err := e.sessions.Save(ctx, req.sess); err != nil {
		slog.Error("failed to save session", "user_id", userID, "error", err)
	}
	return out, nil
}

func (e *Engine) resolveUser(ctx context.Context, id int64, msg chat.InboundMessage) (content.User, bool, error) {
	u, err := e.content.GetUser(ctx, id)
	if err == nil {
		return u, true, nil
	}
	if errors.Is(err, content.ErrNotFound) {
		// Names stay empty until the user registers.
		return content.User{ID: id, Username: msg.Username}, false, nil
	}
	return content.User{}, false, err
}

func (e *Engine) dispatch(ctx context.Context, req *request) []chat.OutboundMessage {
	msg := req.msg
	text := strings.TrimSpace(msg.Text)

	if !msg.IsCallback() && strings.HasPrefix(text, "/") {
		return e.handleCommand(ctx, req, text)
	}

	if req.sess.Active() {
		if msg.CallbackData == tokenExitAdmin {
			req.sess.Reset()
			return []chat.OutboundMessage{{Text: "👋 You left the admin menu."}}
		}
		return e.wizards.Handle(ctx, req.sess, req.user, wizardInput(msg))
	}

	if msg.IsCallback() {
		return e.handleButton(ctx, req, msg.CallbackData)
	}
	if req.sess.Quiz != nil {
		return []chat.OutboundMessage{{Text: "Use the buttons under the question to answer."}}
	}
	return []chat.OutboundMessage{{Text: "❓ I did not understand that. Use /help to see what I can do."}}
}

// wizardInput maps a chat event onto a wizard input.
func wizardInput(msg chat.InboundMessage) wizard.Input {
	switch {
	case msg.IsCallback():
		return wizard.Button(msg.CallbackData)
	case msg.HasImage:
		return wizard.Image(msg.ImageData)
	}
	if skipWords[strings.ToLower(strings.TrimSpace(msg.Text))] {
		return wizard.Skip()
	}
	return wizard.Text(msg.Text)
}

// startWizard enters a wizard and turns start refusals into notices.
func (e *Engine) startWizard(ctx context.Context, req *request, kind session.Kind) []chat.OutboundMessage {
	out, err := e.wizards.Start(ctx, req.sess, req.user, kind)
	if err == nil {
		return out
	}
	var cfg *wizard.ConfigurationError
	switch {
	case errors.Is(err, wizard.ErrAdminOnly):
		return []chat.OutboundMessage{adminOnly()}
	case errors.As(err, &cfg):
		return []chat.OutboundMessage{{Text: "⚠️ " + cfg.Reason}}
	case errors.Is(err, wizard.ErrUnknownKind):
		return []chat.OutboundMessage{{Text: "⚠️ Unknown action."}}
	}
	slog.Error("failed to start wizard", "user_id", req.user.ID, "kind", kind, "error", err)
	return []chat.OutboundMessage{{Text: technicalError}}
}

func adminOnly() chat.OutboundMessage {
	return chat.OutboundMessage{Text: "⛔ This action is for administrators only."}
}

// userLocks hands out one mutex per user and forgets it once unused.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(id int64) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.locks[id]
	if !ok {
		ul = &userLock{}
		l.locks[id] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
