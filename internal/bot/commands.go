package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/stats"
	"github.com/p-n-ai/lesson-bot/internal/wizard"
)

const helpText = `ℹ️ *Help*
Here is what I can do:
✦ /start — start learning and pick a module
✦ /modules — browse modules and lessons
✦ /account — see your progress
✦ /register — set your name
✦ /about — about us
✦ /contacts — how to reach us
✦ /cancel — cancel the current action

Pick a module, go through its lessons and pass the tests. Good luck! 🚀`

const aboutText = `ℹ️ *About us*
We build simple tools that make learning interesting and effective.

✉️ Support: @SupportBot`

const contactsText = `📞 *Contacts*
✦ Support: @SupportBot
✦ Email: support@learningbot.com
✦ Channel: @LearningHub`

const adminHelpText = `ℹ️ *Admin help*
✦ Upload lesson: pick a module, then send text, photo, video and notes links.
✦ Update lesson: change any single field of a lesson.
✦ Add test / Edit tests: write questions with 2 or 3 options.
✦ Add module / Delete module: manage the module list.
✦ Statistics: student progress, filters and XLSX export (/export).

Type "skip" to use the default image where a photo is optional. Press Cancel or send /cancel to stop at any step.`

func (e *Engine) handleCommand(ctx context.Context, req *request, text string) []chat.OutboundMessage {
	cmd := strings.Fields(text)[0]
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i] // "/start@SomeBot" in group chats
	}

	if cmd == "/cancel" {
		return e.cancel(ctx, req)
	}
	// Any other command abandons the current wizard or test.
	if req.sess.Active() || req.sess.Quiz != nil {
		slog.Info("command interrupts session", "user_id", req.user.ID, "command", cmd, "kind", req.sess.Kind)
		req.sess.Reset()
	}

	switch cmd {
	case "/start":
		return e.handleStart(ctx, req)
	case "/help":
		return []chat.OutboundMessage{{Text: helpText, ParseMode: "Markdown"}}
	case "/about":
		return []chat.OutboundMessage{{Text: aboutText, ParseMode: "Markdown"}}
	case "/contacts":
		return []chat.OutboundMessage{{Text: contactsText, ParseMode: "Markdown"}}
	case "/modules":
		return e.moduleMenu(ctx)
	case "/account":
		return e.handleAccount(ctx, req)
	case "/register":
		return e.startWizard(ctx, req, session.KindStudentRegistration)
	case "/admin_register":
		return e.startWizard(ctx, req, session.KindAdminRegistration)
	case "/admin":
		if !req.user.IsAdmin {
			return []chat.OutboundMessage{adminOnly()}
		}
		return []chat.OutboundMessage{adminMenu("🛠 *Admin menu*\nChoose an action:")}
	case "/stats":
		if !req.user.IsAdmin {
			return []chat.OutboundMessage{adminOnly()}
		}
		return e.statsOverview(ctx)
	case "/export":
		if !req.user.IsAdmin {
			return []chat.OutboundMessage{adminOnly()}
		}
		return e.export(ctx)
	default:
		return []chat.OutboundMessage{{Text: fmt.Sprintf("Unknown command: %s\nUse /help to see what I can do.", cmd)}}
	}
}

func (e *Engine) cancel(ctx context.Context, req *request) []chat.OutboundMessage {
	switch {
	case req.sess.Active():
		return e.wizards.Handle(ctx, req.sess, req.user, wizard.Button(wizard.TokenCancel))
	case req.sess.Quiz != nil:
		req.sess.Reset()
		return []chat.OutboundMessage{{Text: "❌ Test cancelled. Your previous result is kept."}}
	}
	return []chat.OutboundMessage{{Text: "There is nothing to cancel."}}
}

func (e *Engine) handleStart(ctx context.Context, req *request) []chat.OutboundMessage {
	if !req.known {
		return []chat.OutboundMessage{{Text: `👋 Welcome to the learning bot!

📝 To start learning, please register first: /register
📚 After registering, the learning modules are available via /modules
ℹ️ To see everything I can do, use /help or the menu below 💬

🚀 Good luck!`}}
	}

	menu := e.moduleMenu(ctx)
	welcome := chat.OutboundMessage{
		Text:      "👋 *Welcome back!*\n\n📚 Your learning modules are below and under /modules.\nℹ️ See all commands with /help.\n\nHave a productive session! 🚀",
		ParseMode: "Markdown",
	}
	if len(menu) == 1 && len(menu[0].Buttons) > 0 {
		welcome.Buttons = menu[0].Buttons
	}
	return []chat.OutboundMessage{welcome}
}

func (e *Engine) handleAccount(ctx context.Context, req *request) []chat.OutboundMessage {
	if !req.known {
		return []chat.OutboundMessage{{Text: "👋 Hi! To see your profile you need to register first.\nUse /register to set your first and last name."}}
	}
	if _, err := e.content.Reconcile(ctx); err != nil {
		slog.Warn("reconcile before account view failed", "user_id", req.user.ID, "error", err)
	}

	st, err := e.stats.Student(ctx, req.user.ID)
	if err != nil {
		slog.Error("failed to load account", "user_id", req.user.ID, "error", err)
		return []chat.OutboundMessage{{Text: "⚠️ Could not load your profile. Please try again later."}}
	}

	name := st.User.DisplayName()
	if st.User.FirstName == "" && st.User.LastName == "" {
		name = "Not set (use /register)"
	}
	bar := "No lessons are available yet."
	if st.Lessons > 0 {
		bar = stats.ProgressBar(st.CompletedCount(), st.Lessons)
	}

	var scores []string
	for _, sc := range st.Scores {
		scores = append(scores, fmt.Sprintf("➤ %s: %d/%d", sc.TestCode, sc.Score, sc.Total))
	}
	scoreText := "— No tests taken yet"
	if len(scores) > 0 {
		scoreText = strings.Join(scores, "\n")
	}

	return []chat.OutboundMessage{{Text: fmt.Sprintf(
		"📊 Your profile\nName: %s\nID: %d\n\n✦ Learning progress\nCompleted lessons: %d/%d\n%s\n\n✦ Test results\n%s",
		name, st.User.ID, st.CompletedCount(), st.Lessons, bar, scoreText,
	)}}
}
