package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/p-n-ai/lesson-bot/internal/bot"
	"github.com/p-n-ai/lesson-bot/internal/chat"
	"github.com/p-n-ai/lesson-bot/internal/content"
	"github.com/p-n-ai/lesson-bot/internal/curriculum"
	"github.com/p-n-ai/lesson-bot/internal/events"
	"github.com/p-n-ai/lesson-bot/internal/images"
	"github.com/p-n-ai/lesson-bot/internal/platform/cache"
	"github.com/p-n-ai/lesson-bot/internal/platform/config"
	"github.com/p-n-ai/lesson-bot/internal/platform/database"
	"github.com/p-n-ai/lesson-bot/internal/quiz"
	"github.com/p-n-ai/lesson-bot/internal/session"
	"github.com/p-n-ai/lesson-bot/internal/wizard"
)

// messageTimeout bounds the handling of one inbound chat event.
const messageTimeout = 30 * time.Second

func main() {
	// A missing .env is normal outside local development.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", envErr)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from LEARN_LOG_LEVEL and LEARN_LOG_FORMAT.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config) error {
	var checks []readinessCheck

	var store content.Store = content.NewMemoryStore()
	var logger events.Logger = events.NopLogger{}
	if cfg.Database.URL != "" {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		pg, err := content.NewPostgresStore(db.Pool)
		if err != nil {
			return err
		}
		store = pg
		logger = events.NewPostgresLogger(db.Pool)
		checks = append(checks, readinessCheck{name: "database", check: db.HealthCheck})
	} else {
		slog.Warn("LEARN_DATABASE_URL not set, content is kept in memory")
	}

	var sessions session.Store = session.NewMemoryStore()
	if cfg.Session.Backend == "redis" {
		c, err := cache.New(ctx, cfg.Cache.URL, "learn")
		if err != nil {
			return err
		}
		defer c.Close()
		rs, err := session.NewRedisStore(c, cfg.Session.TTL())
		if err != nil {
			return err
		}
		sessions = rs
		checks = append(checks, readinessCheck{name: "cache", check: c.HealthCheck})
	}

	imgs, err := images.NewLocalStorage(cfg.Images.Dir, cfg.Images.Default, cfg.Images.MaxSide)
	if err != nil {
		return err
	}

	if cfg.ContentSeedPath != "" {
		if err := seedContent(ctx, cfg.ContentSeedPath, store, imgs.Default()); err != nil {
			return err
		}
	}

	if !cfg.HasAdminSecret() {
		slog.Warn("no admin secret configured, /admin_register is disabled")
	}
	engine := bot.NewEngine(bot.EngineConfig{
		Content:  store,
		Sessions: sessions,
		Wizards: wizard.New(store, imgs, logger, wizard.AdminSecret{
			Code: cfg.Admin.SecretCode,
			Hash: cfg.Admin.SecretHash,
		}),
		Quiz: quiz.NewService(store, logger),
	})

	gateway := chat.NewGateway()
	if cfg.Telegram.BotToken != "" {
		tg, err := chat.NewTelegramChannel(cfg.Telegram.BotToken)
		if err != nil {
			return err
		}
		gateway.Register("telegram", tg)
	}
	var ws *chat.WebSocketChannel
	if cfg.WebSocket.Enabled {
		ws = chat.NewWebSocketChannel()
		gateway.Register("websocket", ws)
	}

	if err := gateway.StartAll(ctx, handleMessage(ctx, engine, gateway)); err != nil {
		return err
	}
	defer func() {
		if err := gateway.StopAll(); err != nil {
			slog.Error("failed to stop channels", "error", err)
		}
	}()

	mux := newMux(checks...)
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// seedContent imports the curriculum bundles found under dir.
func seedContent(ctx context.Context, dir string, store content.Store, defaultPhoto string) error {
	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		return fmt.Errorf("load curriculum: %w", err)
	}
	res, err := loader.Import(ctx, store, defaultPhoto)
	if err != nil {
		return fmt.Errorf("import curriculum: %w", err)
	}
	slog.Info("curriculum imported",
		"path", dir,
		"modules", res.Modules,
		"lessons", res.Lessons,
		"questions", res.Questions,
	)
	return nil
}

// messageProcessor is the part of the bot engine the chat handler needs.
type messageProcessor interface {
	ProcessMessage(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error)
}

// replier delivers replies back to the channel a message came from.
type replier interface {
	Reply(ctx context.Context, in chat.InboundMessage, msgs []chat.OutboundMessage) error
}

// handleMessage returns the channel callback that runs the bot and sends its replies.
func handleMessage(ctx context.Context, p messageProcessor, r replier) func(chat.InboundMessage) {
	return func(msg chat.InboundMessage) {
		msgCtx, cancel := context.WithTimeout(ctx, messageTimeout)
		defer cancel()

		out, err := p.ProcessMessage(msgCtx, msg)
		if err != nil {
			slog.Warn("dropped message", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
			return
		}
		if err := r.Reply(msgCtx, msg, out); err != nil {
			slog.Error("failed to send reply", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
		}
	}
}

// readinessCheck probes one backing service for /readyz.
type readinessCheck struct {
	name  string
	check func(context.Context) error
}

// newMux creates the HTTP router with health check endpoints.
func newMux(checks ...readinessCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks []readinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		failed := map[string]string{}
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				slog.Warn("readiness check failed", "check", c.name, "error", err)
				failed[c.name] = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
