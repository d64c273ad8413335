package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMessageLen = 4096
	telegramMaxCaptionLen = 1024
	telegramMaxImageBytes = 20 << 20
)

// BotCommands is the command menu registered with Telegram on start.
var BotCommands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Main menu"},
	{Command: "modules", Description: "Browse modules"},
	{Command: "account", Description: "My progress"},
	{Command: "register", Description: "Register or change name"},
	{Command: "help", Description: "Help"},
	{Command: "cancel", Description: "Cancel the current action"},
	{Command: "admin", Description: "Admin menu"},
}

// TelegramChannel implements the Channel interface on the Telegram Bot API.
type TelegramChannel struct {
	token    string
	endpoint string
	client   *http.Client
	api      *tgbotapi.BotAPI
	stop     chan struct{}
	stopOnce sync.Once
}

// NewTelegramChannel creates a Telegram channel adapter. The bot API is
// contacted on Start.
func NewTelegramChannel(token string) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required (LEARN_TELEGRAM_BOT_TOKEN)")
	}
	return &TelegramChannel{
		token:    token,
		endpoint: tgbotapi.APIEndpoint,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		stop: make(chan struct{}),
	}, nil
}

func (t *TelegramChannel) connect() error {
	if t.api != nil {
		return nil
	}
	api, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}
	t.api = api
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context, handler func(InboundMessage)) error {
	if err := t.connect(); err != nil {
		return err
	}
	slog.Info("Telegram bot authorised", "username", t.api.Self.UserName)

	if err := t.syncCommands(); err != nil {
		slog.Warn("failed to register telegram commands", "error", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.api.GetUpdatesChan(u)

	go t.pollLoop(ctx, updates, handler)
	return nil
}

func (t *TelegramChannel) Stop() error {
	t.stopOnce.Do(func() {
		close(t.stop)
		if t.api != nil {
			t.api.StopReceivingUpdates()
		}
	})
	return nil
}

func (t *TelegramChannel) pollLoop(ctx context.Context, updates tgbotapi.UpdatesChannel, handler func(InboundMessage)) {
	slog.Info("Telegram long-polling started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.CallbackQuery != nil {
				if _, err := t.api.Request(tgbotapi.NewCallback(u.CallbackQuery.ID, "")); err != nil {
					slog.Warn("failed to answer telegram callback", "error", err)
				}
			}

			msg, ok := mapTelegramInbound(u)
			if !ok {
				continue
			}
			if msg.HasImage && msg.ImageFileID != "" {
				data, err := t.downloadFile(ctx, msg.ImageFileID)
				if err != nil {
					slog.Warn("failed to fetch telegram image", "error", err)
				} else {
					msg.ImageData = data
				}
			}

			go handler(msg)
		}
	}
}

func (t *TelegramChannel) syncCommands() error {
	if _, err := t.api.Request(tgbotapi.NewSetMyCommands(BotCommands...)); err != nil {
		return fmt.Errorf("set my commands: %w", err)
	}
	return nil
}

func (t *TelegramChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	if err := t.connect(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", userID, err)
	}

	if msg.Document != nil {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: msg.Document.Name, Bytes: msg.Document.Data})
		doc.Caption = msg.Text
		return t.send(doc, "document")
	}

	if photo, ok := photoFile(msg.Photo); ok {
		text := msg.Text
		cfg := tgbotapi.NewPhoto(chatID, photo)
		if utf8.RuneCountInString(text) <= telegramMaxCaptionLen {
			cfg.Caption = text
			cfg.ParseMode = msg.ParseMode
			cfg.ReplyMarkup = buildKeyboard(msg.Buttons)
			text = ""
		}
		if err := t.send(cfg, "photo"); err != nil {
			if msg.ParseMode == "" || text != "" {
				return err
			}
			slog.Warn("Telegram caption parse failed, retrying plain", "error", err)
			cfg.ParseMode = ""
			if err := t.send(cfg, "photo"); err != nil {
				return err
			}
		}
		if text == "" {
			return nil
		}
		msg.Text = text
	}

	parts := SplitMessage(msg.Text, telegramMaxMessageLen)
	for i, part := range parts {
		out := tgbotapi.NewMessage(chatID, part)
		out.ParseMode = msg.ParseMode
		if i == len(parts)-1 {
			out.ReplyMarkup = buildKeyboard(msg.Buttons)
		}
		if err := t.send(out, "message"); err != nil {
			if msg.ParseMode == "" {
				return err
			}
			// If Markdown parsing fails, retry without parse mode
			slog.Warn("Telegram markdown parse failed, retrying plain", "error", err)
			out.ParseMode = ""
			if err := t.send(out, "message"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *TelegramChannel) send(c tgbotapi.Chattable, kind string) error {
	if _, err := t.api.Send(c); err != nil {
		return fmt.Errorf("sending Telegram %s: %w", kind, err)
	}
	return nil
}

// photoFile resolves an image reference to something Telegram can upload.
// Local files that no longer exist are skipped so the text still goes out.
func photoFile(ref string) (tgbotapi.RequestFileData, bool) {
	switch {
	case ref == "":
		return nil, false
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return tgbotapi.FileURL(ref), true
	}
	if _, err := os.Stat(ref); err != nil {
		slog.Warn("image file missing, sending text only", "ref", ref)
		return nil, false
	}
	return tgbotapi.FilePath(ref), true
}

func buildKeyboard(rows [][]Button) any {
	if len(rows) == 0 {
		return nil
	}
	var kb [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		if len(buttons) > 0 {
			kb = append(kb, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}
	if len(kb) == 0 {
		return nil
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

// SplitMessage splits text into chunks that fit Telegram's max message length.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		// Find last newline or space within limit
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > 0 {
			cutAt = idx + 1
		} else if idx := strings.LastIndex(text[:maxLen], " "); idx > 0 {
			cutAt = idx + 1
		} else {
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
			if cutAt == 0 {
				cutAt = maxLen
			}
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}

func mapTelegramInbound(u tgbotapi.Update) (InboundMessage, bool) {
	if cb := u.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Data == "" {
			return InboundMessage{}, false
		}
		chatID := cb.From.ID
		if cb.Message != nil && cb.Message.Chat != nil {
			chatID = cb.Message.Chat.ID
		}
		return InboundMessage{
			Channel:      "telegram",
			UserID:       strconv.FormatInt(chatID, 10),
			ExternalID:   strconv.FormatInt(cb.From.ID, 10),
			CallbackData: cb.Data,
			Username:     cb.From.UserName,
			FirstName:    cb.From.FirstName,
			LastName:     cb.From.LastName,
			Language:     cb.From.LanguageCode,
		}, true
	}

	m := u.Message
	if m == nil || m.Chat == nil {
		return InboundMessage{}, false
	}

	text := strings.TrimSpace(m.Text)
	caption := strings.TrimSpace(m.Caption)
	if text == "" && caption != "" {
		text = caption
	}

	hasImage := len(m.Photo) > 0
	if text == "" && !hasImage {
		return InboundMessage{}, false
	}

	msg := InboundMessage{
		Channel:  "telegram",
		UserID:   strconv.FormatInt(m.Chat.ID, 10),
		Text:     text,
		Caption:  caption,
		HasImage: hasImage,
	}
	if m.From != nil {
		msg.ExternalID = strconv.FormatInt(m.From.ID, 10)
		msg.Username = m.From.UserName
		msg.FirstName = m.From.FirstName
		msg.LastName = m.From.LastName
		msg.Language = m.From.LanguageCode
	}
	if hasImage {
		// Telegram sends photos in ascending size order. Keep the largest (last).
		msg.ImageFileID = m.Photo[len(m.Photo)-1].FileID
	}
	return msg, true
}

func (t *TelegramChannel) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	downloadURL, err := t.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("telegram getFile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create file download request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("telegram file download error %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, telegramMaxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read telegram file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("telegram file is empty")
	}
	return data, nil
}
