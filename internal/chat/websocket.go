package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsInbound is a client frame. Image is base64 in JSON.
type wsInbound struct {
	Text      string `json:"text,omitempty"`
	Callback  string `json:"callback,omitempty"`
	Image     []byte `json:"image,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// wsOutbound is a server frame.
type wsOutbound struct {
	Text     string     `json:"text,omitempty"`
	Photo    string     `json:"photo,omitempty"`
	Buttons  [][]Button `json:"buttons,omitempty"`
	Document *Document  `json:"document,omitempty"`
}

// WebSocketChannel serves a JSON-over-WebSocket chat for web clients. Each
// connection is identified by the numeric user_id query parameter.
type WebSocketChannel struct {
	mu      sync.RWMutex
	conns   map[string]*websocket.Conn
	handler func(InboundMessage)
	ctx     context.Context
	origins []string
}

// NewWebSocketChannel creates the channel. origins lists the host patterns
// allowed to connect cross-origin.
func NewWebSocketChannel(origins ...string) *WebSocketChannel {
	return &WebSocketChannel{
		conns:   make(map[string]*websocket.Conn),
		origins: origins,
	}
}

func (w *WebSocketChannel) Start(ctx context.Context, handler func(InboundMessage)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ctx = ctx
	w.handler = handler
	return nil
}

func (w *WebSocketChannel) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, c := range w.conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		delete(w.conns, id)
	}
	return nil
}

func (w *WebSocketChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	w.mu.RLock()
	c, ok := w.conns[userID]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("websocket user %s not connected", userID)
	}

	frame := wsOutbound{Text: msg.Text, Photo: msg.Photo, Buttons: msg.Buttons, Document: msg.Document}
	if err := wsjson.Write(ctx, c, frame); err != nil {
		return fmt.Errorf("writing websocket frame: %w", err)
	}
	return nil
}

// ServeHTTP upgrades the request and reads frames until the client leaves.
// Frames from one connection are handled in order.
func (w *WebSocketChannel) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if _, err := strconv.ParseInt(userID, 10, 64); err != nil {
		http.Error(rw, "user_id must be numeric", http.StatusBadRequest)
		return
	}

	w.mu.RLock()
	handler, base := w.handler, w.ctx
	w.mu.RUnlock()
	if handler == nil {
		http.Error(rw, "channel not started", http.StatusServiceUnavailable)
		return
	}

	c, err := websocket.Accept(rw, r, &websocket.AcceptOptions{OriginPatterns: w.origins})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow()

	w.mu.Lock()
	if old, ok := w.conns[userID]; ok {
		_ = old.Close(websocket.StatusPolicyViolation, "replaced by a new connection")
	}
	w.conns[userID] = c
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		if w.conns[userID] == c {
			delete(w.conns, userID)
		}
		w.mu.Unlock()
	}()

	ctx := r.Context()
	if base != nil {
		var cancel context.CancelFunc
		ctx, cancel = mergeDone(ctx, base)
		defer cancel()
	}

	slog.Info("websocket client connected", "user_id", userID)
	for {
		var frame wsInbound
		if err := wsjson.Read(ctx, c, &frame); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				slog.Warn("websocket read failed", "user_id", userID, "error", err)
			}
			return
		}
		msg, ok := mapWebSocketInbound(userID, frame)
		if !ok {
			continue
		}
		handler(msg)
	}
}

func mapWebSocketInbound(userID string, f wsInbound) (InboundMessage, bool) {
	if f.Text == "" && f.Callback == "" && len(f.Image) == 0 {
		return InboundMessage{}, false
	}
	return InboundMessage{
		Channel:      "websocket",
		UserID:       userID,
		ExternalID:   userID,
		Text:         f.Text,
		HasImage:     len(f.Image) > 0,
		ImageData:    f.Image,
		CallbackData: f.Callback,
		Username:     f.Username,
		FirstName:    f.FirstName,
		LastName:     f.LastName,
	}, true
}

// mergeDone returns a context derived from a that is also cancelled when b is.
func mergeDone(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
