package chat

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// Observer counts answered questions. Implementations must be nil-safe.
type Observer interface {
	ObserveChatAnswer(topic string)
}

// Handler serves the FAQ widget over WebSocket with an HTTP fallback.
type Handler struct {
	bot      *Bot
	logger   *logging.Logger
	observer Observer
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "ping"
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string `json:"type"` // "session", "message", "pong", "error"
	Text      string `json:"text,omitempty"`
	Role      string `json:"role,omitempty"`
	Topic     string `json:"topic,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// NewHandler creates a chat handler.
func NewHandler(bot *Bot, logger *logging.Logger) *Handler {
	if bot == nil {
		bot = NewBot(nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{bot: bot, logger: logger}
}

// WithObserver attaches an answer observer.
func (h *Handler) WithObserver(o Observer) *Handler {
	h.observer = o
	return h
}

// HandleWebSocket upgrades to WebSocket and answers each message in turn.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: sessionID})
	_ = websocket.JSON.Send(conn, h.reply(Greeting, ""))

	h.logger.Info("chat: connection opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("chat: connection closed", "session_id", sessionID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}
		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}

		if err := websocket.JSON.Send(conn, h.answer(msg.Text)); err != nil {
			h.logger.Debug("chat: send failed", "session_id", sessionID, "error", err)
			return
		}
	}
}

// HandleMessage is the HTTP fallback for sending messages.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	out := h.answer(req.Text)
	out.SessionID = req.SessionID

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *Handler) answer(question string) OutboundMessage {
	text, topic := h.bot.Answer(question)
	if h.observer != nil {
		label := topic
		if label == "" {
			label = "fallback"
		}
		h.observer.ObserveChatAnswer(label)
	}
	return h.reply(text, topic)
}

func (h *Handler) reply(text, topic string) OutboundMessage {
	return OutboundMessage{
		Type:      "message",
		Role:      "assistant",
		Text:      text,
		Topic:     topic,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
