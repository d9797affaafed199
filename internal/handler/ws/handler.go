package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/moodline/backend/internal/handler/httperr"
	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
	chatService "github.com/zhouzirui/moodline/backend/internal/service/chat"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
)

// Handler WebSocket 会话处理器。一个连接对应一个会话，按顺序处理消息。
type Handler struct {
	chatSvc     *chatService.Service
	exitPhrases chatService.ExitPhrases
	upgrader    websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chatSvc *chatService.Service, exitPhrases chatService.ExitPhrases) *Handler {
	return &Handler{
		chatSvc:     chatSvc,
		exitPhrases: exitPhrases,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type replyData struct {
	TurnIndex      int    `json:"turnIndex"`
	Reply          string `json:"reply"`
	Degraded       bool   `json:"degraded"`
	CloseSuggested bool   `json:"closeSuggested"`
}

type errorData struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		httperr.Write(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for session=%s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] connection opened for session=%s", sessionID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error for session=%s: %v", sessionID, err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.send(conn, sessionID, "error", errorData{Error: "invalid message", Code: "invalid_request"})
			continue
		}

		switch msg.Type {
		case "message":
			if done := h.handleMessage(r, conn, sessionID, msg.Text); done {
				return
			}
		case "close":
			if done := h.handleClose(r, conn, sessionID); done {
				return
			}
		default:
			h.send(conn, sessionID, "error", errorData{Error: "unknown message type " + msg.Type, Code: "invalid_request"})
		}
	}
}

// handleMessage runs one exchange. An exit phrase closes the session after
// the reply; it reports whether the connection should end.
func (h *Handler) handleMessage(r *http.Request, conn *websocket.Conn, sessionID, text string) bool {
	exchange, err := h.chatSvc.SendMessage(r.Context(), sessionID, text, dialogue.WithAnnotated(func(turn conversation.Turn) {
		h.send(conn, sessionID, "sentiment", map[string]any{
			"turnIndex": turn.Index,
			"sentiment": turn.SentimentOrUnknown(),
		})
	}))
	if err != nil {
		h.sendError(conn, sessionID, err)
		return errors.Is(err, dialogue.ErrSessionClosed)
	}

	closing := h.exitPhrases.Match(text)
	h.send(conn, sessionID, "reply", replyData{
		TurnIndex:      exchange.AssistantTurn.Index,
		Reply:          exchange.AssistantTurn.Text,
		Degraded:       exchange.AssistantTurn.Degraded,
		CloseSuggested: closing,
	})

	if closing {
		return h.handleClose(r, conn, sessionID)
	}
	return false
}

func (h *Handler) handleClose(r *http.Request, conn *websocket.Conn, sessionID string) bool {
	report, err := h.chatSvc.CloseSession(r.Context(), sessionID)
	if err != nil && !errors.Is(err, dialogue.ErrReportMalformed) {
		h.sendError(conn, sessionID, err)
		return errors.Is(err, dialogue.ErrSessionClosed)
	}

	h.send(conn, sessionID, "report", map[string]any{
		"report":   report,
		"degraded": report.Degraded,
	})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
		time.Now().Add(time.Second))
	return true
}

func (h *Handler) sendError(conn *websocket.Conn, sessionID string, err error) {
	_, code := httperr.Classify(err)
	h.send(conn, sessionID, "error", errorData{Error: err.Error(), Code: code})
}

func (h *Handler) send(conn *websocket.Conn, sessionID, msgType string, data interface{}) {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[ws] write %s failed for session=%s: %v", msgType, sessionID, err)
	}
}
