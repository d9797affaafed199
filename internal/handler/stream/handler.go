package stream

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodline/backend/internal/handler/httperr"
	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
	chatService "github.com/zhouzirui/moodline/backend/internal/service/chat"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
	"github.com/zhouzirui/moodline/backend/pkg/utils"
)

// Handler streams one exchange over Server-Sent Events: the sentiment as soon
// as the user turn is annotated, then the reply.
type Handler struct {
	chatSvc     *chatService.Service
	exitPhrases chatService.ExitPhrases
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, exitPhrases chatService.ExitPhrases) *Handler {
	return &Handler{
		chatSvc:     chatSvc,
		exitPhrases: exitPhrases,
	}
}

// RegisterRoutes 注册流式接口
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/stream", h.handleStream)
}

type sentimentEvent struct {
	TurnIndex int                          `json:"turnIndex"`
	Sentiment conversation.SentimentResult `json:"sentiment"`
}

type replyEvent struct {
	TurnIndex      int    `json:"turnIndex"`
	Reply          string `json:"reply"`
	Degraded       bool   `json:"degraded"`
	CloseSuggested bool   `json:"closeSuggested"`
}

type errorEvent struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")

	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "empty_message", "message query parameter is required")
		return
	}
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		httperr.Write(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	exchange, err := h.chatSvc.SendMessage(r.Context(), sessionID, userMessage, dialogue.WithAnnotated(func(turn conversation.Turn) {
		_ = utils.SendSSEEvent(w, flusher, "sentiment", sentimentEvent{
			TurnIndex: turn.Index,
			Sentiment: turn.SentimentOrUnknown(),
		})
	}))
	if err != nil {
		if r.Context().Err() == nil {
			log.Printf("[stream] session=%s exchange failed: %v", sessionID, err)
		}
		_, code := httperr.Classify(err)
		_ = utils.SendSSEEvent(w, flusher, "error", errorEvent{Error: err.Error(), Code: code})
		return
	}

	if err := utils.SendSSEEvent(w, flusher, "reply", replyEvent{
		TurnIndex:      exchange.AssistantTurn.Index,
		Reply:          exchange.AssistantTurn.Text,
		Degraded:       exchange.AssistantTurn.Degraded,
		CloseSuggested: h.exitPhrases.Match(userMessage),
	}); err != nil {
		// reply is already in history; the client can read it from GET /sessions/{id}
		log.Printf("[stream] session=%s %v", sessionID, err)
		return
	}
	_ = utils.SendSSEEvent(w, flusher, "end", map[string]string{"sessionId": sessionID})
}
