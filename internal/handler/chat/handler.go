package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodline/backend/internal/handler/httperr"
	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
	chatService "github.com/zhouzirui/moodline/backend/internal/service/chat"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
	"github.com/zhouzirui/moodline/backend/pkg/utils"
)

// Handler 会话 REST 接口的处理器
type Handler struct {
	chatSvc     *chatService.Service
	exitPhrases chatService.ExitPhrases
}

// New 创建会话处理器
func New(chatSvc *chatService.Service, exitPhrases chatService.ExitPhrases) *Handler {
	return &Handler{
		chatSvc:     chatSvc,
		exitPhrases: exitPhrases,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Post("/sessions/{sessionID}/message", h.handleMessage)
	r.Post("/sessions/{sessionID}/close", h.handleClose)
	r.Get("/sessions/{sessionID}/report", h.handleReport)
}

type messageResponse struct {
	Reply          string                       `json:"reply"`
	Sentiment      conversation.SentimentResult `json:"sentiment"`
	Degraded       bool                         `json:"degraded"`
	CloseSuggested bool                         `json:"closeSuggested"`
}

type closeResponse struct {
	Report   conversation.DiagnosticReport `json:"report"`
	Degraded bool                          `json:"degraded"`
}

type sessionResponse struct {
	ID    string              `json:"id"`
	State string              `json:"state"`
	Turns []conversation.Turn `json:"turns"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// 已被回收的会话从归档中读取。
	state := string(dialogue.StateClosed)
	if session, err := h.chatSvc.GetSession(r.Context(), sessionID); err == nil {
		state = session.State
	}

	turns, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		httperr.Write(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sessionResponse{ID: sessionID, State: state, Turns: turns})
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	exchange, err := h.chatSvc.SendMessage(r.Context(), chi.URLParam(r, "sessionID"), payload.Text)
	if err != nil {
		httperr.Write(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, messageResponse{
		Reply:          exchange.AssistantTurn.Text,
		Sentiment:      exchange.UserTurn.SentimentOrUnknown(),
		Degraded:       exchange.AssistantTurn.Degraded,
		CloseSuggested: h.exitPhrases.Match(payload.Text),
	})
}

// handleClose 生成诊断报告。报告解析失败时会话仍然关闭，返回降级报告。
func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	report, err := h.chatSvc.CloseSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil && !errors.Is(err, dialogue.ErrReportMalformed) {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, closeResponse{Report: report, Degraded: report.Degraded})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.chatSvc.Report(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"report": report})
}
