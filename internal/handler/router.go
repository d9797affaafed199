package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/moodline/backend/internal/handler/chat"
	"github.com/zhouzirui/moodline/backend/internal/handler/stream"
	"github.com/zhouzirui/moodline/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/moodline/backend/internal/middleware"
	chatService "github.com/zhouzirui/moodline/backend/internal/service/chat"
	"github.com/zhouzirui/moodline/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, exitPhrases chatService.ExitPhrases) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": len(chatSvc.ListSessions()),
		})
	})

	r.Route("/api", func(api chi.Router) {
		chat.New(chatSvc, exitPhrases).RegisterRoutes(api)
		stream.New(chatSvc, exitPhrases).RegisterRoutes(api)
		ws.New(chatSvc, exitPhrases).RegisterRoutes(api)
	})

	return r
}
