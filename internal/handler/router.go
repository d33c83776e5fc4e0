package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/persona-relay/internal/handler/relay"
	middlewarePkg "github.com/zhouzirui/persona-relay/internal/middleware"
	relayService "github.com/zhouzirui/persona-relay/internal/service/relay"
	"github.com/zhouzirui/persona-relay/pkg/utils"
)

// NewRouter wires HTTP routes to the relay service.
func NewRouter(relaySvc *relayService.Service, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	relayHandler := relay.New(relaySvc)
	wsHandler := relay.NewWebSocketHandler(relaySvc)

	// browser extension clients post to the bare paths
	relayHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		relayHandler.RegisterRoutes(api)
		relayHandler.RegisterInspectionRoutes(api)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": relaySvc.ActiveSessions(),
		})
	})

	return r
}
