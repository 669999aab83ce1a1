package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agenthall/agenthall/backend/internal/handler/agents"
	"github.com/agenthall/agenthall/backend/internal/handler/messages"
	"github.com/agenthall/agenthall/backend/internal/handler/tools"
	"github.com/agenthall/agenthall/backend/internal/handler/ws"
	middlewarePkg "github.com/agenthall/agenthall/backend/internal/middleware"
	"github.com/agenthall/agenthall/backend/internal/service/bus"
	"github.com/agenthall/agenthall/backend/internal/service/registry"
	"github.com/agenthall/agenthall/backend/pkg/utils"
)

// Deps carries everything the router wires together.
type Deps struct {
	Registry *registry.Registry
	Bus      *bus.Service
	CastURL  string
	Version  string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	agentsHandler := agents.New(deps.Registry)
	messagesHandler := messages.New(deps.Bus)
	wsHandler := ws.New(deps.Bus)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		agentsHandler.RegisterRoutes(api)
		messagesHandler.RegisterRoutes(api)

		// The dashboard asks here where to reach the terminal cast
		// server; the backend only ever hands out the reference.
		api.Get("/cast/info", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{
				"url":    deps.CastURL,
				"apiUrl": deps.CastURL + "/api",
			})
		})
	})

	wsHandler.RegisterRoutes(r)
	r.Mount("/mcp", tools.Handler(deps.Bus, deps.Version))

	return r
}
