package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/zhouzirui/improv-battle/backend/internal/handler/connection"
	"github.com/zhouzirui/improv-battle/backend/internal/handler/relay"
	middlewarePkg "github.com/zhouzirui/improv-battle/backend/internal/middleware"
	"github.com/zhouzirui/improv-battle/backend/internal/service/credential"
	relayService "github.com/zhouzirui/improv-battle/backend/internal/service/relay"
	"github.com/zhouzirui/improv-battle/backend/pkg/utils"
)

// Options 描述路由依赖。
type Options struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(issuer *credential.Issuer, bus relayService.Bus, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("req_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.NewCORS(opts.AllowedOrigins))

	connectionHandler := connection.New(issuer)

	r.Route("/api", func(api chi.Router) {
		connectionHandler.RegisterRoutes(api)

		if bus != nil {
			relay.New(bus, issuer).RegisterRoutes(api)
		}

		api.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":     "ok",
				"livekit":    issuer.Configured(),
				"relay":      bus != nil,
				"serverTime": time.Now().UTC().Format(time.RFC3339),
			})
		})
	})

	return r
}
