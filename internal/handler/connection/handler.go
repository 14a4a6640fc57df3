package connection

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"

	model "github.com/zhouzirui/improv-battle/backend/internal/model/connection"
	"github.com/zhouzirui/improv-battle/backend/internal/service/credential"
	"github.com/zhouzirui/improv-battle/backend/pkg/utils"
)

// Issuer mints connection details for a player name.
type Issuer interface {
	Issue(ctx context.Context, name string) (model.Details, error)
}

// Handler 连接参数签发的HTTP处理器
type Handler struct {
	issuer Issuer
}

// New 创建连接参数处理器
func New(issuer Issuer) *Handler {
	return &Handler{issuer: issuer}
}

// RegisterRoutes 注册连接参数相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/connection-details", h.handleConnectionDetails)
}

func (h *Handler) handleConnectionDetails(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	details, err := h.issuer.Issue(r.Context(), name)
	if err != nil {
		logger := hlog.FromRequest(r)
		if errors.Is(err, credential.ErrNotConfigured) {
			logger.Error().Err(err).Str("component", "connection").Msg("signing credentials missing")
			utils.RespondError(w, http.StatusInternalServerError, credential.ErrNotConfigured.Error())
			return
		}
		logger.Error().Err(err).Str("component", "connection").Msg("error generating connection details")
		utils.RespondError(w, http.StatusInternalServerError, "Failed to generate connection details")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	utils.RespondJSON(w, http.StatusOK, details)
}
