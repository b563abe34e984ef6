package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/chatfold/inbox-server-go/internal/audit"
	apperrors "github.com/chatfold/inbox-server-go/internal/errors"
	"github.com/chatfold/inbox-server-go/internal/httputil"
	"github.com/chatfold/inbox-server-go/internal/model"
	"github.com/chatfold/inbox-server-go/internal/service"
	"github.com/chatfold/inbox-server-go/internal/util"
)

// AdminHandler covers the operator surface: system stats and connecting new
// business accounts. Endpoints are guarded by a single bcrypt-hashed
// password supplied as HTTP basic auth; there is no admin user model.
type AdminHandler struct {
	statsService   *service.StatsService
	accountService *service.AccountService
	passwordHash   string
}

func NewAdminHandler(statsService *service.StatsService, accountService *service.AccountService, passwordHash string) *AdminHandler {
	return &AdminHandler{
		statsService:   statsService,
		accountService: accountService,
		passwordHash:   passwordHash,
	}
}

func (h *AdminHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.passwordHash == "" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "Admin endpoints disabled: ADMIN_PASSWORD_HASH not configured",
			})
			return
		}

		_, password, ok := r.BasicAuth()
		if !ok || !util.CheckPasswordHash(password, h.passwordHash) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminAuthFailure})
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			httputil.WriteError(w, apperrors.Unauthorized("Admin credentials required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.GetSystemStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to collect system stats")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type connectAccountRequest struct {
	Channel           string  `json:"channel"`
	ExternalAccountID string  `json:"externalAccountId"`
	DisplayName       *string `json:"displayName,omitempty"`
	AccessToken       string  `json:"accessToken,omitempty"`
	RateLimitPerMin   int     `json:"rateLimitPerMin,omitempty"`
}

// ConnectAccount handles POST /admin/accounts.
func (h *AdminHandler) ConnectAccount(w http.ResponseWriter, r *http.Request) {
	var req connectAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidBody("not valid JSON"))
		return
	}

	ch := model.Channel(req.Channel)
	if !ch.Valid() {
		httputil.WriteError(w, apperrors.UnknownChannel(req.Channel))
		return
	}
	if req.ExternalAccountID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("externalAccountId"))
		return
	}

	result, err := h.accountService.ConnectAccount(r.Context(), service.ConnectAccountParams{
		Channel:           ch,
		ExternalAccountID: req.ExternalAccountID,
		DisplayName:       req.DisplayName,
		AccessToken:       req.AccessToken,
		RateLimitPerMin:   req.RateLimitPerMin,
	})
	if err != nil {
		log.Error().Err(err).
			Str("channel", req.Channel).
			Str("externalAccountId", req.ExternalAccountID).
			Msg("failed to connect account")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventAccountConnect,
		AccountID: result.Account.ID,
		Channel:   req.Channel,
	})

	writeJSON(w, http.StatusCreated, result)
}

// ListAccounts handles GET /admin/accounts.
func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountService.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list accounts")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}
