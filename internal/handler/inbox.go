package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/chatfold/inbox-server-go/internal/errors"
	"github.com/chatfold/inbox-server-go/internal/httputil"
	"github.com/chatfold/inbox-server-go/internal/middleware"
	"github.com/chatfold/inbox-server-go/internal/service"
	"github.com/chatfold/inbox-server-go/internal/util"
)

// InboxHandler is the authenticated read API an account owner uses to browse
// their unified inbox.
type InboxHandler struct {
	inboxService *service.InboxService
}

func NewInboxHandler(inboxService *service.InboxService) *InboxHandler {
	return &InboxHandler{inboxService: inboxService}
}

// ListConversations handles GET /v1/conversations.
func (h *InboxHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Missing or invalid API token"))
		return
	}

	pagination := ParsePagination(r)

	result, err := h.inboxService.ListConversations(r.Context(), account.ID, pagination.Limit, pagination.Offset)
	if err != nil {
		log.Error().Err(err).Str("accountId", account.ID).Msg("failed to list conversations")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListMessages handles GET /v1/conversations/{id}/messages.
func (h *InboxHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Missing or invalid API token"))
		return
	}

	conversationID := chi.URLParam(r, "id")
	if !util.IsValidUUID(conversationID) {
		httputil.WriteError(w, apperrors.InvalidInput("conversation id", "must be a UUID"))
		return
	}

	pagination := ParsePagination(r)

	result, err := h.inboxService.ListMessages(r.Context(), account.ID, conversationID, pagination.Limit, pagination.Offset)
	if err != nil {
		log.Error().Err(err).
			Str("accountId", account.ID).
			Str("conversationId", conversationID).
			Msg("failed to list messages")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if result == nil {
		httputil.WriteError(w, apperrors.NotFound("Conversation"))
		return
	}

	writeJSON(w, http.StatusOK, result)
}
