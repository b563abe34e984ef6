package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/chatfold/inbox-server-go/internal/audit"
	"github.com/chatfold/inbox-server-go/internal/channel"
	apperrors "github.com/chatfold/inbox-server-go/internal/errors"
	"github.com/chatfold/inbox-server-go/internal/httputil"
	"github.com/chatfold/inbox-server-go/internal/middleware"
	"github.com/chatfold/inbox-server-go/internal/model"
	"github.com/chatfold/inbox-server-go/internal/service"
)

// WebhookHandler terminates Meta webhook traffic: the GET verification
// handshake and POST event deliveries for all three channels.
type WebhookHandler struct {
	processor   *service.Processor
	verifyToken string
}

func NewWebhookHandler(processor *service.Processor, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		processor:   processor,
		verifyToken: verifyToken,
	}
}

// Verify answers the subscription handshake. Meta expects the raw
// hub.challenge value echoed back with a 200; anything else fails the
// subscription attempt on their side.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode != "subscribe" || token != h.verifyToken {
		log.Warn().
			Str("mode", mode).
			Str("remoteAddr", r.RemoteAddr).
			Msg("webhook verification rejected")
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventHandshakeFailed,
			Channel: chi.URLParam(r, "channel"),
			Details: map[string]interface{}{"mode": mode},
		})
		w.WriteHeader(http.StatusForbidden)
		return
	}

	log.Info().Str("channel", chi.URLParam(r, "channel")).Msg("webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// Receive ingests one POST delivery. After the body parses as JSON the
// response is always 200: failing a delivery makes Meta retry it, and
// retrying cannot fix an unknown account or a processing bug, only pile up
// duplicates.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ch := model.Channel(chi.URLParam(r, "channel"))
	if !ch.Valid() {
		httputil.WriteError(w, apperrors.UnknownChannel(string(ch)))
		return
	}

	body := middleware.GetRawBody(r.Context())
	if body == nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			log.Error().Err(err).Msg("failed to read webhook body")
			httputil.WriteError(w, apperrors.InvalidBody("unreadable"))
			return
		}
	}

	result, ok := h.parse(ch, body)
	if !ok {
		httputil.WriteError(w, apperrors.InvalidBody("not valid JSON"))
		return
	}

	log.Debug().
		Str("channel", string(ch)).
		Int("messages", len(result.Messages)).
		Int("statuses", len(result.Statuses)).
		Msg("webhook delivery parsed")

	h.processor.ProcessResult(r.Context(), result)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parse routes the payload to the channel parser. Only JSON syntax errors
// fail parsing; a valid body missing the expected structure yields empty
// results, matching the parsers. The Messenger endpoint also receives
// Instagram deliveries when both products share one app, so the top-level
// object field decides which parser runs.
func (h *WebhookHandler) parse(ch model.Channel, body []byte) (channel.ParseResult, bool) {
	if !json.Valid(body) {
		return channel.ParseResult{}, false
	}

	switch ch {
	case model.ChannelWhatsApp:
		return channel.ParseWhatsApp(body), true
	case model.ChannelInstagram:
		return channel.ParseInstagram(body), true
	default:
		if channel.ObjectType(body) == "instagram" {
			return channel.ParseInstagram(body), true
		}
		return channel.ParseMessenger(body), true
	}
}
