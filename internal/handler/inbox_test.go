package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfold/inbox-server-go/internal/middleware"
	"github.com/chatfold/inbox-server-go/internal/model"
	"github.com/chatfold/inbox-server-go/internal/service"
)

const testConversationID = "6f1f6a2e-9c1b-4c5d-8f3a-2b7d9e4c1a50"

func setupInboxTest(t *testing.T) (*chi.Mux, *memConversationRepo, *memMessageRepo, *memContactRepo) {
	t.Helper()

	conversations := newMemConversationRepo()
	messages := newMemMessageRepo()
	contacts := newMemContactRepo()

	inboxService := service.NewInboxService(conversations, messages, contacts)
	h := NewInboxHandler(inboxService)

	r := chi.NewRouter()
	r.Get("/v1/conversations", h.ListConversations)
	r.Get("/v1/conversations/{id}/messages", h.ListMessages)

	return r, conversations, messages, contacts
}

func inboxRequest(path, accountID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if accountID != "" {
		account := &model.ConnectedAccount{ID: accountID, Channel: model.ChannelWhatsApp}
		req = req.WithContext(context.WithValue(req.Context(), middleware.AccountContextKey, account))
	}
	return req
}

func seedConversation(t *testing.T, conversations *memConversationRepo, contacts *memContactRepo, accountID string, lastMessageAt time.Time) *model.Conversation {
	t.Helper()

	contact, err := contacts.Upsert(context.Background(), model.UpsertContactParams{
		Channel:        model.ChannelWhatsApp,
		ExternalUserID: "15550002222",
	})
	require.NoError(t, err)

	conv, err := conversations.Upsert(context.Background(), model.UpsertConversationParams{
		Channel:                model.ChannelWhatsApp,
		ExternalConversationID: contact.ExternalUserID,
		AccountID:              accountID,
		ContactID:              contact.ID,
		LastMessageAt:          lastMessageAt,
	})
	require.NoError(t, err)
	return conv
}

func TestInboxHandler_ListConversations(t *testing.T) {
	t.Run("requires an authenticated account", func(t *testing.T) {
		r, _, _, _ := setupInboxTest(t)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, inboxRequest("/v1/conversations", ""))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("returns conversations with contacts", func(t *testing.T) {
		r, conversations, _, contacts := setupInboxTest(t)
		seedConversation(t, conversations, contacts, "acct-1", time.Now())

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, inboxRequest("/v1/conversations", "acct-1"))

		require.Equal(t, http.StatusOK, rec.Code)

		var result service.ConversationListResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		require.Len(t, result.Conversations, 1)
		assert.Equal(t, 1, result.Total)
		assert.False(t, result.HasMore)
		require.NotNil(t, result.Conversations[0].Contact)
		assert.Equal(t, "15550002222", result.Conversations[0].Contact.ExternalUserID)
	})

	t.Run("does not leak another account's conversations", func(t *testing.T) {
		r, conversations, _, contacts := setupInboxTest(t)
		seedConversation(t, conversations, contacts, "acct-2", time.Now())

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, inboxRequest("/v1/conversations", "acct-1"))

		require.Equal(t, http.StatusOK, rec.Code)

		var result service.ConversationListResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Empty(t, result.Conversations)
		assert.Equal(t, 0, result.Total)
	})
}

func TestInboxHandler_ListMessages(t *testing.T) {
	seedMessages := func(t *testing.T, conversations *memConversationRepo, messages *memMessageRepo, accountID string) {
		t.Helper()
		conversations.byExternal["whatsapp/15550002222"] = &model.Conversation{
			ID:                     testConversationID,
			Channel:                model.ChannelWhatsApp,
			ExternalConversationID: "15550002222",
			AccountID:              accountID,
			ContactID:              "contact-1",
		}
		body := "hello"
		_, err := messages.UpsertByExternalID(context.Background(), model.CreateMessageParams{
			ConversationID:    testConversationID,
			AccountID:         accountID,
			Channel:           model.ChannelWhatsApp,
			ExternalMessageID: "wamid.1",
			Direction:         model.DirectionInbound,
			ContentType:       model.ContentTypeText,
			TextBody:          &body,
			Status:            model.MessageStatusReceived,
			EventTimestamp:    time.Now(),
		})
		require.NoError(t, err)
	}

	t.Run("requires an authenticated account", func(t *testing.T) {
		r, _, _, _ := setupInboxTest(t)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, inboxRequest("/v1/conversations/"+testConversationID+"/messages", ""))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a non-uuid conversation id", func(t *testing.T) {
		r, _, _, _ := setupInboxTest(t)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, inboxRequest("/v1/conversations/not-a-uuid/messages", "acct-1"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns messages newest first", func(t *testing.T) {
		r, conversations, messages, _ := setupInboxTest(t)
		seedMessages(t, conversations, messages, "acct-1")
		body := "second"
		_, err := messages.UpsertByExternalID(context.Background(), model.CreateMessageParams{
			ConversationID:    testConversationID,
			AccountID:         "acct-1",
			Channel:           model.ChannelWhatsApp,
			ExternalMessageID: "wamid.2",
			Direction:         model.DirectionInbound,
			ContentType:       model.ContentTypeText,
			TextBody:          &body,
			Status:            model.MessageStatusReceived,
			EventTimestamp:    time.Now(),
		})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, inboxRequest("/v1/conversations/"+testConversationID+"/messages", "acct-1"))

		require.Equal(t, http.StatusOK, rec.Code)

		var result service.MessageListResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		require.Len(t, result.Messages, 2)
		assert.Equal(t, "wamid.2", result.Messages[0].ExternalMessageID)
		assert.Equal(t, "wamid.1", result.Messages[1].ExternalMessageID)
		assert.Equal(t, 2, result.Total)
	})

	t.Run("hides another account's conversation as not found", func(t *testing.T) {
		r, conversations, messages, _ := setupInboxTest(t)
		seedMessages(t, conversations, messages, "acct-2")

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, inboxRequest("/v1/conversations/"+testConversationID+"/messages", "acct-1"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns 404 for an unknown conversation", func(t *testing.T) {
		r, _, _, _ := setupInboxTest(t)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, inboxRequest("/v1/conversations/"+testConversationID+"/messages", "acct-1"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
