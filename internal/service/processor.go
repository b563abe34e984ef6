package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/chatfold/inbox-server-go/internal/channel"
	"github.com/chatfold/inbox-server-go/internal/graph"
	"github.com/chatfold/inbox-server-go/internal/model"
	"github.com/chatfold/inbox-server-go/internal/repository"
	"github.com/chatfold/inbox-server-go/internal/sse"
)

// EventPublisher pushes inbox activity to connected clients. Satisfied by
// *sse.Broker.
type EventPublisher interface {
	Publish(ctx context.Context, accountID string, event sse.Event) error
}

// GraphAPI is the slice of the Graph client the processor uses: media id to
// URL exchange and contact profile lookups. Satisfied by *graph.Client.
type GraphAPI interface {
	ResolveMediaURL(ctx context.Context, mediaID, accessToken string) (*graph.MediaInfo, error)
	FetchUserProfile(ctx context.Context, userID, accessToken string) (*graph.UserProfile, error)
}

// AccessTokenSource yields the usable page access token for an account.
// Satisfied by *AccountService.
type AccessTokenSource interface {
	AccessToken(account *model.ConnectedAccount) (string, error)
}

// Processor turns normalized webhook events into inbox state. It is the only
// writer of contacts, conversations and messages, and it is safe to feed the
// same event twice: the message upsert is keyed on the provider's message id,
// so redeliveries change nothing.
type Processor struct {
	accountRepo      repository.AccountRepository
	contactRepo      repository.ContactRepository
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	publisher        EventPublisher
	graph            GraphAPI
	tokens           AccessTokenSource
}

func NewProcessor(
	accountRepo repository.AccountRepository,
	contactRepo repository.ContactRepository,
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	publisher EventPublisher,
	graphAPI GraphAPI,
	tokens AccessTokenSource,
) *Processor {
	return &Processor{
		accountRepo:      accountRepo,
		contactRepo:      contactRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		publisher:        publisher,
		graph:            graphAPI,
		tokens:           tokens,
	}
}

// HandleIncomingMessage persists one inbound message event. An event for an
// account that was never connected is logged and dropped, not an error: the
// provider keeps its 200 and the delivery is not retried.
func (p *Processor) HandleIncomingMessage(ctx context.Context, event channel.IncomingMessageEvent) error {
	account, err := p.accountRepo.FindByChannelAndExternalID(ctx, event.Channel, event.RecipientID)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		log.Warn().
			Str("channel", string(event.Channel)).
			Str("recipientId", event.RecipientID).
			Str("externalMessageId", event.ExternalMessageID).
			Msg("message for unknown account dropped")
		return nil
	}

	contactParams := model.UpsertContactParams{
		Channel:        event.Channel,
		ExternalUserID: event.SenderID,
	}
	contact, err := p.contactRepo.Upsert(ctx, contactParams)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}

	if contact.DisplayName == nil {
		if name := p.fetchDisplayName(ctx, account, event); name != "" {
			contactParams.DisplayName = &name
			if enriched, err := p.contactRepo.Upsert(ctx, contactParams); err == nil {
				contact = enriched
			}
		}
	}

	conversation, err := p.conversationRepo.Upsert(ctx, model.UpsertConversationParams{
		Channel:                event.Channel,
		ExternalConversationID: event.ExternalConversationID,
		AccountID:              account.ID,
		ContactID:              contact.ID,
		LastMessageAt:          event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	params := model.CreateMessageParams{
		ConversationID:    conversation.ID,
		AccountID:         account.ID,
		ContactID:         &contact.ID,
		Channel:           event.Channel,
		ExternalMessageID: event.ExternalMessageID,
		Direction:         model.DirectionInbound,
		ContentType:       event.ContentType,
		Status:            model.MessageStatusReceived,
		RawPayload:        event.RawPayload,
		EventTimestamp:    event.Timestamp,
	}
	if event.TextBody != "" {
		params.TextBody = &event.TextBody
	}
	if event.MediaURL != "" {
		params.MediaURL = &event.MediaURL
	}
	if event.MediaID != "" {
		params.MediaID = &event.MediaID
		p.resolveMedia(ctx, account, event.MediaID, &params)
	}

	msg, err := p.messageRepo.UpsertByExternalID(ctx, params)
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	if msg == nil {
		log.Debug().
			Str("channel", string(event.Channel)).
			Str("externalMessageId", event.ExternalMessageID).
			Msg("duplicate delivery ignored")
		return nil
	}

	log.Info().
		Str("messageId", msg.ID).
		Str("channel", string(event.Channel)).
		Str("conversationId", conversation.ID).
		Str("contentType", string(event.ContentType)).
		Msg("inbound message stored")

	p.publish(ctx, account.ID, sse.EventMessageReceived, msg)
	return nil
}

// HandleStatusUpdate advances the delivery status of a known message. A
// receipt for a message this system never stored is logged and dropped.
func (p *Processor) HandleStatusUpdate(ctx context.Context, event channel.StatusUpdateEvent) error {
	var errorDetail *string
	if event.ErrorDetail != "" {
		errorDetail = &event.ErrorDetail
	}

	affected, err := p.messageRepo.UpdateStatusByExternalID(
		ctx, event.Channel, event.ExternalMessageID, event.Status, errorDetail, event.Timestamp)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if affected == 0 {
		log.Debug().
			Str("channel", string(event.Channel)).
			Str("externalMessageId", event.ExternalMessageID).
			Str("status", string(event.Status)).
			Msg("status update for unknown message dropped")
		return nil
	}

	log.Info().
		Str("channel", string(event.Channel)).
		Str("externalMessageId", event.ExternalMessageID).
		Str("status", string(event.Status)).
		Msg("message status updated")

	msg, err := p.messageRepo.FindByChannelAndExternalID(ctx, event.Channel, event.ExternalMessageID)
	if err == nil && msg != nil {
		p.publish(ctx, msg.AccountID, sse.EventMessageStatus, msg)
	}
	return nil
}

// ProcessResult pushes every event of one parsed webhook delivery through the
// pipeline, in payload order. Per-event failures are logged and do not stop
// the remaining events.
func (p *Processor) ProcessResult(ctx context.Context, result channel.ParseResult) {
	for _, msg := range result.Messages {
		if err := p.HandleIncomingMessage(ctx, msg); err != nil {
			log.Error().Err(err).
				Str("channel", string(msg.Channel)).
				Str("externalMessageId", msg.ExternalMessageID).
				Msg("failed to process incoming message")
		}
	}
	for _, status := range result.Statuses {
		if err := p.HandleStatusUpdate(ctx, status); err != nil {
			log.Error().Err(err).
				Str("channel", string(status.Channel)).
				Str("externalMessageId", status.ExternalMessageID).
				Msg("failed to process status update")
		}
	}
}

// resolveMedia asks the Graph API for a download URL when the event only
// carries a media id. Failures degrade to storing the id alone.
func (p *Processor) resolveMedia(ctx context.Context, account *model.ConnectedAccount, mediaID string, params *model.CreateMessageParams) {
	if p.graph == nil || params.MediaURL != nil {
		return
	}

	token := p.accessToken(account)
	if token == "" {
		return
	}

	info, err := p.graph.ResolveMediaURL(ctx, mediaID, token)
	if err != nil {
		log.Warn().Err(err).
			Str("mediaId", mediaID).
			Msg("media url resolution failed, storing media id only")
		return
	}
	params.MediaURL = &info.URL
}

// fetchDisplayName looks up a Messenger or Instagram contact's name the
// first time the contact is seen. WhatsApp sender ids are phone numbers the
// profile endpoint cannot resolve. Best-effort: any failure leaves the
// contact nameless.
func (p *Processor) fetchDisplayName(ctx context.Context, account *model.ConnectedAccount, event channel.IncomingMessageEvent) string {
	if p.graph == nil || event.Channel == model.ChannelWhatsApp {
		return ""
	}

	token := p.accessToken(account)
	if token == "" {
		return ""
	}

	profile, err := p.graph.FetchUserProfile(ctx, event.SenderID, token)
	if err != nil {
		log.Debug().Err(err).
			Str("senderId", event.SenderID).
			Msg("profile lookup failed, storing contact without name")
		return ""
	}
	return profile.DisplayName()
}

// accessToken returns the account's usable page access token, decrypted
// through the token source when one is configured.
func (p *Processor) accessToken(account *model.ConnectedAccount) string {
	if p.tokens != nil {
		token, err := p.tokens.AccessToken(account)
		if err != nil {
			log.Warn().Err(err).Str("accountId", account.ID).
				Msg("access token unavailable")
			return ""
		}
		return token
	}
	if account.AccessToken != nil {
		return *account.AccessToken
	}
	return ""
}

func (p *Processor) publish(ctx context.Context, accountID, eventType string, msg *model.Message) {
	if p.publisher == nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event payload")
		return
	}
	if err := p.publisher.Publish(ctx, accountID, sse.Event{Type: eventType, Data: data}); err != nil {
		log.Warn().Err(err).
			Str("accountId", accountID).
			Msg("failed to publish inbox event")
	}
}
