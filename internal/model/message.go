package model

import (
	"encoding/json"
	"time"
)

// Message is the persisted projection of a normalized webhook event.
// ExternalMessageID is unique per channel and is the idempotency key for
// repeated deliveries of the same event.
type Message struct {
	ID                string           `db:"id" json:"id"`
	ConversationID    string           `db:"conversation_id" json:"conversationId"`
	AccountID         string           `db:"account_id" json:"accountId"`
	ContactID         *string          `db:"contact_id" json:"contactId,omitempty"`
	Channel           Channel          `db:"channel" json:"channel"`
	ExternalMessageID string           `db:"external_message_id" json:"externalMessageId"`
	Direction         MessageDirection `db:"direction" json:"direction"`
	ContentType       ContentType      `db:"content_type" json:"contentType"`
	TextBody          *string          `db:"text_body" json:"textBody,omitempty"`
	MediaURL          *string          `db:"media_url" json:"mediaUrl,omitempty"`
	MediaID           *string          `db:"media_id" json:"mediaId,omitempty"`
	Status            MessageStatus    `db:"status" json:"status"`
	ErrorDetail       *string          `db:"error_detail" json:"errorDetail,omitempty"`
	RawPayload        *json.RawMessage `db:"raw_payload" json:"-"`
	EventTimestamp    time.Time        `db:"event_timestamp" json:"eventTimestamp"`
	CreatedAt         time.Time        `db:"created_at" json:"createdAt"`
	StatusUpdatedAt   *time.Time       `db:"status_updated_at" json:"statusUpdatedAt,omitempty"`
}

type CreateMessageParams struct {
	ConversationID    string
	AccountID         string
	ContactID         *string
	Channel           Channel
	ExternalMessageID string
	Direction         MessageDirection
	ContentType       ContentType
	TextBody          *string
	MediaURL          *string
	MediaID           *string
	Status            MessageStatus
	RawPayload        json.RawMessage
	EventTimestamp    time.Time
}
