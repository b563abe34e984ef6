package model

import (
	"time"
)

// Conversation is one thread in the unified inbox, found-or-created from
// (channel, external_conversation_id).
type Conversation struct {
	ID                     string     `db:"id" json:"id"`
	Channel                Channel    `db:"channel" json:"channel"`
	ExternalConversationID string     `db:"external_conversation_id" json:"externalConversationId"`
	AccountID              string     `db:"account_id" json:"accountId"`
	ContactID              string     `db:"contact_id" json:"contactId"`
	LastMessageAt          *time.Time `db:"last_message_at" json:"lastMessageAt,omitempty"`
	CreatedAt              time.Time  `db:"created_at" json:"createdAt"`
}

type UpsertConversationParams struct {
	Channel                Channel
	ExternalConversationID string
	AccountID              string
	ContactID              string
	LastMessageAt          time.Time
}
