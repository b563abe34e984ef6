package channel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chatfold/inbox-server-go/internal/model"
)

// IncomingMessageEvent is the channel-agnostic form of one inbound message.
// Events are transient: constructed from a webhook payload, consumed once by
// the processor, never stored in this shape.
type IncomingMessageEvent struct {
	Channel                model.Channel
	ExternalMessageID      string
	ExternalConversationID string
	SenderID               string
	RecipientID            string
	Timestamp              time.Time
	ContentType            model.ContentType
	TextBody               string
	MediaURL               string
	MediaID                string
	RawPayload             json.RawMessage
}

// StatusUpdateEvent is a delivery receipt for a previously sent message,
// keyed by the provider's message id.
type StatusUpdateEvent struct {
	Channel           model.Channel
	ExternalMessageID string
	Status            model.MessageStatus
	Timestamp         time.Time
	ErrorDetail       string
}

// ParseResult holds every event extracted from one webhook delivery. A single
// batched payload can carry both messages and statuses.
type ParseResult struct {
	Messages []IncomingMessageEvent
	Statuses []StatusUpdateEvent
}

// BuildConversationID derives the provider-scoped thread identifier from the
// business account id and the remote user id. The same pair always yields the
// same id, so repeated deliveries land in the same conversation.
func BuildConversationID(accountID, userID string) string {
	return fmt.Sprintf("%s:%s", accountID, userID)
}

// ObjectType returns the top-level "object" field of a webhook payload
// ("whatsapp_business_account", "page", "instagram"), or "" when the payload
// is not valid JSON. The dispatcher uses it to route Messenger-endpoint
// deliveries that actually carry Instagram events.
func ObjectType(payload []byte) string {
	var probe struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.Object
}
