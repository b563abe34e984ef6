package channel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatfold/inbox-server-go/internal/model"
)

// Messenger Platform webhook shapes, shared by Facebook Messenger and
// Instagram Messaging: both deliver entry[].messaging[] items with
// millisecond timestamps. Which channel an item belongs to is decided by the
// top-level object field, which the dispatcher resolves before parsing.

type messengerPayload struct {
	Object string           `json:"object"`
	Entry  []messengerEntry `json:"entry"`
}

type messengerEntry struct {
	ID        string            `json:"id"`
	Time      int64             `json:"time"`
	Messaging []json.RawMessage `json:"messaging"`
}

type messengerItem struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64               `json:"timestamp"` // epoch milliseconds
	Message   *messengerMessage   `json:"message"`
	Postback  *messengerPostback  `json:"postback"`
	Delivery  *messengerDelivery  `json:"delivery"`
	Read      *messengerRead      `json:"read"`
}

type messengerMessage struct {
	MID         string                `json:"mid"`
	Text        string                `json:"text"`
	IsEcho      bool                  `json:"is_echo"`
	Attachments []messengerAttachment `json:"attachments"`
}

type messengerAttachment struct {
	Type    string `json:"type"` // image, video, audio, file, location
	Payload struct {
		URL         string `json:"url"`
		Coordinates *struct {
			Lat  float64 `json:"lat"`
			Long float64 `json:"long"`
		} `json:"coordinates"`
	} `json:"payload"`
}

type messengerPostback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type messengerDelivery struct {
	MIDs      []string `json:"mids"`
	Watermark int64    `json:"watermark"`
}

type messengerRead struct {
	Watermark int64 `json:"watermark"`
}

// ParseMessenger normalizes a Facebook Messenger delivery.
func ParseMessenger(payload []byte) ParseResult {
	return parseMessaging(model.ChannelMessenger, payload)
}

// ParseInstagram normalizes an Instagram Messaging delivery. The wire shape
// rides the Messenger Platform; only the channel tag differs.
func ParseInstagram(payload []byte) ParseResult {
	return parseMessaging(model.ChannelInstagram, payload)
}

func parseMessaging(ch model.Channel, payload []byte) ParseResult {
	var result ParseResult

	var p messengerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn().Err(err).Str("channel", string(ch)).Msg("messaging parser: unrecognized payload shape")
		return result
	}

	for _, entry := range p.Entry {
		for _, raw := range entry.Messaging {
			var item messengerItem
			if err := json.Unmarshal(raw, &item); err != nil {
				log.Warn().Err(err).Str("channel", string(ch)).Msg("messaging parser: skipping malformed messaging entry")
				continue
			}

			switch {
			case item.Message != nil:
				if item.Message.IsEcho {
					// Reflections of messages the business itself sent,
					// not inbound customer traffic.
					continue
				}
				if event, ok := buildMessagingEvent(ch, item, raw); ok {
					result.Messages = append(result.Messages, event)
				}

			case item.Postback != nil:
				result.Messages = append(result.Messages, buildPostbackEvent(ch, item, raw))

			case item.Delivery != nil:
				ts := time.UnixMilli(item.Delivery.Watermark).UTC()
				for _, mid := range item.Delivery.MIDs {
					result.Statuses = append(result.Statuses, StatusUpdateEvent{
						Channel:           ch,
						ExternalMessageID: mid,
						Status:            model.MessageStatusDelivered,
						Timestamp:         ts,
					})
				}

			case item.Read != nil:
				// Read receipts carry only a watermark, no message ids, so
				// there is nothing to key a status update on.
				log.Debug().Str("channel", string(ch)).Int64("watermark", item.Read.Watermark).
					Msg("messaging parser: ignoring watermark-only read receipt")

			default:
				log.Debug().Str("channel", string(ch)).Msg("messaging parser: skipping unrecognized messaging entry")
			}
		}
	}

	return result
}

func buildMessagingEvent(ch model.Channel, item messengerItem, raw json.RawMessage) (IncomingMessageEvent, bool) {
	m := item.Message
	if m.MID == "" || item.Sender.ID == "" {
		return IncomingMessageEvent{}, false
	}

	event := IncomingMessageEvent{
		Channel:                ch,
		ExternalMessageID:      m.MID,
		ExternalConversationID: BuildConversationID(item.Recipient.ID, item.Sender.ID),
		SenderID:               item.Sender.ID,
		RecipientID:            item.Recipient.ID,
		Timestamp:              parseEpochMillis(item.Timestamp),
		RawPayload:             raw,
	}

	if len(m.Attachments) > 0 {
		att := m.Attachments[0]
		event.ContentType = attachmentContentType(att.Type)
		event.MediaURL = att.Payload.URL
		event.TextBody = m.Text
	} else {
		event.ContentType = model.ContentTypeText
		event.TextBody = m.Text
	}

	return event, true
}

func buildPostbackEvent(ch model.Channel, item messengerItem, raw json.RawMessage) IncomingMessageEvent {
	// Postbacks carry no mid. The (sender, timestamp) pair is stable across
	// redeliveries, so a synthetic id keeps the upsert idempotent.
	return IncomingMessageEvent{
		Channel:                ch,
		ExternalMessageID:      fmt.Sprintf("pb.%s.%d", item.Sender.ID, item.Timestamp),
		ExternalConversationID: BuildConversationID(item.Recipient.ID, item.Sender.ID),
		SenderID:               item.Sender.ID,
		RecipientID:            item.Recipient.ID,
		Timestamp:              parseEpochMillis(item.Timestamp),
		ContentType:            model.ContentTypePostback,
		TextBody:               item.Postback.Payload,
		RawPayload:             raw,
	}
}

func attachmentContentType(attachmentType string) model.ContentType {
	switch attachmentType {
	case "image":
		return model.ContentTypeImage
	case "video":
		return model.ContentTypeVideo
	case "audio":
		return model.ContentTypeAudio
	case "file":
		return model.ContentTypeDocument
	case "location":
		return model.ContentTypeLocation
	default:
		return model.ContentTypeUnknown
	}
}

// parseEpochMillis converts Messenger Platform millisecond timestamps to the
// internal representation, falling back to now for missing values.
func parseEpochMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
