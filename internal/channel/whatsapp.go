package channel

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatfold/inbox-server-go/internal/model"
)

// WhatsApp Cloud API webhook shapes. The payload nests events under
// entry[].changes[].value, with messages[] for inbound traffic and
// statuses[] for delivery receipts.

type whatsAppPayload struct {
	Object string          `json:"object"`
	Entry  []whatsAppEntry `json:"entry"`
}

type whatsAppEntry struct {
	ID      string           `json:"id"`
	Changes []whatsAppChange `json:"changes"`
}

type whatsAppChange struct {
	Field string              `json:"field"`
	Value whatsAppChangeValue `json:"value"`
}

type whatsAppChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	// Raw entries so one malformed element cannot drop its siblings.
	Messages []json.RawMessage `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
}

type whatsAppMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

type whatsAppMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"` // epoch seconds, as a string
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *whatsAppMedia `json:"image"`
	Audio    *whatsAppMedia `json:"audio"`
	Video    *whatsAppMedia `json:"video"`
	Document *whatsAppMedia `json:"document"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Name      string  `json:"name"`
	} `json:"location"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

type whatsAppStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code    int    `json:"code"`
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ParseWhatsApp normalizes a WhatsApp Cloud API delivery. Unrecognized or
// malformed elements are skipped per entry; the batch is never rejected as
// a whole.
func ParseWhatsApp(payload []byte) ParseResult {
	var result ParseResult

	var p whatsAppPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn().Err(err).Msg("whatsapp parser: unrecognized payload shape")
		return result
	}

	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			if value.MessagingProduct != "whatsapp" {
				continue
			}
			recipientID := value.Metadata.PhoneNumberID

			for _, raw := range value.Messages {
				var m whatsAppMessage
				if err := json.Unmarshal(raw, &m); err != nil {
					log.Warn().Err(err).Msg("whatsapp parser: skipping malformed message entry")
					continue
				}
				if m.ID == "" || m.From == "" {
					continue
				}

				event := IncomingMessageEvent{
					Channel:                model.ChannelWhatsApp,
					ExternalMessageID:      m.ID,
					ExternalConversationID: BuildConversationID(recipientID, m.From),
					SenderID:               m.From,
					RecipientID:            recipientID,
					Timestamp:              parseEpochSeconds(m.Timestamp),
					RawPayload:             raw,
				}
				applyWhatsAppContent(&event, m)
				result.Messages = append(result.Messages, event)
			}

			for _, raw := range value.Statuses {
				var s whatsAppStatus
				if err := json.Unmarshal(raw, &s); err != nil {
					log.Warn().Err(err).Msg("whatsapp parser: skipping malformed status entry")
					continue
				}
				if s.ID == "" {
					continue
				}

				status := model.MessageStatus(s.Status)
				if !status.Valid() {
					log.Debug().Str("status", s.Status).Msg("whatsapp parser: skipping unknown status value")
					continue
				}

				event := StatusUpdateEvent{
					Channel:           model.ChannelWhatsApp,
					ExternalMessageID: s.ID,
					Status:            status,
					Timestamp:         parseEpochSeconds(s.Timestamp),
				}
				if len(s.Errors) > 0 {
					detail := s.Errors[0].Title
					if s.Errors[0].Message != "" {
						detail = s.Errors[0].Message
					}
					event.ErrorDetail = detail
				}
				result.Statuses = append(result.Statuses, event)
			}
		}
	}

	return result
}

func applyWhatsAppContent(event *IncomingMessageEvent, m whatsAppMessage) {
	// Media carries an opaque Meta media id; resolving it to a URL needs a
	// follow-up Graph API call and is left to the processor.
	switch {
	case m.Type == "text" && m.Text != nil:
		event.ContentType = model.ContentTypeText
		event.TextBody = m.Text.Body
	case m.Image != nil:
		event.ContentType = model.ContentTypeImage
		event.MediaID = m.Image.ID
		event.TextBody = m.Image.Caption
	case m.Audio != nil:
		event.ContentType = model.ContentTypeAudio
		event.MediaID = m.Audio.ID
	case m.Video != nil:
		event.ContentType = model.ContentTypeVideo
		event.MediaID = m.Video.ID
		event.TextBody = m.Video.Caption
	case m.Document != nil:
		event.ContentType = model.ContentTypeDocument
		event.MediaID = m.Document.ID
		event.TextBody = m.Document.Caption
	case m.Location != nil:
		event.ContentType = model.ContentTypeLocation
	case m.Interactive != nil:
		event.ContentType = model.ContentTypePostback
		if m.Interactive.ButtonReply != nil {
			event.TextBody = m.Interactive.ButtonReply.Title
		} else if m.Interactive.ListReply != nil {
			event.TextBody = m.Interactive.ListReply.Title
		}
	default:
		event.ContentType = model.ContentTypeUnknown
	}
}

// parseEpochSeconds converts the Cloud API's string second timestamps to the
// internal representation. A missing or malformed timestamp falls back to
// the current time rather than dropping the event.
func parseEpochSeconds(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
