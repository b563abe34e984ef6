package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfold/inbox-server-go/internal/model"
)

func TestParseWhatsApp(t *testing.T) {
	t.Run("parses a text message", func(t *testing.T) {
		payload := []byte(`{
			"object": "whatsapp_business_account",
			"entry": [{
				"id": "102290129340398",
				"changes": [{
					"field": "messages",
					"value": {
						"messaging_product": "whatsapp",
						"metadata": {"display_phone_number": "15550009999", "phone_number_id": "106540352242922"},
						"messages": [{
							"id": "wamid.1",
							"from": "15550001111",
							"timestamp": "1700000000",
							"type": "text",
							"text": {"body": "hi"}
						}]
					}
				}]
			}]
		}`)

		result := ParseWhatsApp(payload)
		require.Len(t, result.Messages, 1)
		assert.Empty(t, result.Statuses)

		msg := result.Messages[0]
		assert.Equal(t, model.ChannelWhatsApp, msg.Channel)
		assert.Equal(t, "wamid.1", msg.ExternalMessageID)
		assert.Equal(t, "15550001111", msg.SenderID)
		assert.Equal(t, "106540352242922", msg.RecipientID)
		assert.Equal(t, "106540352242922:15550001111", msg.ExternalConversationID)
		assert.Equal(t, model.ContentTypeText, msg.ContentType)
		assert.Equal(t, "hi", msg.TextBody)
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp)
		assert.NotEmpty(t, msg.RawPayload)
	})

	t.Run("parses media messages with media id and no url", func(t *testing.T) {
		payload := []byte(`{
			"entry": [{"changes": [{"value": {
				"messaging_product": "whatsapp",
				"metadata": {"phone_number_id": "106540352242922"},
				"messages": [
					{"id": "wamid.img", "from": "15550001111", "timestamp": "1700000001", "type": "image",
					 "image": {"id": "media-123", "mime_type": "image/jpeg", "caption": "look"}},
					{"id": "wamid.doc", "from": "15550001111", "timestamp": "1700000002", "type": "document",
					 "document": {"id": "media-456", "filename": "invoice.pdf"}}
				]
			}}]}]
		}`)

		result := ParseWhatsApp(payload)
		require.Len(t, result.Messages, 2)

		img := result.Messages[0]
		assert.Equal(t, model.ContentTypeImage, img.ContentType)
		assert.Equal(t, "media-123", img.MediaID)
		assert.Equal(t, "look", img.TextBody)
		assert.Empty(t, img.MediaURL)

		doc := result.Messages[1]
		assert.Equal(t, model.ContentTypeDocument, doc.ContentType)
		assert.Equal(t, "media-456", doc.MediaID)
	})

	t.Run("parses statuses including failure detail", func(t *testing.T) {
		payload := []byte(`{
			"entry": [{"changes": [{"value": {
				"messaging_product": "whatsapp",
				"metadata": {"phone_number_id": "106540352242922"},
				"statuses": [
					{"id": "wamid.out1", "status": "delivered", "timestamp": "1700000100", "recipient_id": "15550001111"},
					{"id": "wamid.out2", "status": "failed", "timestamp": "1700000200",
					 "errors": [{"code": 131047, "title": "Re-engagement message", "message": "Message failed to send"}]}
				]
			}}]}]
		}`)

		result := ParseWhatsApp(payload)
		assert.Empty(t, result.Messages)
		require.Len(t, result.Statuses, 2)

		assert.Equal(t, model.MessageStatusDelivered, result.Statuses[0].Status)
		assert.Equal(t, "wamid.out1", result.Statuses[0].ExternalMessageID)
		assert.Equal(t, time.Unix(1700000100, 0).UTC(), result.Statuses[0].Timestamp)
		assert.Empty(t, result.Statuses[0].ErrorDetail)

		assert.Equal(t, model.MessageStatusFailed, result.Statuses[1].Status)
		assert.Equal(t, "Message failed to send", result.Statuses[1].ErrorDetail)
	})

	t.Run("emits both lists when one entry carries messages and statuses", func(t *testing.T) {
		payload := []byte(`{
			"entry": [{"changes": [{"value": {
				"messaging_product": "whatsapp",
				"metadata": {"phone_number_id": "1"},
				"messages": [{"id": "wamid.m", "from": "2", "timestamp": "1700000000", "type": "text", "text": {"body": "x"}}],
				"statuses": [{"id": "wamid.s", "status": "read", "timestamp": "1700000000"}]
			}}]}]
		}`)

		result := ParseWhatsApp(payload)
		assert.Len(t, result.Messages, 1)
		assert.Len(t, result.Statuses, 1)
	})

	t.Run("flattens multiple batched entries", func(t *testing.T) {
		payload := []byte(`{
			"entry": [
				{"changes": [{"value": {"messaging_product": "whatsapp", "metadata": {"phone_number_id": "1"},
					"messages": [{"id": "wamid.a", "from": "2", "timestamp": "1700000000", "type": "text", "text": {"body": "a"}}]}}]},
				{"changes": [{"value": {"messaging_product": "whatsapp", "metadata": {"phone_number_id": "1"},
					"messages": [{"id": "wamid.b", "from": "3", "timestamp": "1700000001", "type": "text", "text": {"body": "b"}}]}}]}
			]
		}`)

		result := ParseWhatsApp(payload)
		require.Len(t, result.Messages, 2)
		assert.Equal(t, "wamid.a", result.Messages[0].ExternalMessageID)
		assert.Equal(t, "wamid.b", result.Messages[1].ExternalMessageID)
	})

	t.Run("skips malformed entries without dropping valid siblings", func(t *testing.T) {
		payload := []byte(`{
			"entry": [{"changes": [{"value": {
				"messaging_product": "whatsapp",
				"metadata": {"phone_number_id": "1"},
				"messages": [
					{"id": "", "from": "2", "timestamp": "1700000000"},
					"not-an-object",
					{"id": "wamid.ok", "from": "2", "timestamp": "1700000000", "type": "text", "text": {"body": "ok"}}
				]
			}}]}]
		}`)

		result := ParseWhatsApp(payload)
		require.Len(t, result.Messages, 1)
		assert.Equal(t, "wamid.ok", result.Messages[0].ExternalMessageID)
	})

	t.Run("skips changes for other messaging products", func(t *testing.T) {
		payload := []byte(`{
			"entry": [{"changes": [{"value": {
				"messaging_product": "sms",
				"messages": [{"id": "x", "from": "2", "timestamp": "1700000000"}]
			}}]}]
		}`)

		result := ParseWhatsApp(payload)
		assert.Empty(t, result.Messages)
	})

	t.Run("maps interactive replies to postback", func(t *testing.T) {
		payload := []byte(`{
			"entry": [{"changes": [{"value": {
				"messaging_product": "whatsapp",
				"metadata": {"phone_number_id": "1"},
				"messages": [{"id": "wamid.btn", "from": "2", "timestamp": "1700000000", "type": "interactive",
					"interactive": {"type": "button_reply", "button_reply": {"id": "confirm", "title": "Confirm booking"}}}]
			}}]}]
		}`)

		result := ParseWhatsApp(payload)
		require.Len(t, result.Messages, 1)
		assert.Equal(t, model.ContentTypePostback, result.Messages[0].ContentType)
		assert.Equal(t, "Confirm booking", result.Messages[0].TextBody)
	})

	t.Run("maps unrecognized message types to unknown", func(t *testing.T) {
		payload := []byte(`{
			"entry": [{"changes": [{"value": {
				"messaging_product": "whatsapp",
				"metadata": {"phone_number_id": "1"},
				"messages": [{"id": "wamid.sticker", "from": "2", "timestamp": "1700000000", "type": "sticker"}]
			}}]}]
		}`)

		result := ParseWhatsApp(payload)
		require.Len(t, result.Messages, 1)
		assert.Equal(t, model.ContentTypeUnknown, result.Messages[0].ContentType)
	})

	t.Run("returns empty result for empty or missing arrays", func(t *testing.T) {
		for _, payload := range []string{
			`{}`,
			`{"entry": []}`,
			`{"entry": [{"changes": []}]}`,
			`{"entry": [{"changes": [{"value": {"messaging_product": "whatsapp"}}]}]}`,
		} {
			result := ParseWhatsApp([]byte(payload))
			assert.Empty(t, result.Messages, payload)
			assert.Empty(t, result.Statuses, payload)
		}
	})

	t.Run("returns empty result for non-JSON payload", func(t *testing.T) {
		result := ParseWhatsApp([]byte(`not json`))
		assert.Empty(t, result.Messages)
		assert.Empty(t, result.Statuses)
	})
}
