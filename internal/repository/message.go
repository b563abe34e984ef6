package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/chatfold/inbox-server-go/internal/model"
)

type MessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.Message, error)
	FindByChannelAndExternalID(ctx context.Context, channel model.Channel, externalID string) (*model.Message, error)
	FindByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	CountByConversationID(ctx context.Context, conversationID string) (int, error)
	// UpsertByExternalID inserts the message and returns it. When a row with
	// the same (channel, external_message_id) already exists the insert is a
	// no-op and (nil, nil) is returned so callers can tell a redelivery apart
	// from a first delivery.
	UpsertByExternalID(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	// UpdateStatusByExternalID advances the delivery status of a previously
	// stored message. Returns the number of rows updated; zero means the
	// referenced message was never seen.
	UpdateStatusByExternalID(ctx context.Context, channel model.Channel, externalID string, status model.MessageStatus, errorDetail *string, at time.Time) (int64, error)
	CountByChannel(ctx context.Context, channel model.Channel) (int, error)
	CountByStatus(ctx context.Context, status model.MessageStatus) (int, error)
	PruneRawPayloads(ctx context.Context, olderThan time.Time) (int64, error)
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM messages WHERE id = $1`, id)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) FindByChannelAndExternalID(ctx context.Context, channel model.Channel, externalID string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		SELECT * FROM messages
		WHERE channel = $1 AND external_message_id = $2
	`, channel, externalID)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) FindByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE conversation_id = $1
		ORDER BY event_timestamp DESC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	return msgs, err
}

func (r *messageRepo) CountByConversationID(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = $1
	`, conversationID)
	return count, err
}

func (r *messageRepo) UpsertByExternalID(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages
			(conversation_id, account_id, contact_id, channel, external_message_id,
			 direction, content_type, text_body, media_url, media_id,
			 status, raw_payload, event_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (channel, external_message_id) DO NOTHING
		RETURNING *
	`, params.ConversationID, params.AccountID, params.ContactID, params.Channel,
		params.ExternalMessageID, params.Direction, params.ContentType,
		params.TextBody, params.MediaURL, params.MediaID,
		params.Status, params.RawPayload, params.EventTimestamp)
	// DO NOTHING suppresses RETURNING, so a duplicate surfaces as no rows.
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) UpdateStatusByExternalID(ctx context.Context, channel model.Channel, externalID string, status model.MessageStatus, errorDetail *string, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = $1, error_detail = COALESCE($2, error_detail), status_updated_at = $3
		WHERE channel = $4 AND external_message_id = $5
		  AND (status_updated_at IS NULL OR status_updated_at <= $3)
	`, status, errorDetail, at, channel, externalID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *messageRepo) CountByChannel(ctx context.Context, channel model.Channel) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages WHERE channel = $1
	`, channel)
	return count, err
}

func (r *messageRepo) CountByStatus(ctx context.Context, status model.MessageStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages WHERE status = $1
	`, status)
	return count, err
}

func (r *messageRepo) PruneRawPayloads(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET raw_payload = NULL
		WHERE raw_payload IS NOT NULL AND created_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
