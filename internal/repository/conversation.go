package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/chatfold/inbox-server-go/internal/model"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindByChannelAndExternalID(ctx context.Context, channel model.Channel, externalID string) (*model.Conversation, error)
	FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.Conversation, error)
	CountByAccountID(ctx context.Context, accountID string) (int, error)
	Upsert(ctx context.Context, params model.UpsertConversationParams) (*model.Conversation, error)
	CountByChannel(ctx context.Context, channel model.Channel) (int, error)
}

type conversationRepo struct {
	db *sqlx.DB
}

func NewConversationRepository(db *sqlx.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT * FROM conversations WHERE id = $1`, id)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) FindByChannelAndExternalID(ctx context.Context, channel model.Channel, externalID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations
		WHERE channel = $1 AND external_conversation_id = $2
	`, channel, externalID)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.SelectContext(ctx, &convs, `
		SELECT * FROM conversations
		WHERE account_id = $1
		ORDER BY last_message_at DESC NULLS LAST
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	return convs, err
}

func (r *conversationRepo) CountByAccountID(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM conversations WHERE account_id = $1
	`, accountID)
	return count, err
}

// Upsert is the find-or-create for a thread: the (channel,
// external_conversation_id) unique constraint makes concurrent deliveries
// for the same thread converge on one row.
func (r *conversationRepo) Upsert(ctx context.Context, params model.UpsertConversationParams) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		INSERT INTO conversations
			(channel, external_conversation_id, account_id, contact_id, last_message_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel, external_conversation_id) DO UPDATE SET
			last_message_at = GREATEST(conversations.last_message_at, EXCLUDED.last_message_at)
		RETURNING *
	`, params.Channel, params.ExternalConversationID, params.AccountID,
		params.ContactID, params.LastMessageAt)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) CountByChannel(ctx context.Context, channel model.Channel) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM conversations WHERE channel = $1
	`, channel)
	return count, err
}
