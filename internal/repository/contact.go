package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/chatfold/inbox-server-go/internal/model"
)

type ContactRepository interface {
	FindByID(ctx context.Context, id string) (*model.Contact, error)
	FindByChannelAndExternalID(ctx context.Context, channel model.Channel, externalID string) (*model.Contact, error)
	Upsert(ctx context.Context, params model.UpsertContactParams) (*model.Contact, error)
}

type contactRepo struct {
	db *sqlx.DB
}

func NewContactRepository(db *sqlx.DB) ContactRepository {
	return &contactRepo{db: db}
}

func (r *contactRepo) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	var contact model.Contact
	err := r.db.GetContext(ctx, &contact, `SELECT * FROM contacts WHERE id = $1`, id)
	return HandleNotFound(&contact, err)
}

func (r *contactRepo) FindByChannelAndExternalID(ctx context.Context, channel model.Channel, externalID string) (*model.Contact, error) {
	var contact model.Contact
	err := r.db.GetContext(ctx, &contact, `
		SELECT * FROM contacts WHERE channel = $1 AND external_user_id = $2
	`, channel, externalID)
	return HandleNotFound(&contact, err)
}

// Upsert is keyed by the (channel, external_user_id) unique constraint so
// concurrent deliveries for the same sender cannot race an existence check.
func (r *contactRepo) Upsert(ctx context.Context, params model.UpsertContactParams) (*model.Contact, error) {
	var contact model.Contact
	err := r.db.GetContext(ctx, &contact, `
		INSERT INTO contacts (channel, external_user_id, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel, external_user_id) DO UPDATE SET
			display_name = COALESCE(EXCLUDED.display_name, contacts.display_name),
			last_seen_at = NOW()
		RETURNING *
	`, params.Channel, params.ExternalUserID, params.DisplayName)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}
