package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/chatfold/inbox-server-go/internal/model"
)

type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*model.ConnectedAccount, error)
	FindByChannelAndExternalID(ctx context.Context, channel model.Channel, externalID string) (*model.ConnectedAccount, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.ConnectedAccount, error)
	Create(ctx context.Context, params model.CreateAccountParams) (*model.ConnectedAccount, error)
	List(ctx context.Context) ([]model.ConnectedAccount, error)
	CountByChannel(ctx context.Context, channel model.Channel) (int, error)
}

type accountRepo struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) FindByID(ctx context.Context, id string) (*model.ConnectedAccount, error) {
	var account model.ConnectedAccount
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM connected_accounts WHERE id = $1
	`, id)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) FindByChannelAndExternalID(ctx context.Context, channel model.Channel, externalID string) (*model.ConnectedAccount, error) {
	var account model.ConnectedAccount
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM connected_accounts
		WHERE channel = $1 AND external_account_id = $2 AND disabled_at IS NULL
	`, channel, externalID)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.ConnectedAccount, error) {
	var account model.ConnectedAccount
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM connected_accounts
		WHERE api_token_hash = $1 AND disabled_at IS NULL
	`, tokenHash)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) Create(ctx context.Context, params model.CreateAccountParams) (*model.ConnectedAccount, error) {
	var account model.ConnectedAccount
	err := r.db.GetContext(ctx, &account, `
		INSERT INTO connected_accounts
			(channel, external_account_id, display_name, access_token, api_token_hash, rate_limit_per_minute)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.Channel, params.ExternalAccountID, params.DisplayName,
		params.AccessToken, params.APITokenHash, params.RateLimitPerMin)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepo) List(ctx context.Context) ([]model.ConnectedAccount, error) {
	var accounts []model.ConnectedAccount
	err := r.db.SelectContext(ctx, &accounts, `
		SELECT * FROM connected_accounts ORDER BY created_at ASC
	`)
	return accounts, err
}

func (r *accountRepo) CountByChannel(ctx context.Context, channel model.Channel) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM connected_accounts WHERE channel = $1
	`, channel)
	return count, err
}
