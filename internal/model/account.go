package model

import (
	"time"
)

// ConnectedAccount maps a channel-scoped business identity (a Facebook Page,
// an Instagram business account, or a WhatsApp phone number id) to the
// credentials and settings needed to serve it.
type ConnectedAccount struct {
	ID                string     `db:"id" json:"id"`
	Channel           Channel    `db:"channel" json:"channel"`
	ExternalAccountID string     `db:"external_account_id" json:"externalAccountId"`
	DisplayName       *string    `db:"display_name" json:"displayName,omitempty"`
	AccessToken       *string    `db:"access_token" json:"-"`
	APITokenHash      *string    `db:"api_token_hash" json:"-"`
	RateLimitPerMin   int        `db:"rate_limit_per_minute" json:"rateLimitPerMinute"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
	DisabledAt        *time.Time `db:"disabled_at" json:"disabledAt,omitempty"`
}

type CreateAccountParams struct {
	Channel           Channel
	ExternalAccountID string
	DisplayName       *string
	AccessToken       *string
	APITokenHash      string
	RateLimitPerMin   int
}
