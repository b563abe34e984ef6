package model

import (
	"time"
)

// Contact is the remote party of a conversation, scoped to the channel it
// was first seen on. ExternalUserID is the provider's id for the user (a
// WhatsApp phone number, an IGSID, or a Messenger PSID).
type Contact struct {
	ID             string    `db:"id" json:"id"`
	Channel        Channel   `db:"channel" json:"channel"`
	ExternalUserID string    `db:"external_user_id" json:"externalUserId"`
	DisplayName    *string   `db:"display_name" json:"displayName,omitempty"`
	FirstSeenAt    time.Time `db:"first_seen_at" json:"firstSeenAt"`
	LastSeenAt     time.Time `db:"last_seen_at" json:"lastSeenAt"`
}

type UpsertContactParams struct {
	Channel        Channel
	ExternalUserID string
	DisplayName    *string
}
