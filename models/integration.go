package models

import "time"

// Integration is an org-scoped GitHub App installation record used to mint
// short-lived installation access tokens.
type Integration struct {
	ID            int64     `json:"id"              db:"id"`
	OrgLogin      string    `json:"org_login"       db:"org_login"`
	AppID         int64     `json:"app_id"          db:"app_id"`
	PrivateKeyPEM string    `json:"private_key_pem" db:"private_key_pem"`
	CreatedAt     time.Time `json:"created_at"      db:"created_at"`
}

// OAuthToken is a stored user token, selected by the owning user id.
type OAuthToken struct {
	ID          int64      `json:"id"           db:"id"`
	OwnerID     int64      `json:"owner_id"     db:"owner_id"`
	AccessToken string     `json:"access_token" db:"access_token"`
	Scopes      string     `json:"scopes"       db:"scopes"` // comma-separated
	ExpiresAt   *time.Time `json:"expires_at"   db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"   db:"created_at"`
}

// Expired reports whether the token has an expiry in the past.
func (t OAuthToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}
