package model

import "time"

// -------------------- CREDENTIAL MODEL --------------------

// Credential is the authentication record for one account. The session key
// pair is set on successful login and cleared on logout; both fields are
// either empty or populated together.
type Credential struct {
	EmailBucket       int        `json:"-" db:"email_bucket"`
	CredentialID      string     `json:"id" db:"credential_id"` // UUID
	Email             string     `json:"email" db:"email"`
	PasswordHash      string     `json:"-" db:"password_hash"` // bcrypt
	SessionPublicKey  string     `json:"-" db:"session_public_key"`
	SessionPrivateKey string     `json:"-" db:"session_private_key"`
	LoginAttempts     int        `json:"-" db:"login_attempts"`
	CreatedAt         time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

// CredentialSummary is the only credential shape that leaves the service
// boundary. Password hash and session keys never do.
type CredentialSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (c *Credential) Summary() *CredentialSummary {
	return &CredentialSummary{ID: c.CredentialID, Email: c.Email}
}

// -------------------- PROFILE MODEL --------------------

// Profile holds the user-facing account data. Exactly one profile exists per
// credential; email is denormalized from the credential at registration.
type Profile struct {
	EmailBucket  int        `json:"-" db:"email_bucket"`
	ProfileID    string     `json:"id" db:"profile_id"` // UUID
	CredentialID string     `json:"credentialId" db:"credential_id"`
	Email        string     `json:"email" db:"email"`
	Surname      string     `json:"surname" db:"surname"`
	PinEncrypted string     `json:"-" db:"pin_encrypted"`
	PinKeyID     string     `json:"-" db:"pin_key_id"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

// -------------------- SESSION TOKENS --------------------

// TokenPair is the signed access/refresh token pair minted at login. It is
// never persisted; logout clears the credential's session keys but already
// issued tokens remain valid until natural expiry.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token    *TokenPair `json:"token"`
	UserData *Profile   `json:"userData"`
}

// LogoutAck acknowledges a logout. Shape is stable across repeated calls.
type LogoutAck struct {
	AuthID    string `json:"authId"`
	LoggedOut bool   `json:"loggedOut"`
}

// -------------------- ACCOUNT EVENTS --------------------

// AccountEvent is published to Kafka and appended to the ClickHouse audit
// trail on every auth-relevant transition.
type AccountEvent struct {
	EventID      string    `json:"event_id"`
	Type         string    `json:"type"` // registered | login_succeeded | login_failed | logged_out
	CredentialID string    `json:"credential_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

const (
	EventRegistered     = "registered"
	EventLoginSucceeded = "login_succeeded"
	EventLoginFailed    = "login_failed"
	EventLoggedOut      = "logged_out"
)
