package models

import (
	"fmt"
	"time"
)

// Session and token field names
const (
	FieldUserID      = "user_id"
	FieldClientID    = "client_id"
	FieldExpiresAt   = "expires_at"
	FieldIPAddress   = "ip_address"
	FieldUserAgent   = "user_agent"
	FieldCodeHash    = "code_hash"
	FieldRedirectURI = "redirect_uri"
	FieldUsed        = "used"
	FieldTokenHash   = "token_hash"
	FieldRevoked     = "revoked"
)

// SessionFields represents an authenticated browser session.
type SessionFields struct {
	ExpiresAt time.Time `json:"expires_at"` // время истечения сессии
	UserID    string    `json:"user_id"`    // id пользователя-владельца
	IPAddress string    `json:"ip_address"` // IP адрес на момент логина
	UserAgent string    `json:"user_agent"` // user agent браузера
}

// Clone создает копию полей сессии
func (f *SessionFields) Clone() *SessionFields {
	clone := *f
	return &clone
}

// AuthCodeFields represents a one-time OAuth authorization code.
type AuthCodeFields struct {
	ExpiresAt   time.Time `json:"expires_at"`   // время истечения кода
	CodeHash    string    `json:"code_hash"`    // хеш кода (opaque)
	ClientID    string    `json:"client_id"`    // id клиента
	UserID      string    `json:"user_id"`      // id пользователя
	RedirectURI string    `json:"redirect_uri"` // redirect URI выдачи
	Scopes      []string  `json:"scopes"`       // запрошенные scopes
	Used        bool      `json:"used"`         // код уже обменян
}

// Clone создает глубокую копию полей authorization code
func (f *AuthCodeFields) Clone() *AuthCodeFields {
	clone := *f
	clone.Scopes = append([]string(nil), f.Scopes...)
	return &clone
}

// RefreshTokenFields represents a long-lived refresh token grant.
type RefreshTokenFields struct {
	ExpiresAt time.Time `json:"expires_at"` // время истечения токена
	TokenHash string    `json:"token_hash"` // хеш токена (opaque)
	UserID    string    `json:"user_id"`    // id пользователя
	ClientID  string    `json:"client_id"`  // id клиента
	Scopes    []string  `json:"scopes"`     // выданные scopes
	Revoked   bool      `json:"revoked"`    // токен отозван
}

// Clone создает глубокую копию полей refresh token
func (f *RefreshTokenFields) Clone() *RefreshTokenFields {
	clone := *f
	clone.Scopes = append([]string(nil), f.Scopes...)
	return &clone
}

func diffSession(a, b *SessionFields) ([]string, error) {
	if a == nil || b == nil {
		return nil, errMissingFields(TypeSession)
	}

	var diff []string
	if a.UserID != b.UserID {
		diff = append(diff, FieldUserID)
	}
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		diff = append(diff, FieldExpiresAt)
	}
	if a.IPAddress != b.IPAddress {
		diff = append(diff, FieldIPAddress)
	}
	if a.UserAgent != b.UserAgent {
		diff = append(diff, FieldUserAgent)
	}
	return diff, nil
}

func diffAuthCode(a, b *AuthCodeFields) ([]string, error) {
	if a == nil || b == nil {
		return nil, errMissingFields(TypeAuthCode)
	}

	var diff []string
	if a.CodeHash != b.CodeHash {
		diff = append(diff, FieldCodeHash)
	}
	if a.ClientID != b.ClientID {
		diff = append(diff, FieldClientID)
	}
	if a.UserID != b.UserID {
		diff = append(diff, FieldUserID)
	}
	if a.RedirectURI != b.RedirectURI {
		diff = append(diff, FieldRedirectURI)
	}
	if !stringSlicesEqual(a.Scopes, b.Scopes) {
		diff = append(diff, FieldScopes)
	}
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		diff = append(diff, FieldExpiresAt)
	}
	if a.Used != b.Used {
		diff = append(diff, FieldUsed)
	}
	return diff, nil
}

func diffRefreshToken(a, b *RefreshTokenFields) ([]string, error) {
	if a == nil || b == nil {
		return nil, errMissingFields(TypeRefreshToken)
	}

	var diff []string
	if a.TokenHash != b.TokenHash {
		diff = append(diff, FieldTokenHash)
	}
	if a.UserID != b.UserID {
		diff = append(diff, FieldUserID)
	}
	if a.ClientID != b.ClientID {
		diff = append(diff, FieldClientID)
	}
	if !stringSlicesEqual(a.Scopes, b.Scopes) {
		diff = append(diff, FieldScopes)
	}
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		diff = append(diff, FieldExpiresAt)
	}
	if a.Revoked != b.Revoked {
		diff = append(diff, FieldRevoked)
	}
	return diff, nil
}

// errMissingFields reports a document whose typed fields are absent for
// its declared type. Treated as a data error: skip and log, never classify.
func errMissingFields(t DocumentType) error {
	return fmt.Errorf("document of type %q has no %s fields", t, t)
}
