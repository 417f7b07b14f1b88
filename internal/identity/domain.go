package identity

import (
	"context"
	"time"

	"github.com/novachat/nova/internal/perms"
)

// Token is a validated identity bound to an opaque token string.
type Token struct {
	ID         string
	AppID      string
	UserID     int64
	Scope      uint64
	IssuedAt   time.Time
	ExpiresAt  time.Time
	IssuedAddr string
}

// HasScope reports whether the token's scope covers the permission.
func (t *Token) HasScope(p perms.Permission) bool {
	if err := perms.CheckPair(p, perms.KindUser); err != nil {
		return false
	}
	return perms.Has(t.Scope, p)
}

// Expired reports whether the token is past its expiry.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// DefaultScope is granted to tokens issued through the login flow.
var DefaultScope = perms.UserMinimum.Value |
	perms.UserView.Value |
	perms.UserMembership.Value |
	perms.UserInvites.Value |
	perms.UserMessages.Value |
	perms.UserDirectMessages.Value

// Credential is the stored login record for a user.
type Credential struct {
	UserID       int64
	Email        string
	PasswordHash string
	IsActive     bool
}

// Store provides durable token and credential lookup.
type Store interface {
	FindToken(ctx context.Context, id string) (*Token, error)
	InsertToken(ctx context.Context, token *Token) error
	DeleteToken(ctx context.Context, id string) error
	FindCredential(ctx context.Context, email string) (*Credential, error)
}
