package auth

import (
	"context"
	"errors"
)

type contextKey string

const identityKey contextKey = "identity"

// Capability is one role tag a user can hold. Users carry any combination.
type Capability string

const (
	CapAdmin         Capability = "admin"
	CapUploader      Capability = "uploader"
	CapReviewer      Capability = "reviewer"
	CapThirdReviewer Capability = "third_reviewer"
)

// Identity is the authenticated caller resolved to a user row.
type Identity struct {
	UserID       int64        `json:"id"`
	Login        string       `json:"login"`
	Username     string       `json:"username"`
	Site         string       `json:"site"`
	Capabilities []Capability `json:"capabilities"`
}

func (i *Identity) Has(c Capability) bool {
	if i == nil {
		return false
	}
	for _, have := range i.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// IdentityStore resolves an external login to a user.
type IdentityStore interface {
	IdentityByLogin(ctx context.Context, login string) (*Identity, error)
}

// ErrUnknownIdentity is returned by an IdentityStore when no user has the
// login.
var ErrUnknownIdentity = errors.New("unknown identity")

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns nil when the request is anonymous.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}
