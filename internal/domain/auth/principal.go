// Package auth defines the requester identity passed into domain operations
// and the permission checks shared by them.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthenticated is returned when an operation requires a known requester.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the requester lacks the seller role.
	ErrForbidden = errors.New("permission denied")
)

// Principal is an authenticated requester.
type Principal struct {
	UserID   int64
	Username string
	IsSeller bool
}

// RequireUser returns ErrUnauthenticated for a nil or anonymous principal.
func RequireUser(p *Principal) error {
	if p == nil || p.UserID == 0 {
		return ErrUnauthenticated
	}
	return nil
}

// RequireSeller returns ErrUnauthenticated or ErrForbidden unless p is a seller.
func RequireSeller(p *Principal) error {
	if err := RequireUser(p); err != nil {
		return err
	}
	if !p.IsSeller {
		return ErrForbidden
	}
	return nil
}

// CanAccess reports whether p may read a resource owned by ownerID.
func (p *Principal) CanAccess(ownerID int64) bool {
	if p == nil {
		return false
	}
	return p.IsSeller || p.UserID == ownerID
}

type principalKey struct{}

// WithPrincipal stores p in ctx. Only the transport layer reads it back;
// domain services take the principal as an explicit argument.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
