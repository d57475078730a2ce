package auth

import (
	"context"
	"errors"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the verified caller of a request
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Verifier turns a raw bearer token into an identity
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
