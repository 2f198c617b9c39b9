// Package auth resolves the owner identity that scopes every memory
// operation.
package auth

import "errors"

// ErrNoUser is returned when an operation requires an owner and none is
// signed in.
var ErrNoUser = errors.New("no user is signed in")

// Provider reports the currently signed-in owner.
type Provider interface {
	// CurrentUser returns the owner id and whether one is signed in.
	CurrentUser() (string, bool)
}

// Static is a Provider fixed at construction, for single-user deployments
// and tests.
type Static struct {
	ownerID string
}

// NewStatic creates a provider that always reports ownerID. An empty
// ownerID reports no signed-in user.
func NewStatic(ownerID string) *Static {
	return &Static{ownerID: ownerID}
}

// CurrentUser implements Provider.
func (s *Static) CurrentUser() (string, bool) {
	return s.ownerID, s.ownerID != ""
}
