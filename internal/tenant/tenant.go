// Package tenant implements the TenantGuard component: resolving an
// inbound credential to an organization/project scope and matching
// wildcarded permission strings.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
)

// Scope is the tenancy binding a resolved credential carries for the
// remainder of a request. Every BrokerAPI call threads Scope.OrganizationID
// into the Store calls it makes; the Store's own organization_id
// predicate is what actually prevents cross-tenant access.
type Scope struct {
	OrganizationID int64
	ProjectID      int64
	CredentialID   int64
}

// contextKey is an unexported type for context keys in this package.
type contextKey struct{}

var scopeKey = contextKey{}

// WithScope returns a context carrying the resolved tenancy scope.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFrom extracts the tenancy scope from the context, if any.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey).(*Scope)
	return s, ok
}

// Guard is the TenantGuard component.
type Guard struct {
	store store.Store
}

// New builds a Guard over s.
func New(s store.Store) *Guard {
	return &Guard{store: s}
}

// keySeparator divides an API key's lookup prefix from its secret
// material: "<prefix>.<secret>". Only the prefix is stored in the clear
// (for display and indexed lookup); the full key is bcrypt-hashed.
const keySeparator = "."

// Resolve maps a raw API key to its tenancy scope, rejecting unknown,
// disabled, or malformed credentials with an unauthenticated error. On
// success it records the credential's last-used timestamp.
func (g *Guard) Resolve(ctx context.Context, rawKey string) (*Scope, error) {
	prefix, _, ok := strings.Cut(rawKey, keySeparator)
	if !ok || prefix == "" {
		return nil, model.NewError(model.ErrorKindUnauthenticated, "malformed API key", nil)
	}

	cred, err := g.store.GetAPICredentialByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.NewError(model.ErrorKindUnauthenticated, "unknown API key", nil)
		}
		return nil, fmt.Errorf("tenant: resolve: %w", err)
	}
	if !cred.Enabled {
		return nil, model.NewError(model.ErrorKindUnauthenticated, "API key is disabled", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.KeyHash), []byte(rawKey)); err != nil {
		return nil, model.NewError(model.ErrorKindUnauthenticated, "invalid API key", nil)
	}

	if err := g.store.TouchAPICredential(ctx, cred.ID); err != nil {
		return nil, fmt.Errorf("tenant: touch credential: %w", err)
	}
	return &Scope{OrganizationID: cred.OrganizationID, ProjectID: cred.ProjectID, CredentialID: cred.ID}, nil
}

// HashKey bcrypt-hashes a raw API key for storage, used by credential
// provisioning (seed scripts, admin tooling).
func HashKey(rawKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("tenant: hash key: %w", err)
	}
	return string(hash), nil
}

// HasPermission reports whether userIdentity's roles within scope grant
// required, per the wildcard-matching rule below.
func (g *Guard) HasPermission(ctx context.Context, scope *Scope, userIdentity, required string) (bool, error) {
	roles, err := g.store.ListRolesForMembership(ctx, scope.OrganizationID, userIdentity)
	if err != nil {
		return false, fmt.Errorf("tenant: has permission: %w", err)
	}
	for _, r := range roles {
		for _, p := range r.Permissions {
			if MatchPermission(p, required) {
				return true, nil
			}
		}
	}
	return false, nil
}

// MatchPermission matches a (possibly wildcarded) granted permission
// against a required one, segment by segment on ":". A "*" segment
// matches any single segment at that position; a trailing "*" matches
// the remainder of required's segments as well, so "read:*" grants
// "read:tasks" and "read:tasks:notes" alike.
func MatchPermission(granted, required string) bool {
	gSegs := strings.Split(granted, ":")
	rSegs := strings.Split(required, ":")
	for i, g := range gSegs {
		if g == "*" {
			if i == len(gSegs)-1 {
				return true
			}
			if i >= len(rSegs) {
				return false
			}
			continue
		}
		if i >= len(rSegs) || g != rSegs[i] {
			return false
		}
	}
	return len(gSegs) == len(rSegs)
}
