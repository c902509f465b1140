// Package auth resolves (principal, memory, permission) authorization
// decisions by combining ownership, ACL grants, and transitive delegations
// (spec.md §4.6).
package auth

import (
	"context"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
)

// Resolver answers permission checks and computes accessible id sets. It
// holds no state of its own beyond a handle to the storage driver; all
// authorization facts live there.
type Resolver struct {
	driver   core.Driver
	maxDepth int
}

// New builds a Resolver bound to a storage driver. maxDepth bounds how far
// a delegation chain may be walked even if individual delegations claim a
// deeper budget.
func New(driver core.Driver, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &Resolver{driver: driver, maxDepth: maxDepth}
}

// Allow implements the four-step decision in spec.md §4.6: ownership, ACL,
// delegation, deny.
func (r *Resolver) Allow(ctx context.Context, principalID string, m *core.MemoryRecord, required core.Permission) (bool, error) {
	if principalID == m.AgentID {
		return true, nil
	}

	entries, err := r.driver.ListACLEntries(ctx, m.ID)
	if err != nil {
		return false, core.NewEngineError("Allow", core.KindStorage, err)
	}
	now := time.Now()
	for _, e := range entries {
		if e.Expired(now) {
			continue
		}
		if e.PrincipalID == principalID && e.Permission.Satisfies(required) {
			return true, nil
		}
	}

	delegations, err := r.driver.ListDelegationsFor(ctx, principalID)
	if err != nil {
		return false, core.NewEngineError("Allow", core.KindStorage, err)
	}
	for _, d := range delegations {
		if !d.Active(now) {
			continue
		}
		if d.CurrentDepth > r.maxDepth {
			continue
		}
		if !d.Permission.Satisfies(required) {
			continue
		}
		if d.Scope.Contains(m) {
			return true, nil
		}
	}

	return false, nil
}

// RequireAllow is Allow, returning a classified permission error instead of
// a bool when access is denied.
func (r *Resolver) RequireAllow(ctx context.Context, principalID string, m *core.MemoryRecord, required core.Permission) error {
	ok, err := r.Allow(ctx, principalID, m, required)
	if err != nil {
		return err
	}
	if !ok {
		return (&core.EngineError{Op: "RequireAllow", Kind: core.KindPermission}).WithContext(principalID, m.ID.String())
	}
	return nil
}

// AccessibleIDs computes the accessible id set for a principal: memories it
// owns, memories granted by ACL, and memories reachable via an active
// delegation, minus excluded memories (spec.md §4.6).
func (r *Resolver) AccessibleIDs(ctx context.Context, principalID string) ([]core.ID, error) {
	return r.driver.ListAccessibleMemoryIDs(ctx, principalID)
}

// CanDelegate checks that the delegator currently holds at least the
// permission being delegated over every memory the new delegation's scope
// would include — the "blanket check" constraint from spec.md §4.4: a
// delegation must intersect with the delegator's own effective permissions,
// never exceed them.
func (r *Resolver) CanDelegate(ctx context.Context, delegatorID string, scope core.DelegationScope, permission core.Permission, candidates []*core.MemoryRecord) error {
	for _, m := range candidates {
		if !scope.Contains(m) {
			continue
		}
		if err := r.RequireAllow(ctx, delegatorID, m, core.PermissionDelegate); err != nil {
			return err
		}
		if err := r.RequireAllow(ctx, delegatorID, m, permission); err != nil {
			return err
		}
	}
	return nil
}
