package engine

import (
	"context"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
)

// ShareResult reports the ACL rows created by Share.
type ShareResult struct {
	Created []core.ID // ACLEntry ids
	Errors  map[string]error // target agent id -> error
}

// Share grants permission (default Read) on memoryID to one or more target
// agents. The caller must hold Share on the memory; one ACL row is created
// per target and a memory_share event is appended (spec.md §4.4).
func (e *Engine) Share(ctx context.Context, principalID string, memoryID core.ID, targetAgentIDs []string, permission core.Permission, opts ...core.ShareOption) (*ShareResult, error) {
	const op = "Share"
	o := core.ApplyShareOptions(opts)
	if permission == core.PermissionNone {
		permission = core.PermissionRead
	}

	m, err := e.driver.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindNotFound, err)
	}
	if err := e.authz.RequireAllow(ctx, principalID, m, core.PermissionShare); err != nil {
		return nil, err
	}

	result := &ShareResult{Errors: make(map[string]error)}
	now := time.Now()

	for _, target := range targetAgentIDs {
		entry := &core.ACLEntry{
			ID:            core.NewID(),
			MemoryID:      memoryID,
			PrincipalType: core.PrincipalAgent,
			PrincipalID:   target,
			Permission:    permission,
			GrantedBy:     principalID,
			CreatedAt:     now,
			ExpiresAt:     o.ExpiresAt,
		}
		if err := e.driver.InsertACLEntry(ctx, entry); err != nil {
			result.Errors[target] = core.NewEngineError(op, core.KindStorage, err)
			continue
		}
		result.Created = append(result.Created, entry.ID)
	}

	payload := map[string]interface{}{
		"memory_id":  memoryID.String(),
		"targets":    targetAgentIDs,
		"permission": permission.String(),
	}
	_, _ = e.appendEvent(ctx, principalID, m.ThreadID, core.ID{}, core.EventMemoryShare, payload)

	return result, nil
}

// Delegate grants a transitive permission over a scope of memories to
// delegateID. The caller must hold Delegate, and separately hold the
// delegated permission itself, over every memory the scope would include —
// a delegation can never exceed the delegator's effective access (spec.md
// §4.4). Revocation is handled by RevokeDelegation.
func (e *Engine) Delegate(ctx context.Context, delegatorID, delegateID string, permission core.Permission, opts ...core.DelegateOption) (*core.Delegation, error) {
	const op = "Delegate"
	o := core.ApplyDelegateOptions(opts)

	candidates, err := e.scopeCandidates(ctx, delegatorID, o.Scope)
	if err != nil {
		return nil, err
	}
	if err := e.authz.CanDelegate(ctx, delegatorID, o.Scope, permission, candidates); err != nil {
		return nil, err
	}

	d := &core.Delegation{
		ID:            core.NewID(),
		DelegatorID:   delegatorID,
		DelegateID:    delegateID,
		Permission:    permission,
		Scope:         o.Scope,
		MaxDepth:      o.MaxDepth,
		CurrentDepth:  0,
		CreatedAt:     time.Now(),
		ExpiresAt:     o.ExpiresAt,
	}
	if err := e.driver.InsertDelegation(ctx, d); err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}
	return d, nil
}

// SubDelegate creates a delegation whose parent is an existing one,
// incrementing current_depth; authorization still requires the
// sub-delegator to currently hold the permission via the parent chain
// (spec.md §4.4, §8 scenario S3: depth budgets are enforced, not merely
// recorded).
func (e *Engine) SubDelegate(ctx context.Context, parentDelegationID core.ID, delegatorID, delegateID string, permission core.Permission, opts ...core.DelegateOption) (*core.Delegation, error) {
	const op = "SubDelegate"
	parent, err := e.driver.GetDelegation(ctx, parentDelegationID)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindNotFound, err)
	}
	if !parent.Active(time.Now()) {
		return nil, core.NewEngineError(op, core.KindPermission, errInactiveDelegation)
	}
	nextDepth := parent.CurrentDepth + 1
	if nextDepth > parent.MaxDepth {
		return nil, core.NewEngineError(op, core.KindPermission, errDelegationDepthExceeded)
	}

	o := core.ApplyDelegateOptions(opts)
	candidates, err := e.scopeCandidates(ctx, delegatorID, o.Scope)
	if err != nil {
		return nil, err
	}
	if err := e.authz.CanDelegate(ctx, delegatorID, o.Scope, permission, candidates); err != nil {
		return nil, err
	}

	// The sub-delegator may request a tighter max_depth than the parent
	// chain allows, but never a looser one — a sub-delegation can only
	// narrow the remaining budget, not extend it (spec.md §8 scenario S3).
	maxDepth := o.MaxDepth
	if maxDepth > parent.MaxDepth {
		maxDepth = parent.MaxDepth
	}

	d := &core.Delegation{
		ID:                 core.NewID(),
		DelegatorID:        delegatorID,
		DelegateID:         delegateID,
		Permission:         permission,
		Scope:              o.Scope,
		MaxDepth:           maxDepth,
		CurrentDepth:       nextDepth,
		ParentDelegationID: parent.ID,
		CreatedAt:          time.Now(),
		ExpiresAt:          o.ExpiresAt,
	}
	if err := e.driver.InsertDelegation(ctx, d); err != nil {
		return nil, core.NewEngineError(op, core.KindStorage, err)
	}
	return d, nil
}

// RevokeDelegation marks a delegation revoked; subsequent authorization
// treats it as absent (spec.md §4.4).
func (e *Engine) RevokeDelegation(ctx context.Context, delegationID core.ID) error {
	if err := e.driver.RevokeDelegation(ctx, delegationID); err != nil {
		return core.NewEngineError("RevokeDelegation", core.KindStorage, err)
	}
	return nil
}

// scopeCandidates materializes the memories a DelegationScope names, so
// CanDelegate can check the delegator's access over each one.
func (e *Engine) scopeCandidates(ctx context.Context, delegatorID string, scope core.DelegationScope) ([]*core.MemoryRecord, error) {
	switch scope.Kind {
	case core.DelegationScopeByMemory:
		out := make([]*core.MemoryRecord, 0, len(scope.MemoryIDs))
		for id := range scope.MemoryIDs {
			m, err := e.driver.GetMemory(ctx, id)
			if err != nil {
				continue
			}
			out = append(out, m)
		}
		return out, nil
	default:
		// "all" and "by_tag" scopes are checked against every memory the
		// delegator owns or can already access, since scope.Contains
		// filters down to the relevant subset.
		ids, err := e.authz.AccessibleIDs(ctx, delegatorID)
		if err != nil {
			return nil, core.NewEngineError("scopeCandidates", core.KindStorage, err)
		}
		out := make([]*core.MemoryRecord, 0, len(ids))
		for _, id := range ids {
			m, err := e.driver.GetMemory(ctx, id)
			if err != nil {
				continue
			}
			out = append(out, m)
		}
		return out, nil
	}
}

var errInactiveDelegation = &delegationError{"parent delegation is expired or revoked"}
var errDelegationDepthExceeded = &delegationError{"delegation exceeds max_depth"}

type delegationError struct{ msg string }

func (e *delegationError) Error() string { return e.msg }
