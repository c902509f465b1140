// Package core provides the Mnemo query coordinator and memory data model.
package core

import (
	"errors"
	"fmt"
)

// Kind classifies an EngineError (spec.md §7). Transports map Kind to a
// generic user-facing message; the core itself always carries the full
// error.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindPermission  Kind = "permission"
	KindConflict    Kind = "conflict"
	KindIntegrity   Kind = "integrity"
	KindDecryption  Kind = "decryption"
	KindEmbedding   Kind = "embedding"
	KindLLM         Kind = "llm"
	KindIndex       Kind = "index"
	KindStorage     Kind = "storage"
	KindCancelled   Kind = "cancelled"
	KindTimeout     Kind = "timeout"
	KindInternal    Kind = "internal"
)

// Sentinel errors, one per Kind, for errors.Is comparisons against a bare Kind.
var (
	ErrNotFound   = errors.New("not found")
	ErrPermission = errors.New("permission denied")
	ErrConflict   = errors.New("conflict")
	ErrIntegrity  = errors.New("integrity violation")
	ErrDecryption = errors.New("decryption failed")
	ErrEmbedding  = errors.New("embedding failed")
	ErrLLM        = errors.New("llm generation failed")
	ErrIndex      = errors.New("index operation failed")
	ErrStorage    = errors.New("storage operation failed")
	ErrCancelled  = errors.New("operation cancelled")
	ErrTimeout    = errors.New("operation timed out")
	ErrValidation = errors.New("validation failed")
	ErrInternal   = errors.New("internal error")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindPermission:
		return ErrPermission
	case KindConflict:
		return ErrConflict
	case KindIntegrity:
		return ErrIntegrity
	case KindDecryption:
		return ErrDecryption
	case KindEmbedding:
		return ErrEmbedding
	case KindLLM:
		return ErrLLM
	case KindIndex:
		return ErrIndex
	case KindStorage:
		return ErrStorage
	case KindCancelled:
		return ErrCancelled
	case KindTimeout:
		return ErrTimeout
	case KindValidation:
		return ErrValidation
	default:
		return ErrInternal
	}
}

// EngineError wraps an underlying error with operation and kind context.
//
// Every error the core returns to a caller is an *EngineError, never a bare
// driver/library error, so transports can rely on Kind rather than string
// matching (spec.md §7: "each carries a message, never leaked raw to
// transports").
type EngineError struct {
	// Op is the operation that failed, e.g. "Remember", "Recall".
	Op string

	// Kind classifies the failure.
	Kind Kind

	// AgentID and MemoryID are structured fields for caller-side logging.
	AgentID  string
	MemoryID string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mnemo: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("mnemo: %s: %s", e.Op, e.Kind)
}

// Unwrap exposes both the underlying error and the Kind sentinel, so
// errors.Is(err, core.ErrNotFound) and errors.Is(err, someDriverErr) both
// work.
func (e *EngineError) Unwrap() []error {
	if e.Err != nil {
		return []error{sentinelFor(e.Kind), e.Err}
	}
	return []error{sentinelFor(e.Kind)}
}

// NewEngineError constructs an *EngineError. Returns nil only when err is
// nil and kind is empty; with a kind set it returns a non-nil error even
// for a nil err (mirrors the teacher's NewMemoryError nil-safety).
func NewEngineError(op string, kind Kind, err error) error {
	if err == nil && kind == "" {
		return nil
	}
	return &EngineError{Op: op, Kind: kind, Err: err}
}

// WithContext attaches agent/memory identifiers for structured logging by
// the caller; it never changes the error's Kind or message.
func (e *EngineError) WithContext(agentID, memoryID string) *EngineError {
	e.AgentID = agentID
	e.MemoryID = memoryID
	return e
}

// errMissingField builds a plain error naming a required, unset config field.
func errMissingField(field string) error {
	return fmt.Errorf("missing required field %q", field)
}
