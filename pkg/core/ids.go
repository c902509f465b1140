package core

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// entropySource is the monotonic source used to generate ULIDs.
//
// ulid.New with a monotonic entropy source guarantees that ids minted in
// the same millisecond still sort strictly after one another, which is
// what the memory and event chains rely on for "creation order".
var entropySource = ulid.Monotonic(rand.Reader, 0)

// NewID returns a new stable, time-sortable 128-bit identifier.
func NewID() ID {
	return ID(ulid.MustNew(ulid.Now(), entropySource))
}

// ID is a stable 128-bit time-sortable identifier (spec.md §3, §6).
type ID ulid.ULID

// String returns the canonical base32 encoding of the id.
func (id ID) String() string {
	return ulid.ULID(id).String()
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Compare orders two ids by their time-sortable byte representation.
func (id ID) Compare(other ID) int {
	return ulid.ULID(id).Compare(ulid.ULID(other))
}

// ParseID parses the canonical base32 encoding of an id.
func ParseID(s string) (ID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return ID{}, NewEngineError("ParseID", KindValidation, err)
	}
	return ID(u), nil
}

// MarshalText implements encoding.TextMarshaler so IDs serialize as plain strings.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
