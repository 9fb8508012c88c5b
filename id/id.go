// Package id provides prefix-qualified identifiers for voteflow entities,
// backed by TypeID (UUIDv7). An ID prints as "prefix_suffix", sorts by
// creation time, and is safe in URLs and log lines.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the entity type carried inside an ID.
type Prefix string

const (
	PrefixJob         Prefix = "job"
	PrefixPoll        Prefix = "poll"
	PrefixOption      Prefix = "opt"
	PrefixEvent       Prefix = "evt"
	PrefixVote        Prefix = "vote"
	PrefixFailure     Prefix = "flr"
	PrefixParticipant Prefix = "prt"
	PrefixWorker      Prefix = "wkr"
)

// ID wraps a TypeID together with a validity bit, so the zero value is a
// usable "no ID" sentinel. IDs are comparable and usable as map keys.
//
//nolint:recvcheck // read methods take values, UnmarshalText/Scan need pointers
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero ID. It stringifies to "" and stores as SQL NULL.
var Nil ID

// New mints an ID under the given prefix. An invalid prefix is a
// programming error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse reads a TypeID string such as "poll_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix is Parse plus a check that the ID belongs to the
// expected entity type.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, got)
	}
	return parsed, nil
}

// MustParse panics on a malformed string. For fixtures and constants.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Entity aliases
// ──────────────────────────────────────────────────

// The per-entity names below are aliases, not distinct types: an ID stays
// assignable across layers (store scans, JSON, log fields) while call
// sites document which entity they mean. Prefix enforcement happens in
// the ParseXxx helpers.
type (
	JobID         = ID
	PollID        = ID
	OptionID      = ID
	EventID       = ID
	VoteID        = ID
	FailureID     = ID
	ParticipantID = ID
	WorkerID      = ID
)

func NewJobID() ID         { return New(PrefixJob) }
func NewPollID() ID        { return New(PrefixPoll) }
func NewOptionID() ID      { return New(PrefixOption) }
func NewEventID() ID       { return New(PrefixEvent) }
func NewVoteID() ID        { return New(PrefixVote) }
func NewFailureID() ID     { return New(PrefixFailure) }
func NewParticipantID() ID { return New(PrefixParticipant) }
func NewWorkerID() ID      { return New(PrefixWorker) }

func ParseJobID(s string) (ID, error)         { return ParseWithPrefix(s, PrefixJob) }
func ParsePollID(s string) (ID, error)        { return ParseWithPrefix(s, PrefixPoll) }
func ParseOptionID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixOption) }
func ParseEventID(s string) (ID, error)       { return ParseWithPrefix(s, PrefixEvent) }
func ParseVoteID(s string) (ID, error)        { return ParseWithPrefix(s, PrefixVote) }
func ParseFailureID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixFailure) }
func ParseParticipantID(s string) (ID, error) { return ParseWithPrefix(s, PrefixParticipant) }
func ParseWorkerID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixWorker) }

// ParseAny accepts an ID of any entity type.
func ParseAny(s string) (ID, error) { return Parse(s) }

// ──────────────────────────────────────────────────
// Methods
// ──────────────────────────────────────────────────

// String renders "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the entity prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether the ID is unset.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler. Nil marshals empty.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil maps to SQL NULL so optional
// foreign key columns stay nullable.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL is the intended value
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner for string, []byte, and NULL sources.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
