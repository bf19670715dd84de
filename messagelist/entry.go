// Package messagelist is a small host for the sequential worker: a list of messages
// owned by a control loop, where each new entry is encrypted in the background and
// updated in place once its result comes back.
package messagelist

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Swind/go-seqworker/cipher"
)

// Status is the processing state of an Entry.
type Status int

const (
	StatusPending Status = iota
	StatusEncrypted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusEncrypted:
		return "encrypted"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Entry is one row of the list.
// ElapsedMillis is zero while pending and covers queue wait plus encryption afterwards.
type Entry struct {
	Message       cipher.Message `json:"message"`
	ElapsedMillis int64          `json:"elapsed_ms"`
	Status        Status         `json:"status"`
	Err           error          `json:"-"`
}

// Done reports whether a result has been applied to the entry.
func (e Entry) Done() bool {
	return e.Status != StatusPending
}

// ErrEntryNotFound is wrapped by LookupError.
var ErrEntryNotFound = errors.New("entry not found")

// ErrDuplicateKey is wrapped by DuplicateKeyError.
var ErrDuplicateKey = errors.New("duplicate message key")

// ErrNotOnControlLoop is returned by operations that must run on the host's control loop.
var ErrNotOnControlLoop = errors.New("must be called on the control loop")

// LookupError reports a result whose message is no longer, or never was, in the list.
// It indicates a defect in the host, not a runtime condition.
type LookupError struct {
	Key uuid.UUID
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("no entry for message %s", e.Key)
}

func (e *LookupError) Unwrap() error {
	return ErrEntryNotFound
}

// DuplicateKeyError reports an insert whose key is already in the list. Results are
// matched by key, so a second row with the same key could never be updated.
type DuplicateKeyError struct {
	Key   uuid.UUID
	Index int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("message %s already at index %d", e.Key, e.Index)
}

func (e *DuplicateKeyError) Unwrap() error {
	return ErrDuplicateKey
}

// List is the ordered set of entries. It is not synchronised; the host only touches
// it from its control loop.
type List struct {
	entries []Entry
}

// Append adds e at the end and returns its index.
func (l *List) Append(e Entry) int {
	l.entries = append(l.entries, e)
	return len(l.entries) - 1
}

// IndexOf returns the index of the entry for key, or -1.
func (l *List) IndexOf(key uuid.UUID) int {
	for i, e := range l.entries {
		if e.Message.Key == key {
			return i
		}
	}
	return -1
}

// Set replaces the entry at i.
func (l *List) Set(i int, e Entry) {
	l.entries[i] = e
}

// At returns the entry at i.
func (l *List) At(i int) Entry {
	return l.entries[i]
}

func (l *List) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the entries in display order.
func (l *List) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// RemoveDone drops finished entries, keeping pending ones in order.
// It returns how many entries were removed.
func (l *List) RemoveDone() int {
	kept := l.entries[:0]
	for _, e := range l.entries {
		if !e.Done() {
			kept = append(kept, e)
		}
	}
	removed := len(l.entries) - len(kept)
	clear(l.entries[len(kept):])
	l.entries = kept
	return removed
}
