// Package id provides ULID generation for dwim.
//
// ULIDs are used in two places:
//   - Session IDs: every shell process gets a "sess" prefixed ID that shows up
//     in logs and in the debug server, so restarts are easy to follow.
//   - Sentinel nonces: every request appends a fresh ULID to its end-of-response
//     markers, which makes an accidental match against real command output
//     practically impossible.
package id

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionPrefix starts every session ID
const SessionPrefix = "sess"

// SessionID identifies one shell process instance
type SessionID string

func (id SessionID) String() string { return string(id) }

// Source mints ULIDs. IDs from one Source are strictly increasing, even
// within the same millisecond, so two sentinels of one request never collide.
type Source struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewSource returns a Source seeded from r, or crypto/rand when r is nil.
func NewSource(r io.Reader) *Source {
	if r == nil {
		r = rand.Reader
	}
	return &Source{entropy: ulid.Monotonic(r, 0)}
}

// Next returns the next ULID.
func (s *Source) Next() ulid.ULID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy)
}

var shared = NewSource(nil)

// NewSessionID returns a fresh session ID such as "sess_01J...".
func NewSessionID() SessionID {
	return SessionID(SessionPrefix + "_" + shared.Next().String())
}

// NewNonce returns a bare ULID for use inside shell-visible markers. It
// contains only Crockford base32 characters, so it never needs quoting.
func NewNonce() string {
	return shared.Next().String()
}

// ParseSessionID returns the ULID inside a session ID.
func ParseSessionID(sid SessionID) (ulid.ULID, error) {
	raw, ok := strings.CutPrefix(sid.String(), SessionPrefix+"_")
	if !ok {
		return ulid.ULID{}, ulid.ErrDataSize
	}
	return ulid.ParseStrict(raw)
}

// StartedAt reports when a session ID was minted.
func StartedAt(sid SessionID) (time.Time, error) {
	u, err := ParseSessionID(sid)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
