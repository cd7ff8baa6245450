package session

import "time"

// User is the hydrated user snapshot attached to an authenticated entry.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

// Entry is one session-identity record in the registry. An entry without a
// User is an anonymous placeholder awaiting authentication. Key material is
// never part of the entry — it is referenced by ID and stored separately in
// the key-blob object store.
type Entry struct {
	ID       string     `json:"id"`
	User     *User      `json:"user,omitempty"`
	ExpireAt *time.Time `json:"expireAt,omitempty"`
}

// Authenticated reports whether the entry has been bound to a user.
func (e *Entry) Authenticated() bool {
	return e != nil && e.User != nil
}

// Equal reports whether two entries carry the same id, user snapshot, and
// expiry.
func (e *Entry) Equal(o *Entry) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.ID != o.ID {
		return false
	}
	if (e.User == nil) != (o.User == nil) {
		return false
	}
	if e.User != nil && *e.User != *o.User {
		return false
	}
	if (e.ExpireAt == nil) != (o.ExpireAt == nil) {
		return false
	}
	if e.ExpireAt != nil && !e.ExpireAt.Equal(*o.ExpireAt) {
		return false
	}
	return true
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := &Entry{ID: e.ID}
	if e.User != nil {
		u := *e.User
		out.User = &u
	}
	if e.ExpireAt != nil {
		t := *e.ExpireAt
		out.ExpireAt = &t
	}
	return out
}
