package core

import "time"

// Session represents one authenticated client. The bearer token handed
// to the client is a signed JWT carrying the session ID; the Session
// record adds server-side revocability the signed token alone cannot
// provide.
type Session struct {
	ID        string // token JTI, unique
	Address   string // owning identity, non-owning reference
	IssuedAt  time.Time
	ExpiresAt time.Time
	Active    bool
}

// ValidAt reports whether the session is valid at the given instant.
// A session is valid iff it is active and the instant is before expiry.
func (s Session) ValidAt(t time.Time) bool {
	return s.Active && t.Before(s.ExpiresAt)
}
