package model

import (
	"time"

	"github.com/google/uuid"
)

// Session represents an authenticated player's logical presence, independent
// of any single physical connection. Each successful auth creates a new
// Session; nothing rebinds an existing Session to a new connection, so a
// player who reconnects gets a new Session.
type Session struct {
	ID        uuid.UUID
	PlayerID  string
	CreatedAt time.Time
	ExpiresAt time.Time

	LastRenewedAt time.Time
	HitCount      int64
}

func NewSession(playerID string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:            uuid.New(),
		PlayerID:      playerID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		LastRenewedAt: now,
	}
}

func (s *Session) IsExpired(at time.Time) bool { return at.After(s.ExpiresAt) }

// Renew sets ExpiresAt to at+ttl if the session is within renewalThreshold
// of expiring. Returns false if renewal wasn't due yet.
func (s *Session) Renew(at time.Time, ttl, renewalThreshold time.Duration) bool {
	if s.ExpiresAt.Sub(at) > renewalThreshold {
		return false
	}
	s.ExpiresAt = at.Add(ttl)
	s.LastRenewedAt = at
	return true
}
