package models

import "time"

// Session is the persisted authentication record written by the login flow.
// Every chat operation reads its bearer token; a missing or expired session
// puts the client in guest mode.
type Session struct {
	Token       string `json:"token"`
	UserID      int64  `json:"userId"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`

	// ExpiresAt is decoded from the token's exp claim when the session is
	// loaded. Zero means the token carries no expiry.
	ExpiresAt time.Time `json:"-"`
}

// Expired reports whether the token's expiry is at or before now.
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// IsSeller reports whether the viewer logged in with an owner-side role.
func (s *Session) IsSeller() bool {
	switch s.Role {
	case "SELLER", "OWNER", "ADVISOR", "DEVELOPER", "FRANCHISEE":
		return true
	}
	return false
}
