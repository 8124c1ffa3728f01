package session

import (
	"context"
	"time"
)

// Session binds an opaque session id to an authenticated user. A zero
// ExpiresAt means the session never expires.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the server-side session backend. Get returns (nil, nil) for
// unknown or expired ids; Delete of an unknown id is a no-op so logout
// stays idempotent.
type Store interface {
	Create(ctx context.Context, userID string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// VisitorMarkers tracks which visitor tokens have already been seen per
// short code, backing the unique-visit counter. FirstVisit returns true
// exactly once per (code, token) pair.
type VisitorMarkers interface {
	FirstVisit(ctx context.Context, code, token string) (bool, error)
}
