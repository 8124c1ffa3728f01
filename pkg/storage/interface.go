package storage

import (
	"context"
)

// UserStorage holds user records. Lookups return (nil, nil) when no record
// matches; uniqueness of emails is enforced by the service layer before
// Create is called.
type UserStorage interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// LinkStorage holds link records keyed by short code. Lookups return
// (nil, nil) when the code is unknown.
type LinkStorage interface {
	Create(ctx context.Context, link *LinkRecord) error
	GetByCode(ctx context.Context, code string) (*LinkRecord, error)
	Update(ctx context.Context, link *LinkRecord) error
	Delete(ctx context.Context, code string) error

	// ListByOwner returns every record owned by ownerID in insertion order.
	ListByOwner(ctx context.Context, ownerID string) ([]*LinkRecord, error)

	// AppendVisit logs one visit against the code: VisitCount is always
	// incremented and the visit appended; UniqueVisitorCount is incremented
	// only when unique is true. Returns the updated record, or (nil, nil)
	// when the code is unknown.
	AppendVisit(ctx context.Context, code string, visit Visit, unique bool) (*LinkRecord, error)
}
