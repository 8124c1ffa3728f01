package storage

import (
	"time"
)

// User is a registered account. Records are immutable after creation; there
// is no update or delete path.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Visit is one logged access of a short link.
type Visit struct {
	VisitorID string    `json:"visitor_id" db:"visitor_id"`
	Timestamp time.Time `json:"timestamp" db:"visited_at"`
}

// LinkRecord is a shortened URL owned by a user. ShortCode is the primary
// key and never changes after creation. The counters and the visit log are
// mutated only through AppendVisit, never by the owner directly, and satisfy
// UniqueVisitorCount <= VisitCount <= len(Visits).
type LinkRecord struct {
	ShortCode          string    `json:"short_code" db:"short_code"`
	LongURL            string    `json:"long_url" db:"long_url"`
	OwnerID            string    `json:"owner_id" db:"owner_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	VisitCount         int       `json:"visit_count" db:"visit_count"`
	UniqueVisitorCount int       `json:"unique_visitor_count" db:"unique_visitor_count"`
	Visits             []Visit   `json:"visits,omitempty"`
}

// Clone returns a deep copy so callers can't mutate stored state through a
// returned record.
func (l *LinkRecord) Clone() *LinkRecord {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Visits = make([]Visit, len(l.Visits))
	copy(cp.Visits, l.Visits)
	return &cp
}
