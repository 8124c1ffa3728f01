package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/BenjaminJSLee/tinyapp/pkg/generator"
	"github.com/BenjaminJSLee/tinyapp/pkg/logging"
	"github.com/BenjaminJSLee/tinyapp/pkg/session"
	"github.com/BenjaminJSLee/tinyapp/pkg/storage"
)

// maxCodeAttempts bounds the regenerate-until-unique loop. With 62^6 codes
// the loop effectively never exhausts, but an upper bound keeps a broken
// random source from spinning forever.
const maxCodeAttempts = 10

// LinkService owns the link store and the access rules around it.
type LinkService struct {
	storage storage.LinkStorage
	markers session.VisitorMarkers
	logger  *logging.Logger
}

func NewLinkService(storage storage.LinkStorage, markers session.VisitorMarkers, logger *logging.Logger) *LinkService {
	return &LinkService{
		storage: storage,
		markers: markers,
		logger:  logger,
	}
}

// CanAccess is the single authorization predicate for owner-only
// operations: anonymous callers get ErrUnauthenticated, authenticated
// non-owners get ErrForbidden.
func CanAccess(requesterID string, record *storage.LinkRecord) error {
	if requesterID == "" {
		return ErrUnauthenticated
	}
	if requesterID != record.OwnerID {
		return ErrForbidden
	}
	return nil
}

func validateLongURL(longURL string) error {
	parsed, err := url.ParseRequestURI(longURL)
	if err != nil {
		return fmt.Errorf("%w: malformed url", ErrInvalidInput)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: only http and https urls allowed", ErrInvalidInput)
	}
	return nil
}

// Create inserts a new record owned by ownerID with zeroed counters. The
// short code is drawn from the generator and regenerated until it doesn't
// collide with an existing key.
func (s *LinkService) Create(ctx context.Context, longURL, ownerID string) (*storage.LinkRecord, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if err := validateLongURL(longURL); err != nil {
		return nil, err
	}

	code, err := s.freshCode(ctx)
	if err != nil {
		return nil, err
	}

	record := &storage.LinkRecord{
		ShortCode: code,
		LongURL:   longURL,
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
		Visits:    []storage.Visit{},
	}
	if err := s.storage.Create(ctx, record); err != nil {
		return nil, err
	}

	s.logger.LogLinkOperation(ctx, "create", code, true)
	return record, nil
}

// Get returns a single record to its owner.
func (s *LinkService) Get(ctx context.Context, code, requesterID string) (*storage.LinkRecord, error) {
	if requesterID == "" {
		return nil, ErrUnauthenticated
	}
	record, err := s.storage.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	if err := CanAccess(requesterID, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Update replaces the long URL of an owned record. Nothing else on the
// record is mutable by the owner.
func (s *LinkService) Update(ctx context.Context, code, newLongURL, requesterID string) (*storage.LinkRecord, error) {
	if requesterID == "" {
		return nil, ErrUnauthenticated
	}
	record, err := s.storage.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	if err := CanAccess(requesterID, record); err != nil {
		return nil, err
	}
	if err := validateLongURL(newLongURL); err != nil {
		return nil, err
	}

	record.LongURL = newLongURL
	if err := s.storage.Update(ctx, record); err != nil {
		return nil, err
	}

	s.logger.LogLinkOperation(ctx, "update", code, true)
	return record, nil
}

// Delete removes an owned record entirely.
func (s *LinkService) Delete(ctx context.Context, code, requesterID string) error {
	if requesterID == "" {
		return ErrUnauthenticated
	}
	record, err := s.storage.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNotFound
	}
	if err := CanAccess(requesterID, record); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, code); err != nil {
		return err
	}

	s.logger.LogLinkOperation(ctx, "delete", code, true)
	return nil
}

// ListForOwner returns the caller's records in insertion order.
func (s *LinkService) ListForOwner(ctx context.Context, ownerID string) ([]*storage.LinkRecord, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.storage.ListByOwner(ctx, ownerID)
}

// Resolve is the public redirect path: no ownership check, any caller may
// hit it. Every hit increments the visit counter and appends to the visit
// log; the unique counter moves only on the first sighting of visitorToken
// for this code.
func (s *LinkService) Resolve(ctx context.Context, code, visitorToken string) (*storage.LinkRecord, error) {
	record, err := s.storage.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}

	first := false
	if visitorToken != "" {
		first, err = s.markers.FirstVisit(ctx, code, visitorToken)
		if err != nil {
			return nil, err
		}
	}

	visit := storage.Visit{
		VisitorID: visitorToken,
		Timestamp: time.Now(),
	}
	updated, err := s.storage.AppendVisit(ctx, code, visit, first)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrNotFound
	}

	s.logger.LogVisit(ctx, code, first)
	return updated, nil
}

func (s *LinkService) freshCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generator.Generate()
		if err != nil {
			return "", err
		}
		existing, err := s.storage.GetByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique short code after %d attempts", maxCodeAttempts)
}
