package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/BenjaminJSLee/tinyapp/pkg/generator"
	"github.com/BenjaminJSLee/tinyapp/pkg/logging"
	"github.com/BenjaminJSLee/tinyapp/pkg/storage"
)

// dummyHash is compared against when the email is unknown, so both login
// failure paths take a bcrypt comparison and stay indistinguishable.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("tinyapp-timing-equalizer"), bcrypt.DefaultCost)

// UserService is the user directory: registration, email lookup, and
// credential verification.
type UserService struct {
	storage storage.UserStorage
	logger  *logging.Logger
}

func NewUserService(storage storage.UserStorage, logger *logging.Logger) *UserService {
	return &UserService{storage: storage, logger: logger}
}

// Register creates a new account. The email must be non-empty and unused;
// the password is stored only as a bcrypt hash. User ids come from the same
// generator as short codes and are regenerated on collision.
func (s *UserService) Register(ctx context.Context, email, password string) (*storage.User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	existing, err := s.storage.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.LogAuthEvent(ctx, "register", email, false)
		return nil, ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	id, err := s.freshID(ctx)
	if err != nil {
		return nil, err
	}

	user := &storage.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.storage.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.LogAuthEvent(ctx, "register", user.ID, true)
	return user, nil
}

// FindByEmail returns the user registered under email, exact match only.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*storage.User, error) {
	user, err := s.storage.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// VerifyCredentials checks email and password together. Unknown email and
// wrong password both return ErrAuthFailure.
func (s *UserService) VerifyCredentials(ctx context.Context, email, password string) (*storage.User, error) {
	user, err := s.storage.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.logger.LogAuthEvent(ctx, "login", email, false)
		return nil, ErrAuthFailure
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.LogAuthEvent(ctx, "login", user.ID, false)
		return nil, ErrAuthFailure
	}

	s.logger.LogAuthEvent(ctx, "login", user.ID, true)
	return user, nil
}

func (s *UserService) freshID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		id, err := generator.Generate()
		if err != nil {
			return "", err
		}
		existing, err := s.storage.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique user id after %d attempts", maxCodeAttempts)
}
