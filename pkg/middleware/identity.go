package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BenjaminJSLee/tinyapp/pkg/logging"
	"github.com/BenjaminJSLee/tinyapp/pkg/session"
)

type contextKey string

const userIDKey contextKey = "user_id"

// SessionCookieName carries the opaque session id in session auth mode.
const SessionCookieName = "session_id"

// AuthCookieName carries the signed JWT in cookie auth mode.
const AuthCookieName = "auth_token"

// IdentityResolver abstracts how the current identity travels between
// requests, so the routing layer doesn't care whether auth is a server-side
// session or a self-contained signed cookie.
type IdentityResolver interface {
	// Identify returns the authenticated user id, or "" for anonymous.
	Identify(r *http.Request) string

	// SetIdentity makes userID the caller's identity for future requests.
	SetIdentity(w http.ResponseWriter, r *http.Request, userID string) error

	// ClearIdentity ends the caller's authenticated state. Idempotent.
	ClearIdentity(w http.ResponseWriter, r *http.Request)
}

// Identity resolves the caller's identity once per request and stores it in
// the context for handlers to read.
func Identity(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := resolver.Identify(r); userID != "" {
				ctx := context.WithValue(r.Context(), userIDKey, userID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserIDFromContext returns the authenticated user id, or "" when the
// request is anonymous.
func GetUserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}

// CorrelationID tags every request context with a correlation id for the
// structured logs.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithCorrelationID(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionResolver backs identity with a server-side session store; the
// browser only ever holds an opaque session id.
type SessionResolver struct {
	store  session.Store
	secure bool
}

func NewSessionResolver(store session.Store, secure bool) *SessionResolver {
	return &SessionResolver{store: store, secure: secure}
}

func (sr *SessionResolver) Identify(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	sess, err := sr.store.Get(r.Context(), cookie.Value)
	if err != nil || sess == nil {
		return ""
	}
	return sess.UserID
}

func (sr *SessionResolver) SetIdentity(w http.ResponseWriter, r *http.Request, userID string) error {
	// A fresh login supersedes any session the browser already holds.
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		_ = sr.store.Delete(r.Context(), cookie.Value)
	}
	sess, err := sr.store.Create(r.Context(), userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sr.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (sr *SessionResolver) ClearIdentity(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		_ = sr.store.Delete(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   sr.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// JWTResolver backs identity with a signed, self-contained cookie; nothing
// is stored server side.
type JWTResolver struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

func NewJWTResolver(secret []byte, ttl time.Duration, secure bool) *JWTResolver {
	return &JWTResolver{secret: secret, ttl: ttl, secure: secure}
}

func (jr *JWTResolver) Identify(r *http.Request) string {
	cookie, err := r.Cookie(AuthCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
		return jr.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return ""
	}
	return claims.Subject
}

func (jr *JWTResolver) SetIdentity(w http.ResponseWriter, r *http.Request, userID string) error {
	expiresAt := time.Now().Add(jr.ttl)
	claims := &jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jr.secret)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    signed,
		Expires:  expiresAt,
		Path:     "/",
		HttpOnly: true,
		Secure:   jr.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (jr *JWTResolver) ClearIdentity(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Expires:  time.Now().Add(-1 * time.Hour),
		Path:     "/",
		HttpOnly: true,
		Secure:   jr.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
