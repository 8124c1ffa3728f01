package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type CSRFTokenManager struct {
	mu     sync.Mutex
	tokens map[string]csrfToken
}

type csrfToken struct {
	value     string
	createdAt time.Time
	expires   time.Time
}

func NewCSRFTokenManager() *CSRFTokenManager {
	return &CSRFTokenManager{
		tokens: make(map[string]csrfToken),
	}
}

func (c *CSRFTokenManager) GenerateToken(sessionID string) (string, error) {
	// Generate cryptographically secure random token
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}

	token := base64.URLEncoding.EncodeToString(tokenBytes)

	c.mu.Lock()
	c.tokens[sessionID] = csrfToken{
		value:     token,
		createdAt: time.Now(),
		expires:   time.Now().Add(15 * time.Minute),
	}
	c.mu.Unlock()

	c.cleanupExpired()

	return token, nil
}

func (c *CSRFTokenManager) ValidateToken(sessionID, providedToken string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	storedToken, exists := c.tokens[sessionID]
	if !exists {
		return false
	}

	if time.Now().After(storedToken.expires) {
		delete(c.tokens, sessionID)
		return false
	}

	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(storedToken.value), []byte(providedToken)) == 1
}

func (c *CSRFTokenManager) InvalidateToken(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, sessionID)
}

func (c *CSRFTokenManager) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for sessionID, token := range c.tokens {
		if now.After(token.expires) {
			delete(c.tokens, sessionID)
		}
	}
}

// CSRFMiddleware validates a token on state-changing requests. The public
// redirect path is exempt: it is a plain GET and must stay reachable from
// anywhere.
func CSRFMiddleware(tokenManager *CSRFTokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == "POST" || r.Method == "PUT" || r.Method == "DELETE" || r.Method == "PATCH" {
				if !strings.HasPrefix(r.URL.Path, "/u/") {
					clientID := getOrCreateClientID(w, r)

					token := r.Header.Get("X-CSRF-Token")
					if token == "" {
						token = r.FormValue("csrf_token")
					}

					if !tokenManager.ValidateToken(clientID, token) {
						http.Error(w, "Invalid CSRF token", http.StatusForbidden)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CSRFTokenHandler issues a token bound to the caller's client id cookie.
// Clients fetch it with a GET and echo it back in the X-CSRF-Token header
// on state-changing requests.
func CSRFTokenHandler(tokenManager *CSRFTokenManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := getOrCreateClientID(w, r)
		token, err := tokenManager.GenerateToken(clientID)
		if err != nil {
			http.Error(w, "failed to issue CSRF token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"csrf_token": token})
	}
}

// getOrCreateClientID keys CSRF tokens per browser, independent of whether
// the caller is authenticated.
func getOrCreateClientID(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie("csrf_client")
	if err != nil || cookie.Value == "" {
		clientID := uuid.New().String()
		http.SetCookie(w, &http.Cookie{
			Name:     "csrf_client",
			Value:    clientID,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteStrictMode,
			MaxAge:   86400, // 24 hours
		})
		return clientID
	}
	return cookie.Value
}
