package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tinyhttp "github.com/BenjaminJSLee/tinyapp/pkg/http"
	"github.com/BenjaminJSLee/tinyapp/pkg/logging"
	"github.com/BenjaminJSLee/tinyapp/pkg/middleware"
	"github.com/BenjaminJSLee/tinyapp/pkg/security"
	"github.com/BenjaminJSLee/tinyapp/pkg/service"
	"github.com/BenjaminJSLee/tinyapp/pkg/session"
	"github.com/BenjaminJSLee/tinyapp/pkg/storage"
)

type linkJSON struct {
	ShortCode          string `json:"short_code"`
	LongURL            string `json:"long_url"`
	OwnerID            string `json:"owner_id"`
	VisitCount         int    `json:"visit_count"`
	UniqueVisitorCount int    `json:"unique_visitor_count"`
}

type listJSON struct {
	URLs []linkJSON `json:"urls"`
}

type userJSON struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := logging.NewLogger(logging.LevelError)
	userService := service.NewUserService(storage.NewMemoryUserStorage(), logger)
	linkService := service.NewLinkService(
		storage.NewMemoryLinkStorage(),
		session.NewMemoryVisitorMarkers(),
		logger,
	)
	resolver := middleware.NewSessionResolver(session.NewMemoryStore(0), false)
	handler := tinyhttp.NewHandler(userService, linkService, resolver, logger)

	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Identity(resolver))
	tinyhttp.SetupRoutes(r, handler)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

// newBrowser returns a client with its own cookie jar that does not follow
// redirects, so 302 responses stay observable.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func register(t *testing.T, client *http.Client, base, email, password string) userJSON {
	t.Helper()
	resp := doJSON(t, client, "POST", base+"/register", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[userJSON](t, resp)
}

func TestRegisterLoginFlow(t *testing.T) {
	server := newTestServer(t)
	client := newBrowser(t)

	user := register(t, client, server.URL, "a@b.com", "secret")
	assert.Len(t, user.ID, 6)
	assert.Equal(t, "a@b.com", user.Email)

	// Registration established a session.
	resp := doJSON(t, client, "GET", server.URL+"/urls", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Wrong password fails with the undifferentiated auth error.
	fresh := newBrowser(t)
	resp = doJSON(t, fresh, "POST", server.URL+"/login", map[string]string{
		"email":    "a@b.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Unknown email fails identically.
	resp = doJSON(t, fresh, "POST", server.URL+"/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "secret",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Duplicate registration is rejected.
	resp = doJSON(t, fresh, "POST", server.URL+"/register", map[string]string{
		"email":    "a@b.com",
		"password": "whatever",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Correct credentials log in.
	resp = doJSON(t, fresh, "POST", server.URL+"/login", map[string]string{
		"email":    "a@b.com",
		"password": "secret",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterValidation(t *testing.T) {
	server := newTestServer(t)
	client := newBrowser(t)

	resp := doJSON(t, client, "POST", server.URL+"/register", map[string]string{
		"email":    "",
		"password": "secret",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, client, "POST", server.URL+"/register", map[string]string{
		"email":    "a@b.com",
		"password": "",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAnonymousAccessRules(t *testing.T) {
	server := newTestServer(t)
	client := newBrowser(t)

	// Home points anonymous callers at the login affordance.
	resp := doJSON(t, client, "GET", server.URL+"/", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	resp.Body.Close()

	protected := []struct {
		method string
		path   string
		body   any
	}{
		{"GET", "/urls", nil},
		{"POST", "/urls", map[string]string{"long_url": "http://example.com"}},
		{"GET", "/urls/new", nil},
		{"GET", "/urls/b2xVn2", nil},
		{"PUT", "/urls/b2xVn2", map[string]string{"long_url": "http://example.com"}},
		{"DELETE", "/urls/b2xVn2", nil},
		{"POST", "/urls/b2xVn2/delete", nil},
	}
	for _, tt := range protected {
		resp := doJSON(t, client, tt.method, server.URL+tt.path, tt.body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tt.method, tt.path)
		resp.Body.Close()
	}
}

func TestLinkCRUDAndOwnership(t *testing.T) {
	server := newTestServer(t)
	owner := newBrowser(t)
	other := newBrowser(t)

	register(t, owner, server.URL, "owner@example.com", "secret")
	register(t, other, server.URL, "other@example.com", "secret")

	// Create.
	resp := doJSON(t, owner, "POST", server.URL+"/urls", map[string]string{
		"long_url": "http://www.lighthouselabs.ca",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[linkJSON](t, resp)
	assert.Len(t, created.ShortCode, 6)
	assert.Equal(t, "http://www.lighthouselabs.ca", created.LongURL)

	// Home redirects authenticated callers to their list.
	resp = doJSON(t, owner, "GET", server.URL+"/", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/urls", resp.Header.Get("Location"))
	resp.Body.Close()

	// The list shows only the owner's links.
	resp = doJSON(t, owner, "GET", server.URL+"/urls", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[listJSON](t, resp)
	require.Len(t, list.URLs, 1)
	assert.Equal(t, created.ShortCode, list.URLs[0].ShortCode)

	resp = doJSON(t, other, "GET", server.URL+"/urls", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	otherList := decode[listJSON](t, resp)
	assert.Empty(t, otherList.URLs)

	// Non-owner reads, updates, and deletes are forbidden.
	resp = doJSON(t, other, "GET", server.URL+"/urls/"+created.ShortCode, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, other, "PUT", server.URL+"/urls/"+created.ShortCode, map[string]string{
		"long_url": "http://hijacked.example.com",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, other, "POST", server.URL+"/urls/"+created.ShortCode+"/delete", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Owner updates via the POST verb override.
	resp = doJSON(t, owner, "POST", server.URL+"/urls/"+created.ShortCode, map[string]string{
		"long_url": "http://www.example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[linkJSON](t, resp)
	assert.Equal(t, "http://www.example.com", updated.LongURL)
	assert.Equal(t, created.ShortCode, updated.ShortCode)

	// Unknown code is 404 before any ownership consideration.
	resp = doJSON(t, owner, "GET", server.URL+"/urls/doesNo", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Owner deletes via the POST verb override.
	resp = doJSON(t, owner, "POST", server.URL+"/urls/"+created.ShortCode+"/delete", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, owner, "GET", server.URL+"/urls/"+created.ShortCode, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestPublicRedirectAndVisitTracking(t *testing.T) {
	server := newTestServer(t)
	owner := newBrowser(t)

	register(t, owner, server.URL, "owner@example.com", "secret")
	resp := doJSON(t, owner, "POST", server.URL+"/urls", map[string]string{
		"long_url": "http://www.lighthouselabs.ca",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[linkJSON](t, resp)

	// Unknown code on the public path.
	anon := newBrowser(t)
	resp = doJSON(t, anon, "GET", server.URL+"/u/doesNo", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Anonymous visitor follows the short link twice; the cookie jar keeps
	// the visitor token, so the second hit is not unique.
	for i := 0; i < 2; i++ {
		resp = doJSON(t, anon, "GET", server.URL+"/u/"+created.ShortCode, nil)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "http://www.lighthouselabs.ca", resp.Header.Get("Location"))
		resp.Body.Close()
	}

	// A different browser is a second unique visitor.
	resp = doJSON(t, newBrowser(t), "GET", server.URL+"/u/"+created.ShortCode, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, owner, "GET", server.URL+"/urls/"+created.ShortCode, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	record := decode[linkJSON](t, resp)
	assert.Equal(t, 3, record.VisitCount)
	assert.Equal(t, 2, record.UniqueVisitorCount)
}

func TestLogoutIsIdempotent(t *testing.T) {
	server := newTestServer(t)
	client := newBrowser(t)

	register(t, client, server.URL, "a@b.com", "secret")

	resp := doJSON(t, client, "POST", server.URL+"/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// The session is gone.
	resp = doJSON(t, client, "GET", server.URL+"/urls", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Logging out again, with no session at all, still succeeds.
	resp = doJSON(t, client, "POST", server.URL+"/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, client, "DELETE", server.URL+"/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestAuthFormRedirectsWhenAuthenticated(t *testing.T) {
	server := newTestServer(t)
	client := newBrowser(t)

	resp := doJSON(t, client, "GET", server.URL+"/login", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	register(t, client, server.URL, "a@b.com", "secret")

	for _, path := range []string{"/login", "/register"} {
		resp = doJSON(t, client, "GET", server.URL+path, nil)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/urls", resp.Header.Get("Location"))
		resp.Body.Close()
	}
}

func TestUnknownRouteFallsThroughToNotFound(t *testing.T) {
	server := newTestServer(t)
	client := newBrowser(t)

	resp := doJSON(t, client, "GET", server.URL+"/no/such/route", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "not found", body["error"])
}

func TestCSRFProtectedFlow(t *testing.T) {
	logger := logging.NewLogger(logging.LevelError)
	userService := service.NewUserService(storage.NewMemoryUserStorage(), logger)
	linkService := service.NewLinkService(
		storage.NewMemoryLinkStorage(),
		session.NewMemoryVisitorMarkers(),
		logger,
	)
	resolver := middleware.NewSessionResolver(session.NewMemoryStore(0), false)
	handler := tinyhttp.NewHandler(userService, linkService, resolver, logger)
	csrfManager := security.NewCSRFTokenManager()

	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Identity(resolver))
	r.Use(security.CSRFMiddleware(csrfManager))
	r.Get("/csrf-token", security.CSRFTokenHandler(csrfManager))
	tinyhttp.SetupRoutes(r, handler)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	client := newBrowser(t)

	// State-changing requests without a token are rejected.
	resp := doJSON(t, client, "POST", server.URL+"/register", map[string]string{
		"email":    "a@b.com",
		"password": "secret",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Fetch a token; the client id cookie lands in the jar alongside it.
	resp = doJSON(t, client, "GET", server.URL+"/csrf-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := decode[map[string]string](t, resp)["csrf_token"]
	require.NotEmpty(t, token)

	// The same browser echoing the token back completes the POST.
	body, err := json.Marshal(map[string]string{"email": "a@b.com", "password": "secret"})
	require.NoError(t, err)
	req, err := http.NewRequest("POST", server.URL+"/register", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)
	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// The public redirect path stays reachable without any token.
	resp = doJSON(t, client, "GET", server.URL+"/u/doesNo", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestJWTCookieAuthMode(t *testing.T) {
	logger := logging.NewLogger(logging.LevelError)
	userService := service.NewUserService(storage.NewMemoryUserStorage(), logger)
	linkService := service.NewLinkService(
		storage.NewMemoryLinkStorage(),
		session.NewMemoryVisitorMarkers(),
		logger,
	)
	resolver := middleware.NewJWTResolver([]byte("test-secret"), 24*time.Hour, false)
	handler := tinyhttp.NewHandler(userService, linkService, resolver, logger)

	r := chi.NewRouter()
	r.Use(middleware.Identity(resolver))
	tinyhttp.SetupRoutes(r, handler)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	client := newBrowser(t)
	register(t, client, server.URL, "a@b.com", "secret")

	// The signed cookie authenticates subsequent requests with no
	// server-side session state at all.
	resp := doJSON(t, client, "POST", server.URL+"/urls", map[string]string{
		"long_url": "http://example.com",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, client, "POST", server.URL+"/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, client, "GET", server.URL+"/urls", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
