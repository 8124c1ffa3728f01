package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BenjaminJSLee/tinyapp/pkg/logging"
	"github.com/BenjaminJSLee/tinyapp/pkg/middleware"
	"github.com/BenjaminJSLee/tinyapp/pkg/service"
)

// VisitorCookieName carries the opaque per-browser token that dedups
// unique visits.
const VisitorCookieName = "visitor_token"

type Handler struct {
	userService *service.UserService
	linkService *service.LinkService
	resolver    middleware.IdentityResolver
	logger      *logging.Logger
}

func NewHandler(
	userService *service.UserService,
	linkService *service.LinkService,
	resolver middleware.IdentityResolver,
	logger *logging.Logger,
) *Handler {
	return &Handler{
		userService: userService,
		linkService: linkService,
		resolver:    resolver,
		logger:      logger,
	}
}

type createLinkRequest struct {
	LongURL string `json:"long_url"`
}

type updateLinkRequest struct {
	LongURL string `json:"long_url"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the core error taxonomy onto HTTP statuses. AuthFailure
// and Unauthenticated both map to 401; the login error body stays
// undifferentiated on purpose.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrAuthFailure):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrDuplicateEmail):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Home redirects to the caller's link list, or to the login affordance for
// anonymous callers.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if middleware.GetUserIDFromContext(r.Context()) != "" {
		http.Redirect(w, r, "/urls", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	links, err := h.linkService.ListForOwner(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"urls": links})
}

func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, service.ErrInvalidInput)
		return
	}

	userID := middleware.GetUserIDFromContext(r.Context())
	record, err := h.linkService.Create(r.Context(), req.LongURL, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// NewLinkProbe backs the "new link" page: it only reports whether the
// caller may create links.
func (h *Handler) NewLinkProbe(w http.ResponseWriter, r *http.Request) {
	if middleware.GetUserIDFromContext(r.Context()) == "" {
		writeError(w, service.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	userID := middleware.GetUserIDFromContext(r.Context())
	record, err := h.linkService.Get(r.Context(), code, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req updateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, service.ErrInvalidInput)
		return
	}

	userID := middleware.GetUserIDFromContext(r.Context())
	record, err := h.linkService.Update(r.Context(), code, req.LongURL, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	userID := middleware.GetUserIDFromContext(r.Context())
	if err := h.linkService.Delete(r.Context(), code, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Redirect is the public resolve path: no auth, every hit is counted.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	token := getOrCreateVisitorToken(w, r)

	record, err := h.linkService.Resolve(r.Context(), code, token)
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, record.LongURL, http.StatusFound)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, service.ErrInvalidInput)
		return
	}

	user, err := h.userService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	// The new identity becomes the caller's session identity.
	if err := h.resolver.SetIdentity(w, r, user.ID); err != nil {
		h.logger.Error(r.Context(), "failed to establish session", "error", err.Error())
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Email: user.Email})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, service.ErrInvalidInput)
		return
	}

	user, err := h.userService.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.resolver.SetIdentity(w, r, user.ID); err != nil {
		h.logger.Error(r.Context(), "failed to establish session", "error", err.Error())
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email})
}

// Logout clears the caller's identity. Calling it without a session is
// still a success.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.resolver.ClearIdentity(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// AuthForm backs GET /login and GET /register: already-authenticated
// callers are sent to their link list.
func (h *Handler) AuthForm(w http.ResponseWriter, r *http.Request) {
	if middleware.GetUserIDFromContext(r.Context()) != "" {
		http.Redirect(w, r, "/urls", http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func getOrCreateVisitorToken(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(VisitorCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}
	token := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

// SetupRoutes wires the full surface. POST on /urls/{code} and
// /urls/{code}/delete are the verb overrides for form clients that can't
// send PUT or DELETE.
func SetupRoutes(r *chi.Mux, handler *Handler) {
	r.Get("/health", handler.HealthCheck)
	r.Get("/", handler.Home)

	r.Get("/urls", handler.ListLinks)
	r.Post("/urls", handler.CreateLink)
	r.Get("/urls/new", handler.NewLinkProbe)
	r.Get("/urls/{code}", handler.GetLink)
	r.Put("/urls/{code}", handler.UpdateLink)
	r.Post("/urls/{code}", handler.UpdateLink)
	r.Delete("/urls/{code}", handler.DeleteLink)
	r.Post("/urls/{code}/delete", handler.DeleteLink)

	r.Get("/u/{code}", handler.Redirect)

	r.Get("/register", handler.AuthForm)
	r.Post("/register", handler.Register)
	r.Get("/login", handler.AuthForm)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.Delete("/logout", handler.Logout)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
}
