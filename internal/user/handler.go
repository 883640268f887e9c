package user

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/pkg/httputil"
	"github.com/rx3lixir/echonet/pkg/password"
)

type Handler struct {
	store       Store
	authService *auth.Service
	revoked     auth.Denylist
	log         *slog.Logger
	dbTimeout   time.Duration
}

// NewHandler builds the auth and profile endpoints. A nil denylist keeps
// revocations in process.
func NewHandler(store Store, authService *auth.Service, revoked auth.Denylist, log *slog.Logger, dbTimeout time.Duration) *Handler {
	if dbTimeout == 0 {
		dbTimeout = 5 * time.Second
	}
	if revoked == nil {
		revoked = auth.NewMemoryDenylist()
	}
	return &Handler{store, authService, revoked, log, dbTimeout}
}

// RegisterUserRoutes registers endpoints that need an authenticated caller
func (h *Handler) RegisterUserRoutes(r chi.Router) {
	r.Get("/me", httputil.Handler(h.HandleMe, h.log))
}

// RegisterAuthRoutes registers guest, register, login, refresh and logout
func (h *Handler) RegisterAuthRoutes(r chi.Router) {
	r.Post("/guest", httputil.Handler(h.HandleGuest, h.log))
	r.Post("/register", httputil.Handler(h.HandleRegister, h.log))
	r.Post("/login", httputil.Handler(h.HandleLogin, h.log))
	r.Post("/refresh", httputil.Handler(h.HandleRefreshToken, h.log))
	r.Post("/logout", httputil.Handler(h.HandleLogout, h.log))
}

// Context that handles database requests
func (h *Handler) dbCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.dbTimeout)
}

func identityOf(u *User) auth.Identity {
	return auth.Identity{UserID: u.ID, Username: u.Username, Guest: u.IsGuest}
}

// respondWithTokens signs a fresh token pair for u
func (h *Handler) respondWithTokens(w http.ResponseWriter, status int, u *User, returning bool) error {
	pair, err := h.authService.IssuePair(identityOf(u))
	if err != nil {
		h.log.Error("Failed to issue tokens", "user_id", u.ID, "error", err)
		return httputil.Internal(err)
	}

	return httputil.RespondJSON(w, status, AuthResponse{
		User:            u.Response(),
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		TokenType:       "Bearer",
		IsReturningUser: returning,
	})
}

// HandleMe returns the currently authenticated user's profile.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		return httputil.Unauthorized("Unauthorized")
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	u, err := h.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return httputil.NotFound("User not found")
		}
		return httputil.Internal(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, u.Response())
}

// HandleGuest creates a guest identity, or hands back the one already
// tied to the caller's browser fingerprint
func (h *Handler) HandleGuest(w http.ResponseWriter, r *http.Request) error {
	req := new(GuestRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	req.Username = strings.TrimSpace(req.Username)
	if err := validateUsername(req.Username); err != nil {
		return httputil.BadRequest(err.Error())
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	if req.Fingerprint != "" {
		existing, err := h.store.FindGuestByFingerprint(ctx, req.Fingerprint)
		switch {
		case err == nil:
			if err := h.store.Touch(ctx, existing.ID, time.Now()); err != nil {
				h.log.Warn("Failed to update last active", "user_id", existing.ID, "error", err)
			}
			h.log.Debug("Returning guest", "user_id", existing.ID)
			return h.respondWithTokens(w, http.StatusOK, existing, true)
		case !errors.Is(err, ErrNotFound):
			h.log.Error("Failed to look up guest by fingerprint", "error", err)
			return httputil.Internal(err)
		}
	}

	u := &User{
		ID:          NewID(true),
		Username:    req.Username,
		IsGuest:     true,
		Fingerprint: req.Fingerprint,
	}
	if err := h.store.Create(ctx, u); err != nil {
		h.log.Error("Failed to create guest", "error", err)
		return httputil.Internal(err)
	}

	h.log.Info("Guest created", "user_id", u.ID, "username", u.Username)

	return h.respondWithTokens(w, http.StatusCreated, u, false)
}

// HandleRegister creates a permanent account and returns access + refresh tokens
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) error {
	req := new(RegisterRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := validateRegisterRequest(req); err != nil {
		return httputil.BadRequest("Validation failed", map[string]string{
			"validation_error": err.Error(),
		})
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		h.log.Error("Failed to hash password", "error", err)
		return httputil.Internal(err)
	}

	u := &User{
		ID:           NewID(false),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashed,
		Fingerprint:  req.Fingerprint,
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	if err := h.store.Create(ctx, u); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return httputil.Conflict("Username already taken")
		}
		h.log.Error("Failed to create user", "error", err)
		return httputil.Internal(err)
	}

	h.log.Info("User registered", "user_id", u.ID, "username", u.Username)

	return h.respondWithTokens(w, http.StatusCreated, u, false)
}

// HandleLogin authenticates a registered user and returns JWT pair of tokens
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) error {
	req := new(LoginRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return httputil.BadRequest("Username and password are required")
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	u, err := h.store.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.log.Error("Failed to look up user", "error", err)
			return httputil.Internal(err)
		}
		h.log.Warn("Login failed - user not found", "username", username)
		return httputil.Unauthorized("Invalid username or password")
	}

	if !password.Verify(req.Password, u.PasswordHash) {
		h.log.Warn("Login failed - invalid password", "user_id", u.ID)
		return httputil.Unauthorized("Invalid username or password")
	}

	if err := h.store.Touch(ctx, u.ID, time.Now()); err != nil {
		h.log.Warn("Failed to update last active", "user_id", u.ID, "error", err)
	}

	h.log.Debug("User logged in", "user_id", u.ID)

	return h.respondWithTokens(w, http.StatusOK, u, false)
}

// HandleRefreshToken generates new tokens using a refresh token
func (h *Handler) HandleRefreshToken(w http.ResponseWriter, r *http.Request) error {
	req := new(RefreshTokenRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	if req.RefreshToken == "" {
		return httputil.BadRequest("Refresh token is required")
	}

	rt, err := h.authService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		h.log.Debug("Invalid or expired refresh token", "error", err)
		return httputil.Unauthorized("Invalid or expired refresh token")
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	revoked, err := h.revoked.Revoked(ctx, rt.ID)
	if err != nil {
		h.log.Error("Failed to check token revocation", "user_id", rt.UserID, "error", err)
		return httputil.Unavailable(err)
	}
	if revoked {
		h.log.Debug("Refresh with revoked token", "user_id", rt.UserID)
		return httputil.Unauthorized("Invalid or expired refresh token")
	}

	u, err := h.store.FindByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return httputil.NotFound("User not found")
		}
		return httputil.Internal(err)
	}

	h.log.Debug("Tokens refreshed", "user_id", u.ID)

	return h.respondWithTokens(w, http.StatusOK, u, false)
}

// HandleLogout revokes a refresh token for the rest of its lifetime.
// Access tokens already issued stay valid until they expire.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) error {
	req := new(LogoutRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	if req.RefreshToken == "" {
		return httputil.BadRequest("Refresh token is required")
	}

	rt, err := h.authService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		h.log.Debug("Logout with invalid refresh token", "error", err)
		return httputil.Unauthorized("Invalid or expired refresh token")
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	if err := h.revoked.Revoke(ctx, rt.ID, rt.ExpiresAt); err != nil {
		h.log.Error("Failed to revoke refresh token", "user_id", rt.UserID, "error", err)
		return httputil.Unavailable(err)
	}

	h.log.Info("User logged out", "user_id", rt.UserID)

	return httputil.RespondJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out successfully",
	})
}
