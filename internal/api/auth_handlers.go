package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/bank-es/internal/auth"
	"github.com/example/bank-es/internal/domain/user"
	"github.com/example/bank-es/internal/infrastructure/store"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	users      *user.Service
	jwtService *auth.JWTService
	logger     *slog.Logger
}

func NewAuthHandlers(users *user.Service, jwtService *auth.JWTService, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{users: users, jwtService: jwtService, logger: logger.With("component", "auth")}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type AuthResponse struct {
	User   UserResponse   `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

func userResponse(u *store.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := h.users.Register(r.Context(), req.Email, req.Name, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, user.ErrEmailTaken):
		respondJSONError(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, user.ErrInvalidEmail), errors.Is(err, user.ErrInvalidName),
		errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	default:
		h.logger.Error("registration failed", "error", err)
		respondJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.respondWithTokens(w, http.StatusCreated, u)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			respondJSONError(w, err.Error(), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login failed", "error", err)
		respondJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.respondWithTokens(w, http.StatusOK, u)
}

// Refresh exchanges a refresh token for a new token pair.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			respondJSONError(w, auth.ErrInvalidToken.Error(), http.StatusUnauthorized)
			return
		}
		h.logger.Error("refresh failed", "user_id", userID, "error", err)
		respondJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.respondWithTokens(w, http.StatusOK, u)
}

func (h *AuthHandlers) respondWithTokens(w http.ResponseWriter, status int, u *store.User) {
	tokens, err := h.jwtService.Issue(u.ID, u.Email)
	if err != nil {
		h.logger.Error("failed to issue tokens", "user_id", u.ID, "error", err)
		respondJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    tokens.AccessToken,
		Path:     "/",
		Expires:  tokens.AccessExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	respondJSON(w, status, AuthResponse{User: userResponse(u), Tokens: tokens})
}
