package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptcache/internal/auth"
	"promptcache/internal/store"
	"promptcache/pkg/logging"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 100
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt input limit
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	Users  store.UserStore
	Issuer *auth.TokenIssuer
}

func NewAuthHandler(users store.UserStore, issuer *auth.TokenIssuer) *AuthHandler {
	return &AuthHandler{Users: users, Issuer: issuer}
}

type registerRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type registerResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.L(r.Context())

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if len(req.Username) < minUsernameLen || len(req.Username) > maxUsernameLen {
		writeError(w, http.StatusBadRequest, "username must be 3 to 100 characters")
		return
	}
	if len(req.Password) < minPasswordLen || len(req.Password) > maxPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be 6 to 72 characters")
		return
	}
	if req.Password != req.PasswordConfirm {
		writeError(w, http.StatusBadRequest, "passwords do not match")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user := store.User{
		ID:           uuid.New(),
		Username:     req.Username,
		PasswordHash: hash,
	}

	if err := h.Users.InsertUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusBadRequest, "username already taken")
			return
		}
		logger.Error("insert user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	logger.Info("user registered", zap.String("username", req.Username))
	writeJSON(w, http.StatusCreated, registerResponse{
		ID:       user.ID.String(),
		Username: user.Username,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login handles POST /auth/login. Unknown users and wrong passwords get
// the same answer so usernames cannot be probed.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.L(r.Context())

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, err := h.Users.UserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logger.Error("load user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrWrongPassword) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logger.Error("verify password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := h.Issuer.Issue(user.ID)
	if err != nil {
		logger.Error("issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}
