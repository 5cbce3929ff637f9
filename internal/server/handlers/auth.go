package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/iudanet/authdir/pkg/api"
)

// AdminCredentials holds the single configured admin account.
type AdminCredentials struct {
	Username     string
	PasswordHash string // bcrypt hash
}

// AuthHandler обрабатывает запросы авторизации администратора
type AuthHandler struct {
	logger    *slog.Logger
	creds     AdminCredentials
	jwtConfig JWTConfig
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, creds AdminCredentials, jwtConfig JWTConfig) *AuthHandler {
	return &AuthHandler{
		logger:    logger,
		creds:     creds,
		jwtConfig: jwtConfig,
	}
}

// Login обрабатывает POST /api/v1/auth/login
// Аутентификация администратора
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode login request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		sendError(h.logger, w, "username and password are required", http.StatusBadRequest)
		return
	}

	// Сравниваем с единственным настроенным администратором
	if req.Username != h.creds.Username {
		h.logger.WarnContext(ctx, "login failed: unknown admin", slog.String("username", req.Username))
		sendError(h.logger, w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.creds.PasswordHash), []byte(req.Password)); err != nil {
		h.logger.WarnContext(ctx, "login failed: invalid password", slog.String("username", req.Username))
		sendError(h.logger, w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, expiresIn, err := GenerateAccessToken(h.jwtConfig, req.Username)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "admin logged in successfully", slog.String("username", req.Username))

	resp := api.TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}
