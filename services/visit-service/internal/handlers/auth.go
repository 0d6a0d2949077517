package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/arefin-khan/visitgate/libs/auth"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/scheduling"
)

// StaffCredentials is the slice of the user repository the login and
// profile flows need.
type StaffCredentials interface {
	GetByPhone(ctx context.Context, phoneNumber string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	PasswordHash(ctx context.Context, id string) (string, error)
}

const staffTokenTTL = 12 * time.Hour

type AuthHandler struct {
	users  StaffCredentials
	secret string
	logger *slog.Logger
}

func NewAuthHandler(users StaffCredentials, secret string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, secret: secret, logger: logger}
}

type staffLoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

type staffLoginResponse struct {
	Token                 string `json:"token"`
	Role                  string `json:"role"`
	PasswordResetRequired bool   `json:"password_reset_required"`
}

// StaffLogin verifies staff credentials and issues a bearer token.
// Unknown accounts and wrong passwords get the same answer.
func (h *AuthHandler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req staffLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber == "" || req.Password == "" {
		http.Error(w, "phone_number and password required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByPhone(r.Context(), req.PhoneNumber)
	if err != nil {
		var nf *scheduling.NotFoundError
		if errors.As(err, &nf) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		writeEngineError(w, err)
		return
	}
	if user.Role == model.RoleVisitor {
		http.Error(w, "staff credentials required", http.StatusForbidden)
		return
	}

	hash, err := h.users.PasswordHash(r.Context(), user.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:  user.ID,
		Name: user.FullName,
		Role: string(user.Role),
		Iat:  now.Unix(),
		Exp:  now.Add(staffTokenTTL).Unix(),
	}, h.secret)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	h.logger.Info("staff login", "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusOK, staffLoginResponse{
		Token:                 token,
		Role:                  string(user.Role),
		PasswordResetRequired: user.PasswordResetRequired,
	})
}

// Profile returns the authenticated caller's own directory record.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserItem(user))
}
