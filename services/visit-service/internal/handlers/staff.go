package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/audit"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/storage"
)

// defaultStaffPassword seeds new staff accounts when no override is
// configured; password_reset_required forces a change on first login.
const defaultStaffPassword = "admin123"

// AuditLog exposes the read side of the audit trail.
type AuditLog interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Entry, error)
}

type StaffHandler struct {
	users        *storage.UserRepository
	auditLog     AuditLog
	seedPassword string
	logger       *slog.Logger
}

func NewStaffHandler(users *storage.UserRepository, auditLog AuditLog, seedPassword string, logger *slog.Logger) *StaffHandler {
	if seedPassword == "" {
		seedPassword = defaultStaffPassword
	}
	return &StaffHandler{users: users, auditLog: auditLog, seedPassword: seedPassword, logger: logger}
}

type userItem struct {
	ID                    string          `json:"id"`
	FullName              string          `json:"full_name"`
	PhoneNumber           string          `json:"phone_number,omitempty"`
	Email                 string          `json:"email,omitempty"`
	Role                  string          `json:"role"`
	IsVerified            bool            `json:"is_verified"`
	PasswordResetRequired bool            `json:"password_reset_required"`
	Address               json.RawMessage `json:"address,omitempty"`
	CalendarSynced        bool            `json:"calendar_synced"`
	CalendarURL           string          `json:"calendar_url,omitempty"`
	CreatedAt             string          `json:"created_at"`
}

func toUserItem(u model.User) userItem {
	return userItem{
		ID:                    u.ID,
		FullName:              u.FullName,
		PhoneNumber:           u.PhoneNumber,
		Email:                 u.Email,
		Role:                  string(u.Role),
		IsVerified:            u.IsVerified,
		PasswordResetRequired: u.PasswordResetRequired,
		Address:               u.Address,
		CalendarSynced:        u.CalendarSynced,
		CalendarURL:           u.CalendarURL,
		CreatedAt:             u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := ActorFrom(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return false
	}
	if actor.Role != model.RoleAdmin {
		http.Error(w, "admin role required", http.StatusForbidden)
		return false
	}
	return true
}

type createStaffRequest struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

func (h *StaffHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireAdmin(w, r) {
		return
	}

	var req createStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.FullName == "" || req.PhoneNumber == "" {
		http.Error(w, "full_name and phone_number required", http.StatusBadRequest)
		return
	}
	role := model.Role(req.Role)
	switch role {
	case model.RoleEmployee, model.RoleSecurity, model.RoleAdmin:
	default:
		http.Error(w, "role must be employee, security or admin", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(h.seedPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	user := model.User{
		ID:                    uuid.NewString(),
		FullName:              req.FullName,
		PhoneNumber:           req.PhoneNumber,
		Email:                 strings.TrimSpace(req.Email),
		Role:                  role,
		IsVerified:            true,
		PasswordResetRequired: true,
	}
	if err := h.users.CreateStaff(r.Context(), user, string(hash)); err != nil {
		writeEngineError(w, err)
		return
	}
	h.logger.Info("staff account created", "role", role, "user_id", user.ID)
	writeJSON(w, http.StatusCreated, toUserItem(user))
}

type updateStaffRequest struct {
	UserID      string `json:"user_id"`
	NewPassword string `json:"new_password"`
}

// Update resets a staff member's password. The new hash replaces the
// seeded one and clears the forced-reset flag.
func (h *StaffHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireAdmin(w, r) {
		return
	}

	var req updateStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || len(req.NewPassword) < 8 {
		http.Error(w, "user_id and new_password (8+ chars) required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}
	if err := h.users.SetPassword(r.Context(), req.UserID, string(hash)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *StaffHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireAdmin(w, r) {
		return
	}

	var staff []model.User
	for _, role := range []model.Role{model.RoleEmployee, model.RoleSecurity, model.RoleAdmin} {
		users, err := h.users.ListByRole(r.Context(), role)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		staff = append(staff, users...)
	}

	items := make([]userItem, 0, len(staff))
	for _, u := range staff {
		items = append(items, toUserItem(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": items})
}

func (h *StaffHandler) ListVisitors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireAdmin(w, r) {
		return
	}

	visitors, err := h.users.ListByRole(r.Context(), model.RoleVisitor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	items := make([]userItem, 0, len(visitors))
	for _, u := range visitors {
		items = append(items, toUserItem(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"visitors": items})
}

type syncCalendarRequest struct {
	CalendarURL string `json:"calendar_url"`
}

// SyncCalendar registers (or clears) the caller's external calendar
// feed; the busy-interval bridge consumes it when enabled.
func (h *StaffHandler) SyncCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if actor.Role != model.RoleEmployee && actor.Role != model.RoleAdmin {
		http.Error(w, "staff role required", http.StatusForbidden)
		return
	}

	var req syncCalendarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.users.SetCalendar(r.Context(), actor.ID, strings.TrimSpace(req.CalendarURL)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

// RecentAudit returns the newest audit trail entries, admin only.
func (h *StaffHandler) RecentAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireAdmin(w, r) {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.auditLog.ListRecent(r.Context(), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit": entries})
}
