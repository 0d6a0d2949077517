package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/calendar"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/scheduling"
)

// VisitorDirectory registers visitors on the fly when staff book on a
// walk-in's behalf with only a name and phone number.
type VisitorDirectory interface {
	UpsertVisitorByPhone(ctx context.Context, fullName, phoneNumber string) (model.User, error)
}

type VisitHandler struct {
	svc      *scheduling.Service
	visitors VisitorDirectory
	logger   *slog.Logger
}

func NewVisitHandler(svc *scheduling.Service, visitors VisitorDirectory, logger *slog.Logger) *VisitHandler {
	return &VisitHandler{svc: svc, visitors: visitors, logger: logger}
}

type appointmentItem struct {
	ID              string `json:"id"`
	VisitorID       string `json:"visitor_id,omitempty"`
	VisitorName     string `json:"visitor_name,omitempty"`
	VisitorPhone    string `json:"visitor_phone,omitempty"`
	HostName        string `json:"host_name"`
	Purpose         string `json:"purpose"`
	Type            string `json:"appointment_type"`
	Status          string `json:"status"`
	ScheduledTime   string `json:"scheduled_time"`
	DurationMinutes int    `json:"duration_minutes"`
	CheckInTime     string `json:"check_in_time,omitempty"`
	CheckOutTime    string `json:"check_out_time,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toItem(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		ID:              appt.ID,
		VisitorName:     appt.VisitorName,
		VisitorPhone:    appt.VisitorPhone,
		HostName:        appt.HostName,
		Purpose:         appt.Purpose,
		Type:            string(appt.Type),
		Status:          string(appt.Status),
		ScheduledTime:   appt.ScheduledTime.UTC().Format(time.RFC3339),
		DurationMinutes: appt.DurationMinutes,
		CreatedAt:       appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.VisitorID != nil {
		item.VisitorID = *appt.VisitorID
	}
	if appt.CheckInTime != nil {
		item.CheckInTime = appt.CheckInTime.UTC().Format(time.RFC3339)
	}
	if appt.CheckOutTime != nil {
		item.CheckOutTime = appt.CheckOutTime.UTC().Format(time.RFC3339)
	}
	return item
}

func toItems(appts []model.Appointment) []appointmentItem {
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	return items
}

type createAppointmentRequest struct {
	VisitorID       string `json:"visitor_id"`
	VisitorName     string `json:"visitor_name"`
	VisitorPhone    string `json:"visitor_phone"`
	HostName        string `json:"host_name"`
	Purpose         string `json:"purpose"`
	ScheduledTime   string `json:"scheduled_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type createAppointmentResponse struct {
	Appointment appointmentItem              `json:"appointment"`
	Warnings    []scheduling.ConflictWarning `json:"warnings,omitempty"`
}

func (h *VisitHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	scheduled, err := time.Parse(time.RFC3339, req.ScheduledTime)
	if err != nil {
		http.Error(w, "invalid scheduled_time", http.StatusBadRequest)
		return
	}

	// Staff booking for an unregistered walk-in: register the visitor by
	// phone number first, then book under the resolved id.
	visitorID := strings.TrimSpace(req.VisitorID)
	if visitorID == "" && req.VisitorPhone != "" && h.visitors != nil &&
		(actor.Role == model.RoleEmployee || actor.Role == model.RoleAdmin) {
		visitor, err := h.visitors.UpsertVisitorByPhone(r.Context(),
			strings.TrimSpace(req.VisitorName), strings.TrimSpace(req.VisitorPhone))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		visitorID = visitor.ID
	}

	appt, warnings, err := h.svc.CreateAppointment(r.Context(), actor, scheduling.CreateRequest{
		VisitorID:       visitorID,
		HostName:        strings.TrimSpace(req.HostName),
		Purpose:         strings.TrimSpace(req.Purpose),
		ScheduledTime:   scheduled,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createAppointmentResponse{Appointment: toItem(appt), Warnings: warnings})
}

type blockScheduleRequest struct {
	HostName        string `json:"host_name"`
	Purpose         string `json:"purpose"`
	ScheduledTime   string `json:"scheduled_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (h *VisitHandler) Block(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req blockScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	scheduled, err := time.Parse(time.RFC3339, req.ScheduledTime)
	if err != nil {
		http.Error(w, "invalid scheduled_time", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.CreateBlock(r.Context(), actor, scheduling.BlockRequest{
		HostName:        strings.TrimSpace(req.HostName),
		Purpose:         strings.TrimSpace(req.Purpose),
		ScheduledTime:   scheduled,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItem(appt))
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	ToStatus      string `json:"to_status"`
}

func (h *VisitHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID == "" || req.ToStatus == "" {
		http.Error(w, "appointment_id and to_status required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Transition(r.Context(), actor, req.AppointmentID, model.Status(req.ToStatus))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

type updateScheduleRequest struct {
	AppointmentID   string `json:"appointment_id"`
	DurationMinutes *int   `json:"duration_minutes"`
	ScheduledTime   string `json:"scheduled_time"`
}

func (h *VisitHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req updateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	change := scheduling.ScheduleChange{DurationMinutes: req.DurationMinutes}
	if req.ScheduledTime != "" {
		scheduled, err := time.Parse(time.RFC3339, req.ScheduledTime)
		if err != nil {
			http.Error(w, "invalid scheduled_time", http.StatusBadRequest)
			return
		}
		change.ScheduledTime = &scheduled
	}

	appt, err := h.svc.UpdateSchedule(r.Context(), actor, req.AppointmentID, change)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *VisitHandler) HostSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := ActorFrom(r); !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	var from, to time.Time
	if v := q.Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		to = parsed
	}

	appts, err := h.svc.HostSchedule(r.Context(), q.Get("host_name"), from, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toItems(appts)})
}

type gridSlot struct {
	Start        string            `json:"start"`
	Appointments []appointmentItem `json:"appointments"`
}

type gridDay struct {
	Date  string     `json:"date"`
	Slots []gridSlot `json:"slots"`
}

type gridResponse struct {
	WeekStart string    `json:"week_start"`
	Days      []gridDay `json:"days"`
}

func toGridResponse(g calendar.Grid) gridResponse {
	resp := gridResponse{WeekStart: g.WeekStart.Format("2006-01-02")}
	for _, d := range g.Days {
		day := gridDay{Date: d.Date.Format("2006-01-02")}
		for _, s := range d.Slots {
			day.Slots = append(day.Slots, gridSlot{
				Start:        s.Start.Format(time.RFC3339),
				Appointments: toItems(s.Appointments),
			})
		}
		resp.Days = append(resp.Days, day)
	}
	return resp
}

func (h *VisitHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := ActorFrom(r); !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	weekOf := time.Now()
	if v := q.Get("week_of"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "invalid week_of, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		weekOf = parsed
	}

	grid, err := h.svc.AvailabilityGrid(r.Context(), scheduling.GridSubject{
		HostName:  q.Get("host_name"),
		VisitorID: q.Get("visitor_id"),
	}, weekOf)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGridResponse(grid))
}

func (h *VisitHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	appts, err := h.svc.ListForActor(r.Context(), actor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toItems(appts)})
}

// SecurityDaily is the gate console's working set: every committed or
// completed record, newest first.
func (h *VisitHandler) SecurityDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if actor.Role != model.RoleSecurity && actor.Role != model.RoleAdmin {
		http.Error(w, "security or admin role required", http.StatusForbidden)
		return
	}

	appts, err := h.svc.DailySchedule(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toItems(appts)})
}

func (h *VisitHandler) SecurityRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := ActorFrom(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if actor.Role != model.RoleSecurity && actor.Role != model.RoleAdmin {
		http.Error(w, "security or admin role required", http.StatusForbidden)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	appts, err := h.svc.RecentActivity(r.Context(), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toItems(appts)})
}
