// Package storage holds the pgx-backed repositories. Every write method
// is one transaction carrying the appointment change, its outbox event
// and its audit row, so the three can never disagree.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arefin-khan/visitgate/libs/db"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/audit"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/outbox"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/scheduling"
)

// AppointmentRepository implements scheduling.Store on Postgres. The
// appointments table carries an exclusion constraint over
// (host_name, visit window) for committed statuses; it is the backstop
// behind the engine's own overlap checks and surfaces here as 23P01.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	audit  *audit.Repository
}

func NewAppointmentRepository(pool *db.Pool, ob *outbox.Repository, au *audit.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: ob, audit: au}
}

// nonTerminalStatuses are the statuses Reschedule may still touch.
var nonTerminalStatuses = []model.Status{
	model.StatusPending, model.StatusAccepted, model.StatusCheckedIn,
}

const appointmentColumns = `
	a.id::text, a.visitor_id::text, a.host_name, a.purpose, a.appointment_type, a.status,
	a.scheduled_time, a.duration_minutes, a.created_by_role, a.check_in_time, a.check_out_time, a.created_at,
	COALESCE(u.full_name, ''), COALESCE(u.phone_number, '')`

const appointmentFrom = `
	FROM appointments a
	LEFT JOIN users u ON u.id = a.visitor_id`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.VisitorID,
		&appt.HostName,
		&appt.Purpose,
		&appt.Type,
		&appt.Status,
		&appt.ScheduledTime,
		&appt.DurationMinutes,
		&appt.CreatedByRole,
		&appt.CheckInTime,
		&appt.CheckOutTime,
		&appt.CreatedAt,
		&appt.VisitorName,
		&appt.VisitorPhone,
	)
	return appt, err
}

func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment, evt scheduling.Event) error {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments
			(id, visitor_id, host_name, purpose, appointment_type, status,
			 scheduled_time, duration_minutes, created_by_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, appt.ID, appt.VisitorID, appt.HostName, appt.Purpose, appt.Type, appt.Status,
		appt.ScheduledTime, appt.DurationMinutes, appt.CreatedByRole, appt.CreatedAt)
	if err != nil {
		return storeErr(err)
	}

	if err := r.recordEvent(ctx, tx, appt.ID, evt); err != nil {
		return storeErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	appt, err := scanAppointment(r.pool.QueryRow(ctx,
		`SELECT`+appointmentColumns+appointmentFrom+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, &scheduling.NotFoundError{Kind: "appointment", ID: id}
		}
		return model.Appointment{}, storeErr(err)
	}
	return appt, nil
}

// Transition is the status compare-and-swap: the UPDATE matches on both
// id and the expected current status, so of two concurrent calls exactly
// one changes the row. Check-in and check-out stamp their timestamps in
// the same statement.
func (r *AppointmentRepository) Transition(ctx context.Context, id string, from, to model.Status, at time.Time, evt scheduling.Event) (model.Appointment, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
			check_in_time  = CASE WHEN $3 = 'checked_in' THEN $4 ELSE check_in_time END,
			check_out_time = CASE WHEN $3 = 'completed'  THEN $4 ELSE check_out_time END
		WHERE id = $1 AND status = $2
	`, id, from, to, at)
	if err != nil {
		return model.Appointment{}, storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		var current model.Status
		err := tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, &scheduling.NotFoundError{Kind: "appointment", ID: id}
		}
		if err != nil {
			return model.Appointment{}, storeErr(err)
		}
		return model.Appointment{}, &scheduling.StaleStateError{ID: id, Current: current}
	}

	appt, err := scanAppointment(tx.QueryRow(ctx,
		`SELECT`+appointmentColumns+appointmentFrom+` WHERE a.id = $1`, id))
	if err != nil {
		return model.Appointment{}, storeErr(err)
	}

	if err := r.recordEvent(ctx, tx, id, evt); err != nil {
		return model.Appointment{}, storeErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, storeErr(err)
	}
	return appt, nil
}

func (r *AppointmentRepository) Reschedule(ctx context.Context, id string, scheduledTime time.Time, durationMinutes int, evt scheduling.Event) (model.Appointment, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Guard on status like Transition does: the engine checked the record
	// is non-terminal, but a concurrent transition may have finished it
	// since that read.
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET scheduled_time = $2, duration_minutes = $3
		WHERE id = $1 AND status = ANY($4)
	`, id, scheduledTime, durationMinutes, statusStrings(nonTerminalStatuses))
	if err != nil {
		return model.Appointment{}, storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		var current model.Status
		err := tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, &scheduling.NotFoundError{Kind: "appointment", ID: id}
		}
		if err != nil {
			return model.Appointment{}, storeErr(err)
		}
		return model.Appointment{}, &scheduling.StaleStateError{ID: id, Current: current}
	}

	appt, err := scanAppointment(tx.QueryRow(ctx,
		`SELECT`+appointmentColumns+appointmentFrom+` WHERE a.id = $1`, id))
	if err != nil {
		return model.Appointment{}, storeErr(err)
	}

	if err := r.recordEvent(ctx, tx, id, evt); err != nil {
		return model.Appointment{}, storeErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, storeErr(err)
	}
	return appt, nil
}

func (r *AppointmentRepository) HostAppointments(ctx context.Context, hostName string, from, to time.Time, statuses []model.Status) ([]model.Appointment, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	var sb strings.Builder
	sb.WriteString(`SELECT` + appointmentColumns + appointmentFrom + ` WHERE a.host_name = $1`)
	args := []any{hostName}

	// Half-open window intersection against the appointment's own
	// half-open interval [scheduled_time, scheduled_time + duration).
	if !from.IsZero() {
		args = append(args, from)
		fmt.Fprintf(&sb, ` AND a.scheduled_time + make_interval(mins => a.duration_minutes) > $%d`, len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		fmt.Fprintf(&sb, ` AND a.scheduled_time < $%d`, len(args))
	}
	if statuses != nil {
		args = append(args, statusStrings(statuses))
		fmt.Fprintf(&sb, ` AND a.status = ANY($%d)`, len(args))
	}
	sb.WriteString(` ORDER BY a.scheduled_time ASC`)

	return r.queryAppointments(ctx, sb.String(), args...)
}

func (r *AppointmentRepository) VisitorAppointments(ctx context.Context, visitorID string) ([]model.Appointment, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	return r.queryAppointments(ctx,
		`SELECT`+appointmentColumns+appointmentFrom+`
		WHERE a.visitor_id = $1
		ORDER BY a.scheduled_time ASC`, visitorID)
}

func (r *AppointmentRepository) AllAppointments(ctx context.Context) ([]model.Appointment, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	return r.queryAppointments(ctx,
		`SELECT`+appointmentColumns+appointmentFrom+` ORDER BY a.scheduled_time ASC`)
}

func (r *AppointmentRepository) AppointmentsByStatus(ctx context.Context, statuses []model.Status, limit int) ([]model.Appointment, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	return r.queryAppointments(ctx,
		`SELECT`+appointmentColumns+appointmentFrom+`
		WHERE a.status = ANY($1)
		ORDER BY a.created_at DESC
		LIMIT NULLIF($2, 0)`, statusStrings(statuses), limit)
}

func (r *AppointmentRepository) queryAppointments(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, storeErr(rows.Err())
	}
	return appts, nil
}

// recordEvent writes the outbox row and the audit row inside the
// caller's transaction.
func (r *AppointmentRepository) recordEvent(ctx context.Context, tx pgx.Tx, appointmentID string, evt scheduling.Event) error {
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     evt.Type,
		Payload:       evt.Payload,
	}); err != nil {
		return err
	}
	return r.audit.InsertTx(ctx, tx, evt.Type, evt.ActorID, evt.Payload)
}

func statusStrings(statuses []model.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// storeErr maps driver failures onto the engine's error taxonomy: the
// exclusion constraint becomes a hard conflict, everything else is a
// retryable store failure.
func storeErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
		return &scheduling.ConflictError{}
	}
	return fmt.Errorf("%w: %v", scheduling.ErrStoreUnavailable, err)
}
