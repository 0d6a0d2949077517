package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/arefin-khan/visitgate/libs/db"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/scheduling"
)

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `
	id::text, full_name, COALESCE(phone_number, ''), COALESCE(email, ''), role,
	is_verified, password_reset_required, COALESCE(address, '{}'::jsonb),
	calendar_synced, COALESCE(calendar_url, ''), created_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.PhoneNumber,
		&u.Email,
		&u.Role,
		&u.IsVerified,
		&u.PasswordResetRequired,
		&u.Address,
		&u.CalendarSynced,
		&u.CalendarURL,
		&u.CreatedAt,
	)
	return u, err
}

// CreateStaff provisions an employee, security or admin account. The
// password hash arrives pre-computed; password_reset_required forces a
// change on first login.
func (r *UserRepository) CreateStaff(ctx context.Context, user model.User, passwordHash string) error {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users
			(id, full_name, phone_number, email, role, password_hash, is_verified, password_reset_required, address)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9)
	`, user.ID, user.FullName, user.PhoneNumber, user.Email, user.Role,
		passwordHash, user.IsVerified, user.PasswordResetRequired, user.Address)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// UpsertVisitorByPhone registers or refreshes a visitor record when
// staff book on a walk-in's behalf; the phone number is the natural key.
func (r *UserRepository) UpsertVisitorByPhone(ctx context.Context, fullName, phoneNumber string) (model.User, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	user, err := scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (full_name, phone_number, role)
		VALUES ($1, $2, 'visitor')
		ON CONFLICT (phone_number) DO UPDATE SET full_name = EXCLUDED.full_name
		RETURNING`+userColumns, fullName, phoneNumber))
	if err != nil {
		return model.User{}, storeErr(err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (model.User, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	user, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT`+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, &scheduling.NotFoundError{Kind: "user", ID: id}
		}
		return model.User{}, storeErr(err)
	}
	return user, nil
}

func (r *UserRepository) GetByPhone(ctx context.Context, phoneNumber string) (model.User, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	user, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT`+userColumns+` FROM users WHERE phone_number = $1`, phoneNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, &scheduling.NotFoundError{Kind: "user", ID: phoneNumber}
		}
		return model.User{}, storeErr(err)
	}
	return user, nil
}

func (r *UserRepository) ListByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT`+userColumns+` FROM users WHERE role = $1 ORDER BY created_at DESC`, role)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, storeErr(rows.Err())
	}
	return users, nil
}

// SetCalendar records an external calendar registration for a staff
// account; an empty URL disconnects it.
func (r *UserRepository) SetCalendar(ctx context.Context, id, calendarURL string) error {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET calendar_url = NULLIF($2, ''), calendar_synced = ($2 <> '')
		WHERE id = $1
	`, id, calendarURL)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return &scheduling.NotFoundError{Kind: "user", ID: id}
	}
	return nil
}

// SetPassword replaces the hash and clears the forced-reset flag.
func (r *UserRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, password_reset_required = FALSE
		WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return &scheduling.NotFoundError{Kind: "user", ID: id}
	}
	return nil
}

// PasswordHash is read separately from the profile so the hash never
// rides along on listing queries.
func (r *UserRepository) PasswordHash(ctx context.Context, id string) (string, error) {
	ctx, cancel := db.WithStatementTimeout(ctx)
	defer cancel()

	var hash string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(password_hash, '') FROM users WHERE id = $1`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", &scheduling.NotFoundError{Kind: "user", ID: id}
		}
		return "", storeErr(err)
	}
	return hash, nil
}
