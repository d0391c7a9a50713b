package store

import (
	"context"
	"strings"

	"studio-booking-api/internal/model"
)

const userCols = `id, email, password_hash, name, phone, role,
	notifications_enabled, reminders_enabled, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Phone, &u.Role,
		&u.NotificationsEnabled, &u.RemindersEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.Role == "" {
		u.Role = model.RoleClient
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, name, phone, role, notifications_enabled, reminders_enabled)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING created_at, updated_at`,
		u.ID, strings.ToLower(u.Email), u.PasswordHash, u.Name, u.Phone, u.Role,
		u.NotificationsEnabled, u.RemindersEnabled,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return mapErr(err, "user")
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE email = $1`, strings.ToLower(email)))
	if err != nil {
		return nil, mapErr(err, "user")
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "user")
	}
	return u, nil
}

func (s *Store) ListClients(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE role = 'CLIENT' ORDER BY name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

type Settings struct {
	Phone                *string
	NotificationsEnabled *bool
	RemindersEnabled     *bool
}

// UpdateSettings applies the non-nil fields.
func (s *Store) UpdateSettings(ctx context.Context, userID string, st Settings) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE users SET
		   phone = COALESCE($2, phone),
		   notifications_enabled = COALESCE($3, notifications_enabled),
		   reminders_enabled = COALESCE($4, reminders_enabled),
		   updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userCols,
		userID, st.Phone, st.NotificationsEnabled, st.RemindersEnabled))
	if err != nil {
		return nil, mapErr(err, "user")
	}
	return u, nil
}

// EnsureAdmin creates the admin account once; an existing email is left alone.
func (s *Store) EnsureAdmin(ctx context.Context, u *model.User) (bool, error) {
	u.Role = model.RoleAdmin
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, name, role)
		 VALUES ($1,$2,$3,$4,'ADMIN')
		 ON CONFLICT (email) DO NOTHING`,
		u.ID, strings.ToLower(u.Email), u.PasswordHash, u.Name)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
