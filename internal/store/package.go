package store

import (
	"context"
	"slices"

	"studio-booking-api/internal/apperr"
	"studio-booking-api/internal/ledger"
	"studio-booking-api/internal/model"
)

const packageCols = `p.id, p.name, p.total_sessions, p.used_sessions, p.duration_minutes,
	p.is_active, p.created_at, p.updated_at`

// members are aggregated in the same row
const packageSelect = `SELECT ` + packageCols + `,
	COALESCE(array_agg(pu.user_id ORDER BY pu.user_id) FILTER (WHERE pu.user_id IS NOT NULL), '{}')
	FROM packages p
	LEFT JOIN package_users pu ON pu.package_id = p.id`

func scanPackage(row interface{ Scan(...any) error }, withMembers bool) (*model.Package, error) {
	p := &model.Package{}
	dst := []any{&p.ID, &p.Name, &p.TotalSessions, &p.UsedSessions, &p.DurationMinutes,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt}
	if withMembers {
		dst = append(dst, &p.UserIDs)
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return p, nil
}

func collectPackages(ctx context.Context, q querier, sql string, args ...any) ([]model.Package, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Package{}
	for rows.Next() {
		p, err := scanPackage(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) PackageByID(ctx context.Context, id string) (*model.Package, error) {
	p, err := scanPackage(s.pool.QueryRow(ctx, packageSelect+` WHERE p.id = $1 GROUP BY p.id`, id), true)
	if err != nil {
		return nil, mapErr(err, "package")
	}
	return p, nil
}

// PackagesForUser lists every package the user is a member of, newest first.
func (s *Store) PackagesForUser(ctx context.Context, userID string) ([]model.Package, error) {
	return collectPackages(ctx, s.pool, packageSelect+`
		WHERE p.id IN (SELECT package_id FROM package_users WHERE user_id = $1)
		GROUP BY p.id
		ORDER BY p.created_at DESC`, userID)
}

func (s *Store) ActivePackagesForUser(ctx context.Context, userID string) ([]model.Package, error) {
	return collectPackages(ctx, s.pool, packageSelect+`
		WHERE p.is_active AND p.id IN (SELECT package_id FROM package_users WHERE user_id = $1)
		GROUP BY p.id
		ORDER BY p.created_at DESC`, userID)
}

func (s *Store) ListPackages(ctx context.Context) ([]model.Package, error) {
	return collectPackages(ctx, s.pool, packageSelect+` GROUP BY p.id ORDER BY p.created_at DESC`)
}

// CreatePackage inserts p and its members. Member rows are locked first so
// two concurrent grants to the same user cannot both pass the
// one-active-package check.
func (s *Store) CreatePackage(ctx context.Context, p *model.Package) error {
	if err := ledger.ValidateGrant(p.TotalSessions, p.DurationMinutes); err != nil {
		return err
	}
	if p.DurationMinutes == 0 {
		p.DurationMinutes = model.DefaultSessionMinutes
	}
	if len(p.UserIDs) == 0 {
		return apperr.Validation("a package needs at least one member")
	}
	// fixed lock order
	slices.Sort(p.UserIDs)
	p.UserIDs = slices.Compact(p.UserIDs)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, uid := range p.UserIDs {
		var role model.Role
		err := tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 FOR UPDATE`, uid).Scan(&role)
		if err != nil {
			return mapErr(err, "user "+uid)
		}
		active, err := collectPackages(ctx, tx, packageSelect+`
			WHERE p.is_active AND p.id IN (SELECT package_id FROM package_users WHERE user_id = $1)
			GROUP BY p.id`, uid)
		if err != nil {
			return err
		}
		if err := ledger.CheckAssignable(uid, active); err != nil {
			return err
		}
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO packages (id, name, total_sessions, used_sessions, duration_minutes, is_active)
		 VALUES ($1,$2,$3,0,$4,TRUE)
		 RETURNING created_at, updated_at`,
		p.ID, p.Name, p.TotalSessions, p.DurationMinutes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapErr(err, "package")
	}
	for _, uid := range p.UserIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO package_users (package_id, user_id) VALUES ($1,$2)`, p.ID, uid); err != nil {
			return mapErr(err, "package member")
		}
	}
	p.UsedSessions = 0
	p.IsActive = true
	return tx.Commit(ctx)
}

func (s *Store) DeactivatePackage(ctx context.Context, id string) (*model.Package, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE packages SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound("package not found")
	}
	return s.PackageByID(ctx, id)
}
