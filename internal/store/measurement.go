package store

import (
	"context"

	"studio-booking-api/internal/apperr"
	"studio-booking-api/internal/model"
)

const measurementCols = `id, user_id, measured_at, weight_kg, body_fat_pct, chest_cm,
	waist_cm, hips_cm, notes, photo_key, created_at`

func scanMeasurement(row interface{ Scan(...any) error }) (*model.BodyMeasurement, error) {
	m := &model.BodyMeasurement{}
	err := row.Scan(&m.ID, &m.UserID, &m.MeasuredAt, &m.WeightKg, &m.BodyFatPct, &m.ChestCm,
		&m.WaistCm, &m.HipsCm, &m.Notes, &m.PhotoKey, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.HasPhoto = m.PhotoKey != ""
	return m, nil
}

func (s *Store) CreateMeasurement(ctx context.Context, m *model.BodyMeasurement) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO body_measurements (id, user_id, measured_at, weight_kg, body_fat_pct, chest_cm, waist_cm, hips_cm, notes)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING created_at`,
		m.ID, m.UserID, m.MeasuredAt, m.WeightKg, m.BodyFatPct, m.ChestCm, m.WaistCm, m.HipsCm, m.Notes,
	).Scan(&m.CreatedAt)
	return mapErr(err, "measurement")
}

func (s *Store) MeasurementsForUser(ctx context.Context, userID string) ([]model.BodyMeasurement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+measurementCols+` FROM body_measurements
		 WHERE user_id = $1 ORDER BY measured_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.BodyMeasurement{}
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) MeasurementByID(ctx context.Context, id string) (*model.BodyMeasurement, error) {
	m, err := scanMeasurement(s.pool.QueryRow(ctx,
		`SELECT `+measurementCols+` FROM body_measurements WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "measurement")
	}
	return m, nil
}

func (s *Store) SetMeasurementPhoto(ctx context.Context, id, key string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE body_measurements SET photo_key = $2 WHERE id = $1`, id, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("measurement not found")
	}
	return nil
}
