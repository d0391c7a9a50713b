package store

import (
	"context"

	"github.com/google/uuid"

	"studio-booking-api/internal/model"
)

// CreatePlan writes the plan with its days and exercises in one transaction.
// Day and exercise ordering is taken from slice order.
func (s *Store) CreatePlan(ctx context.Context, p *model.WorkoutPlan) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO workout_plans (id, user_id, name, notes) VALUES ($1,$2,$3,$4)
		 RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.Name, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapErr(err, "workout plan")
	}

	for i := range p.Days {
		d := &p.Days[i]
		d.ID = uuid.New().String()
		d.PlanID = p.ID
		d.DayIndex = i
		if _, err := tx.Exec(ctx,
			`INSERT INTO workout_days (id, plan_id, day_index, name) VALUES ($1,$2,$3,$4)`,
			d.ID, d.PlanID, d.DayIndex, d.Name); err != nil {
			return mapErr(err, "workout day")
		}
		for j := range d.Exercises {
			e := &d.Exercises[j]
			e.ID = uuid.New().String()
			e.DayID = d.ID
			e.Position = j
			if _, err := tx.Exec(ctx,
				`INSERT INTO workout_exercises (id, day_id, position, name, sets, reps, rest_seconds, notes)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				e.ID, e.DayID, e.Position, e.Name, e.Sets, e.Reps, e.RestSecs, e.Notes); err != nil {
				return mapErr(err, "workout exercise")
			}
		}
	}
	return tx.Commit(ctx)
}

// PlansForUser loads every plan of a user with days and exercises in order.
func (s *Store) PlansForUser(ctx context.Context, userID string) ([]model.WorkoutPlan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, notes, created_at, updated_at
		 FROM workout_plans WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	plans := []model.WorkoutPlan{}
	index := map[string]int{}
	for rows.Next() {
		var p model.WorkoutPlan
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		p.Days = []model.WorkoutDay{}
		index[p.ID] = len(plans)
		plans = append(plans, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return plans, nil
	}

	// one query for all days and exercises, ordered so appends keep position
	rows, err = s.pool.Query(ctx,
		`SELECT d.id, d.plan_id, d.day_index, d.name,
		        e.id, e.position, e.name, e.sets, e.reps, e.rest_seconds, e.notes
		 FROM workout_days d
		 JOIN workout_plans p ON p.id = d.plan_id
		 LEFT JOIN workout_exercises e ON e.day_id = d.id
		 WHERE p.user_id = $1
		 ORDER BY d.plan_id, d.day_index, e.position`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d model.WorkoutDay
		var exID, exName, exReps, exNotes *string
		var exPos, exSets, exRest *int
		if err := rows.Scan(&d.ID, &d.PlanID, &d.DayIndex, &d.Name,
			&exID, &exPos, &exName, &exSets, &exReps, &exRest, &exNotes); err != nil {
			return nil, err
		}
		plan := &plans[index[d.PlanID]]
		n := len(plan.Days)
		if n == 0 || plan.Days[n-1].ID != d.ID {
			d.Exercises = []model.WorkoutExercise{}
			plan.Days = append(plan.Days, d)
			n++
		}
		if exID != nil {
			day := &plan.Days[n-1]
			day.Exercises = append(day.Exercises, model.WorkoutExercise{
				ID: *exID, DayID: d.ID, Position: *exPos, Name: *exName,
				Sets: *exSets, Reps: *exReps, RestSecs: *exRest, Notes: *exNotes,
			})
		}
	}
	return plans, rows.Err()
}
