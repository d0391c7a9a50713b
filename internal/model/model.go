package model

import "time"

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleClient Role = "CLIENT"
)

type User struct {
	ID                   string    `json:"id"`
	Email                string    `json:"email"`
	PasswordHash         string    `json:"-"`
	Name                 string    `json:"name"`
	Phone                string    `json:"phone,omitempty"`
	Role                 Role      `json:"role"`
	NotificationsEnabled bool      `json:"notificationsEnabled"`
	RemindersEnabled     bool      `json:"remindersEnabled"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

const DefaultSessionMinutes = 60

// Package is a prepaid grant of sessions. UserIDs lists every member; more
// than one member makes it a group package.
type Package struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	TotalSessions   int       `json:"totalSessions"`
	UsedSessions    int       `json:"usedSessions"`
	DurationMinutes int       `json:"durationMinutes"`
	IsActive        bool      `json:"isActive"`
	UserIDs         []string  `json:"userIds"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (p *Package) Remaining() int {
	return p.TotalSessions - p.UsedSessions
}

func (p *Package) HasMember(userID string) bool {
	for _, id := range p.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (p *Package) IsGroup() bool { return len(p.UserIDs) > 1 }

// Duration falls back to the studio default when the package has none.
func (p *Package) Duration() int {
	if p.DurationMinutes <= 0 {
		return DefaultSessionMinutes
	}
	return p.DurationMinutes
}

type BookingStatus string

const (
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCancelled BookingStatus = "CANCELLED"
)

// Booking reserves one slot. Date is YYYY-MM-DD and Time is HH:MM, both in
// the studio time zone; together they are the studio-wide slot identity.
type Booking struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	PackageID       string        `json:"packageId"`
	Date            string        `json:"date"`
	Time            string        `json:"time"`
	DurationMinutes int           `json:"durationMinutes"`
	Status          BookingStatus `json:"status"`
	CalendarEventID *string       `json:"calendarEventId"`
	ReminderSent    bool          `json:"reminderSent"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

type WorkoutPlan struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Name      string       `json:"name"`
	Notes     string       `json:"notes,omitempty"`
	Days      []WorkoutDay `json:"days"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type WorkoutDay struct {
	ID        string            `json:"id"`
	PlanID    string            `json:"planId"`
	DayIndex  int               `json:"dayIndex"`
	Name      string            `json:"name"`
	Exercises []WorkoutExercise `json:"exercises"`
}

type WorkoutExercise struct {
	ID       string `json:"id"`
	DayID    string `json:"dayId"`
	Position int    `json:"position"`
	Name     string `json:"name"`
	Sets     int    `json:"sets"`
	Reps     string `json:"reps"`
	RestSecs int    `json:"restSeconds"`
	Notes    string `json:"notes,omitempty"`
}

type BodyMeasurement struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	MeasuredAt time.Time `json:"measuredAt"`
	WeightKg   *float64  `json:"weightKg,omitempty"`
	BodyFatPct *float64  `json:"bodyFatPct,omitempty"`
	ChestCm    *float64  `json:"chestCm,omitempty"`
	WaistCm    *float64  `json:"waistCm,omitempty"`
	HipsCm     *float64  `json:"hipsCm,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	PhotoKey   string    `json:"-"`
	HasPhoto   bool      `json:"hasPhoto"`
	CreatedAt  time.Time `json:"createdAt"`
}
