// Package slots holds the studio's time arithmetic: operating hours, slot
// granularity and the half-open overlap rule. Times are minutes since local
// midnight of the booking date.
package slots

import (
	"fmt"
	"regexp"
	"time"
)

const (
	OpenMinute  = 8 * 60
	CloseMinute = 20 * 60
	Step        = 30

	DateLayout = "2006-01-02"
)

var hhmm = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// Interval is [Start, End) in minutes since midnight.
type Interval struct {
	Start int
	End   int
}

func Window(start, duration int) Interval {
	return Interval{Start: start, End: start + duration}
}

// Overlaps is the single overlap rule used by every availability path.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}

// ParseTime parses a strict "HH:MM".
func ParseTime(s string) (int, error) {
	m := hhmm.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("time %q is not HH:MM", s)
	}
	h := int(m[1][0]-'0')*10 + int(m[1][1]-'0')
	min := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	return h*60 + min, nil
}

func FormatTime(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// WithinHours reports whether a start minute lies in [08:00, 20:00).
func WithinHours(minute int) bool {
	return minute >= OpenMinute && minute < CloseMinute
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not YYYY-MM-DD", s)
	}
	return d, nil
}

// At returns the instant of minute on date in loc.
func At(date time.Time, minute int) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, minute/60, minute%60, 0, 0, date.Location())
}

// MinuteOf returns minutes since midnight of t in its own location.
func MinuteOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Query describes one free-slot computation.
type Query struct {
	Duration int
	// NotBefore drops starts earlier than this minute; -1 keeps all.
	NotBefore int
	Busy      []Interval
}

// Free lists every Step-aligned start in operating hours whose window fits
// before closing and overlaps no busy interval.
func Free(q Query) []string {
	dur := q.Duration
	if dur <= 0 {
		dur = 60
	}
	out := []string{}
	for s := OpenMinute; s+dur <= CloseMinute; s += Step {
		if q.NotBefore >= 0 && s < q.NotBefore {
			continue
		}
		w := Window(s, dur)
		free := true
		for _, b := range q.Busy {
			if Overlaps(w, b) {
				free = false
				break
			}
		}
		if free {
			out = append(out, FormatTime(s))
		}
	}
	return out
}

// Clip cuts the absolute interval [from, to) down to the part falling on
// date (in date's location). ok is false when nothing remains.
func Clip(date time.Time, from, to time.Time) (Interval, bool) {
	dayStart := At(date, 0)
	dayEnd := dayStart.AddDate(0, 0, 1)
	if !from.Before(dayEnd) || !to.After(dayStart) {
		return Interval{}, false
	}
	if from.Before(dayStart) {
		from = dayStart
	}
	if to.After(dayEnd) {
		to = dayEnd
	}
	start := int(from.Sub(dayStart) / time.Minute)
	end := int((to.Sub(dayStart) + time.Minute - 1) / time.Minute)
	if end <= start {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}
