package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studio-booking-api/internal/clock"
	"studio-booking-api/internal/model"
)

type memStore struct {
	mu    sync.Mutex
	cands []Candidate
	sent  map[string]bool
	dates []string
}

func (m *memStore) ReminderCandidates(_ context.Context, dates []string) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dates = dates
	var out []Candidate
	for _, c := range m.cands {
		if m.sent[c.Booking.ID] {
			continue
		}
		for _, d := range dates {
			if c.Booking.Date == d {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (m *memStore) ClaimReminder(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent[id] {
		return false, nil
	}
	m.sent[id] = true
	return true, nil
}

func (m *memStore) UnclaimReminder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sent, id)
	return nil
}

type countingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
	fail  bool
}

func (n *countingNotifier) BookingReminder(_ context.Context, _ *model.User, b *model.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("provider down")
	}
	n.calls[b.ID]++
	return nil
}

func cand(id, date, start string) Candidate {
	return Candidate{
		Booking: model.Booking{ID: id, Date: date, Time: start, Status: model.StatusConfirmed},
		User:    model.User{ID: "u-" + id, Phone: "600111222", RemindersEnabled: true},
	}
}

func TestRunWindow(t *testing.T) {
	st := &memStore{sent: map[string]bool{}, cands: []Candidate{
		cand("early", "2026-03-10", "09:40"),  // 40 min out
		cand("edge50", "2026-03-10", "09:50"), // 50 min out
		cand("mid", "2026-03-10", "10:00"),
		cand("edge70", "2026-03-10", "10:10"),
		cand("late", "2026-03-10", "10:30"),
	}}
	n := &countingNotifier{calls: map[string]int{}}
	j := New(st, n, clock.NewManual(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), time.UTC)

	sum, err := j.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Sent != 3 || sum.Scanned != 3 || sum.Failed != 0 {
		t.Errorf("summary %+v", sum)
	}
	for _, id := range []string{"edge50", "mid", "edge70"} {
		if n.calls[id] != 1 {
			t.Errorf("%s reminded %d times", id, n.calls[id])
		}
	}
	if n.calls["early"] != 0 || n.calls["late"] != 0 {
		t.Error("bookings outside the window were reminded")
	}
}

func TestRunSendsOnce(t *testing.T) {
	st := &memStore{sent: map[string]bool{}, cands: []Candidate{cand("b1", "2026-03-10", "10:00")}}
	n := &countingNotifier{calls: map[string]int{}}
	clk := clock.NewManual(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	j := New(st, n, clk, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = j.Run(context.Background())
		}()
	}
	wg.Wait()
	clk.Advance(5 * time.Minute)
	_, _ = j.Run(context.Background())

	if n.calls["b1"] != 1 {
		t.Errorf("reminded %d times, want 1", n.calls["b1"])
	}
}

func TestRunFailureRetriesLater(t *testing.T) {
	st := &memStore{sent: map[string]bool{}, cands: []Candidate{cand("b1", "2026-03-10", "10:00")}}
	n := &countingNotifier{calls: map[string]int{}, fail: true}
	clk := clock.NewManual(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	j := New(st, n, clk, time.UTC)

	sum, _ := j.Run(context.Background())
	if sum.Failed != 1 || st.sent["b1"] {
		t.Fatalf("failed send must leave the booking unreminded: %+v", sum)
	}

	n.fail = false
	clk.Advance(5 * time.Minute)
	sum, _ = j.Run(context.Background())
	if sum.Sent != 1 {
		t.Errorf("retry summary %+v", sum)
	}
}

func TestRunAcrossMidnight(t *testing.T) {
	st := &memStore{sent: map[string]bool{}, cands: []Candidate{cand("b1", "2026-03-11", "00:05")}}
	n := &countingNotifier{calls: map[string]int{}}
	j := New(st, n, clock.NewManual(time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)), time.UTC)

	sum, err := j.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(st.dates) != 2 {
		t.Errorf("expected both dates to be scanned, got %v", st.dates)
	}
	if sum.Sent != 1 {
		t.Errorf("summary %+v", sum)
	}
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	j := New(&memStore{sent: map[string]bool{}}, &countingNotifier{calls: map[string]int{}}, nil, nil)
	if _, err := j.Schedule("every now and then"); err == nil {
		t.Fatal("expected error for bad cron spec")
	}
	c, err := j.Schedule("*/10 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	c.Stop()
}
