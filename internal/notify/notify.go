// Package notify renders booking messages and hands them to a Sender.
package notify

import (
	"context"
	"fmt"
	"time"

	"studio-booking-api/internal/model"
	"studio-booking-api/internal/slots"
)

type Dispatcher struct {
	sender Sender
	studio string
	loc    *time.Location
}

func NewDispatcher(sender Sender, studio string, loc *time.Location) *Dispatcher {
	if sender == nil {
		sender = LogSender{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Dispatcher{sender: sender, studio: studio, loc: loc}
}

// BookingConfirmed is a no-op for users without a phone or with
// notifications turned off.
func (d *Dispatcher) BookingConfirmed(ctx context.Context, u *model.User, b *model.Booking) error {
	if u.Phone == "" || !u.NotificationsEnabled {
		return nil
	}
	text := fmt.Sprintf("Hi %s, your session at %s is confirmed for %s.", firstName(u), d.studio, d.when(b))
	return d.sender.Send(ctx, u.Phone, text)
}

func (d *Dispatcher) BookingReminder(ctx context.Context, u *model.User, b *model.Booking) error {
	if u.Phone == "" || !u.RemindersEnabled {
		return nil
	}
	text := fmt.Sprintf("Reminder: your session at %s starts at %s today (%s). See you soon!", d.studio, b.Time, d.when(b))
	return d.sender.Send(ctx, u.Phone, text)
}

func (d *Dispatcher) when(b *model.Booking) string {
	day, err := slots.ParseDate(b.Date, d.loc)
	if err != nil {
		return b.Date + " " + b.Time
	}
	return fmt.Sprintf("%s at %s", day.Format("Mon 2 Jan"), b.Time)
}

func firstName(u *model.User) string {
	for i, r := range u.Name {
		if r == ' ' {
			return u.Name[:i]
		}
	}
	if u.Name == "" {
		return "there"
	}
	return u.Name
}
