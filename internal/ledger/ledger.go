// Package ledger holds the session-package rules. The same checks run in the
// optimistic pre-check and again on the locked row inside the booking
// transaction; only the second one is authoritative.
package ledger

import (
	"errors"

	"studio-booking-api/internal/apperr"
	"studio-booking-api/internal/model"
)

var (
	ErrNotMember = &apperr.Error{Kind: apperr.ErrForbidden, Msg: "package does not belong to this user"}
	ErrInactive  = &apperr.Error{Kind: apperr.ErrConflict, Msg: "package is not active"}
	ErrExhausted = &apperr.Error{Kind: apperr.ErrConflict, Msg: "no sessions remaining in package"}
)

// Eligible reports whether userID may consume one session of p.
func Eligible(p *model.Package, userID string) error {
	if !p.HasMember(userID) {
		return ErrNotMember
	}
	if !p.IsActive {
		return ErrInactive
	}
	if p.Remaining() <= 0 {
		return ErrExhausted
	}
	return nil
}

// Consume applies one session to an eligible package in memory.
func Consume(p *model.Package, userID string) error {
	if err := Eligible(p, userID); err != nil {
		return err
	}
	p.UsedSessions++
	return nil
}

// Release gives back one session; it never goes below zero.
func Release(p *model.Package) {
	if p.UsedSessions > 0 {
		p.UsedSessions--
	}
}

// CheckAssignable enforces the one-active-package rule at assignment time.
// An exhausted package no longer counts as active.
func CheckAssignable(userID string, active []model.Package) error {
	for _, p := range active {
		if p.IsActive && p.Remaining() > 0 && p.HasMember(userID) {
			return apperr.Conflict("user %s already has an active package", userID)
		}
	}
	return nil
}

// ValidateGrant checks the numbers of a new package.
func ValidateGrant(total, duration int) error {
	if total <= 0 {
		return apperr.Validation("totalSessions must be positive")
	}
	if duration < 0 || duration > 240 {
		return apperr.Validation("durationMinutes must be between 0 and 240")
	}
	return nil
}

func IsInactive(err error) bool { return errors.Is(err, ErrInactive) }
