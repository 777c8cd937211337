// Package schedule expands program session rules into session dates.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/opensource-finance/moim/internal/domain"
)

// MaxSessions bounds the expansion of a single program.
const MaxSessions = 1000

var (
	// ErrInvalidRule is returned when a session rule cannot be parsed.
	ErrInvalidRule = errors.New("invalid session rule")

	// ErrUnbounded is returned for rules without COUNT or UNTIL and no count override.
	ErrUnbounded = errors.New("session rule must set COUNT or UNTIL")

	// ErrTooManySessions is returned when a rule expands past MaxSessions.
	ErrTooManySessions = errors.New("session rule expands to too many sessions")
)

// Sessions returns the session start times of a program.
// A positive SessionCount replaces the rule's own COUNT and UNTIL.
func Sessions(p *domain.Program) ([]time.Time, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(p.SessionRule), "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	if p.SessionCount > 0 {
		opt.Count = p.SessionCount
		opt.Until = time.Time{}
	}
	if opt.Count == 0 && opt.Until.IsZero() {
		return nil, ErrUnbounded
	}
	if opt.Count > MaxSessions {
		return nil, ErrTooManySessions
	}
	opt.Dtstart = p.StartDate

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	var sessions []time.Time
	next := r.Iterator()
	for t, ok := next(); ok; t, ok = next() {
		if len(sessions) == MaxSessions {
			return nil, ErrTooManySessions
		}
		sessions = append(sessions, t)
	}
	return sessions, nil
}

// Dates returns the session dates of a program in domain.SessionDateLayout.
func Dates(p *domain.Program) ([]string, error) {
	sessions, err := Sessions(p)
	if err != nil {
		return nil, err
	}
	dates := make([]string, len(sessions))
	for i, t := range sessions {
		dates[i] = t.Format(domain.SessionDateLayout)
	}
	return dates, nil
}

// Count returns the number of sessions of a program.
func Count(p *domain.Program) (int, error) {
	if p.SessionCount > 0 {
		return p.SessionCount, nil
	}
	sessions, err := Sessions(p)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

// Validate checks that a rule can be expanded from start.
func Validate(rule string, start time.Time, override int) error {
	_, err := Sessions(&domain.Program{SessionRule: rule, StartDate: start, SessionCount: override})
	return err
}
