// Package stats derives member participation rates from session marks.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/moim/internal/cache"
	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/schedule"
)

// DefaultTTL is how long computed stats stay cached.
const DefaultTTL = time.Minute

// Service calculates attendance and report rates for members.
type Service struct {
	repo  domain.ProgramStore
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates a new stats service. c may be nil to disable caching.
func NewService(repo domain.ProgramStore, c domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: c,
		ttl:   DefaultTTL,
	}
}

// MemberStats returns the participation summary of a member.
func (s *Service) MemberStats(ctx context.Context, tenantID, programID, memberID string) (*domain.MemberStats, error) {
	if tenantID == "" || programID == "" || memberID == "" {
		return nil, fmt.Errorf("tenantID, programID and memberID are required")
	}

	if s.cache == nil {
		return s.compute(ctx, tenantID, programID, memberID)
	}
	return cache.GetOrSet(ctx, s.cache, tenantID, cacheKey(programID, memberID), s.ttl,
		func(ctx context.Context) (*domain.MemberStats, error) {
			return s.compute(ctx, tenantID, programID, memberID)
		})
}

// Invalidate drops the cached stats of a member after a mark changes.
func (s *Service) Invalidate(ctx context.Context, tenantID, programID, memberID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, tenantID, cacheKey(programID, memberID))
}

// InvalidateProgram drops the cached stats of every enrolled member,
// for changes to the session schedule.
func (s *Service) InvalidateProgram(ctx context.Context, tenantID, programID string) error {
	if s.cache == nil {
		return nil
	}
	enrollments, err := s.repo.ListEnrollments(ctx, tenantID, programID)
	if err != nil {
		return fmt.Errorf("failed to list enrollments: %w", err)
	}
	for _, e := range enrollments {
		if err := s.cache.Delete(ctx, tenantID, cacheKey(programID, e.MemberID)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) compute(ctx context.Context, tenantID, programID, memberID string) (*domain.MemberStats, error) {
	program, err := s.repo.GetProgram(ctx, tenantID, programID)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}

	total, err := schedule.Count(program)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	attendance, err := s.repo.ListAttendance(ctx, tenantID, programID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	reports, err := s.repo.ListReports(ctx, tenantID, programID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	st := &domain.MemberStats{
		ProgramID:     programID,
		MemberID:      memberID,
		SessionsTotal: total,
	}
	for _, a := range attendance {
		if a.Attended {
			st.SessionsAttended++
		}
	}
	for _, r := range reports {
		if r.Submitted {
			st.ReportsSubmitted++
		}
	}
	st.AttendanceRate = Rate(st.SessionsAttended, total)
	st.ReportRate = Rate(st.ReportsSubmitted, total)

	return st, nil
}

// Rate returns n/total as a percentage in [0,100] with two decimals.
func Rate(n, total int) float64 {
	if total <= 0 || n <= 0 {
		return 0
	}
	if n > total {
		n = total
	}
	rate, _ := decimal.NewFromInt(int64(n)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		Float64()
	return rate
}

func cacheKey(programID, memberID string) string {
	return "stats:" + programID + ":" + memberID
}
