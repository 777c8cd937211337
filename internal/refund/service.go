package refund

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/metrics"
	"github.com/opensource-finance/moim/internal/repository"
)

var (
	// ErrNotEnrolled is returned when the member has no enrollment in the program.
	ErrNotEnrolled = errors.New("member is not enrolled in program")

	// ErrProgramNotFound is returned for unknown programs.
	ErrProgramNotFound = errors.New("program not found")
)

// StatsSource provides a member's participation rates.
type StatsSource interface {
	MemberStats(ctx context.Context, tenantID, programID, memberID string) (*domain.MemberStats, error)
}

// Options adjusts a single calculation.
type Options struct {
	// AssumeSurveySubmitted evaluates as if the survey were already in,
	// for the preview shown on the survey form.
	AssumeSurveySubmitted bool
}

// Result is a refund calculation with the facts it was computed from.
type Result struct {
	Calculation     domain.RefundCalculation
	Program         *domain.Program
	Enrollment      *domain.Enrollment
	Stats           *domain.MemberStats
	SurveySubmitted bool
}

// Service computes refunds from stored settings, statistics and policies.
// Calculations are never persisted.
type Service struct {
	repo    domain.Repository
	engine  *Engine
	stats   StatsSource
	metrics *metrics.Metrics
}

// NewService creates a refund service. m may be nil.
func NewService(repo domain.Repository, engine *Engine, stats StatsSource, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		engine:  engine,
		stats:   stats,
		metrics: m,
	}
}

// Calculate computes the current refund of a member.
func (s *Service) Calculate(ctx context.Context, tenantID, programID, memberID string) (*domain.RefundCalculation, error) {
	res, err := s.CalculateWith(ctx, tenantID, programID, memberID, Options{})
	if err != nil {
		return nil, err
	}
	return &res.Calculation, nil
}

// CalculateWith computes a refund and returns the inputs alongside it.
func (s *Service) CalculateWith(ctx context.Context, tenantID, programID, memberID string, opts Options) (*Result, error) {
	program, err := s.repo.GetProgram(ctx, tenantID, programID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProgramNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}

	enrollment, err := s.repo.GetEnrollment(ctx, tenantID, programID, memberID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}

	res := &Result{Program: program, Enrollment: enrollment}

	setting, err := s.repo.GetDepositSetting(ctx, tenantID, programID)
	if errors.Is(err, repository.ErrNotFound) {
		res.Calculation = domain.RefundCalculation{IneligibleReason: ReasonNoDepositSetting}
		s.observe(res.Calculation)
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deposit setting: %w", err)
	}

	stats, err := s.stats.MemberStats(ctx, tenantID, programID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to load member stats: %w", err)
	}
	res.Stats = stats

	submitted := opts.AssumeSurveySubmitted
	if !submitted {
		_, err := s.repo.GetSurvey(ctx, tenantID, programID, memberID)
		switch {
		case err == nil:
			submitted = true
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("failed to load survey: %w", err)
		}
	}
	res.SurveySubmitted = submitted

	deposit := setting.TotalDeposit(stats.SessionsTotal)

	switch {
	case !enrollment.DepositPaid:
		res.Calculation = domain.RefundCalculation{IneligibleReason: ReasonDepositUnpaid}
	case setting.SurveyRequired && !submitted:
		res.Calculation = domain.RefundCalculation{
			DepositAmount:    deposit,
			IneligibleReason: ReasonSurveyMissing,
		}
	default:
		reportRate := stats.ReportRate
		res.Calculation = s.engine.Policy(tenantID, programID).Evaluate(Input{
			ConditionType:   setting.ConditionType,
			AttendanceRate:  stats.AttendanceRate,
			ReportRate:      &reportRate,
			DepositAmount:   deposit,
			SurveySubmitted: submitted,
			SessionsTotal:   stats.SessionsTotal,
		})
	}

	s.observe(res.Calculation)
	return res, nil
}

func (s *Service) observe(calc domain.RefundCalculation) {
	outcome := "eligible"
	if !calc.Eligible {
		outcome = "ineligible"
	}
	s.metrics.ObserveRefund(outcome, calc.RefundAmount)
}
