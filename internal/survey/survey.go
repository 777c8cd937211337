// Package survey processes end-of-program satisfaction surveys.
// A submitted survey unlocks the refund of programs that require one.
package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/refund"
	"github.com/opensource-finance/moim/internal/repository"
)

var (
	// ErrDeadlinePassed is returned for submissions after the survey deadline.
	ErrDeadlinePassed = errors.New("survey deadline has passed")

	// ErrAlreadySubmitted is returned when the member already answered.
	ErrAlreadySubmitted = errors.New("survey already submitted")

	// ErrNotEnrolled is returned when the member is not part of the program.
	ErrNotEnrolled = refund.ErrNotEnrolled

	// ErrInvalidAnswers is returned when answers are not a JSON document.
	ErrInvalidAnswers = errors.New("survey answers must be valid JSON")
)

// Processor stores surveys and reports the refund they unlock.
type Processor struct {
	repo    domain.Repository
	refunds *refund.Service
	bus     domain.EventBus

	// Now is the clock used for deadlines and timestamps.
	Now func() time.Time
}

// NewProcessor creates a survey processor. bus may be nil.
func NewProcessor(repo domain.Repository, refunds *refund.Service, bus domain.EventBus) *Processor {
	return &Processor{
		repo:    repo,
		refunds: refunds,
		bus:     bus,
		Now:     time.Now,
	}
}

// Submit stores a member's survey and returns the refund calculation it yields.
// The calculation is not persisted.
func (p *Processor) Submit(ctx context.Context, tenantID, programID string, req *domain.SurveyRequest) (*domain.SurveyResult, error) {
	if len(req.Answers) > 0 && !json.Valid(req.Answers) {
		return nil, ErrInvalidAnswers
	}

	if _, err := p.repo.GetProgram(ctx, tenantID, programID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, refund.ErrProgramNotFound
		}
		return nil, fmt.Errorf("failed to load program: %w", err)
	}

	if _, err := p.repo.GetEnrollment(ctx, tenantID, programID, req.MemberID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}

	now := p.Now().UTC()

	setting, err := p.repo.GetDepositSetting(ctx, tenantID, programID)
	switch {
	case err == nil:
		if setting.SurveyDeadline != nil && now.After(*setting.SurveyDeadline) {
			return nil, ErrDeadlinePassed
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to load deposit setting: %w", err)
	}

	// Calculate before saving so a failed calculation leaves nothing stored
	// and the member can submit again.
	res, err := p.refunds.CalculateWith(ctx, tenantID, programID, req.MemberID, refund.Options{AssumeSurveySubmitted: true})
	if err != nil {
		return nil, fmt.Errorf("failed to calculate refund: %w", err)
	}

	resp := &domain.SurveyResponse{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		ProgramID:    programID,
		MemberID:     req.MemberID,
		Satisfaction: req.Satisfaction,
		Answers:      req.Answers,
		SubmittedAt:  now,
	}
	if err := p.repo.SaveSurvey(ctx, tenantID, resp); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("failed to save survey: %w", err)
	}

	p.publish(ctx, tenantID, domain.TopicSurveySubmitted, resp)
	p.publish(ctx, tenantID, domain.TopicRefundCalculated, domain.RefundCalculatedEvent{
		ProgramID:   programID,
		ProgramName: res.Program.Name,
		MemberID:    req.MemberID,
		MemberName:  res.Enrollment.MemberName,
		MemberEmail: res.Enrollment.MemberEmail,
		Refund:      res.Calculation,
	})

	slog.Info("survey submitted",
		"tenant_id", tenantID,
		"program_id", programID,
		"member_id", req.MemberID,
		"eligible", res.Calculation.Eligible,
		"refund_amount", res.Calculation.RefundAmount,
	)

	calc := res.Calculation
	return &domain.SurveyResult{Survey: resp, Refund: &calc}, nil
}

// Preview returns the refund the member would get once the survey is in.
func (p *Processor) Preview(ctx context.Context, tenantID, programID, memberID string) (*domain.RefundCalculation, error) {
	res, err := p.refunds.CalculateWith(ctx, tenantID, programID, memberID, refund.Options{AssumeSurveySubmitted: true})
	if err != nil {
		return nil, err
	}
	return &res.Calculation, nil
}

// publish is best effort: the survey is already stored when it runs.
func (p *Processor) publish(ctx context.Context, tenantID, topic string, v any) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "tenant_id", tenantID, "error", err)
	}
}
