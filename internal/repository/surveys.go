package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/moim/internal/domain"
)

// SaveSurvey stores a survey response. A member can answer once per program;
// a second response returns ErrConflict.
func (r *SQLRepository) SaveSurvey(ctx context.Context, tenantID string, s *domain.SurveyResponse) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if s.ProgramID == "" || s.MemberID == "" {
		return fmt.Errorf("%w: programId and memberId are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO survey_responses (
			id, tenant_id, program_id, member_id, satisfaction, answers, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, program_id, member_id) DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, r.rebind(query),
		s.ID, tenantID, s.ProgramID, s.MemberID, s.Satisfaction, string(s.Answers), s.SubmittedAt,
	)
	if err != nil {
		return err
	}
	if err := requireAffected(result); errors.Is(err, ErrNotFound) {
		return ErrConflict
	} else if err != nil {
		return err
	}
	return nil
}

// GetSurvey retrieves a member's survey response for a program.
func (r *SQLRepository) GetSurvey(ctx context.Context, tenantID string, programID, memberID string) (*domain.SurveyResponse, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, program_id, member_id, satisfaction, answers, submitted_at
		FROM survey_responses
		WHERE tenant_id = ? AND program_id = ? AND member_id = ?
	`

	var s domain.SurveyResponse
	var answers string

	err := r.q.QueryRowContext(ctx, r.rebind(query), tenantID, programID, memberID).Scan(
		&s.ID, &s.TenantID, &s.ProgramID, &s.MemberID, &s.Satisfaction, &answers, &s.SubmittedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if answers != "" {
		s.Answers = json.RawMessage(answers)
	}

	return &s, nil
}
