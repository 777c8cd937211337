package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/moim/internal/domain"
)

// SaveDepositSetting creates or replaces a program's deposit setting.
func (r *SQLRepository) SaveDepositSetting(ctx context.Context, tenantID string, s *domain.DepositSetting) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if s.ProgramID == "" {
		return fmt.Errorf("%w: programId is required", ErrInvalidInput)
	}

	var deadline sql.NullTime
	if s.SurveyDeadline != nil {
		deadline = sql.NullTime{Time: *s.SurveyDeadline, Valid: true}
	}

	query := `
		INSERT INTO deposit_settings (
			tenant_id, program_id, condition_type, deposit_amount, split_per_session,
			per_session_amount, survey_required, survey_deadline, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, program_id) DO UPDATE SET
			condition_type = excluded.condition_type,
			deposit_amount = excluded.deposit_amount,
			split_per_session = excluded.split_per_session,
			per_session_amount = excluded.per_session_amount,
			survey_required = excluded.survey_required,
			survey_deadline = excluded.survey_deadline,
			updated_at = excluded.updated_at
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		tenantID, s.ProgramID, string(s.ConditionType), s.DepositAmount, boolInt(s.SplitPerSession),
		s.PerSessionAmount, boolInt(s.SurveyRequired), deadline, s.UpdatedAt,
	)
	return err
}

// GetDepositSetting retrieves a program's deposit setting with tenant isolation.
func (r *SQLRepository) GetDepositSetting(ctx context.Context, tenantID string, programID string) (*domain.DepositSetting, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT tenant_id, program_id, condition_type, deposit_amount, split_per_session,
			   per_session_amount, survey_required, survey_deadline, updated_at
		FROM deposit_settings
		WHERE tenant_id = ? AND program_id = ?
	`

	var s domain.DepositSetting
	var conditionType string
	var split, surveyRequired int
	var deadline sql.NullTime

	err := r.q.QueryRowContext(ctx, r.rebind(query), tenantID, programID).Scan(
		&s.TenantID, &s.ProgramID, &conditionType, &s.DepositAmount, &split,
		&s.PerSessionAmount, &surveyRequired, &deadline, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.ConditionType = domain.ConditionType(conditionType)
	s.SplitPerSession = split == 1
	s.SurveyRequired = surveyRequired == 1
	if deadline.Valid {
		t := deadline.Time
		s.SurveyDeadline = &t
	}

	return &s, nil
}

// SavePolicyTable creates or replaces a refund policy table.
// tenantID may be domain.WildcardTenant for the installation-wide default.
func (r *SQLRepository) SavePolicyTable(ctx context.Context, tenantID string, table *domain.PolicyTable) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if table.ProgramID == "" {
		return fmt.Errorf("%w: programId is required", ErrInvalidInput)
	}

	tiers, err := json.Marshal(table.Tiers)
	if err != nil {
		return fmt.Errorf("failed to encode tiers: %w", err)
	}

	query := `
		INSERT INTO refund_policies (tenant_id, program_id, tiers, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, program_id) DO UPDATE SET
			tiers = excluded.tiers,
			updated_at = excluded.updated_at
	`

	_, err = r.q.ExecContext(ctx, r.rebind(query), tenantID, table.ProgramID, string(tiers), table.UpdatedAt)
	return err
}

func scanPolicyTable(s rowScanner) (*domain.PolicyTable, error) {
	var t domain.PolicyTable
	var tiers string
	if err := s.Scan(&t.TenantID, &t.ProgramID, &tiers, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tiers), &t.Tiers); err != nil {
		return nil, fmt.Errorf("failed to parse tiers for %s: %w", t.ProgramID, err)
	}
	return &t, nil
}

// GetPolicyTable retrieves the policy table stored for exactly (tenantID, programID).
func (r *SQLRepository) GetPolicyTable(ctx context.Context, tenantID string, programID string) (*domain.PolicyTable, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT tenant_id, program_id, tiers, updated_at
		FROM refund_policies
		WHERE tenant_id = ? AND program_id = ?
	`

	t, err := scanPolicyTable(r.q.QueryRowContext(ctx, r.rebind(query), tenantID, programID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListPolicyTables retrieves the tables of a tenant together with the global tables.
// Passing domain.WildcardTenant lists every table of every tenant.
func (r *SQLRepository) ListPolicyTables(ctx context.Context, tenantID string) ([]*domain.PolicyTable, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT tenant_id, program_id, tiers, updated_at
		FROM refund_policies
		WHERE tenant_id = ? OR tenant_id = ?
		ORDER BY tenant_id, program_id
	`
	args := []any{tenantID, domain.WildcardTenant}

	if tenantID == domain.WildcardTenant {
		query = `
			SELECT tenant_id, program_id, tiers, updated_at
			FROM refund_policies
			ORDER BY tenant_id, program_id
		`
		args = nil
	}

	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []*domain.PolicyTable
	for rows.Next() {
		t, err := scanPolicyTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	return tables, rows.Err()
}
