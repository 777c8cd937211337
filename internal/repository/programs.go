package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/moim/internal/domain"
)

// SaveProgram creates or updates a program with tenant isolation.
func (r *SQLRepository) SaveProgram(ctx context.Context, tenantID string, p *domain.Program) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("%w: program id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO programs (
			id, tenant_id, name, description, session_rule, start_date,
			session_count, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			session_rule = excluded.session_rule,
			start_date = excluded.start_date,
			session_count = excluded.session_count,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.Name, p.Description, p.SessionRule, p.StartDate,
		p.SessionCount, string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	return err
}

const programColumns = `id, tenant_id, name, description, session_rule, start_date,
			   session_count, status, created_at, updated_at`

func scanProgram(s rowScanner) (*domain.Program, error) {
	var p domain.Program
	var status string
	if err := s.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Description, &p.SessionRule, &p.StartDate,
		&p.SessionCount, &status, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = domain.ProgramStatus(status)
	return &p, nil
}

// GetProgram retrieves a program by ID with tenant isolation.
func (r *SQLRepository) GetProgram(ctx context.Context, tenantID string, programID string) (*domain.Program, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + programColumns + ` FROM programs WHERE tenant_id = ? AND id = ?`

	p, err := scanProgram(r.q.QueryRowContext(ctx, r.rebind(query), tenantID, programID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPrograms retrieves all programs of a tenant, newest first.
func (r *SQLRepository) ListPrograms(ctx context.Context, tenantID string) ([]*domain.Program, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + programColumns + ` FROM programs WHERE tenant_id = ? ORDER BY start_date DESC, name`

	rows, err := r.q.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var programs []*domain.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}

	return programs, rows.Err()
}

// SaveEnrollment creates or updates a member's enrollment in a program.
func (r *SQLRepository) SaveEnrollment(ctx context.Context, tenantID string, e *domain.Enrollment) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if e.ProgramID == "" || e.MemberID == "" {
		return fmt.Errorf("%w: programId and memberId are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO enrollments (
			id, tenant_id, program_id, member_id, member_name, member_email, deposit_paid, enrolled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, program_id, member_id) DO UPDATE SET
			member_name = excluded.member_name,
			member_email = excluded.member_email,
			deposit_paid = excluded.deposit_paid
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		e.ID, tenantID, e.ProgramID, e.MemberID, e.MemberName, e.MemberEmail,
		boolInt(e.DepositPaid), e.EnrolledAt,
	)
	return err
}

const enrollmentColumns = `id, tenant_id, program_id, member_id, member_name, member_email, deposit_paid, enrolled_at`

func scanEnrollment(s rowScanner) (*domain.Enrollment, error) {
	var e domain.Enrollment
	var paid int
	if err := s.Scan(
		&e.ID, &e.TenantID, &e.ProgramID, &e.MemberID, &e.MemberName, &e.MemberEmail,
		&paid, &e.EnrolledAt,
	); err != nil {
		return nil, err
	}
	e.DepositPaid = paid == 1
	return &e, nil
}

// GetEnrollment retrieves a member's enrollment with tenant isolation.
func (r *SQLRepository) GetEnrollment(ctx context.Context, tenantID string, programID, memberID string) (*domain.Enrollment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE tenant_id = ? AND program_id = ? AND member_id = ?`

	e, err := scanEnrollment(r.q.QueryRowContext(ctx, r.rebind(query), tenantID, programID, memberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListEnrollments retrieves all enrollments of a program.
func (r *SQLRepository) ListEnrollments(ctx context.Context, tenantID string, programID string) ([]*domain.Enrollment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE tenant_id = ? AND program_id = ?
		ORDER BY member_name, member_id`

	rows, err := r.q.QueryContext(ctx, r.rebind(query), tenantID, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []*domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}

	return enrollments, rows.Err()
}

// SaveAttendance upserts an attendance mark for one session.
func (r *SQLRepository) SaveAttendance(ctx context.Context, tenantID string, rec *domain.AttendanceRecord) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if rec.SessionDate == "" {
		return fmt.Errorf("%w: sessionDate is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO attendance_records (
			id, tenant_id, program_id, member_id, session_date, attended, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, program_id, member_id, session_date) DO UPDATE SET
			attended = excluded.attended,
			recorded_at = excluded.recorded_at
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.ProgramID, rec.MemberID, rec.SessionDate,
		boolInt(rec.Attended), rec.RecordedAt,
	)
	return err
}

// ListAttendance retrieves a member's attendance marks ordered by session date.
func (r *SQLRepository) ListAttendance(ctx context.Context, tenantID string, programID, memberID string) ([]*domain.AttendanceRecord, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, program_id, member_id, session_date, attended, recorded_at
		FROM attendance_records
		WHERE tenant_id = ? AND program_id = ? AND member_id = ?
		ORDER BY session_date
	`

	rows, err := r.q.QueryContext(ctx, r.rebind(query), tenantID, programID, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AttendanceRecord
	for rows.Next() {
		var rec domain.AttendanceRecord
		var attended int
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.ProgramID, &rec.MemberID,
			&rec.SessionDate, &attended, &rec.RecordedAt,
		); err != nil {
			return nil, err
		}
		rec.Attended = attended == 1
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// SaveReport upserts a report-submission mark for one session.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, rec *domain.ReportRecord) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if rec.SessionDate == "" {
		return fmt.Errorf("%w: sessionDate is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO report_records (
			id, tenant_id, program_id, member_id, session_date, submitted, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, program_id, member_id, session_date) DO UPDATE SET
			submitted = excluded.submitted,
			recorded_at = excluded.recorded_at
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.ProgramID, rec.MemberID, rec.SessionDate,
		boolInt(rec.Submitted), rec.RecordedAt,
	)
	return err
}

// ListReports retrieves a member's report marks ordered by session date.
func (r *SQLRepository) ListReports(ctx context.Context, tenantID string, programID, memberID string) ([]*domain.ReportRecord, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, program_id, member_id, session_date, submitted, recorded_at
		FROM report_records
		WHERE tenant_id = ? AND program_id = ? AND member_id = ?
		ORDER BY session_date
	`

	rows, err := r.q.QueryContext(ctx, r.rebind(query), tenantID, programID, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.ReportRecord
	for rows.Next() {
		var rec domain.ReportRecord
		var submitted int
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.ProgramID, &rec.MemberID,
			&rec.SessionDate, &submitted, &rec.RecordedAt,
		); err != nil {
			return nil, err
		}
		rec.Submitted = submitted == 1
		records = append(records, &rec)
	}

	return records, rows.Err()
}
