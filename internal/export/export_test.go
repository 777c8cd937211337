package export

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/refund"
	"github.com/opensource-finance/moim/internal/repository"
	"github.com/opensource-finance/moim/internal/stats"
)

func TestRefundReport(t *testing.T) {
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "export.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"
	start := time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)

	if err := repo.SaveProgram(ctx, tenantID, &domain.Program{
		ID: "prog-001", Name: "봄 독서 모임", SessionRule: "FREQ=WEEKLY;COUNT=4",
		StartDate: start, Status: domain.ProgramClosed, CreatedAt: start, UpdatedAt: start,
	}); err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}
	if err := repo.SaveDepositSetting(ctx, tenantID, &domain.DepositSetting{
		ProgramID: "prog-001", ConditionType: domain.ConditionAttendanceOnly,
		DepositAmount: 40000, UpdatedAt: start,
	}); err != nil {
		t.Fatalf("SaveDepositSetting failed: %v", err)
	}

	members := []struct {
		id       string
		attended int
	}{
		{"alice", 4},
		{"bob", 2},
	}
	for _, m := range members {
		if err := repo.SaveEnrollment(ctx, tenantID, &domain.Enrollment{
			ID: "e-" + m.id, ProgramID: "prog-001", MemberID: m.id, MemberName: m.id,
			DepositPaid: true, EnrolledAt: start,
		}); err != nil {
			t.Fatalf("SaveEnrollment failed: %v", err)
		}
		for week := 0; week < m.attended; week++ {
			if err := repo.SaveAttendance(ctx, tenantID, &domain.AttendanceRecord{
				ID: m.id + "-" + string(rune('a'+week)), ProgramID: "prog-001", MemberID: m.id,
				SessionDate: start.AddDate(0, 0, 7*week).Format(domain.SessionDateLayout),
				Attended:    true, RecordedAt: start,
			}); err != nil {
				t.Fatalf("SaveAttendance failed: %v", err)
			}
		}
	}

	engine, err := refund.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := engine.Load(&domain.PolicyTable{
		TenantID:  domain.WildcardTenant,
		ProgramID: domain.GlobalProgramID,
		Tiers: []domain.RefundTier{
			{MinAttendance: 100, RefundRate: 100, Label: "개근"},
			{MinAttendance: 50, RefundRate: 50, Label: "절반"},
		},
	}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	svc := refund.NewService(repo, engine, stats.NewService(repo, nil), nil)
	exporter := NewExporter(repo, svc)

	var buf bytes.Buffer
	if err := exporter.RefundReport(ctx, tenantID, "prog-001", &buf); err != nil {
		t.Fatalf("RefundReport failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("failed to open report: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(RefundSheet)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected title, header, 2 members and total, got %d rows", len(rows))
	}
	if rows[0][0] != "봄 독서 모임" {
		t.Errorf("unexpected title: %v", rows[0])
	}

	alice := rows[2]
	if alice[0] != "alice" || alice[2] != "100%" || alice[5] != "개근" || alice[8] != "40,000원" {
		t.Errorf("unexpected alice row: %v", alice)
	}
	bob := rows[3]
	if bob[5] != "절반" || bob[8] != "20,000원" {
		t.Errorf("unexpected bob row: %v", bob)
	}
	total := rows[4]
	if total[len(total)-1] != "60,000원" {
		t.Errorf("unexpected total row: %v", total)
	}
}
