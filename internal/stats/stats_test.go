package stats

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/moim/internal/cache"
	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/repository"
)

func TestStatsService(t *testing.T) {
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "stats.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	lruCache := cache.NewLRUCache(100)
	defer lruCache.Close()

	svc := NewService(repo, lruCache)

	ctx := context.Background()
	tenantID := "tenant-001"
	start := time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)

	if err := repo.SaveProgram(ctx, tenantID, &domain.Program{
		ID: "prog-001", Name: "독서 모임", SessionRule: "FREQ=WEEKLY;COUNT=8",
		StartDate: start, Status: domain.ProgramOpen, CreatedAt: start, UpdatedAt: start,
	}); err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}

	mark := func(t *testing.T, week int, attended, submitted bool) {
		t.Helper()
		date := start.AddDate(0, 0, 7*week).Format(domain.SessionDateLayout)
		if err := repo.SaveAttendance(ctx, tenantID, &domain.AttendanceRecord{
			ID: fmt.Sprintf("a-%d", week), ProgramID: "prog-001", MemberID: "member-001",
			SessionDate: date, Attended: attended, RecordedAt: start,
		}); err != nil {
			t.Fatalf("SaveAttendance failed: %v", err)
		}
		if err := repo.SaveReport(ctx, tenantID, &domain.ReportRecord{
			ID: fmt.Sprintf("r-%d", week), ProgramID: "prog-001", MemberID: "member-001",
			SessionDate: date, Submitted: submitted, RecordedAt: start,
		}); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}
	}

	t.Run("NoMarks", func(t *testing.T) {
		st, err := svc.MemberStats(ctx, tenantID, "prog-001", "member-001")
		if err != nil {
			t.Fatalf("MemberStats failed: %v", err)
		}
		if st.SessionsTotal != 8 || st.AttendanceRate != 0 || st.ReportRate != 0 {
			t.Errorf("unexpected stats: %+v", st)
		}
	})

	t.Run("CachedUntilInvalidated", func(t *testing.T) {
		for week := 0; week < 6; week++ {
			mark(t, week, true, week < 3)
		}
		mark(t, 6, false, false)

		st, err := svc.MemberStats(ctx, tenantID, "prog-001", "member-001")
		if err != nil {
			t.Fatalf("MemberStats failed: %v", err)
		}
		if st.SessionsAttended != 0 {
			t.Errorf("expected cached stats before invalidation, got %+v", st)
		}

		if err := svc.Invalidate(ctx, tenantID, "prog-001", "member-001"); err != nil {
			t.Fatalf("Invalidate failed: %v", err)
		}
		st, err = svc.MemberStats(ctx, tenantID, "prog-001", "member-001")
		if err != nil {
			t.Fatalf("MemberStats failed: %v", err)
		}
		if st.SessionsAttended != 6 || st.ReportsSubmitted != 3 {
			t.Errorf("unexpected counts: %+v", st)
		}
		if st.AttendanceRate != 75 || st.ReportRate != 37.5 {
			t.Errorf("expected 75%%/37.5%%, got %v/%v", st.AttendanceRate, st.ReportRate)
		}
	})

	t.Run("ScheduleChangeInvalidatesProgram", func(t *testing.T) {
		if err := repo.SaveEnrollment(ctx, tenantID, &domain.Enrollment{
			ID: "e-001", ProgramID: "prog-001", MemberID: "member-001", EnrolledAt: start,
		}); err != nil {
			t.Fatalf("SaveEnrollment failed: %v", err)
		}
		if err := repo.SaveProgram(ctx, tenantID, &domain.Program{
			ID: "prog-001", Name: "독서 모임", SessionRule: "FREQ=WEEKLY;COUNT=6",
			StartDate: start, Status: domain.ProgramOpen, CreatedAt: start, UpdatedAt: start,
		}); err != nil {
			t.Fatalf("SaveProgram failed: %v", err)
		}

		st, err := svc.MemberStats(ctx, tenantID, "prog-001", "member-001")
		if err != nil {
			t.Fatalf("MemberStats failed: %v", err)
		}
		if st.SessionsTotal != 8 {
			t.Fatalf("expected cached total 8 before invalidation, got %d", st.SessionsTotal)
		}

		if err := svc.InvalidateProgram(ctx, tenantID, "prog-001"); err != nil {
			t.Fatalf("InvalidateProgram failed: %v", err)
		}
		st, err = svc.MemberStats(ctx, tenantID, "prog-001", "member-001")
		if err != nil {
			t.Fatalf("MemberStats failed: %v", err)
		}
		if st.SessionsTotal != 6 || st.AttendanceRate != 100 {
			t.Errorf("expected 6 sessions at 100%%, got %d at %v", st.SessionsTotal, st.AttendanceRate)
		}
	})

	t.Run("UnknownProgram", func(t *testing.T) {
		if _, err := svc.MemberStats(ctx, tenantID, "prog-404", "member-001"); err == nil {
			t.Error("expected error for unknown program")
		}
	})

	t.Run("RequiresIDs", func(t *testing.T) {
		if _, err := svc.MemberStats(ctx, "", "prog-001", "member-001"); err == nil {
			t.Error("expected error for empty tenant")
		}
	})
}

func TestRate(t *testing.T) {
	tests := []struct {
		n, total int
		want     float64
	}{
		{0, 10, 0},
		{5, 10, 50},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{12, 10, 100},
		{3, 0, 0},
	}
	for _, tt := range tests {
		if got := Rate(tt.n, tt.total); got != tt.want {
			t.Errorf("Rate(%d, %d) = %v, want %v", tt.n, tt.total, got, tt.want)
		}
	}
}
