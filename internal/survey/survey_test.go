package survey

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/moim/internal/bus"
	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/refund"
	"github.com/opensource-finance/moim/internal/repository"
)

type fixedStats struct{}

func (fixedStats) MemberStats(ctx context.Context, tenantID, programID, memberID string) (*domain.MemberStats, error) {
	return &domain.MemberStats{
		ProgramID: programID, MemberID: memberID,
		SessionsTotal: 10, SessionsAttended: 9, ReportsSubmitted: 8,
		AttendanceRate: 90, ReportRate: 80,
	}, nil
}

func ptr(v float64) *float64 { return &v }

func setup(t *testing.T) (*Processor, domain.Repository, *bus.ChannelBus) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "survey.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(48 * time.Hour)

	if err := repo.SaveProgram(ctx, tenantID, &domain.Program{
		ID: "prog-001", Name: "글쓰기 모임", SessionRule: "FREQ=WEEKLY;COUNT=10",
		StartDate: now, Status: domain.ProgramClosed, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}
	if err := repo.SaveEnrollment(ctx, tenantID, &domain.Enrollment{
		ID: "e1", ProgramID: "prog-001", MemberID: "member-001", MemberName: "김모임",
		MemberEmail: "member@example.com", DepositPaid: true, EnrolledAt: now,
	}); err != nil {
		t.Fatalf("SaveEnrollment failed: %v", err)
	}
	if err := repo.SaveDepositSetting(ctx, tenantID, &domain.DepositSetting{
		ProgramID: "prog-001", ConditionType: domain.ConditionAttendanceAndReport,
		DepositAmount: 100000, SurveyRequired: true, SurveyDeadline: &deadline, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("SaveDepositSetting failed: %v", err)
	}

	engine, err := refund.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := engine.Load(&domain.PolicyTable{
		TenantID:  tenantID,
		ProgramID: "prog-001",
		Tiers: []domain.RefundTier{
			{MinAttendance: 80, MinReport: ptr(80), RefundRate: 100, Label: "Full"},
			{MinAttendance: 60, MinReport: ptr(60), RefundRate: 50, Label: "Half"},
		},
	}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	eventBus := bus.NewChannelBus(10)
	t.Cleanup(func() { eventBus.Close() })

	proc := NewProcessor(repo, refund.NewService(repo, engine, fixedStats{}, nil), eventBus)
	proc.Now = func() time.Time { return now }
	return proc, repo, eventBus
}

func TestSubmit(t *testing.T) {
	proc, _, eventBus := setup(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	events := make(chan domain.RefundCalculatedEvent, 1)
	sub, err := eventBus.Subscribe(ctx, tenantID, domain.TopicRefundCalculated, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.RefundCalculatedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		events <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	t.Run("PreviewBeforeSubmit", func(t *testing.T) {
		calc, err := proc.Preview(ctx, tenantID, "prog-001", "member-001")
		if err != nil {
			t.Fatalf("Preview failed: %v", err)
		}
		if !calc.Eligible || calc.RefundAmount != 100000 {
			t.Errorf("expected full refund preview, got %+v", calc)
		}
	})

	t.Run("Submit", func(t *testing.T) {
		res, err := proc.Submit(ctx, tenantID, "prog-001", &domain.SurveyRequest{
			MemberID:     "member-001",
			Satisfaction: 5,
			Answers:      json.RawMessage(`{"favorite":"합평"}`),
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if res.Survey.ID == "" || res.Survey.Satisfaction != 5 {
			t.Errorf("unexpected survey: %+v", res.Survey)
		}
		if !res.Refund.Eligible || res.Refund.RefundAmount != 100000 || res.Refund.TierLabel != "Full" {
			t.Errorf("expected full refund, got %+v", res.Refund)
		}

		select {
		case ev := <-events:
			if ev.MemberEmail != "member@example.com" || ev.Refund.RefundAmount != 100000 {
				t.Errorf("unexpected event: %+v", ev)
			}
			if ev.ProgramName != "글쓰기 모임" {
				t.Errorf("expected program name in event, got %q", ev.ProgramName)
			}
		case <-time.After(time.Second):
			t.Fatal("expected refund calculated event")
		}
	})

	t.Run("AlreadySubmitted", func(t *testing.T) {
		_, err := proc.Submit(ctx, tenantID, "prog-001", &domain.SurveyRequest{MemberID: "member-001", Satisfaction: 3})
		if !errors.Is(err, ErrAlreadySubmitted) {
			t.Errorf("expected ErrAlreadySubmitted, got %v", err)
		}
	})

	t.Run("NotEnrolled", func(t *testing.T) {
		_, err := proc.Submit(ctx, tenantID, "prog-001", &domain.SurveyRequest{MemberID: "stranger", Satisfaction: 3})
		if !errors.Is(err, ErrNotEnrolled) {
			t.Errorf("expected ErrNotEnrolled, got %v", err)
		}
	})

	t.Run("UnknownProgram", func(t *testing.T) {
		_, err := proc.Submit(ctx, tenantID, "prog-404", &domain.SurveyRequest{MemberID: "member-001", Satisfaction: 3})
		if !errors.Is(err, refund.ErrProgramNotFound) {
			t.Errorf("expected ErrProgramNotFound, got %v", err)
		}
	})

	t.Run("InvalidAnswers", func(t *testing.T) {
		_, err := proc.Submit(ctx, tenantID, "prog-001", &domain.SurveyRequest{
			MemberID: "member-001", Satisfaction: 3, Answers: json.RawMessage(`{broken`),
		})
		if !errors.Is(err, ErrInvalidAnswers) {
			t.Errorf("expected ErrInvalidAnswers, got %v", err)
		}
	})
}

func TestSubmitAfterDeadline(t *testing.T) {
	proc, repo, _ := setup(t)
	ctx := context.Background()

	proc.Now = func() time.Time { return time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC) }

	_, err := proc.Submit(ctx, "tenant-001", "prog-001", &domain.SurveyRequest{MemberID: "member-001", Satisfaction: 4})
	if !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}

	if _, err := repo.GetSurvey(ctx, "tenant-001", "prog-001", "member-001"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected no stored survey, got %v", err)
	}
}

type flakyStats struct {
	failures int
}

func (f *flakyStats) MemberStats(ctx context.Context, tenantID, programID, memberID string) (*domain.MemberStats, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("stats unavailable")
	}
	return fixedStats{}.MemberStats(ctx, tenantID, programID, memberID)
}

func TestSubmitRetryAfterCalculationFailure(t *testing.T) {
	proc, repo, _ := setup(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	engine, err := refund.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := engine.Load(&domain.PolicyTable{
		TenantID:  tenantID,
		ProgramID: "prog-001",
		Tiers:     []domain.RefundTier{{MinAttendance: 80, MinReport: ptr(80), RefundRate: 100, Label: "Full"}},
	}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	proc.refunds = refund.NewService(repo, engine, &flakyStats{failures: 1}, nil)

	req := &domain.SurveyRequest{MemberID: "member-001", Satisfaction: 4}

	if _, err := proc.Submit(ctx, tenantID, "prog-001", req); err == nil {
		t.Fatal("expected first submit to fail")
	}
	if _, err := repo.GetSurvey(ctx, tenantID, "prog-001", "member-001"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected no stored survey after failed calculation, got %v", err)
	}

	res, err := proc.Submit(ctx, tenantID, "prog-001", req)
	if err != nil {
		t.Fatalf("retry submit failed: %v", err)
	}
	if !res.Refund.Eligible || res.Refund.RefundAmount != 100000 {
		t.Errorf("expected full refund on retry, got %+v", res.Refund)
	}
}
