package refund

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/opensource-finance/moim/internal/domain"
)

func ptr(v float64) *float64 { return &v }

// standardTable is the Full/Half/None table used throughout the docs.
func standardTable() *domain.PolicyTable {
	return &domain.PolicyTable{
		ProgramID: "prog-001",
		Tiers: []domain.RefundTier{
			{MinAttendance: 80, MinReport: ptr(80), RefundRate: 100, Label: "Full"},
			{MinAttendance: 60, MinReport: ptr(60), RefundRate: 50, Label: "Half"},
			{MinAttendance: 0, MinReport: ptr(0), RefundRate: 0, Label: "None"},
		},
	}
}

func mustCompile(t *testing.T, table *domain.PolicyTable) *Policy {
	t.Helper()
	p, err := Compile(table)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return p
}

func TestDocumentedExamples(t *testing.T) {
	p := mustCompile(t, standardTable())

	t.Run("FullRefund", func(t *testing.T) {
		calc := p.Evaluate(Input{
			ConditionType:  domain.ConditionAttendanceAndReport,
			AttendanceRate: 85,
			ReportRate:     ptr(90),
			DepositAmount:  100000,
		})
		if !calc.Eligible {
			t.Fatalf("expected eligible, got reason %q", calc.IneligibleReason)
		}
		if calc.RefundAmount != 100000 || calc.RefundRate != 100 {
			t.Errorf("expected 100000 / 100%%, got %d / %v", calc.RefundAmount, calc.RefundRate)
		}
		if calc.TierLabel != "Full" {
			t.Errorf("expected Full tier, got %s", calc.TierLabel)
		}
	})

	t.Run("FallsToNone", func(t *testing.T) {
		calc := p.Evaluate(Input{
			ConditionType:  domain.ConditionAttendanceAndReport,
			AttendanceRate: 65,
			ReportRate:     ptr(40),
			DepositAmount:  100000,
		})
		if calc.RefundAmount != 0 {
			t.Errorf("expected refund 0, got %d", calc.RefundAmount)
		}
		if calc.TierLabel != "None" {
			t.Errorf("expected None tier, got %s", calc.TierLabel)
		}
		if calc.Eligible {
			t.Error("expected ineligible for a zero-rate tier")
		}
		if !strings.Contains(calc.IneligibleReason, "None") {
			t.Errorf("expected reason to name the tier, got %q", calc.IneligibleReason)
		}
	})
}

func TestOneTime(t *testing.T) {
	// The table must be ignored entirely
	p := mustCompile(t, standardTable())

	tests := []struct {
		attendance float64
		rate       float64
		amount     int64
	}{
		{100, 100, 50000},
		{120, 100, 50000},
		{99.99, 0, 0},
		{0, 0, 0},
	}

	for _, tt := range tests {
		calc := p.Evaluate(Input{
			ConditionType:  domain.ConditionOneTime,
			AttendanceRate: tt.attendance,
			ReportRate:     ptr(100),
			DepositAmount:  50000,
		})
		if calc.RefundRate != tt.rate || calc.RefundAmount != tt.amount {
			t.Errorf("attendance %v: expected %v%%/%d, got %v%%/%d",
				tt.attendance, tt.rate, tt.amount, calc.RefundRate, calc.RefundAmount)
		}
		if tt.rate == 0 && calc.IneligibleReason != ReasonAbsent {
			t.Errorf("attendance %v: expected reason %q, got %q", tt.attendance, ReasonAbsent, calc.IneligibleReason)
		}
	}

	empty := mustCompile(t, &domain.PolicyTable{})
	calc := empty.Evaluate(Input{ConditionType: domain.ConditionOneTime, AttendanceRate: 100, DepositAmount: 10000})
	if !calc.Eligible || calc.RefundAmount != 10000 {
		t.Errorf("expected ONE_TIME to bypass an empty table, got %+v", calc)
	}
}

func TestAttendanceOnlyIgnoresReport(t *testing.T) {
	p := mustCompile(t, standardTable())

	calc := p.Evaluate(Input{
		ConditionType:  domain.ConditionAttendanceOnly,
		AttendanceRate: 85,
		ReportRate:     ptr(0),
		DepositAmount:  100000,
	})
	if calc.RefundRate != 100 {
		t.Errorf("expected report threshold to be ignored, got rate %v", calc.RefundRate)
	}
}

func TestAttendanceOnlyMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for n := 0; n < 200; n++ {
		tiers := make([]domain.RefundTier, 1+rng.Intn(5))
		for i := range tiers {
			tiers[i] = domain.RefundTier{
				MinAttendance: float64(rng.Intn(101)),
				MinReport:     ptr(float64(rng.Intn(101))),
				RefundRate:    float64(rng.Intn(101)),
			}
		}
		p := mustCompile(t, &domain.PolicyTable{Tiers: tiers})
		report := ptr(float64(rng.Intn(101)))

		prev := -1.0
		for att := 0.0; att <= 100; att += 0.5 {
			calc := p.Evaluate(Input{
				ConditionType:  domain.ConditionAttendanceOnly,
				AttendanceRate: att,
				ReportRate:     report,
				DepositAmount:  100000,
			})
			if calc.RefundRate < prev {
				t.Fatalf("table %d: refund rate dropped from %v to %v at attendance %v (tiers %+v)",
					n, prev, calc.RefundRate, att, tiers)
			}
			prev = calc.RefundRate
		}
	}
}

func TestAttendanceAndReportRequiresBoth(t *testing.T) {
	table := &domain.PolicyTable{
		Tiers: []domain.RefundTier{
			{MinAttendance: 80, MinReport: ptr(80), RefundRate: 100, Label: "Full"},
		},
	}
	p := mustCompile(t, table)

	tests := []struct {
		name       string
		attendance float64
		report     *float64
		eligible   bool
	}{
		{"both met", 80, ptr(80), true},
		{"attendance short", 79.9, ptr(100), false},
		{"report short", 100, ptr(79.9), false},
		{"report missing counts as zero", 100, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := p.Evaluate(Input{
				ConditionType:  domain.ConditionAttendanceAndReport,
				AttendanceRate: tt.attendance,
				ReportRate:     tt.report,
				DepositAmount:  10000,
			})
			if calc.Eligible != tt.eligible {
				t.Errorf("expected eligible=%v, got %+v", tt.eligible, calc)
			}
			if !tt.eligible && calc.IneligibleReason != ReasonNotMet {
				t.Errorf("expected reason %q, got %q", ReasonNotMet, calc.IneligibleReason)
			}
		})
	}
}

func TestHighestSatisfiedTierWins(t *testing.T) {
	// Tiers deliberately out of order
	table := &domain.PolicyTable{
		Tiers: []domain.RefundTier{
			{MinAttendance: 0, RefundRate: 10, Label: "Low"},
			{MinAttendance: 50, RefundRate: 70, Label: "High"},
			{MinAttendance: 30, RefundRate: 40, Label: "Mid"},
			{MinAttendance: 40, RefundRate: 70, Label: "HighTwin"},
		},
	}
	p := mustCompile(t, table)

	tests := []struct {
		attendance float64
		label      string
	}{
		{10, "Low"},
		{35, "Mid"},
		{45, "HighTwin"},
		// Equal rates resolve to the earlier tier
		{90, "High"},
	}

	for _, tt := range tests {
		calc := p.Evaluate(Input{ConditionType: domain.ConditionAttendanceOnly, AttendanceRate: tt.attendance, DepositAmount: 1000})
		if calc.TierLabel != tt.label {
			t.Errorf("attendance %v: expected %s, got %s", tt.attendance, tt.label, calc.TierLabel)
		}
	}
}

func TestIneligibleReasons(t *testing.T) {
	t.Run("EmptyTable", func(t *testing.T) {
		p := mustCompile(t, &domain.PolicyTable{})
		calc := p.Evaluate(Input{ConditionType: domain.ConditionAttendanceOnly, AttendanceRate: 100, DepositAmount: 1000})
		if calc.Eligible || calc.IneligibleReason != ReasonNoPolicy {
			t.Errorf("expected %q, got %+v", ReasonNoPolicy, calc)
		}
	})

	t.Run("NilTable", func(t *testing.T) {
		p := mustCompile(t, nil)
		calc := p.Evaluate(Input{ConditionType: domain.ConditionAttendanceAndReport, AttendanceRate: 100, DepositAmount: 1000})
		if calc.IneligibleReason != ReasonNoPolicy {
			t.Errorf("expected %q, got %q", ReasonNoPolicy, calc.IneligibleReason)
		}
	})

	t.Run("UnknownCondition", func(t *testing.T) {
		p := mustCompile(t, standardTable())
		calc := p.Evaluate(Input{ConditionType: "WEEKLY", AttendanceRate: 100})
		if calc.IneligibleReason != ReasonUnknownCondition {
			t.Errorf("expected %q, got %q", ReasonUnknownCondition, calc.IneligibleReason)
		}
	})

	t.Run("DefaultLabel", func(t *testing.T) {
		p := mustCompile(t, &domain.PolicyTable{Tiers: []domain.RefundTier{{MinAttendance: 0, RefundRate: 0}}})
		calc := p.Evaluate(Input{ConditionType: domain.ConditionAttendanceOnly, AttendanceRate: 50})
		if calc.TierLabel != "1단계" {
			t.Errorf("expected default label 1단계, got %q", calc.TierLabel)
		}
		if calc.IneligibleReason != "'1단계' 기준에 해당하여 환급액이 없습니다" {
			t.Errorf("unexpected reason %q", calc.IneligibleReason)
		}
	})
}

func TestAmountRounding(t *testing.T) {
	tests := []struct {
		deposit int64
		rate    float64
		want    int64
	}{
		{100000, 100, 100000},
		{100000, 50, 50000},
		{33333, 50, 16667}, // 16666.5 rounds up
		{1, 50, 1},         // 0.5 rounds up
		{12345, 33.3, 4111},
		{99999, 0, 0},
		{10001, 70, 7001}, // 7000.7
		{0, 80, 0},
	}

	for _, tt := range tests {
		if got := Amount(tt.deposit, tt.rate); got != tt.want {
			t.Errorf("Amount(%d, %v) = %d, want %d", tt.deposit, tt.rate, got, tt.want)
		}
	}
}

func TestRatesAreClamped(t *testing.T) {
	p := mustCompile(t, standardTable())
	calc := p.Evaluate(Input{
		ConditionType:  domain.ConditionAttendanceAndReport,
		AttendanceRate: 150,
		ReportRate:     ptr(-20),
		DepositAmount:  100000,
	})
	if calc.TierLabel != "None" {
		t.Errorf("expected report clamped to 0, got tier %s", calc.TierLabel)
	}
}

func TestCompileValidation(t *testing.T) {
	tests := []struct {
		name string
		tier domain.RefundTier
	}{
		{"negative attendance", domain.RefundTier{MinAttendance: -1, RefundRate: 10}},
		{"attendance over 100", domain.RefundTier{MinAttendance: 101, RefundRate: 10}},
		{"report over 100", domain.RefundTier{MinReport: ptr(100.5), RefundRate: 10}},
		{"rate over 100", domain.RefundTier{RefundRate: 120}},
		{"invalid condition", domain.RefundTier{RefundRate: 10, Condition: "this is not CEL !!!"}},
		{"non-bool condition", domain.RefundTier{RefundRate: 10, Condition: "sessions_total + 1"}},
		{"condition cannot see attendance", domain.RefundTier{RefundRate: 10, Condition: "attendance > 50.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(&domain.PolicyTable{Tiers: []domain.RefundTier{tt.tier}})
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("expected ErrInvalidPolicy, got %v", err)
			}
		})
	}
}

func TestTierCondition(t *testing.T) {
	table := &domain.PolicyTable{
		Tiers: []domain.RefundTier{
			{MinAttendance: 80, RefundRate: 100, Label: "Full+Survey", Condition: "survey_submitted"},
			{MinAttendance: 80, RefundRate: 80, Label: "Full"},
			{MinAttendance: 0, RefundRate: 20, Label: "Short", Condition: "sessions_total < 4"},
		},
	}
	p := mustCompile(t, table)

	tests := []struct {
		name     string
		in       Input
		label    string
		amount   int64
		eligible bool
	}{
		{
			name:     "survey bonus",
			in:       Input{ConditionType: domain.ConditionAttendanceOnly, AttendanceRate: 90, SurveySubmitted: true, SessionsTotal: 8, DepositAmount: 10000},
			label:    "Full+Survey",
			amount:   10000,
			eligible: true,
		},
		{
			name:     "no survey",
			in:       Input{ConditionType: domain.ConditionAttendanceOnly, AttendanceRate: 90, SessionsTotal: 8, DepositAmount: 10000},
			label:    "Full",
			amount:   8000,
			eligible: true,
		},
		{
			name:     "short program",
			in:       Input{ConditionType: domain.ConditionAttendanceOnly, AttendanceRate: 10, SessionsTotal: 3, DepositAmount: 10000},
			label:    "Short",
			amount:   2000,
			eligible: true,
		},
		{
			name: "long program low attendance",
			in:   Input{ConditionType: domain.ConditionAttendanceOnly, AttendanceRate: 10, SessionsTotal: 8, DepositAmount: 10000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := p.Evaluate(tt.in)
			if calc.Eligible != tt.eligible || calc.TierLabel != tt.label || calc.RefundAmount != tt.amount {
				t.Errorf("expected %s/%d eligible=%v, got %+v", tt.label, tt.amount, tt.eligible, calc)
			}
		})
	}
}

func TestPackageEvaluate(t *testing.T) {
	calc, err := Evaluate(standardTable(), Input{
		ConditionType:  domain.ConditionAttendanceAndReport,
		AttendanceRate: 70,
		ReportRate:     ptr(65),
		DepositAmount:  30000,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if calc.TierLabel != "Half" || calc.RefundAmount != 15000 {
		t.Errorf("expected Half/15000, got %+v", calc)
	}

	_, err = Evaluate(&domain.PolicyTable{Tiers: []domain.RefundTier{{RefundRate: 200}}}, Input{})
	if err == nil {
		t.Error("expected error for invalid table")
	}
}
