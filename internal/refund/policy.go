// Package refund evaluates deposit refunds against admin-editable policy tables.
package refund

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/moim/internal/domain"
	"github.com/shopspring/decimal"
)

// Ineligibility reasons shown to members.
const (
	ReasonNoPolicy         = "환급 정책이 설정되지 않았습니다"
	ReasonNotMet           = "환급 기준을 충족하지 못했습니다"
	ReasonAbsent           = "불참으로 환급 대상이 아닙니다"
	ReasonUnknownCondition = "알 수 없는 환급 조건입니다"
	ReasonNoDepositSetting = "보증금 설정이 없는 프로그램입니다"
	ReasonDepositUnpaid    = "보증금 납부 내역이 없습니다"
	ReasonSurveyMissing    = "만족도 조사를 제출해야 환급받을 수 있습니다"
)

// OneTimeLabel labels the full refund of a ONE_TIME program.
const OneTimeLabel = "출석 완료"

// ErrInvalidPolicy is returned when a policy table cannot be compiled.
var ErrInvalidPolicy = errors.New("invalid refund policy")

// thresholdExpr decides whether a tier's thresholds hold.
// Thresholds are activation variables so one program serves every tier.
const thresholdExpr = `attendance >= min_attendance && (!report_required || report >= min_report)`

// Compiler builds Policies. It holds the CEL environments and the shared threshold program.
type Compiler struct {
	guardEnv  *cel.Env
	threshold cel.Program
}

// NewCompiler creates the CEL environments used by refund policies.
func NewCompiler() (*Compiler, error) {
	thresholdEnv, err := cel.NewEnv(
		cel.Variable("attendance", cel.DoubleType),
		cel.Variable("report", cel.DoubleType),
		cel.Variable("min_attendance", cel.DoubleType),
		cel.Variable("min_report", cel.DoubleType),
		cel.Variable("report_required", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := thresholdEnv.Compile(thresholdExpr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile threshold predicate: %w", issues.Err())
	}
	threshold, err := thresholdEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create threshold program: %w", err)
	}

	// Guards cannot see attendance or report rates, which keeps
	// ATTENDANCE_ONLY refunds monotonic in attendance.
	guardEnv, err := cel.NewEnv(
		cel.Variable("condition_type", cel.StringType),
		cel.Variable("survey_submitted", cel.BoolType),
		cel.Variable("sessions_total", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL guard environment: %w", err)
	}

	return &Compiler{guardEnv: guardEnv, threshold: threshold}, nil
}

var defaultCompiler = sync.OnceValues(NewCompiler)

// Compile validates and compiles a policy table with the default compiler.
func Compile(table *domain.PolicyTable) (*Policy, error) {
	c, err := defaultCompiler()
	if err != nil {
		return nil, err
	}
	return c.Compile(table)
}

// Evaluate compiles table and evaluates in against it.
func Evaluate(table *domain.PolicyTable, in Input) (domain.RefundCalculation, error) {
	p, err := Compile(table)
	if err != nil {
		return domain.RefundCalculation{}, err
	}
	return p.Evaluate(in), nil
}

// Policy is a compiled, immutable refund policy table. Safe for concurrent use.
type Policy struct {
	table     *domain.PolicyTable
	tiers     []compiledTier
	threshold cel.Program
}

type compiledTier struct {
	domain.RefundTier
	guard cel.Program
}

// Compile validates table and compiles every tier.
func (c *Compiler) Compile(table *domain.PolicyTable) (*Policy, error) {
	if table == nil {
		table = &domain.PolicyTable{}
	}

	p := &Policy{
		table:     table,
		tiers:     make([]compiledTier, 0, len(table.Tiers)),
		threshold: c.threshold,
	}

	for i, t := range table.Tiers {
		if err := validateTier(t); err != nil {
			return nil, fmt.Errorf("%w: tier %d: %v", ErrInvalidPolicy, i+1, err)
		}

		if t.Label == "" {
			t.Label = fmt.Sprintf("%d단계", i+1)
		}

		ct := compiledTier{RefundTier: t}
		if t.Condition != "" {
			guard, err := c.compileGuard(t.Condition)
			if err != nil {
				return nil, fmt.Errorf("%w: tier %d (%s): %v", ErrInvalidPolicy, i+1, t.Label, err)
			}
			ct.guard = guard
		}
		p.tiers = append(p.tiers, ct)
	}

	return p, nil
}

func (c *Compiler) compileGuard(expr string) (cel.Program, error) {
	ast, issues := c.guardEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("condition must return bool, got %s", ast.OutputType())
	}
	return c.guardEnv.Program(ast)
}

func validateTier(t domain.RefundTier) error {
	if !validRate(t.MinAttendance) {
		return fmt.Errorf("minAttendance must be within [0,100], got %v", t.MinAttendance)
	}
	if t.MinReport != nil && !validRate(*t.MinReport) {
		return fmt.Errorf("minReport must be within [0,100], got %v", *t.MinReport)
	}
	if !validRate(t.RefundRate) {
		return fmt.Errorf("refundRate must be within [0,100], got %v", t.RefundRate)
	}
	return nil
}

func validRate(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// Table returns the source table of the policy.
func (p *Policy) Table() *domain.PolicyTable {
	return p.table
}

// Tiers returns the tiers with defaulted labels, in table order.
func (p *Policy) Tiers() []domain.RefundTier {
	tiers := make([]domain.RefundTier, len(p.tiers))
	for i, t := range p.tiers {
		tiers[i] = t.RefundTier
	}
	return tiers
}

// Input is everything the evaluator needs about one member.
type Input struct {
	ConditionType  domain.ConditionType
	AttendanceRate float64

	// ReportRate is nil when unknown; it then counts as 0.
	ReportRate *float64

	DepositAmount   int64
	SurveySubmitted bool
	SessionsTotal   int
}

// Evaluate maps a member's rates to a refund. It never fails: ineligibility
// is reported through IneligibleReason.
//
// Among all satisfied tiers the one with the highest refund rate wins;
// equal rates resolve to the earliest tier in table order.
func (p *Policy) Evaluate(in Input) domain.RefundCalculation {
	calc := domain.RefundCalculation{DepositAmount: in.DepositAmount}

	attendance := clampRate(in.AttendanceRate)
	report := 0.0
	if in.ReportRate != nil {
		report = clampRate(*in.ReportRate)
	}

	switch in.ConditionType {
	case domain.ConditionOneTime:
		if attendance >= 100 {
			calc.Eligible = true
			calc.RefundRate = 100
			calc.TierLabel = OneTimeLabel
			calc.RefundAmount = Amount(in.DepositAmount, 100)
			return calc
		}
		calc.IneligibleReason = ReasonAbsent
		return calc
	case domain.ConditionAttendanceOnly, domain.ConditionAttendanceAndReport:
	default:
		calc.IneligibleReason = ReasonUnknownCondition
		return calc
	}

	if len(p.tiers) == 0 {
		calc.IneligibleReason = ReasonNoPolicy
		return calc
	}

	best := -1
	for i := range p.tiers {
		tier := &p.tiers[i]
		ok, err := p.satisfies(tier, in, attendance, report)
		if err != nil {
			slog.Warn("refund tier evaluation failed",
				"tier", tier.Label,
				"error", err,
			)
			continue
		}
		if ok && (best < 0 || tier.RefundRate > p.tiers[best].RefundRate) {
			best = i
		}
	}

	if best < 0 {
		calc.IneligibleReason = ReasonNotMet
		return calc
	}

	tier := p.tiers[best]
	calc.TierLabel = tier.Label
	calc.RefundRate = tier.RefundRate

	if tier.RefundRate <= 0 {
		calc.IneligibleReason = fmt.Sprintf("'%s' 기준에 해당하여 환급액이 없습니다", tier.Label)
		return calc
	}

	calc.Eligible = true
	calc.RefundAmount = Amount(in.DepositAmount, tier.RefundRate)
	return calc
}

func (p *Policy) satisfies(tier *compiledTier, in Input, attendance, report float64) (bool, error) {
	reportRequired := in.ConditionType == domain.ConditionAttendanceAndReport && tier.MinReport != nil
	minReport := 0.0
	if tier.MinReport != nil {
		minReport = *tier.MinReport
	}

	out, _, err := p.threshold.Eval(map[string]any{
		"attendance":      attendance,
		"report":          report,
		"min_attendance":  tier.MinAttendance,
		"min_report":      minReport,
		"report_required": reportRequired,
	})
	if err != nil {
		return false, err
	}
	if out != types.True {
		return false, nil
	}

	if tier.guard == nil {
		return true, nil
	}

	out, _, err = tier.guard.Eval(map[string]any{
		"condition_type":   string(in.ConditionType),
		"survey_submitted": in.SurveySubmitted,
		"sessions_total":   int64(in.SessionsTotal),
	})
	if err != nil {
		return false, err
	}
	return out == types.True, nil
}

// Amount returns deposit × rate / 100 rounded half-up to the nearest won.
func Amount(deposit int64, rate float64) int64 {
	return decimal.NewFromInt(deposit).
		Mul(decimal.NewFromFloat(rate)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

func clampRate(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
