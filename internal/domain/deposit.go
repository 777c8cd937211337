package domain

import (
	"errors"
	"fmt"
	"time"
)

// ConditionType selects how a program's deposit refund is decided.
type ConditionType string

const (
	// ConditionOneTime refunds fully only on perfect attendance.
	ConditionOneTime ConditionType = "ONE_TIME"

	// ConditionAttendanceOnly checks the attendance threshold of each tier.
	ConditionAttendanceOnly ConditionType = "ATTENDANCE_ONLY"

	// ConditionAttendanceAndReport checks both attendance and report thresholds.
	ConditionAttendanceAndReport ConditionType = "ATTENDANCE_AND_REPORT"
)

// Valid reports whether c is a known condition type.
func (c ConditionType) Valid() bool {
	switch c {
	case ConditionOneTime, ConditionAttendanceOnly, ConditionAttendanceAndReport:
		return true
	}
	return false
}

// DepositSetting is the per-program deposit configuration.
type DepositSetting struct {
	TenantID      string        `json:"tenantId"`
	ProgramID     string        `json:"programId"`
	ConditionType ConditionType `json:"conditionType"`

	// DepositAmount in won.
	DepositAmount int64 `json:"depositAmount"`

	// SplitPerSession charges PerSessionAmount for every session instead of DepositAmount.
	SplitPerSession  bool  `json:"splitPerSession"`
	PerSessionAmount int64 `json:"perSessionAmount,omitempty"`

	SurveyRequired bool       `json:"surveyRequired"`
	SurveyDeadline *time.Time `json:"surveyDeadline,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// TotalDeposit returns the deposit amount the refund is computed from.
func (d *DepositSetting) TotalDeposit(sessionCount int) int64 {
	if d.SplitPerSession {
		return d.PerSessionAmount * int64(sessionCount)
	}
	return d.DepositAmount
}

// Validate checks the cross-field rules of a setting.
func (d *DepositSetting) Validate() error {
	switch {
	case !d.ConditionType.Valid():
		return fmt.Errorf("unknown condition type %q", d.ConditionType)
	case d.DepositAmount < 0 || d.PerSessionAmount < 0:
		return errors.New("deposit amounts must not be negative")
	case d.SplitPerSession && d.PerSessionAmount <= 0:
		return errors.New("per-session deposit requires a per-session amount")
	case d.SurveyRequired && d.SurveyDeadline == nil:
		return errors.New("a required survey needs a deadline")
	}
	return nil
}

// DepositSettingRequest is the API request payload for PUT /admin/programs/{id}/deposit.
type DepositSettingRequest struct {
	ConditionType    string     `json:"conditionType" validate:"required,oneof=ONE_TIME ATTENDANCE_ONLY ATTENDANCE_AND_REPORT"`
	DepositAmount    int64      `json:"depositAmount" validate:"gte=0"`
	SplitPerSession  bool       `json:"splitPerSession"`
	PerSessionAmount int64      `json:"perSessionAmount" validate:"gte=0"`
	SurveyRequired   bool       `json:"surveyRequired"`
	SurveyDeadline   *time.Time `json:"surveyDeadline"`
}

// ToSetting converts a request to a DepositSetting.
func (r *DepositSettingRequest) ToSetting(tenantID, programID string) *DepositSetting {
	return &DepositSetting{
		TenantID:         tenantID,
		ProgramID:        programID,
		ConditionType:    ConditionType(r.ConditionType),
		DepositAmount:    r.DepositAmount,
		SplitPerSession:  r.SplitPerSession,
		PerSessionAmount: r.PerSessionAmount,
		SurveyRequired:   r.SurveyRequired,
		SurveyDeadline:   r.SurveyDeadline,
		UpdatedAt:        time.Now().UTC(),
	}
}
