package domain

import (
	"testing"
	"time"
)

func TestDepositSetting(t *testing.T) {
	deadline := time.Now()

	tests := []struct {
		name    string
		setting DepositSetting
		wantErr bool
	}{
		{"Fixed", DepositSetting{ConditionType: ConditionAttendanceOnly, DepositAmount: 50000}, false},
		{"PerSession", DepositSetting{ConditionType: ConditionOneTime, SplitPerSession: true, PerSessionAmount: 5000}, false},
		{"SurveyWithDeadline", DepositSetting{ConditionType: ConditionAttendanceAndReport, SurveyRequired: true, SurveyDeadline: &deadline}, false},
		{"UnknownCondition", DepositSetting{ConditionType: "SOMETIMES"}, true},
		{"Negative", DepositSetting{ConditionType: ConditionOneTime, DepositAmount: -1}, true},
		{"PerSessionWithoutAmount", DepositSetting{ConditionType: ConditionOneTime, SplitPerSession: true}, true},
		{"SurveyWithoutDeadline", DepositSetting{ConditionType: ConditionOneTime, SurveyRequired: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.setting.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	perSession := DepositSetting{SplitPerSession: true, PerSessionAmount: 5000, DepositAmount: 1}
	if got := perSession.TotalDeposit(8); got != 40000 {
		t.Errorf("expected 40000, got %d", got)
	}
	fixed := DepositSetting{DepositAmount: 30000}
	if got := fixed.TotalDeposit(8); got != 30000 {
		t.Errorf("expected 30000, got %d", got)
	}
}
