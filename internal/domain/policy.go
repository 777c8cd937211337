package domain

import (
	"time"
)

// GlobalProgramID is the program ID of the table that applies when a program has none.
const GlobalProgramID = "*"

// RefundTier is one row of a refund policy table.
type RefundTier struct {
	// MinAttendance is the minimum attendance rate in percent.
	MinAttendance float64 `json:"minAttendance"`

	// MinReport is the minimum report rate in percent. Nil means no report threshold.
	MinReport *float64 `json:"minReport,omitempty"`

	// RefundRate is the refunded percentage of the deposit.
	RefundRate float64 `json:"refundRate"`

	Label string `json:"label"`

	// Condition is an optional CEL guard ANDed with the thresholds.
	// Variables: condition_type (string), survey_submitted (bool), sessions_total (int).
	Condition string `json:"condition,omitempty"`
}

// PolicyTable is the ordered refund policy for one program, or the global one.
type PolicyTable struct {
	TenantID  string       `json:"tenantId"`
	ProgramID string       `json:"programId"`
	Tiers     []RefundTier `json:"tiers"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// PolicyTableRequest is the API request payload for PUT /admin/policies/{programId}.
type PolicyTableRequest struct {
	Tiers []RefundTierRequest `json:"tiers" validate:"dive"`
}

// RefundTierRequest is one tier of a PolicyTableRequest.
type RefundTierRequest struct {
	MinAttendance float64  `json:"minAttendance" validate:"gte=0,lte=100"`
	MinReport     *float64 `json:"minReport" validate:"omitempty,gte=0,lte=100"`
	RefundRate    float64  `json:"refundRate" validate:"gte=0,lte=100"`
	Label         string   `json:"label" validate:"max=50"`
	Condition     string   `json:"condition" validate:"max=500"`
}

// ToTable converts a request to a PolicyTable.
func (r *PolicyTableRequest) ToTable(tenantID, programID string) *PolicyTable {
	tiers := make([]RefundTier, 0, len(r.Tiers))
	for _, t := range r.Tiers {
		tiers = append(tiers, RefundTier{
			MinAttendance: t.MinAttendance,
			MinReport:     t.MinReport,
			RefundRate:    t.RefundRate,
			Label:         t.Label,
			Condition:     t.Condition,
		})
	}
	return &PolicyTable{
		TenantID:  tenantID,
		ProgramID: programID,
		Tiers:     tiers,
		UpdatedAt: time.Now().UTC(),
	}
}

// RefundCalculation is the derived refund result for one member. It is never persisted.
type RefundCalculation struct {
	Eligible         bool    `json:"eligible"`
	RefundAmount     int64   `json:"refundAmount"`
	RefundRate       float64 `json:"refundRate"`
	IneligibleReason string  `json:"ineligibleReason,omitempty"`
	TierLabel        string  `json:"tierLabel,omitempty"`
	DepositAmount    int64   `json:"depositAmount"`
}
