package domain

import (
	"encoding/json"
	"time"
)

// SurveyResponse is a member's end-of-program satisfaction survey.
type SurveyResponse struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenantId"`
	ProgramID    string          `json:"programId"`
	MemberID     string          `json:"memberId"`
	Satisfaction int             `json:"satisfaction"`
	Answers      json.RawMessage `json:"answers,omitempty"`
	SubmittedAt  time.Time       `json:"submittedAt"`
}

// SurveyRequest is the API request payload for POST /programs/{id}/surveys.
type SurveyRequest struct {
	MemberID     string          `json:"memberId" validate:"required"`
	Satisfaction int             `json:"satisfaction" validate:"required,min=1,max=5"`
	Answers      json.RawMessage `json:"answers"`
}

// SurveyResult is returned after a survey submission.
type SurveyResult struct {
	Survey *SurveyResponse    `json:"survey"`
	Refund *RefundCalculation `json:"refund"`
}
