package domain

import (
	"time"
)

// ProgramStatus is the lifecycle state of a program.
type ProgramStatus string

const (
	ProgramDraft  ProgramStatus = "DRAFT"
	ProgramOpen   ProgramStatus = "OPEN"
	ProgramClosed ProgramStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s ProgramStatus) Valid() bool {
	switch s {
	case ProgramDraft, ProgramOpen, ProgramClosed:
		return true
	}
	return false
}

// Program is a membership program (book club, study group) with a session schedule.
type Program struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// SessionRule is an RFC 5545 RRULE, e.g. "FREQ=WEEKLY;COUNT=8".
	SessionRule string    `json:"sessionRule"`
	StartDate   time.Time `json:"startDate"`

	// SessionCount overrides the count derived from SessionRule when > 0.
	SessionCount int `json:"sessionCount,omitempty"`

	Status    ProgramStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// ProgramRequest is the API request payload for creating or updating a program.
type ProgramRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=2000"`
	SessionRule  string `json:"sessionRule" validate:"required"`
	StartDate    string `json:"startDate" validate:"required,datetime=2006-01-02"`
	SessionCount int    `json:"sessionCount" validate:"gte=0,lte=1000"`
	Status       string `json:"status" validate:"omitempty,oneof=DRAFT OPEN CLOSED"`
}

// Enrollment links a member to a program.
type Enrollment struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	ProgramID   string    `json:"programId"`
	MemberID    string    `json:"memberId"`
	MemberName  string    `json:"memberName"`
	MemberEmail string    `json:"memberEmail,omitempty"`
	DepositPaid bool      `json:"depositPaid"`
	EnrolledAt  time.Time `json:"enrolledAt"`
}

// EnrollmentRequest is the API request payload for enrolling a member.
type EnrollmentRequest struct {
	MemberID    string `json:"memberId" validate:"required"`
	MemberName  string `json:"memberName" validate:"required"`
	MemberEmail string `json:"memberEmail" validate:"omitempty,email"`
	DepositPaid bool   `json:"depositPaid"`
}

// SessionDateLayout is the storage and wire layout of session dates.
const SessionDateLayout = "2006-01-02"

// AttendanceRecord marks whether a member attended one session.
type AttendanceRecord struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	ProgramID   string    `json:"programId"`
	MemberID    string    `json:"memberId"`
	SessionDate string    `json:"sessionDate"`
	Attended    bool      `json:"attended"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// ReportRecord marks whether a member submitted the report for one session.
type ReportRecord struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	ProgramID   string    `json:"programId"`
	MemberID    string    `json:"memberId"`
	SessionDate string    `json:"sessionDate"`
	Submitted   bool      `json:"submitted"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// SessionMarkRequest is the API payload for attendance and report marks.
type SessionMarkRequest struct {
	MemberID    string `json:"memberId" validate:"required"`
	SessionDate string `json:"sessionDate" validate:"required,datetime=2006-01-02"`
	Value       bool   `json:"value"`
}

// MemberStats is the derived participation summary of one member in one program.
// Rates are percentages in [0,100].
type MemberStats struct {
	ProgramID        string  `json:"programId"`
	MemberID         string  `json:"memberId"`
	SessionsTotal    int     `json:"sessionsTotal"`
	SessionsAttended int     `json:"sessionsAttended"`
	ReportsSubmitted int     `json:"reportsSubmitted"`
	AttendanceRate   float64 `json:"attendanceRate"`
	ReportRate       float64 `json:"reportRate"`
}
