package api

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/refund"
	"github.com/opensource-finance/moim/internal/repository"
	"github.com/opensource-finance/moim/internal/schedule"
)

// ListPrograms handles GET /programs.
func (h *Handler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.repo.ListPrograms(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(programs))
}

// GetProgram handles GET /programs/{id}.
func (h *Handler) GetProgram(w http.ResponseWriter, r *http.Request) {
	program, ok := h.loadProgram(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, program)
}

// SessionsResponse is the response for GET /programs/{id}/sessions.
type SessionsResponse struct {
	ProgramID string   `json:"programId"`
	Sessions  []string `json:"sessions"`
	Count     int      `json:"count"`
}

// ListSessions handles GET /programs/{id}/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	program, ok := h.loadProgram(w, r)
	if !ok {
		return
	}

	dates, err := schedule.Dates(program)
	if err != nil {
		writeError(w, r, err)
		return
	}
	count, err := schedule.Count(program)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionsResponse{
		ProgramID: program.ID,
		Sessions:  dates,
		Count:     count,
	})
}

// MemberStats handles GET /programs/{id}/members/{memberId}/stats.
func (h *Handler) MemberStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	programID := chi.URLParam(r, "id")
	memberID := chi.URLParam(r, "memberId")

	if _, err := h.repo.GetEnrollment(ctx, tenantID, programID, memberID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = refund.ErrNotEnrolled
		}
		writeError(w, r, err)
		return
	}

	st, err := h.stats.MemberStats(ctx, tenantID, programID, memberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CreateProgram handles POST /admin/programs.
func (h *Handler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	var req domain.ProgramRequest
	if !decode(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	program := &domain.Program{
		ID:        uuid.New().String(),
		TenantID:  GetTenantID(r.Context()),
		Status:    domain.ProgramDraft,
		CreatedAt: now,
	}
	if !h.applyProgram(w, r, program, &req, now) {
		return
	}

	slog.Info("program created",
		"tenant_id", program.TenantID,
		"program_id", program.ID,
		"actor", GetActor(r.Context()),
	)
	writeJSON(w, http.StatusCreated, program)
}

// UpdateProgram handles PUT /admin/programs/{id}.
func (h *Handler) UpdateProgram(w http.ResponseWriter, r *http.Request) {
	program, ok := h.loadProgram(w, r)
	if !ok {
		return
	}

	var req domain.ProgramRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.applyProgram(w, r, program, &req, time.Now().UTC()) {
		return
	}
	writeJSON(w, http.StatusOK, program)
}

func (h *Handler) applyProgram(w http.ResponseWriter, r *http.Request, p *domain.Program, req *domain.ProgramRequest, now time.Time) bool {
	start, err := time.Parse(domain.SessionDateLayout, req.StartDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  msgInvalid,
			Fields: map[string]string{"startDate": "datetime"},
		})
		return false
	}
	if err := schedule.Validate(req.SessionRule, start, req.SessionCount); err != nil {
		writeError(w, r, err)
		return false
	}

	p.Name = req.Name
	p.Description = req.Description
	p.SessionRule = req.SessionRule
	p.StartDate = start
	p.SessionCount = req.SessionCount
	if req.Status != "" {
		p.Status = domain.ProgramStatus(req.Status)
	}
	p.UpdatedAt = now

	if err := h.repo.SaveProgram(r.Context(), p.TenantID, p); err != nil {
		writeError(w, r, err)
		return false
	}

	if err := h.stats.InvalidateProgram(r.Context(), p.TenantID, p.ID); err != nil {
		slog.Warn("failed to invalidate program stats",
			"program_id", p.ID,
			"error", err,
		)
	}
	return true
}

// Enroll handles POST /admin/programs/{id}/enrollments.
// Enrolling an existing member updates the enrollment.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	program, ok := h.loadProgram(w, r)
	if !ok {
		return
	}

	var req domain.EnrollmentRequest
	if !decode(w, r, &req) {
		return
	}

	enrollment := &domain.Enrollment{
		ID:          uuid.New().String(),
		TenantID:    program.TenantID,
		ProgramID:   program.ID,
		MemberID:    req.MemberID,
		MemberName:  req.MemberName,
		MemberEmail: req.MemberEmail,
		DepositPaid: req.DepositPaid,
		EnrolledAt:  time.Now().UTC(),
	}
	if err := h.repo.SaveEnrollment(r.Context(), program.TenantID, enrollment); err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := h.repo.GetEnrollment(r.Context(), program.TenantID, program.ID, req.MemberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// ListEnrollments handles GET /admin/programs/{id}/enrollments.
func (h *Handler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	program, ok := h.loadProgram(w, r)
	if !ok {
		return
	}

	enrollments, err := h.repo.ListEnrollments(r.Context(), program.TenantID, program.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(enrollments))
}

// MarkAttendance handles POST /admin/programs/{id}/attendance.
func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	h.markSession(w, r, func(p *domain.Program, req *domain.SessionMarkRequest, now time.Time) (any, error) {
		rec := &domain.AttendanceRecord{
			ID:          uuid.New().String(),
			TenantID:    p.TenantID,
			ProgramID:   p.ID,
			MemberID:    req.MemberID,
			SessionDate: req.SessionDate,
			Attended:    req.Value,
			RecordedAt:  now,
		}
		return rec, h.repo.SaveAttendance(r.Context(), p.TenantID, rec)
	})
}

// MarkReport handles POST /admin/programs/{id}/reports.
func (h *Handler) MarkReport(w http.ResponseWriter, r *http.Request) {
	h.markSession(w, r, func(p *domain.Program, req *domain.SessionMarkRequest, now time.Time) (any, error) {
		rec := &domain.ReportRecord{
			ID:          uuid.New().String(),
			TenantID:    p.TenantID,
			ProgramID:   p.ID,
			MemberID:    req.MemberID,
			SessionDate: req.SessionDate,
			Submitted:   req.Value,
			RecordedAt:  now,
		}
		return rec, h.repo.SaveReport(r.Context(), p.TenantID, rec)
	})
}

type markFunc func(p *domain.Program, req *domain.SessionMarkRequest, now time.Time) (any, error)

// markSession checks that the member is enrolled and the date is a session
// of the program before saving a mark.
func (h *Handler) markSession(w http.ResponseWriter, r *http.Request, save markFunc) {
	ctx := r.Context()
	program, ok := h.loadProgram(w, r)
	if !ok {
		return
	}

	var req domain.SessionMarkRequest
	if !decode(w, r, &req) {
		return
	}

	if _, err := h.repo.GetEnrollment(ctx, program.TenantID, program.ID, req.MemberID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = refund.ErrNotEnrolled
		}
		writeError(w, r, err)
		return
	}

	dates, err := schedule.Dates(program)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !slices.Contains(dates, req.SessionDate) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "프로그램 일정에 없는 날짜입니다"})
		return
	}

	rec, err := save(program, &req, time.Now().UTC())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.stats.Invalidate(ctx, program.TenantID, program.ID, req.MemberID); err != nil {
		slog.Warn("failed to invalidate member stats",
			"program_id", program.ID,
			"member_id", req.MemberID,
			"error", err,
		)
	}

	writeJSON(w, http.StatusOK, rec)
}

// loadProgram fetches the program named by the {id} URL parameter.
func (h *Handler) loadProgram(w http.ResponseWriter, r *http.Request) (*domain.Program, bool) {
	program, err := h.repo.GetProgram(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = refund.ErrProgramNotFound
		}
		writeError(w, r, err)
		return nil, false
	}
	return program, true
}
