package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/refund"
	"github.com/opensource-finance/moim/internal/repository"
)

// RefundPreview handles GET /programs/{id}/members/{memberId}/refund.
// With ?assumeSurvey=true the refund is computed as if the survey were submitted.
func (h *Handler) RefundPreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	programID := chi.URLParam(r, "id")
	memberID := chi.URLParam(r, "memberId")

	assume, _ := strconv.ParseBool(r.URL.Query().Get("assumeSurvey"))

	var (
		calc *domain.RefundCalculation
		err  error
	)
	if assume {
		calc, err = h.surveys.Preview(ctx, tenantID, programID, memberID)
	} else {
		calc, err = h.refunds.Calculate(ctx, tenantID, programID, memberID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

// SubmitSurvey handles POST /programs/{id}/surveys.
func (h *Handler) SubmitSurvey(w http.ResponseWriter, r *http.Request) {
	var req domain.SurveyRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.surveys.Submit(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// GetDeposit handles GET /admin/programs/{id}/deposit.
func (h *Handler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	program, ok := h.loadProgram(w, r)
	if !ok {
		return
	}

	setting, err := h.repo.GetDepositSetting(r.Context(), program.TenantID, program.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

// PutDeposit handles PUT /admin/programs/{id}/deposit.
func (h *Handler) PutDeposit(w http.ResponseWriter, r *http.Request) {
	program, ok := h.loadProgram(w, r)
	if !ok {
		return
	}

	var req domain.DepositSettingRequest
	if !decode(w, r, &req) {
		return
	}

	setting := req.ToSetting(program.TenantID, program.ID)
	if err := setting.Validate(); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", repository.ErrInvalidInput, err))
		return
	}

	if err := h.repo.SaveDepositSetting(r.Context(), program.TenantID, setting); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("deposit setting saved",
		"tenant_id", program.TenantID,
		"program_id", program.ID,
		"condition_type", setting.ConditionType,
		"actor", GetActor(r.Context()),
	)
	writeJSON(w, http.StatusOK, setting)
}

// policyTenant resolves the tenant a policy route acts on.
// ?scope=global addresses the all-tenant tables and needs a wildcard admin token.
func policyTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.URL.Query().Get("scope") != "global" {
		return GetTenantID(r.Context()), true
	}
	if !isSuperAdmin(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "전체 정책은 최고 관리자만 변경할 수 있습니다"})
		return "", false
	}
	return domain.WildcardTenant, true
}

// GetPolicy handles GET /admin/policies/{programId}.
// The programId "*" addresses the tenant default table.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := policyTenant(w, r)
	if !ok {
		return
	}

	table, err := h.repo.GetPolicyTable(r.Context(), tenantID, chi.URLParam(r, "programId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// PutPolicy handles PUT /admin/policies/{programId}.
// The table is validated, stored, loaded, and announced to other instances.
func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := policyTenant(w, r)
	if !ok {
		return
	}

	var req domain.PolicyTableRequest
	if !decode(w, r, &req) {
		return
	}

	table := req.ToTable(tenantID, chi.URLParam(r, "programId"))
	if err := h.engine.Validate(table); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.repo.SavePolicyTable(ctx, tenantID, table); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.engine.Load(table); err != nil {
		writeError(w, r, err)
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(refund.PolicyUpdatedEvent{
			TenantID:  table.TenantID,
			ProgramID: table.ProgramID,
		})
		if err := h.bus.Publish(ctx, GetTenantID(ctx), domain.TopicPolicyUpdated, payload); err != nil {
			slog.Warn("failed to publish policy update", "program_id", table.ProgramID, "error", err)
		}
	}

	slog.Info("refund policy saved",
		"tenant_id", table.TenantID,
		"program_id", table.ProgramID,
		"tiers", len(table.Tiers),
		"actor", GetActor(ctx),
	)
	writeJSON(w, http.StatusOK, table)
}

// ReloadPolicies handles POST /admin/policies/reload.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	tables, err := h.repo.ListPolicyTables(r.Context(), domain.WildcardTenant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.engine.Reload(tables); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("refund policies reloaded", "count", h.engine.Count())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "reloaded",
		"policies": h.engine.Count(),
	})
}

// SimulateRequest is the request body for POST /admin/refunds/simulate.
// Without tiers the loaded policy of ProgramID is used.
type SimulateRequest struct {
	ProgramID       string                     `json:"programId"`
	ConditionType   string                     `json:"conditionType" validate:"required,oneof=ONE_TIME ATTENDANCE_ONLY ATTENDANCE_AND_REPORT"`
	AttendanceRate  float64                    `json:"attendanceRate" validate:"gte=0,lte=100"`
	ReportRate      *float64                   `json:"reportRate" validate:"omitempty,gte=0,lte=100"`
	DepositAmount   int64                      `json:"depositAmount" validate:"gte=0"`
	SurveySubmitted bool                       `json:"surveySubmitted"`
	SessionsTotal   int                        `json:"sessionsTotal" validate:"gte=0"`
	Tiers           []domain.RefundTierRequest `json:"tiers" validate:"omitempty,dive"`
}

// Simulate handles POST /admin/refunds/simulate.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if !decode(w, r, &req) {
		return
	}

	in := refund.Input{
		ConditionType:   domain.ConditionType(req.ConditionType),
		AttendanceRate:  req.AttendanceRate,
		ReportRate:      req.ReportRate,
		DepositAmount:   req.DepositAmount,
		SurveySubmitted: req.SurveySubmitted,
		SessionsTotal:   req.SessionsTotal,
	}

	if req.Tiers != nil {
		tableReq := domain.PolicyTableRequest{Tiers: req.Tiers}
		calc, err := refund.Evaluate(tableReq.ToTable(GetTenantID(r.Context()), req.ProgramID), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, calc)
		return
	}

	programID := req.ProgramID
	if programID == "" {
		programID = domain.GlobalProgramID
	}
	writeJSON(w, http.StatusOK, h.engine.Policy(GetTenantID(r.Context()), programID).Evaluate(in))
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportRefunds handles GET /admin/programs/{id}/refunds.xlsx.
func (h *Handler) ExportRefunds(w http.ResponseWriter, r *http.Request) {
	program, ok := h.loadProgram(w, r)
	if !ok {
		return
	}

	// Buffer so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := h.exporter.RefundReport(r.Context(), program.TenantID, program.ID, &buf); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = refund.ErrProgramNotFound
		}
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="refunds-%s.xlsx"`, program.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
