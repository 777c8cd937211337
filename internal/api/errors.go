package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/moim/internal/notify"
	"github.com/opensource-finance/moim/internal/refund"
	"github.com/opensource-finance/moim/internal/repository"
	"github.com/opensource-finance/moim/internal/rollback"
	"github.com/opensource-finance/moim/internal/schedule"
	"github.com/opensource-finance/moim/internal/survey"
)

const (
	msgInternal    = "서버 오류가 발생했습니다"
	msgInvalidJSON = "요청 본문이 올바른 JSON이 아닙니다"
	msgInvalid     = "입력값이 올바르지 않습니다"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// apiError maps a sentinel to a status and a user-facing message.
type apiError struct {
	target  error
	status  int
	message string

	// detail appends the error text to the message.
	detail bool
}

var apiErrors = []apiError{
	{refund.ErrProgramNotFound, http.StatusNotFound, "프로그램을 찾을 수 없습니다", false},
	{refund.ErrNotEnrolled, http.StatusNotFound, "프로그램에 등록된 회원이 아닙니다", false},
	{refund.ErrInvalidPolicy, http.StatusBadRequest, "환급 정책이 올바르지 않습니다", true},
	{survey.ErrDeadlinePassed, http.StatusUnprocessableEntity, "만족도 조사 제출 기한이 지났습니다", false},
	{survey.ErrAlreadySubmitted, http.StatusConflict, "이미 만족도 조사를 제출했습니다", false},
	{survey.ErrInvalidAnswers, http.StatusBadRequest, "설문 응답 형식이 올바르지 않습니다", false},
	{rollback.ErrChangeNotFound, http.StatusNotFound, "변경 이력을 찾을 수 없습니다", false},
	{rollback.ErrContentNotFound, http.StatusNotFound, "콘텐츠를 찾을 수 없습니다", false},
	{rollback.ErrAlreadyRolledBack, http.StatusConflict, "이미 되돌린 변경입니다", false},
	{rollback.ErrTargetMissing, http.StatusConflict, "되돌릴 대상이 더 이상 존재하지 않습니다", false},
	{rollback.ErrTargetExists, http.StatusConflict, "삭제된 콘텐츠가 이미 다시 만들어졌습니다", false},
	{rollback.ErrUnknownAction, http.StatusBadRequest, "알 수 없는 변경 유형입니다", false},
	{rollback.ErrUnknownEntity, http.StatusBadRequest, "알 수 없는 콘텐츠 유형입니다", false},
	{rollback.ErrMissingSnapshot, http.StatusUnprocessableEntity, "복원할 스냅샷이 없습니다", false},
	{rollback.ErrInvalidSnapshot, http.StatusUnprocessableEntity, "스냅샷 형식이 올바르지 않습니다", false},
	{schedule.ErrInvalidRule, http.StatusBadRequest, "세션 규칙 형식이 올바르지 않습니다", false},
	{schedule.ErrUnbounded, http.StatusBadRequest, "세션 규칙에 COUNT 또는 UNTIL이 필요합니다", false},
	{schedule.ErrTooManySessions, http.StatusBadRequest, "세션 수가 너무 많습니다", false},
	{notify.ErrNoRecipient, http.StatusBadRequest, "수신자가 필요합니다", false},
	{ErrResendLimited, http.StatusTooManyRequests, "재발송 한도를 초과했습니다. 잠시 후 다시 시도하세요", false},
	{repository.ErrNotFound, http.StatusNotFound, "요청한 항목을 찾을 수 없습니다", false},
	{repository.ErrConflict, http.StatusConflict, "이미 존재하는 항목입니다", false},
	{repository.ErrInvalidInput, http.StatusBadRequest, msgInvalid, true},
}

// writeError writes the JSON error response for err. Unknown errors are
// logged and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range apiErrors {
		if errors.Is(err, e.target) {
			msg := e.message
			if e.detail {
				msg = fmt.Sprintf("%s: %v", msg, err)
			}
			writeJSON(w, e.status, errorResponse{Error: msg})
			return
		}
	}

	slog.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"tenant_id", GetTenantID(r.Context()),
		"trace_id", GetTraceID(r.Context()),
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgInternal})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

const maxBodyBytes = 1 << 20

// decode reads a JSON body into v and validates it. On failure it writes the
// error response and returns false.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidJSON})
		return false
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				ns := fe.Namespace()
				if _, rest, ok := strings.Cut(ns, "."); ok {
					ns = rest
				}
				fields[ns] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalid, Fields: fields})
			return false
		}
		writeError(w, r, err)
		return false
	}
	return true
}
