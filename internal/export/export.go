// Package export builds spreadsheet reports for program admins.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/format"
	"github.com/opensource-finance/moim/internal/refund"
)

// RefundSheet is the sheet name of the refund report.
const RefundSheet = "환급 내역"

var refundHeader = []any{
	"회원 ID", "이름", "출석률", "과제 제출률", "만족도 조사",
	"환급 단계", "환급률", "보증금", "환급액", "비고",
}

// Exporter writes XLSX reports.
type Exporter struct {
	repo    domain.ProgramStore
	refunds *refund.Service
}

// NewExporter creates an exporter.
func NewExporter(repo domain.ProgramStore, refunds *refund.Service) *Exporter {
	return &Exporter{repo: repo, refunds: refunds}
}

// RefundReport writes one row per enrolled member with the refund they would
// receive now, followed by a total row.
func (e *Exporter) RefundReport(ctx context.Context, tenantID, programID string, w io.Writer) error {
	program, err := e.repo.GetProgram(ctx, tenantID, programID)
	if err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}
	enrollments, err := e.repo.ListEnrollments(ctx, tenantID, programID)
	if err != nil {
		return fmt.Errorf("failed to list enrollments: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), RefundSheet); err != nil {
		return err
	}
	if err := f.SetCellValue(RefundSheet, "A1", program.Name); err != nil {
		return err
	}
	if err := f.SetSheetRow(RefundSheet, "A2", &refundHeader); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(RefundSheet, "A1", "J2", bold); err != nil {
		return err
	}

	var total int64
	row := 3
	for _, en := range enrollments {
		res, err := e.refunds.CalculateWith(ctx, tenantID, programID, en.MemberID, refund.Options{})
		if err != nil {
			return fmt.Errorf("failed to calculate refund for %s: %w", en.MemberID, err)
		}
		calc := res.Calculation
		total += calc.RefundAmount

		attendance, report := "-", "-"
		if res.Stats != nil {
			attendance = format.Percent(res.Stats.AttendanceRate)
			report = format.Percent(res.Stats.ReportRate)
		}
		survey := "미제출"
		if res.SurveySubmitted {
			survey = "제출"
		}

		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := []any{
			en.MemberID, en.MemberName, attendance, report, survey,
			calc.TierLabel, format.Percent(calc.RefundRate),
			format.Won(calc.DepositAmount), format.Won(calc.RefundAmount),
			calc.IneligibleReason,
		}
		if err := f.SetSheetRow(RefundSheet, cell, &values); err != nil {
			return err
		}
		row++
	}

	totalCell, err := excelize.CoordinatesToCellName(8, row)
	if err != nil {
		return err
	}
	totalRow := []any{"합계", format.Won(total)}
	if err := f.SetSheetRow(RefundSheet, totalCell, &totalRow); err != nil {
		return err
	}

	if err := f.SetColWidth(RefundSheet, "A", "J", 14); err != nil {
		return err
	}
	if err := f.SetColWidth(RefundSheet, "J", "J", 40); err != nil {
		return err
	}

	return f.Write(w)
}
