// Package report renders validation runs as downloadable workbooks.
package report

import (
	"fmt"
	"strings"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Sheet names
const (
	SheetResults = "Results"
	SheetPolicy  = "Policy"
	SheetSummary = "Summary"
)

var resultsHeader = []interface{}{"Date", "Employee", "Category", "Amount", "Description", "Status", "Reason", "Rule Applied"}

// XLSXRenderer implements port.ReportRenderer with excelize
type XLSXRenderer struct {
	logger *zap.Logger
}

// NewXLSXRenderer creates a new XLSXRenderer
func NewXLSXRenderer(logger *zap.Logger) *XLSXRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &XLSXRenderer{logger: logger}
}

// ContentType returns the MIME type of the rendered document
func (r *XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileExtension returns the extension of the rendered document
func (r *XLSXRenderer) FileExtension() string {
	return ".xlsx"
}

// Render writes one row per result, the extracted rules and a status summary
func (r *XLSXRenderer) Render(result *entity.PipelineResult) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("no pipeline result to render")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetResults); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetPolicy, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := r.writeResults(f, result.Results, headerStyle); err != nil {
		return nil, err
	}
	if err := r.writePolicy(f, result.ExtractedPolicy, headerStyle); err != nil {
		return nil, err
	}
	if err := r.writeSummary(f, result, headerStyle); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	r.logger.Debug("Report rendered",
		zap.Int("results", len(result.Results)),
		zap.Int("bytes", buf.Len()))

	return buf.Bytes(), nil
}

func (r *XLSXRenderer) writeResults(f *excelize.File, results []entity.ValidationResult, headerStyle int) error {
	if err := writeHeader(f, SheetResults, resultsHeader, headerStyle); err != nil {
		return err
	}

	for i, res := range results {
		rule := ""
		if res.RuleApplied != nil {
			rule = *res.RuleApplied
		}
		row := []interface{}{
			res.Expense.Date,
			res.Expense.Employee,
			res.Expense.Category,
			res.Expense.Amount,
			res.Expense.Description,
			string(res.Status),
			res.Reason,
			rule,
		}
		if err := setRow(f, SheetResults, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(SheetResults, "E", "E", 40); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(SheetResults, "G", "G", 60); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

func (r *XLSXRenderer) writePolicy(f *excelize.File, policy *entity.ExtractedPolicy, headerStyle int) error {
	if err := writeHeader(f, SheetPolicy, []interface{}{"Category", "Max Amount", "Conditions", "Rule"}, headerStyle); err != nil {
		return err
	}
	if policy == nil {
		return nil
	}

	rowNum := 2
	for _, rule := range policy.Rules {
		var maxAmount interface{} = ""
		if rule.MaxAmount != nil {
			maxAmount = *rule.MaxAmount
		}
		row := []interface{}{rule.Category, maxAmount, strings.Join(rule.Conditions, "; "), rule.PlainEnglish}
		if err := setRow(f, SheetPolicy, rowNum, row); err != nil {
			return err
		}
		rowNum++
	}

	for _, general := range policy.GeneralRules {
		if err := setRow(f, SheetPolicy, rowNum, []interface{}{"(general)", "", "", general}); err != nil {
			return err
		}
		rowNum++
	}
	return nil
}

func (r *XLSXRenderer) writeSummary(f *excelize.File, result *entity.PipelineResult, headerStyle int) error {
	summary := entity.Summarize(result.Results)
	if err := writeHeader(f, SheetSummary, []interface{}{"Metric", "Value"}, headerStyle); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Total", summary.Total},
		{"Approved", summary.Approved},
		{"Needs review", summary.NeedsReview},
		{"Violations", summary.Violations},
		{"Total time (ms)", result.Debug.TotalTimeMs},
	}
	for i, row := range rows {
		if err := setRow(f, SheetSummary, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []interface{}, style int) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("failed to compute header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", style); err != nil {
		return fmt.Errorf("failed to style header of %s: %w", sheet, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("failed to compute cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, rowNum, err)
	}
	return nil
}

// Verify interface compliance
var _ port.ReportRenderer = (*XLSXRenderer)(nil)
