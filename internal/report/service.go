package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"gradebook/internal/summary"

	"github.com/xuri/excelize/v2"
)

var ErrSummaryNotFound = errors.New("grade summary not found")

type summaryReader interface {
	ReadSummary(ctx context.Context, classID, studentID string) (*summary.GradeSummary, error)
}

type Service struct {
	summaries summaryReader
}

func NewService(summaries summaryReader) *Service {
	return &Service{summaries: summaries}
}

var summaryHeaders = []string{"unidade", "materia", "activity_id", "titulo", "nota", "pontuacao_maxima"}

// ExportSummaryExcel renders one row per graded activity, a subtotal row per
// subject and a final total row. Units and subjects are sorted by label.
func (s *Service) ExportSummaryExcel(ctx context.Context, classID, studentID string) ([]byte, error) {
	gs, err := s.summaries.ReadSummary(ctx, classID, studentID)
	if err != nil {
		return nil, err
	}
	if gs == nil {
		return nil, ErrSummaryNotFound
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	_ = f.SetCellValue(sheet, "A1", "turma")
	_ = f.SetCellValue(sheet, "B1", gs.ClassName)
	_ = f.SetCellValue(sheet, "C1", "aluno")
	_ = f.SetCellValue(sheet, "D1", gs.StudentID)

	for i, h := range summaryHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		_ = f.SetCellValue(sheet, cell, h)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}
	_ = f.SetCellStyle(sheet, "A3", "F3", bold)

	row := 4
	var total float64
	for _, unit := range sortedKeys(gs.Units) {
		subjects := gs.Units[unit].Subjects
		for _, subject := range sortedKeys(subjects) {
			bucket := subjects[subject]
			for _, a := range bucket.Activities {
				setRow(f, sheet, row, []any{unit, subject, a.ID, a.Title, a.Grade, a.MaxPoints})
				row++
			}
			setRow(f, sheet, row, []any{unit, subject, "", "subtotal", bucket.TotalPoints, ""})
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(summaryHeaders), row)
			_ = f.SetCellStyle(sheet, first, last, bold)
			total += bucket.TotalPoints
			row++
		}
	}
	setRow(f, sheet, row, []any{"", "", "", "total", total, ""})
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(summaryHeaders), row)
	_ = f.SetCellStyle(sheet, first, last, bold)

	_ = f.SetColWidth(sheet, "A", "F", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
