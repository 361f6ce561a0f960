package classes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const maxClassNameLen = 120

type ImportRowError struct {
	Row     int    `json:"row"`
	ClassID string `json:"class_id,omitempty"`
	Error   string `json:"error"`
}

type ImportReport struct {
	TotalRows   int              `json:"total_rows"`
	SuccessRows int              `json:"success_rows"`
	FailedRows  int              `json:"failed_rows"`
	Errors      []ImportRowError `json:"errors"`
}

func (r *ImportReport) fail(row int, classID, msg string) {
	r.FailedRows++
	r.Errors = append(r.Errors, ImportRowError{Row: row, ClassID: classID, Error: msg})
}

// ImportExcel reads the first sheet of an xlsx workbook with an id and a name
// column and renames each class through dir. Bad rows are reported and
// skipped.
func ImportExcel(ctx context.Context, dir Directory, r io.Reader) (*ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel sheet is empty")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("no data rows found")
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"id", "name"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0)}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		get := func(key string) string {
			idx := header[key]
			if idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		classID, name := get("id"), get("name")
		if classID == "" && name == "" {
			continue
		}
		report.TotalRows++
		rowNo := i + 1

		switch {
		case classID == "":
			report.fail(rowNo, classID, "id is required")
			continue
		case name == "":
			report.fail(rowNo, classID, "name is required")
			continue
		case utf8.RuneCountInString(name) > maxClassNameLen:
			report.fail(rowNo, classID, fmt.Sprintf("name longer than %d characters", maxClassNameLen))
			continue
		}

		if err := dir.SetClassName(ctx, classID, name); err != nil {
			report.fail(rowNo, classID, err.Error())
			continue
		}
		report.SuccessRows++
	}
	return report, nil
}
