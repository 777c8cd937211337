package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// row is one CSV line. Nil marks are left untouched.
type row struct {
	Line        int
	MemberID    string
	SessionDate string
	Attended    *bool
	Report      *bool
}

// readRows parses the attendance CSV. Column names are case-insensitive.
func readRows(r io.Reader) ([]row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"member_id", "session_date"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	_, hasAttended := colIndex["attended"]
	_, hasReport := colIndex["report"]
	if !hasAttended && !hasReport {
		return nil, errors.New("need an attended or report column")
	}

	var rows []row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		get := func(col string) string {
			i, ok := colIndex[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		r := row{
			Line:        line,
			MemberID:    get("member_id"),
			SessionDate: get("session_date"),
		}
		if r.MemberID == "" {
			return nil, fmt.Errorf("line %d: member_id is empty", line)
		}
		if _, err := time.Parse(dateLayout, r.SessionDate); err != nil {
			return nil, fmt.Errorf("line %d: session_date %q is not YYYY-MM-DD", line, r.SessionDate)
		}
		if r.Attended, err = parseMark(get("attended")); err != nil {
			return nil, fmt.Errorf("line %d: attended: %w", line, err)
		}
		if r.Report, err = parseMark(get("report")); err != nil {
			return nil, fmt.Errorf("line %d: report: %w", line, err)
		}

		rows = append(rows, r)
	}
	return rows, nil
}

// parseMark reads a yes/no cell. An empty cell is nil.
func parseMark(v string) (*bool, error) {
	var b bool
	switch strings.ToLower(v) {
	case "":
		return nil, nil
	case "1", "true", "y", "yes", "o":
		b = true
	case "0", "false", "n", "no", "x":
		b = false
	default:
		return nil, fmt.Errorf("unrecognized value %q", v)
	}
	return &b, nil
}
