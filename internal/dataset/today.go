// File path: internal/dataset/today.go
package dataset

import (
	"errors"
	"strings"
	"time"
)

// ErrNoDateColumn indicates the dataset carries no recognizable date column,
// so a "today" subset cannot be computed.
var ErrNoDateColumn = errors.New("no date column detected")

// Column names that mark a date column outright, from the datasets this
// system is deployed against.
var dateColumnCandidates = []string{
	"date", "날짜", "조사일자", "측정일", "기록일", "등록일", "실험일",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"20060102",
}

// DetectDateColumn finds the column holding row dates: first by name against
// the candidate list, then by probing values for a parseable date.
func DetectDateColumn(records []Record) string {
	if len(records) == 0 {
		return ""
	}
	for column := range records[0] {
		lowered := strings.ToLower(column)
		for _, candidate := range dateColumnCandidates {
			if strings.Contains(lowered, candidate) {
				return column
			}
		}
	}
	for column := range records[0] {
		for _, record := range records {
			value := strings.TrimSpace(record[column])
			if value == "" {
				continue
			}
			if _, ok := parseDate(value); ok {
				return column
			}
			break
		}
	}
	return ""
}

// TodayRecords returns the rows whose detected date column falls on the same
// calendar day as now. Rows with unparseable dates are dropped from the
// subset only; they stay in the full dataset.
func TodayRecords(records []Record, now time.Time) ([]Record, error) {
	column := DetectDateColumn(records)
	if column == "" {
		return nil, ErrNoDateColumn
	}
	year, month, day := now.Date()
	out := make([]Record, 0, len(records))
	for _, record := range records {
		parsed, ok := parseDate(record[column])
		if !ok {
			continue
		}
		y, m, d := parsed.Date()
		if y == year && m == month && d == day {
			out = append(out, record)
		}
	}
	return out, nil
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
