// File path: internal/dataset/filter.go
package dataset

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agrisense/farmchat/internal/common"
)

// Constraint narrows a record set to rows matching one column. A constraint
// without a value only requires the column to be present and non-empty.
type Constraint struct {
	Column   string
	Value    string
	HasValue bool
}

// wordNumberPattern captures "<word><whitespace><number>" pairs such as
// "농가 2" or "습도 70". The word part covers hangul and latin letters.
var wordNumberPattern = regexp.MustCompile(`([가-힣A-Za-z]+)\s*([0-9]+)`)

// ExtractConstraints scans the question for constraints against the known
// column names. A word-number pair whose word is a substring of a column
// yields a value constraint; a column name literally present in the question
// and not already value-constrained yields a presence constraint. When one
// word matches several columns, every match is kept: over-inclusion is
// preferred to silently dropping a candidate column.
func ExtractConstraints(question string, columns []string) []Constraint {
	values := make(map[string]string)
	for _, match := range wordNumberPattern.FindAllStringSubmatch(question, -1) {
		word, number := match[1], match[2]
		for _, column := range columns {
			if strings.Contains(column, word) {
				values[column] = number
			}
		}
	}
	constrained := make([]Constraint, 0, len(values))
	for _, column := range sortedKeys(values) {
		constrained = append(constrained, Constraint{Column: column, Value: values[column], HasValue: true})
	}
	for _, column := range columns {
		if _, ok := values[column]; ok {
			continue
		}
		if strings.Contains(question, column) {
			constrained = append(constrained, Constraint{Column: column})
		}
	}
	return constrained
}

// Filter narrows records to those matching the constraints extracted from
// the question. Value constraints apply first and AND together; presence
// constraints follow. An empty constrained result falls back to the full
// input set: callers treat no confident match as "let a broader search take
// over", never as "no data exists".
func Filter(records []Record, question string, registry *ColumnRegistry) []Record {
	if len(records) == 0 {
		return nil
	}
	constraints := ExtractConstraints(question, registry.Columns())
	if len(constraints) == 0 {
		return records
	}
	logger := common.Logger()
	for _, constraint := range constraints {
		if constraint.HasValue {
			logger.Info("dataset: applying value constraint", "column", constraint.Column, "value", constraint.Value)
		} else {
			logger.Info("dataset: applying presence constraint", "column", constraint.Column)
		}
	}
	filtered := records
	for _, constraint := range constraints {
		if !constraint.HasValue {
			continue
		}
		filtered = retain(filtered, func(record Record) bool {
			value, ok := record[constraint.Column]
			return ok && value == constraint.Value
		})
	}
	for _, constraint := range constraints {
		if constraint.HasValue {
			continue
		}
		filtered = retain(filtered, func(record Record) bool {
			value, ok := record[constraint.Column]
			return ok && value != ""
		})
	}
	if len(filtered) == 0 {
		logger.Info("dataset: constraints matched nothing, returning full set", "records", len(records))
		return records
	}
	return filtered
}

func retain(records []Record, keep func(Record) bool) []Record {
	out := records[:0:0]
	for _, record := range records {
		if keep(record) {
			out = append(out, record)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
