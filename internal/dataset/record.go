// File path: internal/dataset/record.go
package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agrisense/farmchat/internal/common"
)

// Record is one structured-data row reconstructed from its serialized
// "key: value, key: value" text form.
type Record map[string]string

// ErrMalformedRecord marks a row whose text yielded no usable pair at all.
var ErrMalformedRecord = errors.New("malformed record")

const (
	pairSeparator  = ", "
	valueSeparator = ": "
)

// ParseRecord parses a serialized row. Ill-formed pairs (no separator, blank
// key) are skipped; only a row without a single valid pair is an error.
func ParseRecord(text string) (Record, error) {
	record := make(Record)
	for _, pair := range strings.Split(text, pairSeparator) {
		key, value, ok := strings.Cut(pair, valueSeparator)
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		record[key] = strings.TrimSpace(value)
	}
	if len(record) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRecord, clip(text, 80))
	}
	return record, nil
}

// ParseRecords parses a batch, skipping malformed rows. One bad row never
// aborts the batch.
func ParseRecords(texts []string) []Record {
	logger := common.Logger()
	records := make([]Record, 0, len(texts))
	for _, text := range texts {
		record, err := ParseRecord(text)
		if err != nil {
			logger.Debug("dataset: skipping malformed row", "error", err)
			continue
		}
		records = append(records, record)
	}
	return records
}

// Serialize renders the record back to its text form with sorted keys, so
// repeated serialization of the same record is stable.
func (r Record) Serialize() string {
	keys := make([]string, 0, len(r))
	for key := range r {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+valueSeparator+r[key])
	}
	return strings.Join(parts, pairSeparator)
}

// SerializeRecords renders one row per line.
func SerializeRecords(records []Record) string {
	lines := make([]string, 0, len(records))
	for _, record := range records {
		lines = append(lines, record.Serialize())
	}
	return strings.Join(lines, "\n")
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
