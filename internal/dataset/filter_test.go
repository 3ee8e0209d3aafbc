// File path: internal/dataset/filter_test.go
package dataset

import (
	"testing"
)

func registryWith(columns ...string) *ColumnRegistry {
	registry := NewColumnRegistry()
	registry.Add(columns...)
	return registry
}

func TestFilterMatchesValueConstraint(t *testing.T) {
	registry := registryWith("농가", "습도")
	records := []Record{
		{"농가": "2", "습도": "70"},
		{"농가": "3", "습도": "60"},
	}
	got := Filter(records, "농가 2의 습도는?", registry)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0]["농가"] != "2" || got[0]["습도"] != "70" {
		t.Fatalf("unexpected record: %v", got[0])
	}
}

func TestFilterValueConstraintsNarrowMonotonically(t *testing.T) {
	registry1 := registryWith("농가")
	registry2 := registryWith("농가", "습도")
	records := []Record{
		{"농가": "2", "습도": "70"},
		{"농가": "2", "습도": "65"},
		{"농가": "3", "습도": "70"},
	}
	broad := Filter(records, "농가 2", registry1)
	narrow := Filter(records, "농가 2 습도 70", registry2)
	if len(narrow) > len(broad) {
		t.Fatalf("additional constraint grew the result: %d > %d", len(narrow), len(broad))
	}
	if len(narrow) != 1 {
		t.Fatalf("expected 1 record, got %d", len(narrow))
	}
}

func TestFilterFallsBackToFullSetOnEmptyMatch(t *testing.T) {
	registry := registryWith("농가")
	records := []Record{
		{"농가": "2"},
		{"농가": "3"},
	}
	got := Filter(records, "농가 9의 상태는?", registry)
	if len(got) != len(records) {
		t.Fatalf("expected full set of %d records, got %d", len(records), len(got))
	}
}

func TestFilterNeverReturnsEmptyForNonEmptyInput(t *testing.T) {
	registry := registryWith("온도", "습도")
	records := []Record{{"온도": "21"}}
	questions := []string{
		"습도 999",
		"온도 5는 몇이야",
		"아무 관련 없는 질문",
	}
	for _, question := range questions {
		if got := Filter(records, question, registry); len(got) == 0 {
			t.Fatalf("question %q produced empty result", question)
		}
	}
}

func TestFilterPresenceConstraint(t *testing.T) {
	registry := registryWith("온도")
	records := []Record{
		{"온도": "21", "농가": "1"},
		{"농가": "2"},
		{"온도": "", "농가": "3"},
	}
	got := Filter(records, "온도 알려줘", registry)
	if len(got) != 1 {
		t.Fatalf("expected 1 record with 온도 present, got %d", len(got))
	}
	if got[0]["농가"] != "1" {
		t.Fatalf("unexpected record: %v", got[0])
	}
}

func TestExtractConstraintsSubstringMatchesAllColumns(t *testing.T) {
	columns := []string{"야간온도", "주간온도"}
	constraints := ExtractConstraints("온도 20 맞아?", columns)
	if len(constraints) != 2 {
		t.Fatalf("expected constraints on both columns, got %v", constraints)
	}
	for _, constraint := range constraints {
		if !constraint.HasValue || constraint.Value != "20" {
			t.Fatalf("expected value constraint 20, got %+v", constraint)
		}
	}
}

func TestExtractConstraintsPresenceOnly(t *testing.T) {
	constraints := ExtractConstraints("습도가 궁금해", []string{"습도"})
	if len(constraints) != 1 {
		t.Fatalf("expected 1 constraint, got %d", len(constraints))
	}
	if constraints[0].HasValue {
		t.Fatalf("expected presence constraint, got %+v", constraints[0])
	}
	if constraints[0].Column != "습도" {
		t.Fatalf("unexpected column %q", constraints[0].Column)
	}
}

func TestExtractConstraintsIgnoresUnknownWords(t *testing.T) {
	constraints := ExtractConstraints("무게 300 알려줘", []string{"농가", "습도"})
	if len(constraints) != 0 {
		t.Fatalf("expected no constraints, got %v", constraints)
	}
}
