package main

import (
	"testing"
	"time"

	"github.com/TobiSchelling/ratsinfo/internal/config"
	"github.com/TobiSchelling/ratsinfo/internal/index"
)

func TestResolveMonths(t *testing.T) {
	cfg = &config.Config{Crawl: config.Crawl{MonthsBack: 1, MonthsAhead: 1}}
	now := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	got, err := resolveMonths(now, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []index.Month{{Year: 2024, Month: 12}, {Year: 2025, Month: 1}, {Year: 2025, Month: 2}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("month %d = %v, want %v", i, got[i], want[i])
		}
	}

	got, _ = resolveMonths(now, 2023, nil)
	if len(got) != 12 || got[0] != (index.Month{Year: 2023, Month: 1}) || got[11] != (index.Month{Year: 2023, Month: 12}) {
		t.Errorf("full year = %v", got)
	}

	got, _ = resolveMonths(now, 0, []int{3, 4})
	if len(got) != 2 || got[0] != (index.Month{Year: 2025, Month: 3}) {
		t.Errorf("months of current year = %v", got)
	}

	if _, err := resolveMonths(now, 2025, []int{13}); err == nil {
		t.Error("expected error for month 13")
	}
}

func TestParseMonth(t *testing.T) {
	fallback := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)
	got, err := parseMonth("", fallback)
	if err != nil || !got.Equal(fallback) {
		t.Errorf("empty = %v, %v", got, err)
	}
	got, err = parseMonth("2024-11", fallback)
	if err != nil || got.Year() != 2024 || got.Month() != time.November {
		t.Errorf("2024-11 = %v, %v", got, err)
	}
	if _, err := parseMonth("11/2024", fallback); err == nil {
		t.Error("expected error for bad format")
	}
}
