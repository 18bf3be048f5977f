package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFinalize_SortAndSummary(t *testing.T) {
	rr := RunReport{
		Items: []ItemResult{
			{Nuclide: "", Status: StatusUnmatched},
			{Nuclide: "U238", Status: StatusProcessed},
			{Nuclide: "H1", Status: StatusSkipped},
			{Nuclide: "Pu239", Status: StatusFailed},
		},
	}
	rr.Finalize()

	got := make([]string, 0, len(rr.Items))
	for _, it := range rr.Items {
		got = append(got, it.Nuclide)
	}
	want := []string{"H1", "Pu239", "U238", ""}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("排序不符合预期：got=%v want=%v", got, want)
		}
	}

	s := rr.Summary
	if s.Processed != 1 || s.Skipped != 1 || s.Failed != 1 || s.Unmatched != 1 {
		t.Fatalf("summary 不符合预期：%+v", s)
	}
}

func TestFinalize_UTCTimes(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	rr := RunReport{
		StartedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, loc),
		FinishedAt: time.Date(2024, 5, 1, 12, 0, 1, 0, loc),
	}
	rr.Finalize()

	b, err := json.Marshal(rr)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !strings.Contains(string(b), `"started_at":"2024-05-01T04:00:00Z"`) {
		t.Fatalf("期望 UTC 时间（Z 后缀），实际：%s", b)
	}
}

func TestParseNuclide(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"U235", true},
		{"H1", true},
		{"Am242_m1", true},
		{"Pu239", true},
		{"u235", false},
		{"U-235", false},
		{"U2350", false},
		{"", false},
		{" U235 ", true}, // 允许两端空白
	}
	for _, c := range cases {
		_, ok := ParseNuclide(c.in)
		if ok != c.ok {
			t.Fatalf("ParseNuclide(%q)=%v，期望 %v", c.in, ok, c.ok)
		}
	}
}
