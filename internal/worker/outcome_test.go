package worker

import (
	"strings"
	"testing"

	"github.com/kingrea/relay/internal/store"
)

func TestInferOutcome(t *testing.T) {
	cases := []struct {
		name       string
		output     string
		wantStatus string
		wantInSum  string
	}{
		{
			name:       "explicit passed trailer",
			output:     "## Summary\nAll good.\n\nSTATUS: PASSED",
			wantStatus: store.StatusPassed,
			wantInSum:  "status trailer",
		},
		{
			name:       "explicit failed trailer",
			output:     "## Findings\nBroken build.\n\nSTATUS: FAILED",
			wantStatus: store.StatusFailed,
			wantInSum:  "STATUS: FAILED",
		},
		{
			name:       "partial trailer maps to failed",
			output:     "did half the work\nSTATUS: PARTIAL",
			wantStatus: store.StatusFailed,
			wantInSum:  "STATUS: PARTIAL",
		},
		{
			name:       "last trailer wins",
			output:     "STATUS: FAILED\nretried and fixed it\nSTATUS: PASSED",
			wantStatus: store.StatusPassed,
		},
		{
			name:       "failure indicator",
			output:     "ran the suite\ntests failed on TestFoo",
			wantStatus: store.StatusFailed,
			wantInSum:  "ERROR: tests failed on TestFoo",
		},
		{
			name:       "success indicator",
			output:     "Review complete, everything looked fine.",
			wantStatus: store.StatusPassed,
			wantInSum:  "inferred from output",
		},
		{
			name:       "default is passed",
			output:     "some neutral text",
			wantStatus: store.StatusPassed,
		},
		{
			name:       "trailer beats failure indicator",
			output:     "error: flaky run, retried\nSTATUS: PASSED",
			wantStatus: store.StatusPassed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, summary := InferOutcome(tc.output)
			if status != tc.wantStatus {
				t.Fatalf("status = %s, want %s (summary %q)", status, tc.wantStatus, summary)
			}
			if tc.wantInSum != "" && !strings.Contains(summary, tc.wantInSum) {
				t.Fatalf("summary %q missing %q", summary, tc.wantInSum)
			}
		})
	}
}

func TestInferOutcomeTruncatesLongErrorLines(t *testing.T) {
	line := "error: " + strings.Repeat("x", 300)
	_, summary := InferOutcome(line)
	if len([]rune(summary)) > len("ERROR: ")+100 {
		t.Fatalf("summary not truncated: %d runes", len([]rune(summary)))
	}
}
