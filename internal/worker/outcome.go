package worker

import (
	"regexp"
	"strings"

	"github.com/kingrea/relay/internal/store"
)

var statusTrailer = regexp.MustCompile(`(?im)^\s*STATUS\s*[:=]\s*([A-Za-z_-]+)\s*$`)

// Phrases scanned when an attempt leaves no explicit STATUS trailer.
var (
	failureIndicators = []string{
		"error:", "failed:", "exception:", "traceback:",
		"could not", "unable to", "cannot find", "not found",
		"assertion error", "test failed", "tests failed",
	}
	successIndicators = []string{
		"all tests pass", "tests passing", "completed successfully",
		"implementation complete", "review complete", "analysis complete",
		"no issues found", "requirements met", "approved",
	}
)

// InferOutcome derives a signal status and summary from an attempt's raw
// output. An explicit STATUS trailer wins; any trailer word other than
// PASSED maps to failed with the raw phrase preserved in the summary, since
// only the closed enum crosses the store boundary. Without a trailer the
// output is scanned for failure indicators first, then success indicators,
// and defaults to passed.
func InferOutcome(output string) (status, summary string) {
	if matches := statusTrailer.FindAllStringSubmatch(output, -1); len(matches) > 0 {
		word := strings.ToLower(matches[len(matches)-1][1])
		if word == "passed" {
			return store.StatusPassed, "completed (status trailer)"
		}
		return store.StatusFailed, "worker reported STATUS: " + strings.ToUpper(word)
	}

	lower := strings.ToLower(output)
	for _, indicator := range failureIndicators {
		if !strings.Contains(lower, indicator) {
			continue
		}
		for _, line := range strings.Split(output, "\n") {
			if strings.Contains(strings.ToLower(line), indicator) {
				return store.StatusFailed, "ERROR: " + truncate(strings.TrimSpace(line), 100)
			}
		}
		return store.StatusFailed, "ERROR: worker output indicates a failure"
	}
	for _, indicator := range successIndicators {
		if strings.Contains(lower, indicator) {
			return store.StatusPassed, "completed successfully (inferred from output)"
		}
	}
	return store.StatusPassed, "worker finished without an explicit status"
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
