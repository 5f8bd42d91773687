package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVerdict(t *testing.T) {
	passed, failed := ParseVerdict("E2E tests PASSED")
	assert.True(t, passed)
	assert.False(t, failed)

	passed, failed = ParseVerdict("  E2E tests FAILED: refund rounding off by one\n")
	assert.False(t, passed)
	assert.True(t, failed)

	// Markers quoted inside other text are not verdicts.
	for _, line := range []string{
		"- `E2E tests PASSED`",
		`run hive req verdict REQ-1 "E2E tests PASSED"`,
		"E2E tests PASSED for the most part",
		"yesterday the E2E tests FAILED",
		"",
	} {
		passed, failed = ParseVerdict(line)
		assert.False(t, passed, line)
		assert.False(t, failed, line)
	}
}
