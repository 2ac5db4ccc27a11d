package delivery

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNumberPrefix(t *testing.T) {
	at := time.Date(2026, time.February, 14, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "BL-2602", NumberPrefix("", at))
	assert.Equal(t, "BL-2602", NumberPrefix("BL", at))
	assert.Equal(t, "BLX-2612", NumberPrefix("BLX", time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)))
}

func TestNextNumber(t *testing.T) {
	cases := []struct {
		name    string
		highest string
		want    string
	}{
		{"first of month", "", "BL-2602-001"},
		{"increments", "BL-2602-007", "BL-2602-008"},
		{"keeps padding", "BL-2602-099", "BL-2602-100"},
		{"grows past three digits", "BL-2602-999", "BL-2602-1000"},
		{"foreign prefix restarts", "BL-2601-041", "BL-2602-001"},
		{"garbage suffix restarts", "BL-2602-abc", "BL-2602-001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextNumber("BL-2602", tc.highest))
		})
	}
}

func TestNumberPatternSkipsMalformed(t *testing.T) {
	re := regexp.MustCompile(NumberPattern("BL-2602"))
	assert.True(t, re.MatchString("BL-2602-001"))
	assert.True(t, re.MatchString("BL-2602-1000"))
	assert.False(t, re.MatchString("BL-2602-abc"))
	assert.False(t, re.MatchString("BL-2602-01a"))
	assert.False(t, re.MatchString("BL-2601-001"))
	assert.False(t, re.MatchString("XBL-2602-001"))
}
