package delivery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultNumberPrefix is the document code of delivery slips.
const DefaultNumberPrefix = "BL"

// NumberPrefix returns the year-month scope of a delivery number, e.g. BL-2602.
func NumberPrefix(code string, t time.Time) string {
	if code == "" {
		code = DefaultNumberPrefix
	}
	return code + "-" + t.Format("0601")
}

// NextNumber derives the number following highest within prefix. An empty or
// foreign highest starts the sequence at 001.
func NextNumber(prefix, highest string) string {
	return fmt.Sprintf("%s-%03d", prefix, sequence(prefix, highest)+1)
}

func sequence(prefix, number string) int {
	suffix, ok := strings.CutPrefix(number, prefix+"-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// NumberPattern matches the well-formed numbers under prefix. Numbers with a
// non-numeric suffix never take part in sequencing.
func NumberPattern(prefix string) string {
	return "^" + regexp.QuoteMeta(prefix) + "-[0-9]+$"
}
