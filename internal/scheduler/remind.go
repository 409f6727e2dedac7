package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// remindPattern matches `/remind <message> in <N><unit>`.
var remindPattern = regexp.MustCompile(`^/remind\s+(.+)\s+in\s+(\d+)\s*([smhd])$`)

// unitDurations maps the grammar's units onto durations.
var unitDurations = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseRemind parses the reminder command grammar. The message may be
// quoted; quotes are stripped.
func ParseRemind(text string) (message string, delay time.Duration, err error) {
	matches := remindPattern.FindStringSubmatch(strings.TrimSpace(text))
	if matches == nil {
		return "", 0, fmt.Errorf("usage: /remind <message> in <N><s|m|h|d>")
	}

	message = strings.TrimSpace(matches[1])
	message = strings.Trim(message, `"'`)
	if message == "" {
		return "", 0, fmt.Errorf("reminder message is empty")
	}

	n, err := strconv.Atoi(matches[2])
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("invalid reminder delay %q", matches[2])
	}

	return message, time.Duration(n) * unitDurations[matches[3]], nil
}
