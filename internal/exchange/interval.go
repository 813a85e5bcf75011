package exchange

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrInvalidInterval = errors.New("invalid kline interval")

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// ParseInterval converts a kline interval such as "15m" or "4h".
func ParseInterval(s string) (time.Duration, error) {
	d, ok := intervals[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q (supported: %s)", ErrInvalidInterval, s, strings.Join(Intervals(), ", "))
	}
	return d, nil
}

// Intervals lists the supported interval names, shortest first.
func Intervals() []string {
	names := make([]string, 0, len(intervals))
	for name := range intervals {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return intervals[names[i]] < intervals[names[j]] })
	return names
}
