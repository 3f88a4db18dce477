package common

import (
	"fmt"
	"strconv"
	"time"
)

// IntervalDuration parses a bar interval such as "1m", "15m", "1H", "4h",
// "1D" or "1W". Units are case-insensitive except that "M" is not months.
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	var unit time.Duration
	switch interval[len(interval)-1] {
	case 'm':
		unit = time.Minute
	case 'h', 'H':
		unit = time.Hour
	case 'd', 'D':
		unit = 24 * time.Hour
	case 'w', 'W':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid interval unit in %q", interval)
	}
	return time.Duration(n) * unit, nil
}
