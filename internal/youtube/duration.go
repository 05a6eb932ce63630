// SPDX-License-Identifier: MIT

package youtube

import (
	"fmt"
	"time"
)

// parseISODuration parses the ISO 8601 durations the Data API emits for
// video lengths, e.g. PT4M13S, PT1H2M3S, P1DT2H, P0D. Year and month
// designators never occur in video durations and are rejected.
func parseISODuration(s string) (time.Duration, error) {
	orig := s
	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("invalid duration %q", orig)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	sawUnit := false

	for len(s) > 0 {
		if s[0] == 'T' {
			if inTime {
				return 0, fmt.Errorf("invalid duration %q", orig)
			}
			inTime = true
			s = s[1:]
			continue
		}

		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, fmt.Errorf("invalid duration %q", orig)
		}
		var n int64
		for _, c := range s[:i] {
			n = n*10 + int64(c-'0')
		}
		unit := s[i]
		s = s[i+1:]
		sawUnit = true

		switch {
		case !inTime && unit == 'W':
			total += time.Duration(n) * 7 * 24 * time.Hour
		case !inTime && unit == 'D':
			total += time.Duration(n) * 24 * time.Hour
		case inTime && unit == 'H':
			total += time.Duration(n) * time.Hour
		case inTime && unit == 'M':
			total += time.Duration(n) * time.Minute
		case inTime && unit == 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q: unexpected designator %q", orig, string(unit))
		}
	}

	if !sawUnit {
		return 0, fmt.Errorf("invalid duration %q", orig)
	}
	return total, nil
}
