// CLAUDE:SUMMARY User-entered time parsing: strict overlay grammar and lenient client grammar, plus h:mm:ss formatting.
// Package timecode converts user-facing time strings into whole seconds.
//
// Two grammars exist on purpose. The strict one backs the in-page overlay
// and rejects anything ambiguous so a typo never produces a silently wrong
// seek. The lenient one backs the command-line client and favours quick
// entry: it never fails and defaults unreadable parts to zero.
package timecode

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hazyhaar/skipper/media"
)

// ErrInvalidFormat is returned by the strict parsers.
var ErrInvalidFormat = media.ErrInvalidFormat

var (
	hoursRe   = regexp.MustCompile(`(\d+)h`)
	minutesRe = regexp.MustCompile(`(\d+)m`)
	secondsRe = regexp.MustCompile(`(\d+)s`)
	digitsRe  = regexp.MustCompile(`\d+`)
	bareRe    = regexp.MustCompile(`^\d+$`)
	spacesRe  = regexp.MustCompile(`\s+`)
)

// ParseAbsolute parses "ss", "mm:ss" or "hh:mm:ss".
// In the two- and three-group forms minutes and seconds must be below 60.
// A single group is a plain second count.
func ParseAbsolute(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("timecode: %q: too many groups: %w", s, ErrInvalidFormat)
	}
	vals := make([]int, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return 0, fmt.Errorf("timecode: %q: empty group: %w", s, ErrInvalidFormat)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("timecode: %q: group %q is not a number: %w", s, p, ErrInvalidFormat)
		}
		if n < 0 {
			return 0, fmt.Errorf("timecode: %q: negative group: %w", s, ErrInvalidFormat)
		}
		vals[i] = n
	}

	switch len(vals) {
	case 1:
		return vals[0], nil
	case 2:
		if vals[1] >= 60 {
			return 0, fmt.Errorf("timecode: %q: seconds out of range: %w", s, ErrInvalidFormat)
		}
		if v, ok := scaled(vals[0], 60, vals[1]); ok {
			return v, nil
		}
	default:
		if vals[1] >= 60 || vals[2] >= 60 {
			return 0, fmt.Errorf("timecode: %q: minutes or seconds out of range: %w", s, ErrInvalidFormat)
		}
		if v, ok := scaled(vals[0], 3600, vals[1]*60+vals[2]); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("timecode: %q: too large: %w", s, ErrInvalidFormat)
}

// ParseAbsoluteLenient parses the same shapes as ParseAbsolute but never
// fails: unreadable or negative groups count as 0, and more than three
// groups yields 0.
func ParseAbsoluteLenient(s string) int {
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		v, ok := scaled(total, 60, leadingInt(p))
		if !ok {
			return 0
		}
		total = v
	}
	return total
}

// ParseRelative parses durations such as "90", "90s", "2m", "1h 5m 30s".
// Matching is case-insensitive. A zero total is rejected.
func ParseRelative(s string) (int, error) {
	str := strings.TrimSpace(spacesRe.ReplaceAllString(strings.ToLower(s), " "))
	if bareRe.MatchString(str) {
		n, err := strconv.Atoi(str)
		if err != nil {
			return 0, fmt.Errorf("timecode: %q: %w", s, ErrInvalidFormat)
		}
		if n == 0 {
			return 0, fmt.Errorf("timecode: %q: zero duration: %w", s, ErrInvalidFormat)
		}
		return n, nil
	}
	total, ok := unitSum(str)
	if !ok {
		return 0, fmt.Errorf("timecode: %q: too large: %w", s, ErrInvalidFormat)
	}
	if total == 0 {
		return 0, fmt.Errorf("timecode: %q: no duration found: %w", s, ErrInvalidFormat)
	}
	return total, nil
}

// ParseRelativeLenient sums h/m/s units and, when that yields nothing,
// falls back to the first run of digits in the string. It returns 0 when
// nothing parses.
func ParseRelativeLenient(s string) int {
	str := strings.ToLower(s)
	total, ok := unitSum(str)
	if !ok {
		return 0
	}
	if total > 0 {
		return total
	}
	if m := digitsRe.FindString(str); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n
		}
	}
	return 0
}

// Format renders seconds as m:ss, or h:mm:ss from one hour up.
func Format(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

var units = []struct {
	re   *regexp.Regexp
	secs int
}{
	{hoursRe, 3600},
	{minutesRe, 60},
	{secondsRe, 1},
}

// unitSum adds up the first h, m and s units found. ok is false when the
// total does not fit in an int.
func unitSum(str string) (total int, ok bool) {
	for _, u := range units {
		m := u.re.FindStringSubmatch(str)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		if total, ok = scaled(n, u.secs, total); !ok {
			return 0, false
		}
	}
	return total, true
}

// scaled returns n*unit + rest, or false on overflow. n and rest are
// non-negative.
func scaled(n, unit, rest int) (int, bool) {
	if n > (math.MaxInt-rest)/unit {
		return 0, false
	}
	return n*unit + rest, true
}

// leadingInt reads an optional sign and leading digits after whitespace,
// the way browsers' parseInt does. Garbage and negatives yield 0.
func leadingInt(s string) int {
	s = strings.TrimLeft(s, " \t\n\r")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 || neg {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
