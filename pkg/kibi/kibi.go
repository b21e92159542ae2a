// Package kibi formats and parses byte sizes with binary (1024) multiples
package kibi

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidByteSizeString = errors.New("Invalid byte size string")

var sizeRegex = regexp.MustCompile(`^(\d+)\s*([a-z]*)$`)

type unit struct {
	name       string // As printed by FormatBytes
	multiplier int64
}

var units = []unit{
	{"PB", 1 << 50},
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
}

// FormatBytes rounds down to the largest unit, eg "35 MB"
func FormatBytes(b int64) string {
	for _, u := range units {
		if b >= u.multiplier {
			return fmt.Sprintf("%v %v", b/u.multiplier, u.name)
		}
	}
	return fmt.Sprintf("%v bytes", b)
}

// ParseBytes accepts a whole number with an optional suffix.
// Suffixes are case insensitive, and may be a single letter, eg "50 m", "50 MB", "50mb".
func ParseBytes(v string) (int64, error) {
	m := sizeRegex.FindStringSubmatch(strings.TrimSpace(strings.ToLower(v)))
	if m == nil {
		return 0, ErrInvalidByteSizeString
	}
	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, err
	}
	suffix := m[2]
	if suffix == "" || suffix == "bytes" {
		return value, nil
	}
	for _, u := range units {
		name := strings.ToLower(u.name)
		if suffix == name || suffix == name[:1] {
			return value * u.multiplier, nil
		}
	}
	return 0, ErrInvalidByteSizeString
}
