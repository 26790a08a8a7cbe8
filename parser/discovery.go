package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrTotalNotFound indicates the declared result count marker is absent,
// which usually means the page layout changed.
var ErrTotalNotFound = errors.New("parser: total results marker not found")

var totalPattern = regexp.MustCompile(`([\d,]+) Results? for`)

// ParseTotal extracts the declared result count ("1,234 Results for ...").
func ParseTotal(body []byte) (int, error) {
	match := totalPattern.FindSubmatch(body)
	if match == nil {
		return 0, ErrTotalNotFound
	}
	total, err := strconv.Atoi(StripThousands(string(match[1])))
	if err != nil {
		return 0, fmt.Errorf("parse total %q: %w", match[1], err)
	}
	return total, nil
}
