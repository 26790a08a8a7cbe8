// Package parser turns listing search pages into cleaned records.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-watchcount/models"
)

var parentheticalPattern = regexp.MustCompile(`\s\(.*\)`)

// ValidateRecord ensures every field of the record was captured.
func ValidateRecord(r *models.ListingRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	for i, value := range r.Fields() {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("record missing %s", models.Header[i])
		}
	}
	return nil
}

// StripThousands removes thousands-separator characters and surrounding space.
func StripThousands(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
}

// NormalizeDate drops a parenthetical suffix such as " (PST)" and then the
// thousands separators: "Jan 1, 2024 (PST)" becomes "Jan 1 2024".
func NormalizeDate(text string) string {
	return StripThousands(parentheticalPattern.ReplaceAllString(text, ""))
}

// NormalizeWatchers reduces "Watchers: 1,204 * 3 sold" to "1204".
func NormalizeWatchers(text string) string {
	text, _, _ = strings.Cut(text, "*")
	text = strings.Replace(text, "Watchers:", "", 1)
	return StripThousands(text)
}

// trimLabel removes a leading label such as "End:" and collapses the
// whitespace that follows it.
func trimLabel(text, label string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, label)
	return strings.TrimSpace(text)
}
