// Package search turns history queries like "octopus after:last week" into
// exploration filters.
package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/neilberkman/linkscout/internal/core/db"
)

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

// aliases cover phrases the parser's rules don't
var aliases = map[string]string{
	"last week":  "1 week ago",
	"last month": "1 month ago",
	"last year":  "1 year ago",
}

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDate accepts ISO-style dates or natural language ("yesterday",
// "last-week", "3 days ago"), relative to now.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, format := range dateFormats {
		if t, err := time.ParseInLocation(format, s, now.Location()); err == nil {
			return t, nil
		}
	}

	phrase := strings.ToLower(strings.ReplaceAll(s, "-", " "))
	if alias, ok := aliases[phrase]; ok {
		phrase = alias
	}
	result, err := newParser().Parse(phrase, now)
	if err == nil && result != nil {
		return result.Time, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseQuery extracts filters from a query string. Supports:
//   - after:<date>, before:<date>
//   - date:<date> (same as after:)
//   - limit:<n>
//
// Everything else is matched against exploration titles.
func ParseQuery(query string, now time.Time) (db.ExplorationFilter, error) {
	var (
		filter db.ExplorationFilter
		words  []string
	)

	for _, token := range strings.Fields(query) {
		key, value, found := strings.Cut(token, ":")
		if !found || value == "" {
			words = append(words, token)
			continue
		}

		switch strings.ToLower(key) {
		case "after", "date", "since":
			t, err := ParseDate(value, now)
			if err != nil {
				return filter, err
			}
			filter.After = t
		case "before":
			t, err := ParseDate(value, now)
			if err != nil {
				return filter, err
			}
			filter.Before = t
		case "limit":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return filter, fmt.Errorf("invalid limit %q", value)
			}
			filter.Limit = n
		default:
			words = append(words, token)
		}
	}

	filter.Title = strings.Join(words, " ")
	return filter, nil
}
