package handlers

import (
	"fmt"
	"net/url"
	"time"
)

const dayFormat = "2006-01-02"

// parseDateRange validates the from/to query parameters and returns the UTC
// range to query, with the end extended by one day so that the "to" day is
// included.
//
// A reversed range is accepted and swapped. Any other parameter, a missing
// parameter, or a date that is not YYYY-MM-DD is an error.
func parseDateRange(query url.Values) (from, to time.Time, err error) {
	if len(query) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("missing from/to parameters")
	}
	for param := range query {
		if param != "from" && param != "to" {
			return time.Time{}, time.Time{}, fmt.Errorf("unexpected parameter %q", param)
		}
	}

	from, err = time.ParseInLocation(dayFormat, query.Get("from"), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %v", err)
	}
	to, err = time.ParseInLocation(dayFormat, query.Get("to"), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %v", err)
	}

	if to.Before(from) {
		from, to = to, from
	}

	return from, to.AddDate(0, 0, 1), nil
}
