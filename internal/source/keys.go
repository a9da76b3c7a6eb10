package source

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultPrefix is where Polygon publishes US stocks daily aggregates.
	DefaultPrefix = "us_stocks_sip/day_aggs_v1"

	// DateLayout is the date format used in file names and CLI flags.
	DateLayout = "2006-01-02"

	fileSuffix = ".csv.gz"
)

// KeyForDate builds <prefix>/<YYYY>/<YYYY-MM-DD>.csv.gz.
func KeyForDate(prefix string, date time.Time) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s/%04d/%s%s", prefix, date.Year(), date.Format(DateLayout), fileSuffix)
}

// ParseDate parses a YYYY-MM-DD string as a UTC date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

// DateFromKey extracts the date from a daily file key.
func DateFromKey(key string) (time.Time, bool) {
	name := path.Base(key)
	if !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, strings.TrimSuffix(name, fileSuffix))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// DateRange bounds a historical listing; zero values are open ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls inside the inclusive range.
func (r DateRange) Contains(d time.Time) bool {
	if !r.Start.IsZero() && d.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && d.After(r.End) {
		return false
	}
	return true
}

// FilterDailyKeys keeps keys under prefix whose file name is a date inside
// rng, sorted ascending. Keys whose name does not parse are returned in
// skipped.
func FilterDailyKeys(keys []string, prefix string, rng DateRange) (kept, skipped []string) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, fileSuffix) {
			continue
		}
		d, ok := DateFromKey(key)
		if !ok {
			skipped = append(skipped, key)
			continue
		}
		if rng.Contains(d) {
			kept = append(kept, key)
		}
	}
	sort.Strings(kept)
	return kept, skipped
}
