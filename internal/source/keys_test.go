package source

import (
	"reflect"
	"testing"
	"time"
)

func TestKeyForDate(t *testing.T) {
	d := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "us_stocks_sip/day_aggs_v1/2024/2024-01-02.csv.gz"},
		{"us_stocks_sip/day_aggs_v1/", "us_stocks_sip/day_aggs_v1/2024/2024-01-02.csv.gz"},
		{"us_options_opra/day_aggs_v1", "us_options_opra/day_aggs_v1/2024/2024-01-02.csv.gz"},
	}
	for _, tt := range tests {
		if got := KeyForDate(tt.prefix, d); got != tt.want {
			t.Errorf("KeyForDate(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestDateFromKey(t *testing.T) {
	d, ok := DateFromKey("us_stocks_sip/day_aggs_v1/2023/2023-12-29.csv.gz")
	if !ok || !d.Equal(time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DateFromKey() = %v, %v", d, ok)
	}
	for _, key := range []string{
		"us_stocks_sip/day_aggs_v1/2023/readme.txt",
		"us_stocks_sip/day_aggs_v1/2023/2023-13-01.csv.gz",
		"us_stocks_sip/day_aggs_v1/2023/latest.csv.gz",
	} {
		if _, ok := DateFromKey(key); ok {
			t.Errorf("DateFromKey(%q) should fail", key)
		}
	}
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate(" 2024-02-29 "); err != nil {
		t.Errorf("ParseDate(leap day) error = %v", err)
	}
	if _, err := ParseDate("2023-02-29"); err == nil {
		t.Error("ParseDate(2023-02-29) should fail")
	}
	if _, err := ParseDate("02/01/2024"); err == nil {
		t.Error("ParseDate(02/01/2024) should fail")
	}
}

func TestFilterDailyKeys(t *testing.T) {
	prefix := "us_stocks_sip/day_aggs_v1"
	keys := []string{
		prefix + "/2024/2024-01-05.csv.gz",
		prefix + "/2024/2024-01-02.csv.gz",
		prefix + "/2024/2024-01-03.csv.gz",
		prefix + "/2024/bad-name.csv.gz",
		prefix + "/2024/2024-01-04.json",
		"other/2024/2024-01-03.csv.gz",
	}

	t.Run("open range", func(t *testing.T) {
		kept, skipped := FilterDailyKeys(keys, prefix, DateRange{})
		want := []string{
			prefix + "/2024/2024-01-02.csv.gz",
			prefix + "/2024/2024-01-03.csv.gz",
			prefix + "/2024/2024-01-05.csv.gz",
		}
		if !reflect.DeepEqual(kept, want) {
			t.Errorf("kept = %v, want %v", kept, want)
		}
		if len(skipped) != 1 {
			t.Errorf("skipped = %v, want the unparsable key", skipped)
		}
	})

	t.Run("bounded range", func(t *testing.T) {
		start, _ := ParseDate("2024-01-03")
		end, _ := ParseDate("2024-01-04")
		kept, _ := FilterDailyKeys(keys, prefix, DateRange{Start: start, End: end})
		want := []string{prefix + "/2024/2024-01-03.csv.gz"}
		if !reflect.DeepEqual(kept, want) {
			t.Errorf("kept = %v, want %v", kept, want)
		}
	})
}
