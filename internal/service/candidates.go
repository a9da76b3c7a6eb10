package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/flatsync/internal/logger"
	"github.com/timmy/flatsync/internal/source"
)

// DiscoverMode selects how candidate keys are produced.
type DiscoverMode string

const (
	ModeHistorical DiscoverMode = "historical"
	ModeDaily      DiscoverMode = "daily"
	ModeOnDemand   DiscoverMode = "on-demand"
	ModeKeys       DiscoverMode = "keys"
)

// ParseDiscoverMode validates a mode name.
func ParseDiscoverMode(s string) (DiscoverMode, error) {
	switch m := DiscoverMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeHistorical, ModeDaily, ModeOnDemand, ModeKeys:
		return m, nil
	}
	return "", fmt.Errorf("unknown discover mode %q (historical, daily, on-demand, keys)", s)
}

// CandidateRequest carries the parameters of one discovery run.
type CandidateRequest struct {
	Mode      DiscoverMode `json:"mode"`
	StartDate string       `json:"start_date,omitempty"`
	EndDate   string       `json:"end_date,omitempty"`
	Dates     []string     `json:"dates,omitempty"`
	Keys      []string     `json:"keys,omitempty"`
}

// CandidateResolver turns a CandidateRequest into file keys.
type CandidateResolver struct {
	lister   source.Lister
	prefix   string
	location *time.Location
	now      func() time.Time
}

// NewCandidateResolver creates a resolver.
// Parameters:
//   - lister: source used by historical mode; may be nil for the other modes.
//   - prefix: dataset key prefix; empty uses source.DefaultPrefix.
//   - timezone: IANA zone that defines "yesterday" for daily mode.
//
// Returns:
//   - *CandidateResolver: resolver instance.
//   - error: non-nil if the timezone is unknown.
func NewCandidateResolver(lister source.Lister, prefix, timezone string) (*CandidateResolver, error) {
	if prefix == "" {
		prefix = source.DefaultPrefix
	}
	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid discoverer timezone %q: %w", timezone, err)
		}
		loc = l
	}
	return &CandidateResolver{
		lister:   lister,
		prefix:   strings.TrimSuffix(prefix, "/"),
		location: loc,
		now:      time.Now,
	}, nil
}

// Resolve returns the candidate keys for req.
func (r *CandidateResolver) Resolve(ctx context.Context, req *CandidateRequest) ([]string, error) {
	log := logger.FromContext(ctx)

	switch req.Mode {
	case ModeHistorical:
		return r.historical(ctx, req)

	case ModeDaily:
		yesterday := r.now().In(r.location).AddDate(0, 0, -1)
		key := source.KeyForDate(r.prefix, yesterday)
		log.WithField(logger.FieldFileKey, key).Info("Daily mode: expecting file for yesterday")
		return []string{key}, nil

	case ModeOnDemand:
		dates := splitList(req.Dates)
		if len(dates) == 0 {
			return nil, errors.New("on-demand mode requires at least one date")
		}
		keys := make([]string, 0, len(dates))
		for _, s := range dates {
			d, err := source.ParseDate(s)
			if err != nil {
				log.WithError(err).Warn("Skipping invalid on-demand date")
				continue
			}
			keys = append(keys, source.KeyForDate(r.prefix, d))
		}
		return keys, nil

	case ModeKeys:
		keys := splitList(req.Keys)
		if len(keys) == 0 {
			return nil, errors.New("keys mode requires at least one key")
		}
		return keys, nil

	default:
		return nil, fmt.Errorf("unknown discover mode %q", req.Mode)
	}
}

func (r *CandidateResolver) historical(ctx context.Context, req *CandidateRequest) ([]string, error) {
	if r.lister == nil {
		return nil, errors.New("historical mode requires a source that can list files")
	}

	var rng source.DateRange
	var err error
	if req.StartDate != "" {
		if rng.Start, err = source.ParseDate(req.StartDate); err != nil {
			return nil, fmt.Errorf("start date: %w", err)
		}
	}
	if req.EndDate != "" {
		if rng.End, err = source.ParseDate(req.EndDate); err != nil {
			return nil, fmt.Errorf("end date: %w", err)
		}
	}
	if !rng.Start.IsZero() && !rng.End.IsZero() && rng.End.Before(rng.Start) {
		return nil, fmt.Errorf("end date %s is before start date %s", req.EndDate, req.StartDate)
	}

	all, err := r.lister.ListKeys(ctx, r.prefix)
	if err != nil {
		return nil, err
	}
	keys, skipped := source.FilterDailyKeys(all, r.prefix, rng)

	log := logger.FromContext(ctx)
	for _, key := range skipped {
		log.WithField(logger.FieldFileKey, key).Warn("Could not parse date from file key, skipping")
	}
	logger.With(logger.Fields{"listed": len(all)}).WithCount(len(keys)).
		Info(ctx, "Historical listing filtered")
	return keys, nil
}

// splitList flattens comma separated values and drops blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
