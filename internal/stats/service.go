// Package stats computes the dashboard's aggregate views over persisted
// events. It is strictly read-only; all alias resolution goes through the
// central taxonomy so chart groupings can never disagree with ingestion.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/nodewatch-systems/nodewatch/internal/event"
	"github.com/nodewatch-systems/nodewatch/internal/repository"
)

// reader is the slice of the repository the aggregation views consume.
type reader interface {
	CountEventsByType(ctx context.Context) ([]repository.TypeCount, error)
	CountEventsByDay(ctx context.Context, days int) ([]repository.DayCount, error)
	EventTimeline(ctx context.Context, since time.Time) ([]repository.TimelineRow, error)
}

// CategoryCount is one canonical category's total.
type CategoryCount struct {
	Category event.Category `json:"category"`
	Count    int64          `json:"count"`
}

// TimelineBucket is one hour of the timeline with per-category counts.
type TimelineBucket struct {
	Bucket time.Time                `json:"bucket"`
	Counts map[event.Category]int64 `json:"counts"`
}

// Service aggregates persisted events for the dashboard.
type Service struct {
	repo reader
}

// NewService creates an aggregation service over the given repository.
func NewService(repo reader) *Service {
	return &Service{repo: repo}
}

// CountsByCategory folds raw event_type totals into the five canonical
// categories. Event types no alias maps to land in the unknown bucket so
// they stay visible instead of silently vanishing from the dashboard.
func (s *Service) CountsByCategory(ctx context.Context) ([]CategoryCount, error) {
	typeCounts, err := s.repo.CountEventsByType(ctx)
	if err != nil {
		return nil, fmt.Errorf("counts by category: %w", err)
	}

	totals := make(map[event.Category]int64)
	for _, tc := range typeCounts {
		totals[event.ResolveCategory(tc.EventType)] += tc.Count
	}

	out := make([]CategoryCount, 0, len(event.Categories)+1)
	for _, c := range event.Categories {
		out = append(out, CategoryCount{Category: c, Count: totals[c]})
	}
	if n := totals[event.CategoryUnknown]; n > 0 {
		out = append(out, CategoryCount{Category: event.CategoryUnknown, Count: n})
	}
	return out, nil
}

// CountsByDay returns daily event totals over the trailing window.
func (s *Service) CountsByDay(ctx context.Context, days int) ([]repository.DayCount, error) {
	counts, err := s.repo.CountEventsByDay(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("counts by day: %w", err)
	}
	return counts, nil
}

// Timeline returns hourly buckets over the trailing window with
// per-category counts. Empty hours are materialized with zero counts so
// charts render a continuous axis.
func (s *Service) Timeline(ctx context.Context, window time.Duration) ([]TimelineBucket, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	since := time.Now().Add(-window).Truncate(time.Hour)

	rows, err := s.repo.EventTimeline(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}

	byBucket := make(map[time.Time]map[event.Category]int64)
	for _, r := range rows {
		b := r.Bucket.UTC().Truncate(time.Hour)
		if byBucket[b] == nil {
			byBucket[b] = make(map[event.Category]int64)
		}
		byBucket[b][event.ResolveCategory(r.EventType)] += r.Count
	}

	end := time.Now().UTC().Truncate(time.Hour)
	var out []TimelineBucket
	for t := since.UTC(); !t.After(end); t = t.Add(time.Hour) {
		counts := byBucket[t]
		if counts == nil {
			counts = make(map[event.Category]int64)
		}
		for _, c := range event.Categories {
			if _, ok := counts[c]; !ok {
				counts[c] = 0
			}
		}
		out = append(out, TimelineBucket{Bucket: t, Counts: counts})
	}
	return out, nil
}
