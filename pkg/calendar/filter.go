package calendar

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/borgmon/contact-manager/pkg/models"
)

// Window bounds the start times of imported events. A zero bound is open.
type Window struct {
	From time.Time
	To   time.Time
}

// WindowAround returns the window reaching days either side of now.
func WindowAround(now time.Time, days int) Window {
	span := time.Duration(days) * 24 * time.Hour
	return Window{From: now.Add(-span), To: now.Add(span)}
}

func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

type filterStats struct {
	totalComponents       int
	totalEvents           int
	filteredMissingTime   int
	filteredCancelled     int
	filteredOutsideWindow int
	filteredDuplicates    int
}

func shouldIncludeEvent(log zerolog.Logger, event models.CalendarEvent, window Window, stats *filterStats) bool {
	if event.Start.IsZero() {
		stats.filteredMissingTime++
		log.Debug().Str("title", event.Title).Msg("Filtered event without start time")
		return false
	}

	if event.Status == statusCancelled {
		stats.filteredCancelled++
		log.Debug().Str("title", event.Title).Time("start", event.Start).Msg("Filtered cancelled event")
		return false
	}

	if !window.Contains(event.Start) {
		stats.filteredOutsideWindow++
		log.Debug().Str("title", event.Title).Time("start", event.Start).Msg("Filtered event outside window")
		return false
	}

	return true
}

func (s *filterStats) logSummary(log zerolog.Logger, includedCount int) {
	totalFiltered := s.filteredMissingTime + s.filteredCancelled + s.filteredOutsideWindow + s.filteredDuplicates
	log.Info().
		Int("components", s.totalComponents).
		Int("events", s.totalEvents).
		Int("included", includedCount).
		Int("filtered", totalFiltered).
		Int("cancelled", s.filteredCancelled).
		Int("outside_window", s.filteredOutsideWindow).
		Int("missing_time", s.filteredMissingTime).
		Int("duplicates", s.filteredDuplicates).
		Msg("Read calendar")
}
