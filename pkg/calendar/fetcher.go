// Package calendar exchanges meetings with iCalendar (.ics) feeds: it
// exports stored meetings as VEVENTs and reads events from files or URLs so
// the store can import them.
package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/rs/zerolog"

	"github.com/borgmon/contact-manager/pkg/models"
)

// Importer reads calendar events for import into the store.
type Importer struct {
	Log    zerolog.Logger
	Client *http.Client

	// Location is used for floating times. Defaults to time.Local.
	Location *time.Location
}

func NewImporter(log zerolog.Logger) *Importer {
	return &Importer{
		Log:      log,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Location: time.Local,
	}
}

// Fetch downloads an iCal source and returns its events inside window.
// Events are tagged with the source name.
func (im *Importer) Fetch(ctx context.Context, source models.CalendarSource, window Window) ([]models.CalendarEvent, error) {
	if !source.Validate() {
		return nil, models.NewError(models.ErrInvalidArgument, "calendar source needs a name and a url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, models.WrapError(models.ErrInvalidArgument, err, "calendar url %q", source.URL)
	}
	resp, err := im.Client.Do(req)
	if err != nil {
		return nil, models.WrapError(models.ErrIO, err, "HTTP request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewError(models.ErrIO, "fetch %s: unexpected status %s", source.Name, resp.Status)
	}

	events, err := im.Read(resp.Body, window)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].SourceID = source.Name
	}
	return events, nil
}

// Read parses an iCalendar stream. Recurring events are expanded inside
// window; cancelled events, events without a start and duplicates are
// dropped.
func (im *Importer) Read(r io.Reader, window Window) ([]models.CalendarEvent, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, models.WrapError(models.ErrIO, err, "failed to read calendar")
	}
	if err := validateICalFormat(string(body)); err != nil {
		return nil, err
	}

	loc := im.Location
	if loc == nil {
		loc = time.Local
	}

	decoder := ical.NewDecoder(bytes.NewReader(body))
	events := []models.CalendarEvent{}
	seenEventIDs := make(map[string]bool)
	seenEventKeys := make(map[string]bool) // key: title + start time
	stats := &filterStats{}

	for {
		cal, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, models.WrapError(models.ErrInvalidArgument, err, "failed to decode calendar")
		}

		for _, comp := range cal.Children {
			stats.totalComponents++
			if comp.Name != ical.CompEvent {
				continue
			}
			stats.totalEvents++

			normalizeComponentTimezones(comp)
			eventLoc := getTimezoneFromComponent(comp, loc)
			event := parseEvent(comp, eventLoc)

			instances := []models.CalendarEvent{event}
			if rruleProp := comp.Props.Get(ical.PropRecurrenceRule); rruleProp != nil && !event.Start.IsZero() {
				expanded, err := expandRecurringEvent(comp, event, eventLoc, window)
				if err != nil {
					im.Log.Warn().Err(err).Str("title", event.Title).Str("rrule", rruleProp.Value).
						Msg("Unsupported recurrence rule, keeping first occurrence")
				} else {
					instances = expanded
				}
			}

			for _, instance := range instances {
				if !shouldIncludeEvent(im.Log, instance, window, stats) {
					continue
				}
				if isDuplicate(im.Log, &instance, seenEventIDs, seenEventKeys, stats) {
					continue
				}
				events = append(events, instance)
			}
		}
	}

	stats.logSummary(im.Log, len(events))
	return events, nil
}

func validateICalFormat(bodyStr string) error {
	trimmed := strings.TrimSpace(bodyStr)

	// Check if response is HTML instead of iCalendar
	upperBody := strings.ToUpper(trimmed)
	if strings.HasPrefix(upperBody, "<!DOCTYPE") || strings.HasPrefix(upperBody, "<HTML") {
		return models.NewError(models.ErrInvalidArgument,
			"received HTML instead of iCalendar data - check if URL requires authentication")
	}

	if !strings.HasPrefix(upperBody, "BEGIN:VCALENDAR") {
		previewLen := min(len(trimmed), 100)
		return models.NewError(models.ErrInvalidArgument,
			"invalid iCalendar format - expected BEGIN:VCALENDAR, got: %s", trimmed[:previewLen])
	}

	return nil
}

// isDuplicate reports whether event was already seen by UID or by title and
// start time. Events without a UID get one derived from title and start.
func isDuplicate(log zerolog.Logger, event *models.CalendarEvent, seenEventIDs, seenEventKeys map[string]bool, stats *filterStats) bool {
	eventKey := event.Title + "|" + event.Start.Format(time.RFC3339)
	if event.UID == "" {
		event.UID = fmt.Sprintf("%s-%s", event.Start.UTC().Format("20060102T150405Z"), event.Title)
	}

	if seenEventIDs[event.UID] {
		stats.filteredDuplicates++
		log.Debug().Str("title", event.Title).Str("uid", event.UID).Msg("Filtered duplicate event (UID)")
		return true
	}
	if seenEventKeys[eventKey] {
		stats.filteredDuplicates++
		log.Debug().Str("title", event.Title).Time("start", event.Start).Msg("Filtered duplicate event (title and start)")
		return true
	}

	seenEventIDs[event.UID] = true
	seenEventKeys[eventKey] = true
	return false
}
