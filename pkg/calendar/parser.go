package calendar

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/borgmon/contact-manager/pkg/models"
)

const statusCancelled = "CANCELLED"

var cancelledTitle = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// parseEvent reads the fields of a VEVENT that the importer uses. Times are
// read in loc unless the property carries its own zone.
func parseEvent(comp *ical.Component, loc *time.Location) models.CalendarEvent {
	event := models.CalendarEvent{}

	// Extract iCal UID for stable event identification
	if uidProp := comp.Props.Get(ical.PropUID); uidProp != nil {
		event.UID = uidProp.Value
	}
	if summary, err := comp.Props.Text(ical.PropSummary); err == nil {
		event.Title = summary
	}
	if desc, err := comp.Props.Text(ical.PropDescription); err == nil {
		event.Description = desc
	}

	if startProp := comp.Props.Get(ical.PropDateTimeStart); startProp != nil {
		if t, err := parseDateTimeProperty(startProp, loc); err == nil {
			event.Start = t
		}
	}
	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		if t, err := parseDateTimeProperty(endProp, loc); err == nil {
			event.End = t
		}
	}

	if statusProp := comp.Props.Get(ical.PropStatus); statusProp != nil {
		event.Status = strings.ToUpper(statusProp.Value)
	}
	// Some servers only mark cancellation in the title
	if event.Status != statusCancelled && isCancelledTitle(event.Title) {
		event.Status = statusCancelled
	}

	for _, prop := range comp.Props.Values(ical.PropAttendee) {
		if name := attendeeName(prop); name != "" {
			event.Attendees = append(event.Attendees, name)
		}
	}

	return event
}

// attendeeName prefers the CN parameter and falls back to the address.
func attendeeName(prop ical.Prop) string {
	if cn := strings.TrimSpace(prop.Params.Get(ical.ParamCommonName)); cn != "" {
		return cn
	}
	value := strings.TrimSpace(prop.Value)
	if len(value) > len("mailto:") && strings.EqualFold(value[:len("mailto:")], "mailto:") {
		value = value[len("mailto:"):]
	}
	return value
}

func parseDateTimeProperty(prop *ical.Prop, loc *time.Location) (time.Time, error) {
	if t, err := prop.DateTime(loc); err == nil {
		return t, nil
	}

	// If that fails, try parsing the raw value directly
	value := prop.Value
	formats := []string{
		"20060102T150405Z",    // UTC format
		"20060102T150405",     // Basic format: YYYYMMDDTHHMMSS
		"20060102",            // Date only
		time.RFC3339,          // Standard RFC3339
		"2006-01-02T15:04:05", // ISO 8601 without timezone
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, value, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse datetime value: %s", value)
}

func isCancelledTitle(title string) bool {
	cleanTitle := cancelledTitle.ReplaceAllString(strings.ToLower(title), "")
	return strings.HasPrefix(cleanTitle, "canceled") || strings.HasPrefix(cleanTitle, "cancelled")
}
