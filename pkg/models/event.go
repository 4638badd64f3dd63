package models

import "time"

// CalendarEvent is a meeting read from an iCalendar feed, before its
// attendees are matched to contacts.
type CalendarEvent struct {
	UID         string    // iCal event UID (suffixed with the start time for recurrence instances)
	Title       string    // Event title/summary
	Description string    // Event description, used as notes for past meetings
	Start       time.Time // Event start time
	End         time.Time // Event end time, may be zero
	Status      string    // Event status (CONFIRMED, TENTATIVE, CANCELLED)
	Attendees   []string  // Attendee common names, or addresses when no CN is given
	SourceID    string    // Name of the calendar source this event came from
}
