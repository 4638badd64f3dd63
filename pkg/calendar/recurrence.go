package calendar

import (
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/borgmon/contact-manager/pkg/models"
)

// maxOpenExpansion limits how far a recurring event is expanded when the
// window has no upper bound.
const maxOpenExpansion = 366 * 24 * time.Hour

// expandRecurringEvent returns the instances of a recurring event whose
// start falls inside window. EXDATEs are honoured.
func expandRecurringEvent(comp *ical.Component, base models.CalendarEvent, loc *time.Location, window Window) ([]models.CalendarEvent, error) {
	opt, err := rrule.StrToROption(comp.Props.Get(ical.PropRecurrenceRule).Value)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = base.Start
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}

	set := &rrule.Set{}
	set.RRule(rule)
	for _, exdate := range comp.Props.Values(ical.PropExceptionDates) {
		if t, err := parseDateTimeProperty(&exdate, loc); err == nil {
			set.ExDate(t)
		}
	}

	from, to := window.From, window.To
	if from.IsZero() {
		from = base.Start
	}
	if to.IsZero() {
		to = from.Add(maxOpenExpansion)
	}

	var duration time.Duration
	if !base.End.IsZero() {
		duration = base.End.Sub(base.Start)
	}

	var events []models.CalendarEvent
	for _, start := range set.Between(from, to, true) {
		instance := base
		instance.Start = start
		if !base.End.IsZero() {
			instance.End = start.Add(duration)
		}
		instance.UID = base.UID + "-" + start.Format(time.RFC3339)
		events = append(events, instance)
	}
	return events, nil
}
