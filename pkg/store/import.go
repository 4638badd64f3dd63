package store

import (
	"strings"

	"github.com/borgmon/contact-manager/pkg/models"
)

// ImportReport lists the meetings created by ImportEvents.
type ImportReport struct {
	Future  []int // ids of new future meetings
	Past    []int // ids of new past meetings
	Skipped int   // events that produced no meeting
}

// ImportEvents turns calendar events into meetings. Each attendee name is
// matched against the contact with exactly that name; names that match no
// contact, or more than one, are ignored. Events with no matched attendee,
// and events already present as a meeting with the same date and
// attendees, are skipped. Events starting at or after now become future
// meetings; earlier ones become past meetings with the event description
// as their notes.
func (cm *ContactManager) ImportEvents(events []models.CalendarEvent) (ImportReport, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	byName := make(map[string][]*models.Contact)
	for _, c := range cm.contacts {
		byName[c.Name()] = append(byName[c.Name()], c)
	}

	var report ImportReport
	now := cm.now()
	for _, event := range events {
		logger := cm.log.With().Str("uid", event.UID).Str("title", event.Title).Logger()

		if event.Start.IsZero() {
			logger.Warn().Msg("Skipping event without start time")
			report.Skipped++
			continue
		}

		var attendees []*models.Contact
		for _, name := range event.Attendees {
			matches := byName[strings.TrimSpace(name)]
			if len(matches) != 1 {
				logger.Debug().Str("attendee", name).Int("matches", len(matches)).Msg("Attendee not matched to a contact")
				continue
			}
			attendees = append(attendees, matches[0])
		}
		if len(attendees) == 0 {
			logger.Warn().Msg("Skipping event with no known attendees")
			report.Skipped++
			continue
		}
		if cm.hasMeeting(event, attendees) {
			logger.Debug().Msg("Skipping event already imported")
			report.Skipped++
			continue
		}

		if models.IsInFuture(event.Start, now) {
			id, err := cm.addFuture(attendees, event.Start)
			if err != nil {
				return report, err
			}
			report.Future = append(report.Future, id)
			continue
		}
		if err := models.CheckText("description", event.Description); err != nil {
			logger.Warn().Err(err).Msg("Skipping event with unstorable description")
			report.Skipped++
			continue
		}
		id, err := cm.addPast(attendees, event.Start, event.Description)
		if err != nil {
			return report, err
		}
		report.Past = append(report.Past, id)
	}

	cm.log.Info().
		Int("future", len(report.Future)).
		Int("past", len(report.Past)).
		Int("skipped", report.Skipped).
		Msg("Imported calendar events")
	return report, nil
}

func (cm *ContactManager) hasMeeting(event models.CalendarEvent, attendees []*models.Contact) bool {
	want := contactIDs(attendees)
	same := func(m models.Meeting) bool {
		if !models.AlmostEqual(m.Date(), event.Start) {
			return false
		}
		if len(m.Contacts()) != len(want) {
			return false
		}
		for _, id := range want {
			if !m.HasContact(id) {
				return false
			}
		}
		return true
	}
	for _, m := range cm.futureMeetings {
		if same(m) {
			return true
		}
	}
	for _, m := range cm.pastMeetings {
		if same(m) {
			return true
		}
	}
	return false
}

// contactIDs returns the distinct ids of cs.
func contactIDs(cs []*models.Contact) []int {
	seen := make(map[int]bool, len(cs))
	ids := make([]int, 0, len(cs))
	for _, c := range cs {
		if !seen[c.ID()] {
			seen[c.ID()] = true
			ids = append(ids, c.ID())
		}
	}
	return ids
}
