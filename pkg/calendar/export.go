package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/borgmon/contact-manager/pkg/models"
)

const (
	statusConfirmed = "CONFIRMED"
	statusTentative = "TENTATIVE"
)

// uidNamespace scopes the name-based UUIDs given to exported meetings and
// contacts, so repeated exports of the same data produce the same UIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/borgmon/contact-manager"))

// MeetingUID returns the stable iCal UID of the meeting with the given id.
func MeetingUID(id int) string {
	return uuid.NewSHA1(uidNamespace, []byte(fmt.Sprintf("meeting-%d", id))).String()
}

func contactURN(id int) string {
	return uuid.NewSHA1(uidNamespace, []byte(fmt.Sprintf("contact-%d", id))).URN()
}

// Export writes meetings as a VCALENDAR with one VEVENT each. Past meetings
// are CONFIRMED and carry their notes as description; future meetings are
// TENTATIVE. stamp becomes the DTSTAMP of every event.
func Export(w io.Writer, productID string, meetings []models.Meeting, stamp time.Time) error {
	if productID == "" {
		productID = models.DefaultProductID
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	for _, m := range meetings {
		if m == nil {
			return models.NewError(models.ErrMissingValue, "nil meeting in export")
		}
		cal.Children = append(cal.Children, meetingEvent(m, stamp).Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return models.WrapError(models.ErrIO, err, "encode calendar")
	}
	return nil
}

func meetingEvent(m models.Meeting, stamp time.Time) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, MeetingUID(m.ID()))
	event.Props.SetDateTime(ical.PropDateTimeStamp, models.RoundToSecond(stamp).UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, models.RoundToSecond(m.Date()).UTC())

	contacts := m.Contacts()
	names := make([]string, len(contacts))
	for i, c := range contacts {
		names[i] = c.Name()

		attendee := ical.NewProp(ical.PropAttendee)
		attendee.Value = contactURN(c.ID())
		attendee.Params.Set(ical.ParamCommonName, c.Name())
		event.Props.Add(attendee)
	}
	event.Props.SetText(ical.PropSummary, "Meeting with "+strings.Join(names, ", "))

	switch m := m.(type) {
	case *models.PastMeeting:
		event.Props.SetText(ical.PropStatus, statusConfirmed)
		if m.Notes() != "" {
			event.Props.SetText(ical.PropDescription, m.Notes())
		}
	default:
		event.Props.SetText(ical.PropStatus, statusTentative)
	}
	return event
}
