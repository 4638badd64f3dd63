package datastore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/borgmon/contact-manager/pkg/models"
)

const (
	dateLayout       = time.RFC3339
	legacyDateLayout = "02/01/2006"
)

var errUnknownAttendee = errors.New("unknown attendee")

// contactRecord and meetingRecord are the flat, id-only shapes both formats
// decode into before attendee references are resolved.
type contactRecord struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

type meetingRecord struct {
	ID       int     `json:"id"`
	Date     string  `json:"date"`
	Contacts []int   `json:"contacts"`
	Notes    *string `json:"notes,omitempty"`
}

// FormatDate renders a meeting date for storage. Sub-second precision is
// dropped, which is within models.DateTolerance.
func FormatDate(t time.Time) string {
	return models.RoundToSecond(t).Format(dateLayout)
}

// ParseDate reads a stored meeting date. Besides RFC 3339 it accepts the
// historical day-only form dd/MM/yyyy, read as local midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, models.NewError(models.ErrInvalidArgument, "empty date")
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(legacyDateLayout, s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, models.NewError(models.ErrInvalidArgument, "unable to parse date %q", s)
}

func invalidRecord(kind RecordKind, id int, format string, args ...any) *RecordError {
	return &RecordError{
		Kind: kind,
		ID:   id,
		Err:  models.NewError(models.ErrInvalidArgument, format, args...),
	}
}

func recordFromError(kind RecordKind, id int, err error) *RecordError {
	var rerr *RecordError
	if errors.As(err, &rerr) {
		return rerr
	}
	if !errors.Is(err, models.ErrInvalidArgument) {
		err = models.WrapError(models.ErrInvalidArgument, err, "")
	}
	return &RecordError{Kind: kind, ID: id, Err: err}
}

// assembler turns decoded records into domain objects, contacts first so
// that meetings can resolve their attendees against them.
type assembler struct {
	snap     *Snapshot
	contacts map[int]*models.Contact
	meetings map[int]bool
}

func newAssembler() *assembler {
	return &assembler{
		snap:     &Snapshot{},
		contacts: make(map[int]*models.Contact),
		meetings: make(map[int]bool),
	}
}

func (a *assembler) reject(err *RecordError) {
	a.snap.Rejected = append(a.snap.Rejected, err)
}

func (a *assembler) addContact(rec contactRecord) {
	if _, exists := a.contacts[rec.ID]; exists {
		a.reject(invalidRecord(KindContact, rec.ID, "duplicate contact id"))
		return
	}
	c := models.NewContact(rec.ID, rec.Name)
	c.AddNotes(rec.Notes)
	a.contacts[rec.ID] = c
	a.snap.Contacts = append(a.snap.Contacts, c)
}

func (a *assembler) resolve(kind RecordKind, rec meetingRecord) (time.Time, []*models.Contact, *RecordError) {
	if a.meetings[rec.ID] {
		return time.Time{}, nil, invalidRecord(kind, rec.ID, "duplicate meeting id")
	}
	date, err := ParseDate(rec.Date)
	if err != nil {
		return time.Time{}, nil, recordFromError(kind, rec.ID, err)
	}
	if len(rec.Contacts) == 0 {
		return time.Time{}, nil, invalidRecord(kind, rec.ID, "no contacts at meeting")
	}
	attendees := make([]*models.Contact, 0, len(rec.Contacts))
	for _, id := range rec.Contacts {
		c, ok := a.contacts[id]
		if !ok {
			return time.Time{}, nil, recordFromError(kind, rec.ID, fmt.Errorf("%w %d", errUnknownAttendee, id))
		}
		attendees = append(attendees, c)
	}
	return date, attendees, nil
}

func (a *assembler) addFutureMeeting(rec meetingRecord) {
	date, attendees, rerr := a.resolve(KindFutureMeeting, rec)
	if rerr != nil {
		a.reject(rerr)
		return
	}
	m, err := models.NewFutureMeeting(rec.ID, date, attendees)
	if err != nil {
		a.reject(recordFromError(KindFutureMeeting, rec.ID, err))
		return
	}
	a.meetings[rec.ID] = true
	a.snap.FutureMeetings = append(a.snap.FutureMeetings, m)
}

func (a *assembler) addPastMeeting(rec meetingRecord) {
	if rec.Notes == nil {
		a.reject(invalidRecord(KindPastMeeting, rec.ID, "missing notes"))
		return
	}
	date, attendees, rerr := a.resolve(KindPastMeeting, rec)
	if rerr != nil {
		a.reject(rerr)
		return
	}
	m, err := models.NewPastMeeting(rec.ID, date, attendees, *rec.Notes)
	if err != nil {
		a.reject(recordFromError(KindPastMeeting, rec.ID, err))
		return
	}
	a.meetings[rec.ID] = true
	a.snap.PastMeetings = append(a.snap.PastMeetings, m)
}

// records flattens a snapshot into id-ordered records for writing. Text
// that an XML document cannot carry is rejected.
func records(snap *Snapshot) ([]contactRecord, []meetingRecord, []meetingRecord, error) {
	contacts := make([]contactRecord, 0, len(snap.Contacts))
	for _, c := range snap.Contacts {
		if err := models.CheckText(fmt.Sprintf("name of contact %d", c.ID()), c.Name()); err != nil {
			return nil, nil, nil, err
		}
		if err := models.CheckText(fmt.Sprintf("notes of contact %d", c.ID()), c.Notes()); err != nil {
			return nil, nil, nil, err
		}
		contacts = append(contacts, contactRecord{ID: c.ID(), Name: c.Name(), Notes: c.Notes()})
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })

	future := make([]meetingRecord, 0, len(snap.FutureMeetings))
	for _, m := range snap.FutureMeetings {
		future = append(future, meetingToRecord(m, nil))
	}
	sort.Slice(future, func(i, j int) bool { return future[i].ID < future[j].ID })

	past := make([]meetingRecord, 0, len(snap.PastMeetings))
	for _, m := range snap.PastMeetings {
		notes := m.Notes()
		if err := models.CheckText(fmt.Sprintf("notes of meeting %d", m.ID()), notes); err != nil {
			return nil, nil, nil, err
		}
		past = append(past, meetingToRecord(m, &notes))
	}
	sort.Slice(past, func(i, j int) bool { return past[i].ID < past[j].ID })

	return contacts, future, past, nil
}

func meetingToRecord(m models.Meeting, notes *string) meetingRecord {
	contacts := m.Contacts()
	ids := make([]int, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID()
	}
	return meetingRecord{ID: m.ID(), Date: FormatDate(m.Date()), Contacts: ids, Notes: notes}
}
