package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Meeting is the behaviour shared by future and past meetings.
type Meeting interface {
	ID() int
	Date() time.Time
	// Contacts returns copies of the attendees, ordered by contact id.
	Contacts() []*Contact
	HasContact(contactID int) bool
	Equal(other Meeting) bool
	String() string
}

// meeting holds the identity, date and attendees common to both kinds.
type meeting struct {
	id        int
	date      time.Time
	attendees []*Contact // ordered by id, no duplicates
}

func newMeeting(id int, date time.Time, contacts []*Contact) (meeting, error) {
	if date.IsZero() {
		return meeting{}, missingf("meeting %d has no date", id)
	}
	if contacts == nil {
		return meeting{}, missingf("meeting %d has no contacts", id)
	}
	if len(contacts) == 0 {
		return meeting{}, invalidf("no contacts at meeting %d", id)
	}

	byID := make(map[int]*Contact, len(contacts))
	for _, c := range contacts {
		if c == nil {
			return meeting{}, missingf("meeting %d has a nil contact", id)
		}
		byID[c.id] = c
	}

	attendees := make([]*Contact, 0, len(byID))
	for _, c := range byID {
		attendees = append(attendees, c)
	}
	sort.Slice(attendees, func(i, j int) bool {
		return attendees[i].id < attendees[j].id
	})

	return meeting{id: id, date: date, attendees: attendees}, nil
}

func (m *meeting) ID() int {
	return m.id
}

func (m *meeting) Date() time.Time {
	return m.date
}

func (m *meeting) Contacts() []*Contact {
	out := make([]*Contact, len(m.attendees))
	for i, c := range m.attendees {
		out[i] = c.Clone()
	}
	return out
}

func (m *meeting) HasContact(contactID int) bool {
	for _, c := range m.attendees {
		if c.id == contactID {
			return true
		}
	}
	return false
}

// clone copies the meeting and each attendee.
func (m *meeting) clone() meeting {
	c := *m
	c.attendees = make([]*Contact, len(m.attendees))
	for i, a := range m.attendees {
		c.attendees[i] = a.Clone()
	}
	return c
}

func (m *meeting) sameAs(other *meeting) bool {
	if m.id != other.id || len(m.attendees) != len(other.attendees) {
		return false
	}
	if !AlmostEqual(m.date, other.date) {
		return false
	}
	for i := range m.attendees {
		if !m.attendees[i].Equal(other.attendees[i]) {
			return false
		}
	}
	return true
}

func (m *meeting) String() string {
	names := make([]string, len(m.attendees))
	for i, c := range m.attendees {
		names[i] = fmt.Sprintf("%d:%s", c.id, c.name)
	}
	return fmt.Sprintf("Meeting with id=%d on %s with contacts [%s]",
		m.id, m.date.Format(time.RFC3339), strings.Join(names, ", "))
}

// FutureMeeting is a meeting scheduled at or after the moment it was added.
type FutureMeeting struct {
	meeting
}

// NewFutureMeeting validates the attendees and builds a future meeting.
// Whether date is actually in the future is the caller's concern.
func NewFutureMeeting(id int, date time.Time, contacts []*Contact) (*FutureMeeting, error) {
	m, err := newMeeting(id, date, contacts)
	if err != nil {
		return nil, err
	}
	return &FutureMeeting{meeting: m}, nil
}

// Equal reports whether other is a future meeting with the same id and
// attendees and an almost equal date.
func (m *FutureMeeting) Equal(other Meeting) bool {
	o, ok := other.(*FutureMeeting)
	if !ok || o == nil {
		return false
	}
	return m.sameAs(&o.meeting)
}

// Clone returns a copy sharing no mutable state with m.
func (m *FutureMeeting) Clone() *FutureMeeting {
	return &FutureMeeting{meeting: m.clone()}
}

// ToPast converts the meeting into a past meeting with the same id, date
// and attendees. The attendees are shared with m.
func (m *FutureMeeting) ToPast(notes string) *PastMeeting {
	past := &PastMeeting{meeting: m.meeting}
	past.attendees = append([]*Contact(nil), m.attendees...)
	past.AddNotes(notes)
	return past
}

// PastMeeting is a meeting that has taken place. It carries notes.
type PastMeeting struct {
	meeting
	notes string
}

// NewPastMeeting validates the attendees and builds a past meeting. The
// notes follow the same trimming rule as AddNotes.
func NewPastMeeting(id int, date time.Time, contacts []*Contact, notes string) (*PastMeeting, error) {
	m, err := newMeeting(id, date, contacts)
	if err != nil {
		return nil, err
	}
	return &PastMeeting{meeting: m, notes: appendNote("", notes)}, nil
}

func (m *PastMeeting) Notes() string {
	return m.notes
}

// AddNotes appends a note on a new line. The note is trimmed first.
func (m *PastMeeting) AddNotes(note string) {
	m.notes = appendNote(m.notes, note)
}

// Equal reports whether other is a past meeting with the same id, attendees
// and notes and an almost equal date.
func (m *PastMeeting) Equal(other Meeting) bool {
	o, ok := other.(*PastMeeting)
	if !ok || o == nil {
		return false
	}
	return m.notes == o.notes && m.sameAs(&o.meeting)
}

// Clone returns a copy sharing no mutable state with m.
func (m *PastMeeting) Clone() *PastMeeting {
	return &PastMeeting{meeting: m.clone(), notes: m.notes}
}

func (m *PastMeeting) String() string {
	return m.meeting.String() + " with notes: " + m.notes
}
