package models

import (
	"fmt"
	"strings"
)

// Contact is a person known to the contact manager. The id and name never
// change; notes only grow.
type Contact struct {
	id    int
	name  string
	notes string
}

// NewContact creates a contact with empty notes.
func NewContact(id int, name string) *Contact {
	return &Contact{id: id, name: name}
}

func (c *Contact) ID() int {
	return c.id
}

func (c *Contact) Name() string {
	return c.name
}

func (c *Contact) Notes() string {
	return c.notes
}

// AddNotes appends a note on a new line. The note is trimmed first.
func (c *Contact) AddNotes(note string) {
	c.notes = appendNote(c.notes, note)
}

// Clone returns an independent copy of the contact.
func (c *Contact) Clone() *Contact {
	clone := *c
	return &clone
}

// Equal reports whether both contacts have the same id, name and notes.
func (c *Contact) Equal(other *Contact) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.id == other.id && c.name == other.name && c.notes == other.notes
}

func (c *Contact) String() string {
	return fmt.Sprintf("Contact with id=%d, name=%s, notes=%s", c.id, c.name, c.notes)
}

// appendNote implements the notes rule shared by contacts and past meetings:
// the note is trimmed and joined to existing notes with a newline.
func appendNote(notes, note string) string {
	note = strings.TrimSpace(note)
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
