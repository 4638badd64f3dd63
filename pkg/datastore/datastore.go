// Package datastore reads and writes the complete state of a contact
// manager as one unit.
//
// Two formats exist: an XML document (the default) and a BoltDB file. Both
// produce the same Snapshot. Loading is tolerant: a record that cannot be
// decoded (a malformed date, an attendee id with no matching contact) is
// reported in Snapshot.Rejected and the rest of the file still loads. Damage
// to the structure of the file (not XML, a missing group, a missing bucket)
// fails the whole load.
package datastore

import (
	"fmt"

	"github.com/borgmon/contact-manager/pkg/models"
)

// RecordKind names the group a persisted record belongs to.
type RecordKind string

const (
	KindContact       RecordKind = "contact"
	KindFutureMeeting RecordKind = "future meeting"
	KindPastMeeting   RecordKind = "past meeting"
)

// NoID marks a RecordError whose record id could not be read.
const NoID = -1

// RecordError describes one persisted record that could not be loaded.
type RecordError struct {
	Kind RecordKind
	ID   int
	Err  error
}

func (e *RecordError) Error() string {
	if e.ID == NoID {
		return fmt.Sprintf("%s without id: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %d: %v", e.Kind, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Snapshot is the full persisted state of a contact manager.
type Snapshot struct {
	Contacts       []*models.Contact
	FutureMeetings []*models.FutureMeeting
	PastMeetings   []*models.PastMeeting

	// Rejected lists records skipped while loading. Always empty on save.
	Rejected []*RecordError
}

// DataStore persists snapshots to a named file.
type DataStore interface {
	// Load reads the snapshot stored at path. A missing file is reported
	// with an error matching fs.ErrNotExist.
	Load(path string) (*Snapshot, error)

	// Save replaces whatever is stored at path with snap. On failure the
	// previous contents of path are left untouched.
	Save(path string, snap *Snapshot) error
}

// New returns the DataStore implementation for backend.
func New(backend models.Backend) (DataStore, error) {
	switch backend {
	case models.BackendXML, "":
		return NewXMLStore(), nil
	case models.BackendBolt:
		return NewBoltStore(), nil
	default:
		return nil, models.NewError(models.ErrInvalidArgument, "unknown backend %q", backend)
	}
}
