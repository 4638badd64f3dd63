package datastore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borgmon/contact-manager/pkg/models"
)

func sampleSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	alice := models.NewContact(0, "Alice")
	alice.AddNotes("met at the conference")
	bob := models.NewContact(1, "Bob")
	carol := models.NewContact(2, "Carol & Co <ltd>")
	carol.AddNotes("first line")
	carol.AddNotes("second line")

	future, err := models.NewFutureMeeting(3, time.Date(2054, 1, 1, 9, 30, 15, 500_000_000, time.UTC),
		[]*models.Contact{alice, bob, carol})
	require.NoError(t, err)
	single, err := models.NewFutureMeeting(0, time.Date(2060, 6, 1, 0, 0, 0, 0, time.UTC),
		[]*models.Contact{bob})
	require.NoError(t, err)
	past, err := models.NewPastMeeting(1, time.Date(1999, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)),
		[]*models.Contact{alice, carol}, "hello\nagain")
	require.NoError(t, err)
	silent, err := models.NewPastMeeting(2, time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC),
		[]*models.Contact{alice}, "")
	require.NoError(t, err)

	return &Snapshot{
		Contacts:       []*models.Contact{carol, alice, bob},
		FutureMeetings: []*models.FutureMeeting{future, single},
		PastMeetings:   []*models.PastMeeting{silent, past},
	}
}

func assertSameSnapshot(t *testing.T, want, got *Snapshot) {
	t.Helper()
	require.Empty(t, got.Rejected)
	require.Len(t, got.Contacts, len(want.Contacts))
	require.Len(t, got.FutureMeetings, len(want.FutureMeetings))
	require.Len(t, got.PastMeetings, len(want.PastMeetings))

	contacts := make(map[int]*models.Contact)
	for _, c := range got.Contacts {
		contacts[c.ID()] = c
	}
	for _, c := range want.Contacts {
		assert.True(t, c.Equal(contacts[c.ID()]), "contact %d", c.ID())
	}

	future := make(map[int]*models.FutureMeeting)
	for _, m := range got.FutureMeetings {
		future[m.ID()] = m
	}
	for _, m := range want.FutureMeetings {
		require.Contains(t, future, m.ID())
		assert.True(t, m.Equal(future[m.ID()]), "future meeting %d: %s", m.ID(), future[m.ID()])
	}

	past := make(map[int]*models.PastMeeting)
	for _, m := range got.PastMeetings {
		past[m.ID()] = m
	}
	for _, m := range want.PastMeetings {
		require.Contains(t, past, m.ID())
		assert.True(t, m.Equal(past[m.ID()]), "past meeting %d: %s", m.ID(), past[m.ID()])
	}
}

func TestRoundTrip(t *testing.T) {
	for _, backend := range []models.Backend{models.BackendXML, models.BackendBolt} {
		t.Run(string(backend), func(t *testing.T) {
			ds, err := New(backend)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "data")
			want := sampleSnapshot(t)
			require.NoError(t, ds.Save(path, want))

			got, err := ds.Load(path)
			require.NoError(t, err)
			assertSameSnapshot(t, want, got)

			// A second save replaces the first.
			want.PastMeetings = want.PastMeetings[:1]
			require.NoError(t, ds.Save(path, want))
			got, err = ds.Load(path)
			require.NoError(t, err)
			assertSameSnapshot(t, want, got)
		})
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New("yaml")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestLoadMissingFile(t *testing.T) {
	for _, backend := range []models.Backend{models.BackendXML, models.BackendBolt} {
		t.Run(string(backend), func(t *testing.T) {
			ds, err := New(backend)
			require.NoError(t, err)
			path := filepath.Join(t.TempDir(), "absent")
			_, err = ds.Load(path)
			assert.True(t, errors.Is(err, fs.ErrNotExist))
			assert.ErrorIs(t, err, models.ErrIO)
			assert.NoFileExists(t, path)
		})
	}
}

func TestSaveToUnwritablePath(t *testing.T) {
	for _, backend := range []models.Backend{models.BackendXML, models.BackendBolt} {
		t.Run(string(backend), func(t *testing.T) {
			ds, err := New(backend)
			require.NoError(t, err)
			dir := filepath.Join(t.TempDir(), "missing-dir")
			path := filepath.Join(dir, "data")
			err = ds.Save(path, sampleSnapshot(t))
			assert.ErrorIs(t, err, models.ErrIO)
			assert.NoDirExists(t, dir)
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	data, err := Encode(sampleSnapshot(t))
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, out, "<ContactManagerData>")
	assert.Contains(t, out, `<contact id="2">`)
	assert.Contains(t, out, "<name>Carol &amp; Co &lt;ltd")
	assert.Contains(t, out, "<date>2054-01-01T09:30:15Z</date>")
	assert.Contains(t, out, "<date>1999-01-01T12:00:00+01:00</date>")
	assert.Contains(t, out, "<notes>hello\nagain</notes>")
	assert.Less(t, strings.Index(out, `<contact id="0">`), strings.Index(out, `<contact id="1">`))
	assert.Less(t, strings.Index(out, `<meeting id="0">`), strings.Index(out, `<meeting id="3">`))
}

const tolerantDoc = `<?xml version="1.0" encoding="UTF-8"?>
<ContactManagerData>
  <Contacts>
    <contact id="0"><name>Alice</name><notes>likes tea</notes></contact>
    <contact id="1"><name>Bob</name><notes/></contact>
    <contact id="x"><name>Broken</name><notes/></contact>
    <contact id="1"><name>Bob again</name><notes/></contact>
    <contact id="4"><name>One</name><name>Two</name><notes/></contact>
    <contact id="5"><notes/></contact>
  </Contacts>
  <FutureMeetings>
    <meeting id="0">
      <date>2054-01-01T00:00:00Z</date>
      <contacts><contact id="0"/><contact id="1"/></contacts>
    </meeting>
    <meeting id="2">
      <date>next tuesday</date>
      <contacts><contact id="0"/></contacts>
    </meeting>
    <meeting id="3">
      <date>2054-01-01T00:00:00Z</date>
      <contacts><contact id="9"/></contacts>
    </meeting>
    <meeting id="6">
      <date>2054-01-01T00:00:00Z</date>
      <contacts/>
    </meeting>
  </FutureMeetings>
  <PastMeetings>
    <meeting id="7">
      <date>25/12/2011</date>
      <contacts><contact id="1"/></contacts>
      <notes>xmas</notes>
    </meeting>
    <meeting id="8">
      <date>2001-01-01T00:00:00Z</date>
      <contacts><contact id="1"/></contacts>
    </meeting>
    <meeting id="9">
      <date>2001-01-01T00:00:00Z</date>
      <contacts><contact id="0"/></contacts>
      <notes>a<!-- split -->b</notes>
    </meeting>
    <meeting id="0">
      <date>2001-01-01T00:00:00Z</date>
      <contacts><contact id="0"/></contacts>
      <notes>reused id</notes>
    </meeting>
  </PastMeetings>
</ContactManagerData>
`

func TestDecodeSkipsBadRecords(t *testing.T) {
	snap, err := Decode([]byte(tolerantDoc))
	require.NoError(t, err)

	require.Len(t, snap.Contacts, 2)
	assert.Equal(t, "Alice", snap.Contacts[0].Name())
	assert.Equal(t, "likes tea", snap.Contacts[0].Notes())
	assert.Equal(t, "Bob", snap.Contacts[1].Name())

	require.Len(t, snap.FutureMeetings, 1)
	assert.Equal(t, 0, snap.FutureMeetings[0].ID())
	assert.Len(t, snap.FutureMeetings[0].Contacts(), 2)

	require.Len(t, snap.PastMeetings, 1)
	xmas := snap.PastMeetings[0]
	assert.Equal(t, 7, xmas.ID())
	assert.Equal(t, "xmas", xmas.Notes())
	assert.True(t, time.Date(2011, 12, 25, 0, 0, 0, 0, time.Local).Equal(xmas.Date()))

	type rejection struct {
		kind RecordKind
		id   int
	}
	var got []rejection
	for _, r := range snap.Rejected {
		assert.ErrorIs(t, r, models.ErrInvalidArgument, r.Error())
		got = append(got, rejection{r.Kind, r.ID})
	}
	assert.Equal(t, []rejection{
		{KindContact, NoID},
		{KindContact, 1},
		{KindContact, 4},
		{KindContact, 5},
		{KindFutureMeeting, 2},
		{KindFutureMeeting, 3},
		{KindFutureMeeting, 6},
		{KindPastMeeting, 8},
		{KindPastMeeting, 9},
		{KindPastMeeting, 0},
	}, got)
}

func TestDecodeRejectsUnknownAttendee(t *testing.T) {
	snap, err := Decode([]byte(tolerantDoc))
	require.NoError(t, err)
	var found bool
	for _, r := range snap.Rejected {
		if r.Kind == KindFutureMeeting && r.ID == 3 {
			found = true
			assert.ErrorIs(t, r, errUnknownAttendee)
			assert.Contains(t, r.Error(), "unknown attendee 9")
		}
	}
	assert.True(t, found)
}

func TestDecodeStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not xml", doc: "contacts: [alice, bob]"},
		{name: "empty", doc: ""},
		{name: "unclosed", doc: "<ContactManagerData><Contacts>"},
		{name: "wrong root", doc: "<Data><Contacts/><FutureMeetings/><PastMeetings/></Data>"},
		{name: "missing group", doc: "<ContactManagerData><Contacts/><PastMeetings/></ContactManagerData>"},
		{name: "duplicate group", doc: "<ContactManagerData><Contacts/><Contacts/><FutureMeetings/><PastMeetings/></ContactManagerData>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
		})
	}
}

func TestDecodeEmptyGroups(t *testing.T) {
	snap, err := Decode([]byte("<ContactManagerData><Contacts/><FutureMeetings/><PastMeetings/></ContactManagerData>"))
	require.NoError(t, err)
	assert.Empty(t, snap.Contacts)
	assert.Empty(t, snap.FutureMeetings)
	assert.Empty(t, snap.PastMeetings)
	assert.Empty(t, snap.Rejected)
}

func TestXMLLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.xml")
	require.NoError(t, os.WriteFile(path, []byte("<ContactManagerData><Contacts>"), 0o644))

	_, err := NewXMLStore().Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Contains(t, err.Error(), path)
}

func TestBoltLoadRejectsXMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.xml")
	data, err := Encode(sampleSnapshot(t))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = NewBoltStore().Load(path)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate(" 2054-01-01T10:00:00+02:00 ")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2054, 1, 1, 8, 0, 0, 0, time.UTC)))

	got, err = ParseDate("01/02/2003")
	require.NoError(t, err)
	assert.True(t, time.Date(2003, 2, 1, 0, 0, 0, 0, time.Local).Equal(got))

	for _, bad := range []string{"", "2003-02-01", "31/02/2003", "tomorrow"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, models.ErrInvalidArgument, bad)
	}
}

func TestFormatDateTruncates(t *testing.T) {
	d := time.Date(2054, 1, 1, 9, 30, 15, 999_000_000, time.UTC)
	assert.Equal(t, "2054-01-01T09:30:15Z", FormatDate(d))
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files left behind")
}

func TestRoundTripKeepsControlWhitespace(t *testing.T) {
	for _, backend := range []models.Backend{models.BackendXML, models.BackendBolt} {
		t.Run(string(backend), func(t *testing.T) {
			ds, err := New(backend)
			require.NoError(t, err)

			c := models.NewContact(0, "a\rb")
			c.AddNotes("tab\there\r\nthen crlf")
			m, err := models.NewPastMeeting(1, time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
				[]*models.Contact{c}, "x\ry  z")
			require.NoError(t, err)
			want := &Snapshot{Contacts: []*models.Contact{c}, PastMeetings: []*models.PastMeeting{m}}

			path := filepath.Join(t.TempDir(), "data")
			require.NoError(t, ds.Save(path, want))
			got, err := ds.Load(path)
			require.NoError(t, err)
			assertSameSnapshot(t, want, got)
			assert.Equal(t, "a\rb", got.Contacts[0].Name())
		})
	}
}

func TestEncodeEscapesCarriageReturn(t *testing.T) {
	data, err := Encode(&Snapshot{Contacts: []*models.Contact{models.NewContact(0, "a\rb")}})
	require.NoError(t, err)
	assert.Contains(t, string(data), "<name>a&#xD;b</name>")
}

func TestSaveRejectsUnstorableText(t *testing.T) {
	alice := models.NewContact(0, "Alice")
	badNotes, err := models.NewPastMeeting(1, time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
		[]*models.Contact{alice}, "nul\x00inside")
	require.NoError(t, err)

	cases := map[string]*Snapshot{
		"control character": {Contacts: []*models.Contact{models.NewContact(0, "a\x01b")}},
		"invalid utf-8":     {Contacts: []*models.Contact{models.NewContact(0, "bad\xffutf8")}},
		"meeting notes":     {Contacts: []*models.Contact{alice}, PastMeetings: []*models.PastMeeting{badNotes}},
	}
	for _, backend := range []models.Backend{models.BackendXML, models.BackendBolt} {
		for name, snap := range cases {
			t.Run(string(backend)+"/"+name, func(t *testing.T) {
				ds, err := New(backend)
				require.NoError(t, err)
				path := filepath.Join(t.TempDir(), "data")

				assert.ErrorIs(t, ds.Save(path, snap), models.ErrInvalidArgument)
				assert.NoFileExists(t, path)
			})
		}
	}
}
