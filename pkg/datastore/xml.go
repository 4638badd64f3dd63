package datastore

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/beevik/etree"

	"github.com/borgmon/contact-manager/pkg/models"
)

const (
	tagRoot           = "ContactManagerData"
	tagContacts       = "Contacts"
	tagFutureMeetings = "FutureMeetings"
	tagPastMeetings   = "PastMeetings"
	tagContact        = "contact"
	tagMeeting        = "meeting"
	tagName           = "name"
	tagNotes          = "notes"
	tagDate           = "date"
	tagAttendees      = "contacts"
	attrID            = "id"
)

var (
	errMissingTag    = errors.New("missing tag")
	errDuplicateTag  = errors.New("duplicate tag")
	errDuplicateText = errors.New("more than one text node")
	errNestedElement = errors.New("unexpected element inside data tag")
)

// XMLStore keeps the snapshot in a single indented XML document:
//
//	<ContactManagerData>
//	  <Contacts>
//	    <contact id="0"><name>Alice</name><notes/></contact>
//	  </Contacts>
//	  <FutureMeetings>
//	    <meeting id="0">
//	      <date>2054-01-01T00:00:00Z</date>
//	      <contacts><contact id="0"/></contacts>
//	    </meeting>
//	  </FutureMeetings>
//	  <PastMeetings>
//	    <meeting id="1">...<notes>hello</notes></meeting>
//	  </PastMeetings>
//	</ContactManagerData>
type XMLStore struct {
	Perm os.FileMode
}

func NewXMLStore() *XMLStore {
	return &XMLStore{Perm: 0o644}
}

func (s *XMLStore) Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.WrapError(models.ErrIO, err, "read %s", path)
	}
	snap, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

func (s *XMLStore) Save(path string, snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, s.Perm)
}

// Encode renders snap as an XML document. Records are written in id order.
func Encode(snap *Snapshot) ([]byte, error) {
	contacts, future, past, err := records(snap)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	// Escapes \r, which a parser would otherwise read back as \n.
	doc.WriteSettings.CanonicalText = true
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(tagRoot)

	group := root.CreateElement(tagContacts)
	for _, c := range contacts {
		el := group.CreateElement(tagContact)
		el.CreateAttr(attrID, strconv.Itoa(c.ID))
		el.CreateElement(tagName).SetText(c.Name)
		el.CreateElement(tagNotes).SetText(c.Notes)
	}

	group = root.CreateElement(tagFutureMeetings)
	for _, m := range future {
		writeMeeting(group, m)
	}

	group = root.CreateElement(tagPastMeetings)
	for _, m := range past {
		writeMeeting(group, m)
	}

	settings := etree.NewIndentSettings()
	settings.Spaces = 2
	settings.PreserveLeafWhitespace = true
	doc.IndentWithSettings(settings)

	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, models.WrapError(models.ErrIO, err, "encode xml")
	}
	return data, nil
}

func writeMeeting(group *etree.Element, m meetingRecord) {
	el := group.CreateElement(tagMeeting)
	el.CreateAttr(attrID, strconv.Itoa(m.ID))
	el.CreateElement(tagDate).SetText(m.Date)
	attendees := el.CreateElement(tagAttendees)
	for _, id := range m.Contacts {
		attendees.CreateElement(tagContact).CreateAttr(attrID, strconv.Itoa(id))
	}
	if m.Notes != nil {
		el.CreateElement(tagNotes).SetText(*m.Notes)
	}
}

// Decode parses an XML document produced by Encode. Records that fail to
// decode are listed in Snapshot.Rejected; a document that is not XML or
// lacks one of the three groups is an error.
func Decode(data []byte) (*Snapshot, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, models.WrapError(models.ErrInvalidArgument, err, "xml could not be parsed")
	}
	root := doc.Root()
	if root == nil || root.Tag != tagRoot {
		return nil, models.NewError(models.ErrInvalidArgument, "missing %s element", tagRoot)
	}

	groups := make(map[string]*etree.Element, 3)
	for _, tag := range []string{tagContacts, tagFutureMeetings, tagPastMeetings} {
		found := root.SelectElements(tag)
		switch len(found) {
		case 0:
			return nil, models.NewError(models.ErrInvalidArgument, "missing %s group", tag)
		case 1:
			groups[tag] = found[0]
		default:
			return nil, models.NewError(models.ErrInvalidArgument, "%s group appears %d times", tag, len(found))
		}
	}

	a := newAssembler()
	for _, el := range groups[tagContacts].ChildElements() {
		rec, rerr := readContact(el)
		if rerr != nil {
			a.reject(rerr)
			continue
		}
		a.addContact(rec)
	}
	for _, el := range groups[tagFutureMeetings].ChildElements() {
		rec, rerr := readMeeting(KindFutureMeeting, el)
		if rerr != nil {
			a.reject(rerr)
			continue
		}
		a.addFutureMeeting(rec)
	}
	for _, el := range groups[tagPastMeetings].ChildElements() {
		rec, rerr := readMeeting(KindPastMeeting, el)
		if rerr != nil {
			a.reject(rerr)
			continue
		}
		a.addPastMeeting(rec)
	}
	return a.snap, nil
}

func readContact(el *etree.Element) (contactRecord, *RecordError) {
	if el.Tag != tagContact {
		return contactRecord{}, invalidRecord(KindContact, NoID, "unexpected element <%s>", el.Tag)
	}
	id, err := readID(el)
	if err != nil {
		return contactRecord{}, recordFromError(KindContact, NoID, err)
	}
	name, err := readData(el, tagName)
	if err != nil {
		return contactRecord{}, recordFromError(KindContact, id, err)
	}
	notes, err := readData(el, tagNotes)
	if err != nil {
		return contactRecord{}, recordFromError(KindContact, id, err)
	}
	return contactRecord{ID: id, Name: name, Notes: notes}, nil
}

func readMeeting(kind RecordKind, el *etree.Element) (meetingRecord, *RecordError) {
	if el.Tag != tagMeeting {
		return meetingRecord{}, invalidRecord(kind, NoID, "unexpected element <%s>", el.Tag)
	}
	id, err := readID(el)
	if err != nil {
		return meetingRecord{}, recordFromError(kind, NoID, err)
	}
	rec := meetingRecord{ID: id}

	if rec.Date, err = readData(el, tagDate); err != nil {
		return meetingRecord{}, recordFromError(kind, id, err)
	}

	attendees, err := single(el, tagAttendees, true)
	if err != nil {
		return meetingRecord{}, recordFromError(kind, id, err)
	}
	for _, c := range attendees.ChildElements() {
		if c.Tag != tagContact {
			return meetingRecord{}, invalidRecord(kind, id, "unexpected element <%s> in attendees", c.Tag)
		}
		cid, err := readID(c)
		if err != nil {
			return meetingRecord{}, recordFromError(kind, id, err)
		}
		rec.Contacts = append(rec.Contacts, cid)
	}

	notes, err := single(el, tagNotes, kind == KindPastMeeting)
	if err != nil {
		return meetingRecord{}, recordFromError(kind, id, err)
	}
	if notes != nil {
		text, err := textOf(notes)
		if err != nil {
			return meetingRecord{}, recordFromError(kind, id, err)
		}
		rec.Notes = &text
	}
	return rec, nil
}

func readID(el *etree.Element) (int, error) {
	attr := el.SelectAttr(attrID)
	if attr == nil {
		return 0, models.NewError(models.ErrInvalidArgument, "<%s> has no %s attribute", el.Tag, attrID)
	}
	id, err := strconv.Atoi(attr.Value)
	if err != nil || id < 0 {
		return 0, models.NewError(models.ErrInvalidArgument, "<%s> has malformed %s %q", el.Tag, attrID, attr.Value)
	}
	return id, nil
}

// single returns the only child of el with the given tag. A missing child is
// an error only when required.
func single(el *etree.Element, tag string, required bool) (*etree.Element, error) {
	found := el.SelectElements(tag)
	switch {
	case len(found) > 1:
		return nil, models.WrapError(models.ErrInvalidArgument, errDuplicateTag, "<%s>", tag)
	case len(found) == 1:
		return found[0], nil
	case required:
		return nil, models.WrapError(models.ErrInvalidArgument, errMissingTag, "<%s>", tag)
	}
	return nil, nil
}

func readData(el *etree.Element, tag string) (string, error) {
	child, err := single(el, tag, true)
	if err != nil {
		return "", err
	}
	return textOf(child)
}

// textOf returns the text of a data tag, which may hold at most one text
// node and no elements.
func textOf(el *etree.Element) (string, error) {
	var (
		text  string
		found bool
	)
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			if found {
				return "", models.WrapError(models.ErrInvalidArgument, errDuplicateText, "<%s>", el.Tag)
			}
			text, found = t.Data, true
		case *etree.Element:
			return "", models.WrapError(models.ErrInvalidArgument, errNestedElement, "<%s> inside <%s>", t.Tag, el.Tag)
		}
	}
	return text, nil
}
