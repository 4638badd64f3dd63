package store

import (
	"errors"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/borgmon/contact-manager/pkg/datastore"
	"github.com/borgmon/contact-manager/pkg/models"
)

// ContactManager holds every contact and meeting in memory, assigns ids,
// validates mutations and moves meetings from future to past once notes are
// added. State reaches disk only through Flush.
type ContactManager struct {
	mu sync.RWMutex

	filename        string
	data            datastore.DataStore
	log             zerolog.Logger
	now             func() time.Time
	strictPast      bool

	// Highest ids handed out or loaded so far. Never decremented.
	lastContactID int
	lastMeetingID int

	contacts       map[int]*models.Contact
	futureMeetings map[int]*models.FutureMeeting
	pastMeetings   map[int]*models.PastMeeting

	// Map of contact ID to the IDs of meetings the contact attends
	futureByContact map[int]map[int]struct{}
	pastByContact   map[int]map[int]struct{}
}

type Option func(*ContactManager)

func WithLogger(log zerolog.Logger) Option {
	return func(cm *ContactManager) {
		cm.log = log
	}
}

// WithClock replaces time.Now as the source of "now".
func WithClock(now func() time.Time) Option {
	return func(cm *ContactManager) {
		cm.now = now
	}
}

// WithDataStore overrides the backend selected by the config.
func WithDataStore(ds datastore.DataStore) Option {
	return func(cm *ContactManager) {
		cm.data = ds
	}
}

// New creates a ContactManager backed by cfg.Filename and loads that file
// if it exists. Records in the file that cannot be decoded are skipped with
// a warning; a file that cannot be parsed at all is an error.
func New(cfg models.Config, opts ...Option) (*ContactManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cm := &ContactManager{
		filename:        cfg.Filename,
		log:             zerolog.Nop(),
		now:             time.Now,
		strictPast:      cfg.RejectFuturePastMeetings,
		lastContactID:   -1,
		lastMeetingID:   -1,
		contacts:        make(map[int]*models.Contact),
		futureMeetings:  make(map[int]*models.FutureMeeting),
		pastMeetings:    make(map[int]*models.PastMeeting),
		futureByContact: make(map[int]map[int]struct{}),
		pastByContact:   make(map[int]map[int]struct{}),
	}
	for _, opt := range opts {
		opt(cm)
	}
	if cm.data == nil {
		ds, err := datastore.New(cfg.Backend)
		if err != nil {
			return nil, err
		}
		cm.data = ds
	}

	if err := cm.load(); err != nil {
		return nil, err
	}
	return cm, nil
}

func (cm *ContactManager) load() error {
	cm.log.Debug().Str("file", cm.filename).Msg("Loading contact manager data")

	snap, err := cm.data.Load(cm.filename)
	if errors.Is(err, fs.ErrNotExist) {
		cm.log.Debug().Str("file", cm.filename).Msg("No data file yet, starting empty")
		return nil
	}
	if err != nil {
		cm.log.Error().Err(err).Str("file", cm.filename).Msg("Failed to load data file")
		return err
	}

	for _, c := range snap.Contacts {
		cm.contacts[c.ID()] = c
		cm.lastContactID = max(cm.lastContactID, c.ID())
	}
	for _, m := range snap.FutureMeetings {
		cm.putFuture(m)
	}
	for _, m := range snap.PastMeetings {
		cm.putPast(m)
	}

	// Ids of skipped records stay reserved.
	for _, rerr := range snap.Rejected {
		cm.log.Warn().Err(rerr.Err).Str("kind", string(rerr.Kind)).Int("id", rerr.ID).
			Msg("Skipping invalid record")
		if rerr.ID == datastore.NoID {
			continue
		}
		if rerr.Kind == datastore.KindContact {
			cm.lastContactID = max(cm.lastContactID, rerr.ID)
		} else {
			cm.lastMeetingID = max(cm.lastMeetingID, rerr.ID)
		}
	}

	cm.log.Info().
		Int("contacts", len(cm.contacts)).
		Int("future_meetings", len(cm.futureMeetings)).
		Int("past_meetings", len(cm.pastMeetings)).
		Int("skipped", len(snap.Rejected)).
		Msg("Loaded contact manager data")
	return nil
}

func (cm *ContactManager) putFuture(m *models.FutureMeeting) {
	cm.futureMeetings[m.ID()] = m
	cm.lastMeetingID = max(cm.lastMeetingID, m.ID())
	for _, c := range m.Contacts() {
		index(cm.futureByContact, c.ID(), m.ID())
	}
}

func (cm *ContactManager) putPast(m *models.PastMeeting) {
	cm.pastMeetings[m.ID()] = m
	cm.lastMeetingID = max(cm.lastMeetingID, m.ID())
	for _, c := range m.Contacts() {
		index(cm.pastByContact, c.ID(), m.ID())
	}
}

func index(idx map[int]map[int]struct{}, contactID, meetingID int) {
	ids, ok := idx[contactID]
	if !ok {
		ids = make(map[int]struct{})
		idx[contactID] = ids
	}
	ids[meetingID] = struct{}{}
}

// AddNewContact registers a contact and returns its id. The notes are
// trimmed; empty notes are allowed.
func (cm *ContactManager) AddNewContact(name, notes string) (int, error) {
	if name == "" {
		return 0, models.WrapError(models.ErrInvalidArgument, models.ErrMissingValue, "contact name is empty")
	}
	if err := models.CheckText("contact name", name); err != nil {
		return 0, err
	}
	if err := models.CheckText("contact notes", notes); err != nil {
		return 0, err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	id := cm.lastContactID + 1
	c := models.NewContact(id, name)
	c.AddNotes(notes)
	cm.contacts[id] = c
	cm.lastContactID = id
	return id, nil
}

// AddContactNotes appends text to the notes of a stored contact.
func (cm *ContactManager) AddContactNotes(id int, text string) error {
	if err := models.CheckText("contact notes", text); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.contacts[id]
	if !ok {
		return models.WrapError(models.ErrInvalidArgument, models.ErrNotFound, "contact %d does not exist", id)
	}
	c.AddNotes(text)
	return nil
}

// attendees resolves caller supplied contacts to the stored ones.
func (cm *ContactManager) attendees(contacts []*models.Contact) ([]*models.Contact, error) {
	if contacts == nil {
		return nil, models.NewError(models.ErrMissingValue, "contacts are nil")
	}
	if len(contacts) == 0 {
		return nil, models.NewError(models.ErrInvalidArgument, "no contacts given")
	}
	out := make([]*models.Contact, 0, len(contacts))
	for _, c := range contacts {
		if err := cm.knownContact(c); err != nil {
			return nil, err
		}
		out = append(out, cm.contacts[c.ID()])
	}
	return out, nil
}

// AddFutureMeeting schedules a meeting at date, which must not be before
// now, and returns its id.
func (cm *ContactManager) AddFutureMeeting(contacts []*models.Contact, date time.Time) (int, error) {
	if date.IsZero() {
		return 0, models.NewError(models.ErrMissingValue, "meeting date is missing")
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !models.IsInFuture(date, cm.now()) {
		return 0, models.NewError(models.ErrInvalidArgument, "date %s is in the past", date.Format(time.RFC3339))
	}
	return cm.addFuture(contacts, date)
}

func (cm *ContactManager) addFuture(contacts []*models.Contact, date time.Time) (int, error) {
	attendees, err := cm.attendees(contacts)
	if err != nil {
		return 0, err
	}
	m, err := models.NewFutureMeeting(cm.lastMeetingID+1, date, attendees)
	if err != nil {
		return 0, err
	}
	cm.putFuture(m)
	return m.ID(), nil
}

// AddNewPastMeeting records a meeting that already took place. Any date is
// accepted unless the store was configured with RejectFuturePastMeetings, in
// which case date must not be later than today.
func (cm *ContactManager) AddNewPastMeeting(contacts []*models.Contact, date time.Time, notes string) error {
	if date.IsZero() {
		return models.NewError(models.ErrMissingValue, "meeting date is missing")
	}
	if err := models.CheckText("meeting notes", notes); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.strictPast && !models.IsInPast(date, cm.now()) {
		return models.NewError(models.ErrInvalidArgument, "date %s is in the future", date.Format(time.RFC3339))
	}
	_, err := cm.addPast(contacts, date, notes)
	return err
}

func (cm *ContactManager) addPast(contacts []*models.Contact, date time.Time, notes string) (int, error) {
	attendees, err := cm.attendees(contacts)
	if err != nil {
		return 0, err
	}
	m, err := models.NewPastMeeting(cm.lastMeetingID+1, date, attendees, notes)
	if err != nil {
		return 0, err
	}
	cm.putPast(m)
	return m.ID(), nil
}

// GetPastMeeting returns a copy of the past meeting with the given id.
func (cm *ContactManager) GetPastMeeting(id int) (*models.PastMeeting, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if _, ok := cm.futureMeetings[id]; ok {
		return nil, models.NewError(models.ErrInvalidArgument, "meeting %d belongs to a future meeting", id)
	}
	m, ok := cm.pastMeetings[id]
	if !ok {
		return nil, models.NewError(models.ErrNotFound, "past meeting %d", id)
	}
	return m.Clone(), nil
}

// GetFutureMeeting returns a copy of the future meeting with the given id.
func (cm *ContactManager) GetFutureMeeting(id int) (*models.FutureMeeting, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if _, ok := cm.pastMeetings[id]; ok {
		return nil, models.NewError(models.ErrInvalidArgument, "meeting %d belongs to a past meeting", id)
	}
	m, ok := cm.futureMeetings[id]
	if !ok {
		return nil, models.NewError(models.ErrNotFound, "future meeting %d", id)
	}
	return m.Clone(), nil
}

// GetMeeting returns a copy of the meeting with the given id, past or
// future.
func (cm *ContactManager) GetMeeting(id int) (models.Meeting, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if m, ok := cm.pastMeetings[id]; ok {
		return m.Clone(), nil
	}
	if m, ok := cm.futureMeetings[id]; ok {
		return m.Clone(), nil
	}
	return nil, models.NewError(models.ErrNotFound, "meeting %d", id)
}

// knownContact checks that a stored contact has the id and name of c.
func (cm *ContactManager) knownContact(c *models.Contact) error {
	if c == nil {
		return models.NewError(models.ErrMissingValue, "contact is nil")
	}
	stored, ok := cm.contacts[c.ID()]
	if !ok || stored.Name() != c.Name() {
		return models.NewError(models.ErrInvalidArgument, "unknown contact %d (%s)", c.ID(), c.Name())
	}
	return nil
}

// GetFutureMeetingList returns the future meetings attended by contact,
// in chronological order.
func (cm *ContactManager) GetFutureMeetingList(contact *models.Contact) ([]*models.FutureMeeting, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if err := cm.knownContact(contact); err != nil {
		return nil, err
	}
	out := make([]*models.FutureMeeting, 0, len(cm.futureByContact[contact.ID()]))
	for id := range cm.futureByContact[contact.ID()] {
		out = append(out, cm.futureMeetings[id].Clone())
	}
	sortMeetings(out)
	return out, nil
}

// GetPastMeetingList returns the past meetings attended by contact, in
// chronological order.
func (cm *ContactManager) GetPastMeetingList(contact *models.Contact) ([]*models.PastMeeting, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if err := cm.knownContact(contact); err != nil {
		return nil, err
	}
	out := make([]*models.PastMeeting, 0, len(cm.pastByContact[contact.ID()]))
	for id := range cm.pastByContact[contact.ID()] {
		out = append(out, cm.pastMeetings[id].Clone())
	}
	sortMeetings(out)
	return out, nil
}

// GetFutureMeetingListOn returns the future meetings on the calendar day of
// date, in date's location, in chronological order.
func (cm *ContactManager) GetFutureMeetingListOn(date time.Time) ([]*models.FutureMeeting, error) {
	if date.IsZero() {
		return nil, models.NewError(models.ErrMissingValue, "date is missing")
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]*models.FutureMeeting, 0)
	for _, m := range cm.futureMeetings {
		if models.SameDay(date, m.Date()) {
			out = append(out, m.Clone())
		}
	}
	sortMeetings(out)
	return out, nil
}

// GetMeetingsOn returns every meeting, past or future, on the calendar day
// of date, in chronological order.
func (cm *ContactManager) GetMeetingsOn(date time.Time) ([]models.Meeting, error) {
	if date.IsZero() {
		return nil, models.NewError(models.ErrMissingValue, "date is missing")
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]models.Meeting, 0)
	for _, m := range cm.futureMeetings {
		if models.SameDay(date, m.Date()) {
			out = append(out, m.Clone())
		}
	}
	for _, m := range cm.pastMeetings {
		if models.SameDay(date, m.Date()) {
			out = append(out, m.Clone())
		}
	}
	sortMeetings(out)
	return out, nil
}

// GetAllMeetings returns every meeting in chronological order.
func (cm *ContactManager) GetAllMeetings() []models.Meeting {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]models.Meeting, 0, len(cm.futureMeetings)+len(cm.pastMeetings))
	for _, m := range cm.futureMeetings {
		out = append(out, m.Clone())
	}
	for _, m := range cm.pastMeetings {
		out = append(out, m.Clone())
	}
	sortMeetings(out)
	return out
}

func sortMeetings[M models.Meeting](ms []M) {
	sort.Slice(ms, func(i, j int) bool {
		di, dj := ms[i].Date(), ms[j].Date()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return ms[i].ID() < ms[j].ID()
	})
}

// AddMeetingNotes adds notes to a meeting. A future meeting whose date has
// come is turned into a past meeting carrying text as its notes; a past
// meeting gets text appended to its notes. Closing a meeting that is still
// ahead is a state conflict.
func (cm *ContactManager) AddMeetingNotes(id int, text string) error {
	if err := models.CheckText("meeting notes", text); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := cm.now()
	if m, ok := cm.futureMeetings[id]; ok {
		if !models.IsInPast(m.Date(), now) {
			return models.NewError(models.ErrStateConflict, "meeting %d on %s has not happened yet",
				id, m.Date().Format(time.RFC3339))
		}
		past := m.ToPast(text)
		delete(cm.futureMeetings, id)
		for _, c := range m.Contacts() {
			delete(cm.futureByContact[c.ID()], id)
		}
		cm.putPast(past)
		cm.log.Debug().Int("meeting", id).Msg("Meeting moved to past")
		return nil
	}

	if m, ok := cm.pastMeetings[id]; ok {
		if !models.IsInPast(m.Date(), now) {
			return models.NewError(models.ErrStateConflict, "meeting %d on %s has not happened yet",
				id, m.Date().Format(time.RFC3339))
		}
		m.AddNotes(text)
		return nil
	}

	return models.WrapError(models.ErrInvalidArgument, models.ErrNotFound, "meeting %d does not exist", id)
}

// GetContacts returns copies of the contacts with the given ids, ordered by
// id. Every id must exist.
func (cm *ContactManager) GetContacts(ids ...int) ([]*models.Contact, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	seen := make(map[int]bool, len(ids))
	out := make([]*models.Contact, 0, len(ids))
	for _, id := range ids {
		c, ok := cm.contacts[id]
		if !ok {
			return nil, models.NewError(models.ErrInvalidArgument, "contact with id %d does not exist", id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, c.Clone())
	}
	sortContacts(out)
	return out, nil
}

// GetContactsByName returns copies of the contacts whose name contains
// pattern, case-sensitively, ordered by id.
func (cm *ContactManager) GetContactsByName(pattern string) []*models.Contact {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]*models.Contact, 0)
	for _, c := range cm.contacts {
		if strings.Contains(c.Name(), pattern) {
			out = append(out, c.Clone())
		}
	}
	sortContacts(out)
	return out
}

// GetAllContacts returns copies of every contact ordered by id.
func (cm *ContactManager) GetAllContacts() []*models.Contact {
	return cm.GetContactsByName("")
}

func sortContacts(cs []*models.Contact) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID() < cs[j].ID() })
}

// Flush writes the whole store to the file it was loaded from.
func (cm *ContactManager) Flush() error {
	return cm.FlushTo(cm.filename)
}

// FlushTo writes the whole store to path, or to the default file name when
// path is empty. A failed write leaves both the in-memory state and any
// previous file untouched.
func (cm *ContactManager) FlushTo(path string) error {
	if path == "" {
		path = models.DefaultFilename
	}

	cm.mu.RLock()
	snap := cm.snapshot()
	cm.mu.RUnlock()

	if err := cm.data.Save(path, snap); err != nil {
		cm.log.Error().Err(err).Str("file", path).Msg("Failed to flush")
		return err
	}
	cm.log.Debug().Str("file", path).
		Int("contacts", len(snap.Contacts)).
		Int("meetings", len(snap.FutureMeetings)+len(snap.PastMeetings)).
		Msg("Flushed")
	return nil
}

func (cm *ContactManager) snapshot() *datastore.Snapshot {
	snap := &datastore.Snapshot{
		Contacts:       make([]*models.Contact, 0, len(cm.contacts)),
		FutureMeetings: make([]*models.FutureMeeting, 0, len(cm.futureMeetings)),
		PastMeetings:   make([]*models.PastMeeting, 0, len(cm.pastMeetings)),
	}
	for _, c := range cm.contacts {
		snap.Contacts = append(snap.Contacts, c.Clone())
	}
	for _, m := range cm.futureMeetings {
		snap.FutureMeetings = append(snap.FutureMeetings, m.Clone())
	}
	for _, m := range cm.pastMeetings {
		snap.PastMeetings = append(snap.PastMeetings, m.Clone())
	}
	return snap
}
