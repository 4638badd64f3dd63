package datastore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/borgmon/contact-manager/pkg/models"
)

var (
	bucketContacts       = []byte("contacts")
	bucketFutureMeetings = []byte("future_meetings")
	bucketPastMeetings   = []byte("past_meetings")

	buckets = [][]byte{bucketContacts, bucketFutureMeetings, bucketPastMeetings}
)

// BoltStore keeps the snapshot in a BoltDB file with one bucket per group.
// Keys are big-endian ids, values are JSON records referring to attendees
// by id. Save rewrites all three buckets in one transaction.
type BoltStore struct {
	Perm    os.FileMode
	Timeout time.Duration
}

func NewBoltStore() *BoltStore {
	return &BoltStore{Perm: 0o600, Timeout: time.Second}
}

func (s *BoltStore) open(path string, readOnly bool) (*bolt.DB, error) {
	return bolt.Open(path, s.Perm, &bolt.Options{Timeout: s.Timeout, ReadOnly: readOnly})
}

func (s *BoltStore) Load(path string) (*Snapshot, error) {
	// bolt.Open creates missing files.
	if _, err := os.Stat(path); err != nil {
		return nil, models.WrapError(models.ErrIO, err, "stat %s", path)
	}
	db, err := s.open(path, true)
	if err != nil {
		return nil, models.WrapError(models.ErrInvalidArgument, err, "open bolt database %s", path)
	}
	defer db.Close()

	var (
		contacts []contactRecord
		future   []meetingRecord
		past     []meetingRecord
		rejected []*RecordError
	)
	err = db.View(func(tx *bolt.Tx) error {
		var missing [][]byte
		for _, name := range buckets {
			if tx.Bucket(name) == nil {
				missing = append(missing, name)
			}
		}
		if len(missing) == len(buckets) {
			// A database without buckets holds no records, e.g. after a
			// first Save that failed.
			return nil
		}
		if len(missing) > 0 {
			return models.NewError(models.ErrInvalidArgument, "missing bucket %s", missing[0])
		}

		if err := tx.Bucket(bucketContacts).ForEach(func(k, v []byte) error {
			var rec contactRecord
			if rerr := decodeRecord(KindContact, k, v, &rec, &rec.ID); rerr != nil {
				rejected = append(rejected, rerr)
				return nil
			}
			contacts = append(contacts, rec)
			return nil
		}); err != nil {
			return err
		}
		var err error
		if future, err = readMeetingBucket(tx.Bucket(bucketFutureMeetings), KindFutureMeeting, &rejected); err != nil {
			return err
		}
		past, err = readMeetingBucket(tx.Bucket(bucketPastMeetings), KindPastMeeting, &rejected)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	a := newAssembler()
	a.snap.Rejected = rejected
	for _, rec := range contacts {
		a.addContact(rec)
	}
	for _, rec := range future {
		a.addFutureMeeting(rec)
	}
	for _, rec := range past {
		a.addPastMeeting(rec)
	}
	return a.snap, nil
}

func readMeetingBucket(b *bolt.Bucket, kind RecordKind, rejected *[]*RecordError) ([]meetingRecord, error) {
	var out []meetingRecord
	err := b.ForEach(func(k, v []byte) error {
		var rec meetingRecord
		if rerr := decodeRecord(kind, k, v, &rec, &rec.ID); rerr != nil {
			*rejected = append(*rejected, rerr)
			return nil
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

func decodeRecord(kind RecordKind, k, v []byte, rec any, id *int) *RecordError {
	if len(k) != 8 {
		return invalidRecord(kind, NoID, "malformed key %x", k)
	}
	key := int(binary.BigEndian.Uint64(k))
	if err := json.Unmarshal(v, rec); err != nil {
		return recordFromError(kind, key, err)
	}
	if *id != key {
		return invalidRecord(kind, key, "record id %d does not match its key", *id)
	}
	return nil
}

func (s *BoltStore) Save(path string, snap *Snapshot) error {
	contacts, future, past, err := records(snap)
	if err != nil {
		return err
	}

	db, err := s.open(path, false)
	if err != nil {
		return models.WrapError(models.ErrIO, err, "open bolt database %s", path)
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := resetBucket(tx, bucketContacts)
		if err != nil {
			return err
		}
		for _, rec := range contacts {
			if err := putRecord(b, rec.ID, rec); err != nil {
				return err
			}
		}
		if b, err = resetBucket(tx, bucketFutureMeetings); err != nil {
			return err
		}
		for _, rec := range future {
			if err := putRecord(b, rec.ID, rec); err != nil {
				return err
			}
		}
		if b, err = resetBucket(tx, bucketPastMeetings); err != nil {
			return err
		}
		for _, rec := range past {
			if err := putRecord(b, rec.ID, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.WrapError(models.ErrIO, err, "write bolt database %s", path)
	}
	return nil
}

func resetBucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		return nil, err
	}
	return tx.CreateBucket(name)
}

func putRecord(b *bolt.Bucket, id int, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put(idKey(id), data)
}

func idKey(id int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}
