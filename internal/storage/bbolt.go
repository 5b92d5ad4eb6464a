package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/models"
)

// ErrNotFound is returned when a keyed read misses.
var ErrNotFound = errors.New("record not found")

// BoltDB wraps bolt database operations for events and sessions.
//
// Records live under composite keys "{timestamp_ns}_{ulid}" so that cursor
// scans return them in time order; a per-record id index maps primary keys
// back to composite keys, making saves append-or-replace.
type BoltDB struct {
	db     *bbolt.DB
	logger *zap.SugaredLogger
}

// NewBoltDB opens (or creates) the database file at dbPath and initializes
// the bucket schema.
func NewBoltDB(dbPath string, logger *zap.SugaredLogger) (*BoltDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bbolt.Open(dbPath, 0o644, &bbolt.Options{
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	b := &BoltDB{db: db, logger: logger}
	if err := b.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return b, nil
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func (b *BoltDB) initBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		buckets := []string{
			EventsBucket,
			EventsByIDBucket,
			SessionsBucket,
			SessionsByIDBucket,
			MetaBucket,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		meta := tx.Bucket([]byte(MetaBucket))
		versionBytes := make([]byte, 8)
		binary.LittleEndian.PutUint64(versionBytes, CurrentSchemaVersion)
		return meta.Put([]byte(SchemaVersionKey), versionBytes)
	})
}

// GetSchemaVersion returns the stored schema version.
func (b *BoltDB) GetSchemaVersion() (uint64, error) {
	var version uint64
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(MetaBucket))
		if bucket == nil {
			return fmt.Errorf("meta bucket not found")
		}
		if v := bucket.Get([]byte(SchemaVersionKey)); v != nil {
			version = binary.LittleEndian.Uint64(v)
		}
		return nil
	})
	return version, err
}

func compositeKey(ts time.Time) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), ulid.Make().String()))
}

// SaveEvent writes an event, replacing any record with the same ID.
func (b *BoltDB) SaveEvent(e *models.RequestEvent) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := e.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		index := tx.Bucket([]byte(EventsByIDBucket))
		key := index.Get([]byte(e.ID))
		if key == nil {
			key = compositeKey(e.Timestamp)
			if err := index.Put([]byte(e.ID), key); err != nil {
				return fmt.Errorf("failed to index event: %w", err)
			}
		}
		return tx.Bucket([]byte(EventsBucket)).Put(key, data)
	})
}

// SaveSession writes a session, replacing any record with the same ID.
func (b *BoltDB) SaveSession(s *models.Session) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := s.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		index := tx.Bucket([]byte(SessionsByIDBucket))
		key := index.Get([]byte(s.ID))
		if key == nil {
			key = compositeKey(s.FirstSeen)
			if err := index.Put([]byte(s.ID), key); err != nil {
				return fmt.Errorf("failed to index session: %w", err)
			}
		}
		return tx.Bucket([]byte(SessionsBucket)).Put(key, data)
	})
}

// GetEvent returns the event with the given ID, or ErrNotFound.
func (b *BoltDB) GetEvent(id string) (*models.RequestEvent, error) {
	var event *models.RequestEvent
	err := b.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(EventsByIDBucket)).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		data := tx.Bucket([]byte(EventsBucket)).Get(key)
		if data == nil {
			return ErrNotFound
		}
		event = &models.RequestEvent{}
		return event.UnmarshalBinary(data)
	})
	return event, err
}

// GetSession returns the session with the given ID, or ErrNotFound.
func (b *BoltDB) GetSession(id string) (*models.Session, error) {
	var session *models.Session
	err := b.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(SessionsByIDBucket)).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		data := tx.Bucket([]byte(SessionsBucket)).Get(key)
		if data == nil {
			return ErrNotFound
		}
		session = &models.Session{}
		return session.UnmarshalBinary(data)
	})
	return session, err
}

// GetRecentEvents returns up to limit events, newest first.
func (b *BoltDB) GetRecentEvents(limit int) ([]*models.RequestEvent, error) {
	return b.scanEvents(limit, nil)
}

// GetEventsByClassification returns up to limit events with the given
// classification, newest first.
func (b *BoltDB) GetEventsByClassification(c models.Classification, limit int) ([]*models.RequestEvent, error) {
	filter := &EventFilter{Classification: c}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return b.scanEvents(limit, filter)
}

// QueryEvents returns up to limit events passing the filter, newest first.
func (b *BoltDB) QueryEvents(filter *EventFilter, limit int) ([]*models.RequestEvent, error) {
	if filter != nil {
		if err := filter.Validate(); err != nil {
			return nil, err
		}
	}
	return b.scanEvents(limit, filter)
}

func (b *BoltDB) scanEvents(limit int, filter *EventFilter) ([]*models.RequestEvent, error) {
	var events []*models.RequestEvent
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(EventsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			event := &models.RequestEvent{}
			if err := event.UnmarshalBinary(v); err != nil {
				b.logger.Warnw("Skipping undecodable event record", "key", string(k), "error", err)
				continue
			}
			if filter != nil && !filter.Matches(event) {
				continue
			}
			events = append(events, event)
			if limit > 0 && len(events) >= limit {
				return nil
			}
		}
		return nil
	})
	return events, err
}

// GetRecentSessions returns up to limit sessions, newest first.
func (b *BoltDB) GetRecentSessions(limit int) ([]*models.Session, error) {
	var sessions []*models.Session
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(SessionsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			session := &models.Session{}
			if err := session.UnmarshalBinary(v); err != nil {
				b.logger.Warnw("Skipping undecodable session record", "key", string(k), "error", err)
				continue
			}
			sessions = append(sessions, session)
			if limit > 0 && len(sessions) >= limit {
				return nil
			}
		}
		return nil
	})
	return sessions, err
}

// GetLatestSessionForIP returns the source's most recent session, or
// ErrNotFound. Sessions for one source never overlap, so the newest by
// start time is the newest by activity.
func (b *BoltDB) GetLatestSessionForIP(sourceIP string) (*models.Session, error) {
	var session *models.Session
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(SessionsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			s := &models.Session{}
			if err := s.UnmarshalBinary(v); err != nil {
				b.logger.Warnw("Skipping undecodable session record", "key", string(k), "error", err)
				continue
			}
			if s.SourceIP == sourceIP {
				session = s
				return nil
			}
		}
		return ErrNotFound
	})
	return session, err
}

// GetSessionEvents returns every event linked to the session, oldest first.
func (b *BoltDB) GetSessionEvents(sessionID string) ([]*models.RequestEvent, error) {
	var events []*models.RequestEvent
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(EventsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			event := &models.RequestEvent{}
			if err := event.UnmarshalBinary(v); err != nil {
				continue
			}
			if event.SessionID == sessionID {
				events = append(events, event)
			}
		}
		return nil
	})
	return events, err
}

// CountEvents returns the total number of stored events.
func (b *BoltDB) CountEvents() (int, error) {
	return b.countBucket(EventsBucket)
}

// CountSessions returns the total number of stored sessions.
func (b *BoltDB) CountSessions() (int, error) {
	return b.countBucket(SessionsBucket)
}

func (b *BoltDB) countBucket(name string) (int, error) {
	var count int
	err := b.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(name)).Stats().KeyN
		return nil
	})
	return count, err
}
