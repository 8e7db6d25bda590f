package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	usersBucket    = []byte("users")
	sessionsBucket = []byte("sessions")
	messagesBucket = []byte("messages")
)

// BoltStore implements Store on an embedded bbolt database. Intended for
// single-binary deployments where the SQLite driver (cgo) is unwanted.
type BoltStore struct {
	db *bolt.DB
}

type boltSession struct {
	UserID    string    `json:"user_email"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
}

type boltMessage struct {
	Human     string    `json:"human"`
	AI        string    `json:"ai"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{usersBucket, sessionsBucket, messagesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) EnsureUser(_ context.Context, userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(usersBucket).Put([]byte(userID), []byte{1})
	})
}

func (s *BoltStore) GetOrCreateSession(_ context.Context, sessionID, userID, title string, startTime time.Time) (SessionRecord, error) {
	var rec SessionRecord
	// bolt serializes writers, so check-then-put here is atomic: concurrent
	// identical calls cannot create two sessions under one id.
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		if v := b.Get([]byte(sessionID)); v != nil {
			var existing boltSession
			if err := json.Unmarshal(v, &existing); err != nil {
				return fmt.Errorf("decoding session %s: %w", sessionID, err)
			}
			if existing.UserID != userID {
				return ErrSessionOwned
			}
			rec = SessionRecord{ID: sessionID, UserID: existing.UserID, Title: existing.Title, StartTime: existing.StartTime}
			return nil
		}

		data, err := json.Marshal(boltSession{UserID: userID, Title: title, StartTime: startTime.UTC()})
		if err != nil {
			return err
		}
		if err := b.Put([]byte(sessionID), data); err != nil {
			return err
		}
		rec = SessionRecord{ID: sessionID, UserID: userID, Title: title, StartTime: startTime.UTC()}
		return nil
	})
	if err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

func (s *BoltStore) ListSessionsForUser(_ context.Context, userID string) ([]SessionSummary, error) {
	summaries := []SessionSummary{}
	err := s.db.View(func(tx *bolt.Tx) error {
		msgs := tx.Bucket(messagesBucket)
		return tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			var sess boltSession
			if err := json.Unmarshal(v, &sess); err != nil {
				return fmt.Errorf("decoding session %s: %w", k, err)
			}
			if sess.UserID != userID {
				return nil
			}
			count := 0
			if sb := msgs.Bucket(k); sb != nil {
				count = sb.Stats().KeyN
			}
			summaries = append(summaries, SessionSummary{
				ID:           string(k),
				Title:        sess.Title,
				StartTime:    sess.StartTime,
				MessageCount: count,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime)
	})
	return summaries, nil
}

func (s *BoltStore) AppendMessage(_ context.Context, sessionID, human, ai string, ts time.Time) (int64, error) {
	var id int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		sb, err := tx.Bucket(messagesBucket).CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return err
		}
		seq, err := sb.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(boltMessage{Human: human, AI: ai, Timestamp: ts.UTC()})
		if err != nil {
			return err
		}
		if err := sb.Put(seqKey(seq), data); err != nil {
			return err
		}
		id = int64(seq)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("appending message to session %s: %w", sessionID, err)
	}
	return id, nil
}

func (s *BoltStore) ListMessages(_ context.Context, sessionID string) ([]MessageRecord, error) {
	msgs := []MessageRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(messagesBucket).Bucket([]byte(sessionID))
		if sb == nil {
			return nil
		}
		return sb.ForEach(func(k, v []byte) error {
			var m boltMessage
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decoding message %d: %w", binary.BigEndian.Uint64(k), err)
			}
			msgs = append(msgs, MessageRecord{
				ID:        int64(binary.BigEndian.Uint64(k)),
				SessionID: sessionID,
				Human:     m.Human,
				AI:        m.AI,
				Timestamp: m.Timestamp,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// Keys iterate in insertion order; the stable sort leaves that order in
	// place for equal timestamps, matching the surrogate-id tie-break.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

func (s *BoltStore) CountMessages(_ context.Context, sessionID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		if sb := tx.Bucket(messagesBucket).Bucket([]byte(sessionID)); sb != nil {
			count = sb.Stats().KeyN
		}
		return nil
	})
	return count, err
}

func (s *BoltStore) DeleteSession(_ context.Context, sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(messagesBucket).Bucket([]byte(sessionID)) != nil {
			if err := tx.Bucket(messagesBucket).DeleteBucket([]byte(sessionID)); err != nil {
				return err
			}
		}
		return tx.Bucket(sessionsBucket).Delete([]byte(sessionID))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
