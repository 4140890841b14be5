package store

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"collabboard/internal/board"
)

var boardsBucket = []byte("boards")

// Bolt keeps boards in a single bbolt file, one JSON record per room.
type Bolt struct {
	db  *bolt.DB
	now Clock
}

type BoltOption func(*Bolt)

func WithClock(c Clock) BoltOption { return func(b *Bolt) { b.now = c } }

// OpenBolt opens (or creates) the database file at path.
func OpenBolt(path string, opts ...BoltOption) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boardsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	b := &Bolt{db: db, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

func (b *Bolt) Load(_ context.Context, roomID string) (board.Snapshot, bool, error) {
	var rec Record
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boardsBucket).Get([]byte(roomID))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return board.Snapshot{}, false, fmt.Errorf("load board %s: %w", roomID, err)
	}
	return rec.Data, found, nil
}

func (b *Bolt) Save(_ context.Context, roomID, owner string, snap board.Snapshot) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(boardsBucket)
		rec := Record{RoomID: roomID, Owner: owner}
		if raw := bkt.Get([]byte(roomID)); raw != nil {
			var prev Record
			if err := json.Unmarshal(raw, &prev); err != nil {
				return err
			}
			if prev.Owner != "" {
				rec.Owner = prev.Owner
			}
		}
		rec.Data = snap
		rec.Updated = b.now().UTC()
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(roomID), raw)
	})
	if err != nil {
		return fmt.Errorf("save board %s: %w", roomID, err)
	}
	return nil
}

func (b *Bolt) List(_ context.Context, owner string) ([]Summary, error) {
	out := []Summary{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boardsBucket).ForEach(func(_, raw []byte) error {
			var rec struct {
				RoomID  string    `json:"roomId"`
				Owner   string    `json:"owner"`
				Updated time.Time `json:"updated"`
			}
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if rec.Owner == owner {
				out = append(out, Summary{RoomID: rec.RoomID, Updated: rec.Updated})
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	sortSummaries(out)
	return out, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
