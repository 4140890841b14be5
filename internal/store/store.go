// Package store persists board snapshots keyed by room identifier.
package store

import (
	"context"
	"sort"
	"time"

	"collabboard/internal/board"
)

// Summary is the dashboard view of a stored board.
type Summary struct {
	RoomID  string    `json:"roomId"`
	Updated time.Time `json:"updated"`
}

// Record is a persisted board.
type Record struct {
	RoomID  string         `json:"roomId"`
	Owner   string         `json:"owner"`
	Data    board.Snapshot `json:"data"`
	Updated time.Time      `json:"updated"`
}

// Store is the board persistence backend. Saves are upserts keyed by room and
// resolve concurrent writers last-write-wins. The owner is recorded when the
// board is first saved and kept afterwards.
type Store interface {
	// Load returns the stored snapshot. ok is false when the room has never
	// been saved; err is only set for storage faults.
	Load(ctx context.Context, roomID string) (snap board.Snapshot, ok bool, err error)
	Save(ctx context.Context, roomID, owner string, snap board.Snapshot) error
	// List returns the owner's boards, most recently updated first.
	List(ctx context.Context, owner string) ([]Summary, error)
	Close() error
}

// Clock stamps update times. Tests swap it for a fixed sequence.
type Clock func() time.Time

func sortSummaries(s []Summary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Updated.Equal(s[j].Updated) {
			return s[i].RoomID < s[j].RoomID
		}
		return s[i].Updated.After(s[j].Updated)
	})
}
