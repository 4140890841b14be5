package persist

import (
	"bytes"
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"collabboard/internal/board"
)

// SnapshotFunc returns the current board. It is called from the autosaver
// goroutine and must hand over a copy taken on the session's event loop.
type SnapshotFunc func(ctx context.Context) (board.Snapshot, error)

// Autosaver writes a room's board to the bridge on a fixed interval. Unchanged
// boards are not written again. A failed save is logged and retried on the
// next tick; it never touches the live document.
type Autosaver struct {
	Bridge   Bridge
	RoomID   string
	Interval time.Duration
	Log      zerolog.Logger

	last []byte
}

// Run saves every Interval until ctx is done.
func (a *Autosaver) Run(ctx context.Context, current SnapshotFunc) {
	t := time.NewTicker(a.Interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			a.SaveNow(ctx, current)
		case <-ctx.Done():
			return
		}
	}
}

// SaveNow performs one save cycle and reports whether a write happened.
func (a *Autosaver) SaveNow(ctx context.Context, current SnapshotFunc) bool {
	snap, err := current(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.Log.Warn().Err(err).Str("room", a.RoomID).Msg("autosave: no snapshot")
		}
		return false
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		a.Log.Error().Err(err).Str("room", a.RoomID).Msg("autosave: encode")
		return false
	}
	if a.last != nil && bytes.Equal(raw, a.last) {
		return false
	}
	if err := a.Bridge.Save(ctx, a.RoomID, snap); err != nil {
		a.Log.Error().Err(err).Str("room", a.RoomID).Msg("autosave failed")
		return false
	}
	a.last = raw
	a.Log.Debug().Str("room", a.RoomID).Int("bytes", len(raw)).Msg("autosaved")
	return true
}
