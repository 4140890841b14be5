package protocol

import "collabboard/internal/board"

// Apply folds a peer message into doc and reports whether doc changed.
//
// Draw upserts every object present, so resending a whole object under the
// same id converges regardless of how many intermediate sends were lost or
// reordered. A draw without any object is ignored. Join messages never reach
// peers and are ignored too.
func Apply(doc *board.Document, m Message) bool {
	switch m.Type {
	case TypeDraw:
		objs := m.Objects()
		for _, o := range objs {
			doc.Upsert(o)
		}
		return len(objs) > 0
	case TypeClear:
		doc.Clear()
		return true
	case TypeSyncState:
		if m.Snapshot == nil {
			doc.Clear()
		} else {
			doc.ReplaceAll(*m.Snapshot)
		}
		return true
	case TypeDelete:
		if m.Target == nil || !m.Target.Kind.Valid() {
			return false
		}
		doc.Remove(m.Target.Kind, m.Target.ID)
		return true
	}
	return false
}
