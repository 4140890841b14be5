package board

// History keeps per-client undo and redo stacks of full document snapshots.
// Every entry is a deep copy, so a checkpoint costs O(n) in the board size.
// Boards are small and a diff log would need its own merge rules.
type History struct {
	undo []Snapshot
	redo []Snapshot
}

func NewHistory() *History {
	return &History{}
}

// RecordCheckpoint pushes the pre-mutation state and drops the redo stack.
func (h *History) RecordCheckpoint(current Snapshot) {
	h.undo = append(h.undo, current.Clone())
	h.redo = nil
}

// Undo pops the latest checkpoint and moves current onto the redo stack.
// The caller installs the returned snapshot. ok is false when there is
// nothing to undo.
func (h *History) Undo(current Snapshot) (Snapshot, bool) {
	if len(h.undo) == 0 {
		return Snapshot{}, false
	}
	prev := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, current.Clone())
	return prev.Clone(), true
}

// Redo is the mirror of Undo.
func (h *History) Redo(current Snapshot) (Snapshot, bool) {
	if len(h.redo) == 0 {
		return Snapshot{}, false
	}
	next := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, current.Clone())
	return next.Clone(), true
}

func (h *History) CanUndo() bool { return len(h.undo) > 0 }
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Reset drops both stacks.
func (h *History) Reset() {
	h.undo = nil
	h.redo = nil
}
