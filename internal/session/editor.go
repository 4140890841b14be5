// Package session is the client side of a room: a local board that applies the
// user's own edits optimistically, keeps undo history and folds in whatever
// peers send.
package session

import (
	"github.com/rs/zerolog"

	"collabboard/internal/board"
	"collabboard/internal/protocol"
)

// Outbox accepts messages for the room. Implementations stamp the room id.
type Outbox interface {
	Send(m protocol.Message) error
}

const eraserColor = "#fff"

// Editor owns one board and its history. It is not safe for concurrent use;
// a Session drives it from a single goroutine.
type Editor struct {
	doc  *board.Document
	hist *board.History
	ids  board.IDGenerator
	out  Outbox
	log  zerolog.Logger
}

type EditorOption func(*Editor)

func WithIDs(g board.IDGenerator) EditorOption { return func(e *Editor) { e.ids = g } }

func WithEditorLogger(l zerolog.Logger) EditorOption { return func(e *Editor) { e.log = l } }

func NewEditor(out Outbox, opts ...EditorOption) *Editor {
	e := &Editor{
		doc:  board.NewDocument(),
		hist: board.NewHistory(),
		ids:  board.UUIDGenerator{},
		out:  out,
		log:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Document exposes the live board for reads.
func (e *Editor) Document() *board.Document { return e.doc }

// Snapshot returns a copy of the live board.
func (e *Editor) Snapshot() board.Snapshot { return e.doc.Snapshot() }

func (e *Editor) CanUndo() bool { return e.hist.CanUndo() }
func (e *Editor) CanRedo() bool { return e.hist.CanRedo() }

// send never fails the local edit; the peer copy converges on the next
// full-object send or sync-state.
func (e *Editor) send(m protocol.Message) {
	if err := e.out.Send(m); err != nil {
		e.log.Warn().Err(err).Str("type", string(m.Type)).Msg("send dropped")
	}
}

func (e *Editor) checkpoint() {
	e.hist.RecordCheckpoint(e.doc.Snapshot())
}

func (e *Editor) put(obj board.Object) {
	e.doc.Upsert(obj)
	e.send(protocol.Draw(obj))
}

// Gesture is an in-progress stroke or shape drag. Every move re-sends the
// whole object under its id.
type Gesture struct {
	e    *Editor
	kind board.Kind
	id   string
}

func (g *Gesture) ID() string { return g.id }

func (g *Gesture) Kind() board.Kind { return g.kind }

// MoveTo extends the gesture to (x, y). It reports false once the object is
// gone, for example after a peer cleared the board.
func (g *Gesture) MoveTo(x, y float64) bool {
	switch g.kind {
	case board.KindStroke:
		s, ok := g.e.doc.Stroke(g.id)
		if !ok {
			return false
		}
		s.AddPoint(x, y)
		g.e.put(s)
	case board.KindShape:
		s, ok := g.e.doc.Shape(g.id)
		if !ok {
			return false
		}
		s.X2, s.Y2 = x, y
		g.e.put(s)
	default:
		return false
	}
	return true
}

// BeginStroke starts a pen or eraser stroke at (x, y).
func (e *Editor) BeginStroke(tool, color string, width, x, y float64) *Gesture {
	if tool == board.ToolEraser {
		color = eraserColor
	} else {
		tool = board.ToolPen
	}
	e.checkpoint()
	s := board.Stroke{
		ID:     e.ids.NewID(board.KindStroke),
		Tool:   tool,
		Points: []float64{x, y},
		Color:  color,
		Width:  width,
	}
	e.put(s)
	return &Gesture{e: e, kind: board.KindStroke, id: s.ID}
}

// ShapeStyle holds the paint settings for a new shape.
type ShapeStyle struct {
	Stroke      string
	Fill        string
	StrokeWidth float64
}

// BeginShape starts dragging a rect, circle or arrow anchored at (x, y).
func (e *Editor) BeginShape(typ string, style ShapeStyle, x, y float64) *Gesture {
	e.checkpoint()
	s := board.Shape{
		ID:          e.ids.NewID(board.KindShape),
		Type:        typ,
		X:           x,
		Y:           y,
		X2:          x,
		Y2:          y,
		Stroke:      style.Stroke,
		Fill:        style.Fill,
		StrokeWidth: style.StrokeWidth,
		ScaleX:      1,
		ScaleY:      1,
	}
	if typ == board.ShapeArrow {
		// a zero-length arrow has no direction to render
		s.X2, s.Y2 = x+1, y+1
		s.Fill = style.Stroke
	}
	e.put(s)
	return &Gesture{e: e, kind: board.KindShape, id: s.ID}
}

// AddText places a text box, usually empty while the user is still typing.
func (e *Editor) AddText(x, y float64, content, fill string) string {
	e.checkpoint()
	t := board.Text{ID: e.ids.NewID(board.KindText), Content: content, X: x, Y: y, Fill: fill}
	e.put(t)
	return t.ID
}

// EditText replaces the content of an existing text.
func (e *Editor) EditText(id, content string) bool {
	t, ok := e.doc.Text(id)
	if !ok {
		return false
	}
	e.checkpoint()
	t.Content = content
	e.put(t)
	return true
}

// AddImage places an image given as a data URI.
func (e *Editor) AddImage(src string, x, y, width, height float64) string {
	e.checkpoint()
	img := board.Image{
		ID:     e.ids.NewID(board.KindImage),
		Src:    src,
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
		ScaleX: 1,
		ScaleY: 1,
	}
	e.put(img)
	return img.ID
}

// Update replaces an existing object, typically at the end of a move or
// transform. Objects that are not on the board are ignored.
func (e *Editor) Update(obj board.Object) bool {
	if _, ok := e.doc.Get(obj.ObjectKind(), obj.ObjectID()); !ok {
		return false
	}
	e.checkpoint()
	e.put(obj)
	return true
}

// Delete removes one object and tells the peers.
func (e *Editor) Delete(kind board.Kind, id string) bool {
	if _, ok := e.doc.Get(kind, id); !ok {
		return false
	}
	e.checkpoint()
	e.doc.Remove(kind, id)
	e.send(protocol.Delete(kind, id))
	return true
}

func (e *Editor) Clear() {
	e.checkpoint()
	e.doc.Clear()
	e.send(protocol.Clear())
}

// Undo restores the previous checkpoint and pushes the whole board to the
// peers so they end up in the exact same state.
func (e *Editor) Undo() bool {
	snap, ok := e.hist.Undo(e.doc.Snapshot())
	if !ok {
		return false
	}
	e.install(snap)
	return true
}

func (e *Editor) Redo() bool {
	snap, ok := e.hist.Redo(e.doc.Snapshot())
	if !ok {
		return false
	}
	e.install(snap)
	return true
}

func (e *Editor) install(snap board.Snapshot) {
	e.doc.ReplaceAll(snap)
	e.send(protocol.SyncState(snap))
}

// ApplyRemote folds a peer message into the board. Peer edits never touch
// the local history.
func (e *Editor) ApplyRemote(m protocol.Message) bool {
	return protocol.Apply(e.doc, m)
}

// Hydrate installs a stored board as the starting state. Nothing is sent and
// the history starts over.
func (e *Editor) Hydrate(snap board.Snapshot) {
	e.doc.ReplaceAll(snap)
	e.hist.Reset()
}
