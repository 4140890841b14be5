package board

import "fmt"

// collection is an ordered set of objects keyed by id. Order is paint order.
type collection[T Object] struct {
	items []T
	index map[string]int
	clone func(T) T
}

func newCollection[T Object](clone func(T) T) *collection[T] {
	return &collection[T]{index: make(map[string]int), clone: clone}
}

func (c *collection[T]) upsert(obj T) {
	obj = c.clone(obj)
	if i, ok := c.index[obj.ObjectID()]; ok {
		c.items[i] = obj
		return
	}
	c.index[obj.ObjectID()] = len(c.items)
	c.items = append(c.items, obj)
}

func (c *collection[T]) remove(id string) {
	i, ok := c.index[id]
	if !ok {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].ObjectID()] = j
	}
}

func (c *collection[T]) get(id string) (T, bool) {
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.clone(c.items[i]), true
}

func (c *collection[T]) reset(items []T) {
	c.items = make([]T, 0, len(items))
	c.index = make(map[string]int, len(items))
	for _, it := range items {
		c.upsert(it)
	}
}

func (c *collection[T]) copyItems() []T {
	out := make([]T, len(c.items))
	for i, it := range c.items {
		out[i] = c.clone(it)
	}
	return out
}

// Snapshot is a full copy of the four collections. It is used as the undo
// history entry, the sync-state payload and the persisted board data.
type Snapshot struct {
	Strokes []Stroke `json:"strokes"`
	Shapes  []Shape  `json:"shapes"`
	Texts   []Text   `json:"texts"`
	Images  []Image  `json:"images"`
}

// Empty reports whether the snapshot holds no objects.
func (s Snapshot) Empty() bool {
	return len(s.Strokes) == 0 && len(s.Shapes) == 0 && len(s.Texts) == 0 && len(s.Images) == 0
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	d := NewDocument()
	d.ReplaceAll(s)
	return d.Snapshot()
}

// Document is the in-memory board content. It is not safe for concurrent use;
// a client mutates it from a single event loop.
type Document struct {
	strokes *collection[Stroke]
	shapes  *collection[Shape]
	texts   *collection[Text]
	images  *collection[Image]
}

func NewDocument() *Document {
	return &Document{
		strokes: newCollection(Stroke.clone),
		shapes:  newCollection(Shape.clone),
		texts:   newCollection(Text.clone),
		images:  newCollection(func(i Image) Image { return i }),
	}
}

// Upsert replaces the object with the same id in its collection, keeping its
// slot, or appends it.
func (d *Document) Upsert(obj Object) {
	switch o := obj.(type) {
	case Stroke:
		d.strokes.upsert(o)
	case *Stroke:
		d.strokes.upsert(*o)
	case Shape:
		d.shapes.upsert(o)
	case *Shape:
		d.shapes.upsert(*o)
	case Text:
		d.texts.upsert(o)
	case *Text:
		d.texts.upsert(*o)
	case Image:
		d.images.upsert(o)
	case *Image:
		d.images.upsert(*o)
	default:
		panic(fmt.Sprintf("board: unsupported object %T", obj))
	}
}

// Remove deletes id from the kind collection. Missing ids are ignored.
func (d *Document) Remove(kind Kind, id string) {
	switch kind {
	case KindStroke:
		d.strokes.remove(id)
	case KindShape:
		d.shapes.remove(id)
	case KindText:
		d.texts.remove(id)
	case KindImage:
		d.images.remove(id)
	default:
		panic(fmt.Sprintf("board: unknown collection %q", kind))
	}
}

// Get looks id up in the kind collection.
func (d *Document) Get(kind Kind, id string) (Object, bool) {
	switch kind {
	case KindStroke:
		return found(d.strokes.get(id))
	case KindShape:
		return found(d.shapes.get(id))
	case KindText:
		return found(d.texts.get(id))
	case KindImage:
		return found(d.images.get(id))
	}
	panic(fmt.Sprintf("board: unknown collection %q", kind))
}

func found[T Object](obj T, ok bool) (Object, bool) {
	if !ok {
		return nil, false
	}
	return obj, true
}

// Stroke returns a copy of the stroke with the given id.
func (d *Document) Stroke(id string) (Stroke, bool) { return d.strokes.get(id) }

// Shape returns a copy of the shape with the given id.
func (d *Document) Shape(id string) (Shape, bool) { return d.shapes.get(id) }

// Text returns a copy of the text with the given id.
func (d *Document) Text(id string) (Text, bool) { return d.texts.get(id) }

// Image returns a copy of the image with the given id.
func (d *Document) Image(id string) (Image, bool) { return d.images.get(id) }

// Len returns the size of the kind collection.
func (d *Document) Len(kind Kind) int {
	switch kind {
	case KindStroke:
		return len(d.strokes.items)
	case KindShape:
		return len(d.shapes.items)
	case KindText:
		return len(d.texts.items)
	case KindImage:
		return len(d.images.items)
	}
	panic(fmt.Sprintf("board: unknown collection %q", kind))
}

// Count returns the total number of objects.
func (d *Document) Count() int {
	n := 0
	for _, k := range Kinds {
		n += d.Len(k)
	}
	return n
}

// Clear empties all four collections.
func (d *Document) Clear() {
	d.ReplaceAll(Snapshot{})
}

// ReplaceAll installs snap wholesale. The document keeps its own copy.
func (d *Document) ReplaceAll(snap Snapshot) {
	d.strokes.reset(snap.Strokes)
	d.shapes.reset(snap.Shapes)
	d.texts.reset(snap.Texts)
	d.images.reset(snap.Images)
}

// Snapshot returns a deep copy of the current content.
func (d *Document) Snapshot() Snapshot {
	return Snapshot{
		Strokes: d.strokes.copyItems(),
		Shapes:  d.shapes.copyItems(),
		Texts:   d.texts.copyItems(),
		Images:  d.images.copyItems(),
	}
}
