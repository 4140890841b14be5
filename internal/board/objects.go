package board

// Kind names one of the four collections of a Document.
type Kind string

const (
	KindStroke Kind = "stroke"
	KindShape  Kind = "shape"
	KindText   Kind = "text"
	KindImage  Kind = "image"
)

// Kinds lists every collection in paint order.
var Kinds = []Kind{KindStroke, KindShape, KindText, KindImage}

// Valid reports whether k names a known collection.
func (k Kind) Valid() bool {
	switch k {
	case KindStroke, KindShape, KindText, KindImage:
		return true
	}
	return false
}

// DefaultFontSize is used for texts that never had a size set.
const DefaultFontSize = 20.0

const (
	ToolPen    = "pen"
	ToolEraser = "eraser"

	ShapeRect   = "rect"
	ShapeCircle = "circle"
	ShapeArrow  = "arrow"
)

// Object is a drawable stored in one of the Document collections.
type Object interface {
	ObjectID() string
	ObjectKind() Kind
}

// Stroke is a freehand line. Points is flattened as x0, y0, x1, y1, ...
type Stroke struct {
	ID     string    `json:"id"`
	Tool   string    `json:"tool"`
	Points []float64 `json:"points"`
	Color  string    `json:"color"`
	Width  float64   `json:"width"`
}

func (s Stroke) ObjectID() string { return s.ID }
func (s Stroke) ObjectKind() Kind { return KindStroke }

// AddPoint appends one (x, y) pair.
func (s *Stroke) AddPoint(x, y float64) {
	s.Points = append(s.Points, x, y)
}

func (s Stroke) clone() Stroke {
	s.Points = append([]float64(nil), s.Points...)
	return s
}

// Shape is a rectangle, circle or arrow spanning (X, Y) to (X2, Y2). Width,
// Height and Radius are only set once the shape has been resized.
type Shape struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	X2          float64  `json:"x2"`
	Y2          float64  `json:"y2"`
	Stroke      string   `json:"stroke"`
	Fill        string   `json:"fill"`
	StrokeWidth float64  `json:"strokeWidth"`
	ScaleX      float64  `json:"scaleX"`
	ScaleY      float64  `json:"scaleY"`
	Rotation    float64  `json:"rotation"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	Radius      *float64 `json:"radius,omitempty"`
}

func (s Shape) ObjectID() string { return s.ID }
func (s Shape) ObjectKind() Kind { return KindShape }

func (s Shape) clone() Shape {
	s.Width = cloneFloat(s.Width)
	s.Height = cloneFloat(s.Height)
	s.Radius = cloneFloat(s.Radius)
	return s
}

// Text is a text label. Content may be empty while it is being edited.
type Text struct {
	ID       string   `json:"id"`
	Content  string   `json:"text"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Fill     string   `json:"fill"`
	FontSize *float64 `json:"fontSize,omitempty"`
	Rotation float64  `json:"rotation,omitempty"`
}

func (t Text) ObjectID() string { return t.ID }
func (t Text) ObjectKind() Kind { return KindText }

// FontSizeOrDefault returns the font size, falling back to DefaultFontSize.
func (t Text) FontSizeOrDefault() float64 {
	if t.FontSize == nil {
		return DefaultFontSize
	}
	return *t.FontSize
}

func (t Text) clone() Text {
	t.FontSize = cloneFloat(t.FontSize)
	return t
}

// Image is an uploaded picture. Src carries the inline data URI.
type Image struct {
	ID       string  `json:"id"`
	Src      string  `json:"src"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
	Rotation float64 `json:"rotation"`
}

func (i Image) ObjectID() string { return i.ID }
func (i Image) ObjectKind() Kind { return KindImage }

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float returns a pointer to v, for the optional geometry fields.
func Float(v float64) *float64 {
	return &v
}
