package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"collabboard/internal/board"
	"collabboard/internal/session"
)

var errQuit = errors.New("quit")

const usage = `commands:
  stroke x y [x y ...]        freehand pen stroke
  erase x y [x y ...]         eraser stroke
  rect|circle|arrow x1 y1 x2 y2
  text x y words...
  edit id words...
  image file x y [w h]
  move kind id x y
  delete kind id
  clear | undo | redo | show | help | quit`

// style holds the paint settings the command line was started with.
type style struct {
	Color string
	Fill  string
	Width float64
}

// execLine applies one command to e and returns what to print.
func execLine(e *session.Editor, st style, line string) (string, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return "", nil
	}
	cmd, args := f[0], f[1:]
	switch cmd {
	case "stroke", "erase":
		pts, err := floats(args)
		if err != nil {
			return "", err
		}
		if len(pts) < 2 || len(pts)%2 != 0 {
			return "", fmt.Errorf("%s needs x y pairs", cmd)
		}
		tool := board.ToolPen
		if cmd == "erase" {
			tool = board.ToolEraser
		}
		g := e.BeginStroke(tool, st.Color, st.Width, pts[0], pts[1])
		for i := 2; i < len(pts); i += 2 {
			g.MoveTo(pts[i], pts[i+1])
		}
		return g.ID(), nil

	case board.ShapeRect, board.ShapeCircle, board.ShapeArrow:
		pts, err := floats(args)
		if err != nil {
			return "", err
		}
		if len(pts) != 4 {
			return "", fmt.Errorf("%s needs x1 y1 x2 y2", cmd)
		}
		g := e.BeginShape(cmd, session.ShapeStyle{Stroke: st.Color, Fill: st.Fill, StrokeWidth: st.Width}, pts[0], pts[1])
		g.MoveTo(pts[2], pts[3])
		return g.ID(), nil

	case "text":
		if len(args) < 2 {
			return "", errors.New("text needs x y")
		}
		pts, err := floats(args[:2])
		if err != nil {
			return "", err
		}
		return e.AddText(pts[0], pts[1], strings.Join(args[2:], " "), st.Color), nil

	case "edit":
		if len(args) < 1 {
			return "", errors.New("edit needs an id")
		}
		if !e.EditText(args[0], strings.Join(args[1:], " ")) {
			return "", fmt.Errorf("no text %q", args[0])
		}
		return args[0], nil

	case "image":
		return addImage(e, args)

	case "move":
		if len(args) != 4 {
			return "", errors.New("move needs kind id x y")
		}
		pts, err := floats(args[2:])
		if err != nil {
			return "", err
		}
		obj, ok := e.Document().Get(board.Kind(args[0]), args[1])
		if !ok {
			return "", fmt.Errorf("no %s %q", args[0], args[1])
		}
		if !e.Update(moved(obj, pts[0], pts[1])) {
			return "", fmt.Errorf("no %s %q", args[0], args[1])
		}
		return args[1], nil

	case "delete":
		if len(args) != 2 || !board.Kind(args[0]).Valid() {
			return "", errors.New("delete needs kind id")
		}
		if !e.Delete(board.Kind(args[0]), args[1]) {
			return "", fmt.Errorf("no %s %q", args[0], args[1])
		}
		return "deleted", nil

	case "clear":
		e.Clear()
		return "cleared", nil
	case "undo":
		if !e.Undo() {
			return "nothing to undo", nil
		}
		return "undone", nil
	case "redo":
		if !e.Redo() {
			return "nothing to redo", nil
		}
		return "redone", nil
	case "show":
		return describe(e.Document()), nil
	case "help":
		return usage, nil
	case "quit", "exit":
		return "", errQuit
	}
	return "", fmt.Errorf("unknown command %q (try help)", cmd)
}

func floats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func addImage(e *session.Editor, args []string) (string, error) {
	if len(args) != 3 && len(args) != 5 {
		return "", errors.New("image needs file x y [w h]")
	}
	nums, err := floats(args[1:])
	if err != nil {
		return "", err
	}
	w, h := 150.0, 100.0
	if len(nums) == 4 {
		w, h = nums[2], nums[3]
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	src := "data:" + http.DetectContentType(raw) + ";base64," + base64.StdEncoding.EncodeToString(raw)
	return e.AddImage(src, nums[0], nums[1], w, h), nil
}

// moved returns obj translated so that its anchor sits at (x, y).
func moved(obj board.Object, x, y float64) board.Object {
	switch o := obj.(type) {
	case board.Stroke:
		if len(o.Points) >= 2 {
			dx, dy := x-o.Points[0], y-o.Points[1]
			for i := 0; i+1 < len(o.Points); i += 2 {
				o.Points[i] += dx
				o.Points[i+1] += dy
			}
		}
		return o
	case board.Shape:
		dx, dy := x-o.X, y-o.Y
		o.X, o.Y = x, y
		o.X2 += dx
		o.Y2 += dy
		return o
	case board.Text:
		o.X, o.Y = x, y
		return o
	case board.Image:
		o.X, o.Y = x, y
		return o
	}
	return obj
}

func describe(doc *board.Document) string {
	snap := doc.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "%d strokes, %d shapes, %d texts, %d images",
		len(snap.Strokes), len(snap.Shapes), len(snap.Texts), len(snap.Images))
	for _, s := range snap.Strokes {
		fmt.Fprintf(&b, "\n  stroke %s %s %d points", s.ID, s.Tool, len(s.Points)/2)
	}
	for _, s := range snap.Shapes {
		fmt.Fprintf(&b, "\n  shape  %s %s (%g,%g)-(%g,%g)", s.ID, s.Type, s.X, s.Y, s.X2, s.Y2)
	}
	for _, t := range snap.Texts {
		fmt.Fprintf(&b, "\n  text   %s %q", t.ID, t.Content)
	}
	for _, i := range snap.Images {
		fmt.Fprintf(&b, "\n  image  %s %gx%g", i.ID, i.Width, i.Height)
	}
	return b.String()
}
