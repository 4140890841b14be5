package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabboard/internal/board"
	"collabboard/internal/protocol"
	"collabboard/internal/session"
)

type discard struct{ n int }

func (d *discard) Send(protocol.Message) error { d.n++; return nil }

func newTestEditor() (*session.Editor, *discard) {
	out := &discard{}
	return session.NewEditor(out, session.WithIDs(&board.SequenceGenerator{})), out
}

var testStyle = style{Color: "#000", Fill: "#fff", Width: 2}

func run(t *testing.T, e *session.Editor, line string) string {
	t.Helper()
	msg, err := execLine(e, testStyle, line)
	require.NoError(t, err, line)
	return msg
}

func TestExecDrawing(t *testing.T) {
	e, out := newTestEditor()

	assert.Equal(t, "line1", run(t, e, "stroke 0 0 10 10 20 20"))
	s, _ := e.Document().Stroke("line1")
	assert.Len(t, s.Points, 6)
	assert.Equal(t, 3, out.n, "one draw per point")

	assert.Equal(t, "shape2", run(t, e, "rect 1 2 30 40"))
	sh, _ := e.Document().Shape("shape2")
	assert.Equal(t, 30.0, sh.X2)
	assert.Equal(t, "#fff", sh.Fill)

	id := run(t, e, "text 5 5 hello world")
	txt, _ := e.Document().Text(id)
	assert.Equal(t, "hello world", txt.Content)
	run(t, e, "edit "+id+" bye")
	txt, _ = e.Document().Text(id)
	assert.Equal(t, "bye", txt.Content)

	run(t, e, "move shape shape2 11 12")
	sh, _ = e.Document().Shape("shape2")
	assert.Equal(t, 11.0, sh.X)
	assert.Equal(t, 40.0, sh.X2)

	assert.Contains(t, run(t, e, "show"), "1 strokes, 1 shapes, 1 texts, 0 images")
}

func TestExecHistory(t *testing.T) {
	e, _ := newTestEditor()
	assert.Equal(t, "nothing to undo", run(t, e, "undo"))
	run(t, e, "stroke 1 1 2 2")
	run(t, e, "clear")
	assert.Equal(t, 0, e.Document().Count())
	assert.Equal(t, "undone", run(t, e, "undo"))
	assert.Equal(t, 1, e.Document().Count())
	assert.Equal(t, "redone", run(t, e, "redo"))
	assert.Equal(t, 0, e.Document().Count())
}

func TestExecImage(t *testing.T) {
	e, _ := newTestEditor()
	path := filepath.Join(t.TempDir(), "pic.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	require.NoError(t, os.WriteFile(path, png, 0o600))

	id := run(t, e, "image "+path+" 10 10")
	img, ok := e.Document().Image(id)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(img.Src, "data:image/png;base64,"))
	assert.Equal(t, 150.0, img.Width)

	run(t, e, "delete image "+id)
	assert.Equal(t, 0, e.Document().Count())
}

func TestExecErrors(t *testing.T) {
	e, _ := newTestEditor()
	for _, line := range []string{
		"stroke 1",
		"stroke a b",
		"rect 1 2 3",
		"edit nope hi",
		"delete widget x",
		"delete shape missing",
		"move text missing 1 1",
		"scribble",
	} {
		_, err := execLine(e, testStyle, line)
		assert.Error(t, err, line)
	}
	_, err := execLine(e, testStyle, "quit")
	assert.ErrorIs(t, err, errQuit)

	msg, err := execLine(e, testStyle, "   ")
	assert.NoError(t, err)
	assert.Empty(t, msg)
}
