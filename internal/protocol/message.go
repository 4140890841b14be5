// Package protocol defines the messages exchanged over a room channel and the
// rules a client follows when applying them.
package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"collabboard/internal/board"
)

// Type is the message discriminator carried in the "type" field.
type Type string

const (
	TypeJoin      Type = "join"
	TypeDraw      Type = "draw"
	TypeClear     Type = "clear"
	TypeSyncState Type = "sync-state"
	TypeDelete    Type = "delete"
)

var (
	ErrUnknownType = errors.New("protocol: unknown message type")
	ErrMissingRoom = errors.New("protocol: missing roomId")
)

// Target names a single object for a delete message.
type Target struct {
	Kind board.Kind `json:"kind"`
	ID   string     `json:"id"`
}

// Message is the envelope for every room message. RoomID is only used by the
// server for routing and is stripped before the message reaches peers.
//
// A draw message carries one object in Stroke, Shape, Text or Image. A
// sync-state message carries the full board in the embedded Snapshot.
type Message struct {
	Type   Type          `json:"type"`
	RoomID string        `json:"roomId,omitempty"`
	Stroke *board.Stroke `json:"stroke,omitempty"`
	Shape  *board.Shape  `json:"shape,omitempty"`
	Text   *board.Text   `json:"text,omitempty"`
	Image  *board.Image  `json:"image,omitempty"`
	Target *Target       `json:"target,omitempty"`

	*board.Snapshot
}

func Join(roomID string) Message {
	return Message{Type: TypeJoin, RoomID: roomID}
}

// Draw wraps obj in a draw message.
func Draw(obj board.Object) Message {
	m := Message{Type: TypeDraw}
	switch o := obj.(type) {
	case board.Stroke:
		m.Stroke = &o
	case board.Shape:
		m.Shape = &o
	case board.Text:
		m.Text = &o
	case board.Image:
		m.Image = &o
	default:
		panic(fmt.Sprintf("protocol: unsupported object %T", obj))
	}
	return m
}

func Clear() Message {
	return Message{Type: TypeClear}
}

// SyncState carries snap as a full replacement of the peers' boards.
func SyncState(snap board.Snapshot) Message {
	s := snap.Clone()
	return Message{Type: TypeSyncState, Snapshot: &s}
}

func Delete(kind board.Kind, id string) Message {
	return Message{Type: TypeDelete, Target: &Target{Kind: kind, ID: id}}
}

// InRoom returns a copy of m addressed to roomID.
func (m Message) InRoom(roomID string) Message {
	m.RoomID = roomID
	return m
}

// Objects returns the draw payloads present in m, in collection order.
func (m Message) Objects() []board.Object {
	var out []board.Object
	if m.Stroke != nil {
		out = append(out, *m.Stroke)
	}
	if m.Shape != nil {
		out = append(out, *m.Shape)
	}
	if m.Text != nil {
		out = append(out, *m.Text)
	}
	if m.Image != nil {
		out = append(out, *m.Image)
	}
	return out
}

// Known reports whether t is one of the protocol message types.
func (t Type) Known() bool {
	switch t {
	case TypeJoin, TypeDraw, TypeClear, TypeSyncState, TypeDelete:
		return true
	}
	return false
}

// Encode marshals m for the wire.
func Encode(m Message) ([]byte, error) {
	if !m.Type.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	if m.Type == TypeSyncState && m.Snapshot == nil {
		m.Snapshot = &board.Snapshot{}
	}
	return json.Marshal(m)
}

// Decode parses one wire message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if !m.Type.Known() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return m, nil
}
