package protocol

import (
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

// Routed is a raw message as seen by the relay: its type, the room it is
// addressed to and the payload to forward to peers.
type Routed struct {
	Type    Type
	RoomID  string
	Payload []byte
}

// Route inspects a raw client message without decoding the drawing payload.
// The forwarded payload is the incoming message minus its roomId, so fields
// the relay does not know about still reach the peers.
func Route(data []byte) (Routed, error) {
	typ, err := jsonparser.GetString(data, "type")
	if err != nil {
		return Routed{}, fmt.Errorf("route message: type: %w", err)
	}
	r := Routed{Type: Type(typ)}
	if !r.Type.Known() {
		return Routed{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	room, err := jsonparser.GetString(data, "roomId")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) || (err == nil && room == "") {
		return Routed{}, ErrMissingRoom
	}
	if err != nil {
		return Routed{}, fmt.Errorf("route message: roomId: %w", err)
	}
	r.RoomID = room

	if r.Type != TypeJoin {
		buf := append([]byte(nil), data...)
		r.Payload = jsonparser.Delete(buf, "roomId")
	}
	return r, nil
}
