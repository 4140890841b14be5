package board

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator hands out object identifiers that are unique within a room.
type IDGenerator interface {
	NewID(kind Kind) string
}

var idPrefix = map[Kind]string{
	KindStroke: "line",
	KindShape:  "shape",
	KindText:   "text",
	KindImage:  "img",
}

// UUIDGenerator produces ids such as "line-6f1c...". Random UUIDs make
// collisions between rapid creates on different clients negligible.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(kind Kind) string {
	return idPrefix[kind] + "-" + uuid.NewString()
}

// SequenceGenerator produces predictable ids, mostly for tests.
type SequenceGenerator struct {
	Prefix string
	n      atomic.Uint64
}

func (g *SequenceGenerator) NewID(kind Kind) string {
	return fmt.Sprintf("%s%s%d", g.Prefix, idPrefix[kind], g.n.Add(1))
}
