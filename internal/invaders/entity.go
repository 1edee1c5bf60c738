package invaders

// EntityKind discriminates the tagged Entity union. Collision and
// movement code switches on Kind rather than dispatching through an
// interface.
type EntityKind string

const (
	EntityKindAlien   EntityKind = "alien"
	EntityKindBullet  EntityKind = "bullet"
	EntityKindBarrier EntityKind = "barrier"
	EntityKindUFO     EntityKind = "ufo"
)

// BarrierSegment is one destructible cell of a barrier. Segments with
// Health 0 are non-collidable but stay in the array; barriers never
// shrink their segment list.
type BarrierSegment struct {
	OffsetX int `json:"offsetX"`
	OffsetY int `json:"offsetY"`
	Health  int `json:"health"`
}

// Entity is a tagged union over the four entity kinds the grid can
// hold. Only the fields relevant to Kind are meaningful; the rest sit
// at their zero value. x is the left-edge anchor for alien/barrier/ufo
// and the center for bullet, per the data model's x-anchor column.
type Entity struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
	X    int        `json:"x"`
	Y    int        `json:"y"`

	// alien
	Row      int       `json:"row,omitempty"`
	Col      int       `json:"col,omitempty"`
	Type     AlienType `json:"type,omitempty"`
	Alive    bool      `json:"alive,omitempty"`
	Points   int       `json:"points,omitempty"`
	Entering bool      `json:"entering,omitempty"`

	// bullet
	OwnerID *string `json:"ownerId,omitempty"`
	DY      int     `json:"dy,omitempty"`

	// barrier
	Segments []BarrierSegment `json:"segments,omitempty"`

	// ufo
	Direction int `json:"direction,omitempty"`
}

// NewAlien builds an alien entity at its formation position. Row/col
// are fixed for the entity's lifetime; x/y are recomputed by the
// reducer each time the formation moves.
func NewAlien(id string, row, col int, x, y int, entering bool) Entity {
	reg := alienForRow(row)
	return Entity{
		ID:       id,
		Kind:     EntityKindAlien,
		X:        x,
		Y:        y,
		Row:      row,
		Col:      col,
		Type:     reg.Type,
		Alive:    true,
		Points:   reg.Points,
		Entering: entering,
	}
}

// NewBullet builds a bullet entity. ownerID is nil for an alien-owned
// bullet (dy must be +1 in that case); a non-nil ownerID is always
// paired with dy=-1 per the data model invariant.
func NewBullet(id string, ownerID *string, x, y, dy int) Entity {
	return Entity{
		ID:      id,
		Kind:    EntityKindBullet,
		X:       x,
		Y:       y,
		OwnerID: ownerID,
		DY:      dy,
	}
}

// NewBarrier builds one barrier at the given left-edge anchor with a
// fresh, fully-healthy segment grid.
func NewBarrier(id string, x, y int) Entity {
	return Entity{
		ID:       id,
		Kind:     EntityKindBarrier,
		X:        x,
		Y:        y,
		Segments: newBarrierSegments(),
	}
}

// NewUFO builds a UFO entering from the given edge, direction toward
// the grid interior.
func NewUFO(id string, x, y, direction, points int) Entity {
	return Entity{
		ID:        id,
		Kind:      EntityKindUFO,
		X:         x,
		Y:         y,
		Alive:     true,
		Direction: direction,
		Points:    points,
	}
}
