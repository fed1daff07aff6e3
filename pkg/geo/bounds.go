package geo

import "github.com/paulmach/orb"

// Bounds accumulates a bounding box over a stream of points.
// The zero value is empty; Extend grows it.
type Bounds struct {
	bound orb.Bound
	count int
}

// Extend adds a point to the bounding box.
func (b *Bounds) Extend(p Point) {
	if b.count == 0 {
		b.bound = p.Orb().Bound()
	} else {
		b.bound = b.bound.Extend(p.Orb())
	}
	b.count++
}

// Empty reports whether no point has been added.
func (b *Bounds) Empty() bool {
	return b.count == 0
}

// Count returns the number of points added.
func (b *Bounds) Count() int {
	return b.count
}

// Bound returns the accumulated orb.Bound. It is the zero bound when empty.
func (b *Bounds) Bound() orb.Bound {
	return b.bound
}

// Center returns the center of the box.
func (b *Bounds) Center() Point {
	return FromOrb(b.bound.Center())
}

// IsPoint reports whether every added point was the same coordinate.
func (b *Bounds) IsPoint() bool {
	return b.count > 0 && b.bound.Min.Equal(b.bound.Max)
}
