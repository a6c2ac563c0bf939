// Package lattice describes the geometry of a regular 3-D lattice
// partitioned across a grid of ranks: global and local extents, halo
// margins, periodicity, and neighbor lookup. The halo package consumes it;
// it performs no communication itself.
package lattice

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry reports lattice parameters that cannot yield a usable
// decomposition: non-positive extents, a rank grid that does not divide the
// global extents, or a halo wider than the local partition.
var ErrInvalidGeometry = errors.New("invalid lattice geometry")

// Faces of an axis, in plan order: the low face first.
const (
	Low  = 0
	High = 1
)

// Lattice is one rank's view of a partitioned lattice. All fields are set
// by New and read-only afterwards.
type Lattice struct {
	// Grid is the local interior extent per dimension (sites, no halo).
	Grid [3]int
	// GlobalGrid is the full lattice extent per dimension.
	GlobalGrid [3]int
	// Halo is the halo margin width in sites, identical on every face.
	Halo int
	// HaloGrid is the local extended extent per dimension: Grid + 2*Halo.
	HaloGrid [3]int
	// HaloGridVolume is the site count of the extended local buffer.
	HaloGridVolume int
	// Periodic marks the axes that wrap around globally.
	Periodic [3]bool
	// RankGrid is the process decomposition per dimension.
	RankGrid [3]int
	// RankCoords is this rank's position in the rank grid.
	RankCoords [3]int

	rank int
}

// New validates the decomposition and derives the extended-grid fields.
// Ranks are linearized dimension-major: coordinate 0 varies fastest.
func New(globalGrid [3]int, halo int, periodic [3]bool, rankGrid [3]int, rank int) (*Lattice, error) {
	if halo < 1 {
		return nil, fmt.Errorf("halo width must be at least 1, got %d: %w", halo, ErrInvalidGeometry)
	}
	ranks := 1
	for d := 0; d < 3; d++ {
		if globalGrid[d] < 1 {
			return nil, fmt.Errorf("global extent %d on axis %d: %w", globalGrid[d], d, ErrInvalidGeometry)
		}
		if rankGrid[d] < 1 {
			return nil, fmt.Errorf("rank grid extent %d on axis %d: %w", rankGrid[d], d, ErrInvalidGeometry)
		}
		if globalGrid[d]%rankGrid[d] != 0 {
			return nil, fmt.Errorf("rank grid %d does not divide global extent %d on axis %d: %w",
				rankGrid[d], globalGrid[d], d, ErrInvalidGeometry)
		}
		ranks *= rankGrid[d]
	}
	if rank < 0 || rank >= ranks {
		return nil, fmt.Errorf("rank %d out of range [0, %d): %w", rank, ranks, ErrInvalidGeometry)
	}

	lat := &Lattice{
		GlobalGrid: globalGrid,
		Halo:       halo,
		Periodic:   periodic,
		RankGrid:   rankGrid,
		rank:       rank,
	}
	lat.RankCoords = [3]int{
		rank % rankGrid[0],
		(rank / rankGrid[0]) % rankGrid[1],
		rank / (rankGrid[0] * rankGrid[1]),
	}
	lat.HaloGridVolume = 1
	for d := 0; d < 3; d++ {
		lat.Grid[d] = globalGrid[d] / rankGrid[d]
		if lat.Grid[d] < halo {
			return nil, fmt.Errorf("local extent %d on axis %d smaller than halo width %d: %w",
				lat.Grid[d], d, halo, ErrInvalidGeometry)
		}
		lat.HaloGrid[d] = lat.Grid[d] + 2*halo
		lat.HaloGridVolume *= lat.HaloGrid[d]
	}
	return lat, nil
}

// Rank returns this rank's linear identifier.
func (l *Lattice) Rank() int { return l.rank }

// Ranks returns the total number of ranks in the decomposition.
func (l *Lattice) Ranks() int {
	return l.RankGrid[0] * l.RankGrid[1] * l.RankGrid[2]
}

// Neighbor returns the rank adjacent to this one across the given face of
// an axis, wrapping on periodic axes. ok is false on an open edge: a
// non-periodic axis boundary of the rank grid.
func (l *Lattice) Neighbor(axis, face int) (rank int, ok bool) {
	coords := l.RankCoords
	if face == Low {
		coords[axis]--
	} else {
		coords[axis]++
	}
	if coords[axis] < 0 || coords[axis] >= l.RankGrid[axis] {
		if !l.Periodic[axis] {
			return 0, false
		}
		coords[axis] = (coords[axis] + l.RankGrid[axis]) % l.RankGrid[axis]
	}
	return coords[0] + l.RankGrid[0]*(coords[1]+l.RankGrid[1]*coords[2]), true
}

// Index returns the linear site index of extended-grid coordinates
// (x, y, z), halo margins included. Coordinate 0 varies fastest.
func (l *Lattice) Index(x, y, z int) int {
	return x + l.HaloGrid[0]*(y+l.HaloGrid[1]*z)
}
