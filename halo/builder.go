package halo

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lattice-sim/lattice-sim/lattice"
	"github.com/lattice-sim/lattice-sim/transport"
)

// Prepare derives the exchange plan for one field kind on the given
// lattice. site describes one lattice site's data; the plan takes a
// reference on it per communicating face and the caller keeps its own.
//
// For each axis and face the builder resolves the neighboring rank,
// wrapping on periodic axes, and emits one transfer: a fused send/receive
// when both the face neighbor and the opposite one exist, a bare send or
// receive at the edge of a non-periodic split axis, a local strided copy
// when the neighbor is this rank itself, and an open-boundary no-op when
// there is no neighbor at all. Transfers are appended dimension-major,
// face-minor; see Plan for why that order is load-bearing.
//
// All validation happens here, before any transfer is attempted: a failed
// Prepare never yields a partially usable plan.
func Prepare(lat *lattice.Lattice, site *Fieldtype, tr transport.Transport) (*Plan, error) {
	if site == nil || site.Extent() <= 0 {
		return nil, fmt.Errorf("prepare: site fieldtype missing or empty: %w", ErrInvalidLayout)
	}
	if lat == nil {
		return nil, fmt.Errorf("prepare: nil lattice: %w", ErrInvalidGeometry)
	}
	if tr.Size() != lat.Ranks() {
		return nil, fmt.Errorf("prepare: transport has %d ranks, rank grid %v needs %d: %w",
			tr.Size(), lat.RankGrid, lat.Ranks(), ErrInvalidGeometry)
	}
	if tr.Rank() != lat.Rank() {
		return nil, fmt.Errorf("prepare: transport rank %d does not match lattice rank %d: %w",
			tr.Rank(), lat.Rank(), ErrInvalidGeometry)
	}

	extent := site.Extent()
	hg := lat.HaloGrid
	plan := &Plan{transfers: make([]Transfer, 0, 6)}

	for axis := 0; axis < 3; axis++ {
		// Sites below the axis are contiguous; sites above repeat the
		// slab pattern. One vector layer over the site type describes a
		// full halo-width slab perpendicular to the axis.
		lower := 1
		for k := 0; k < axis; k++ {
			lower *= hg[k]
		}
		blocks := 1
		for k := axis + 1; k < 3; k++ {
			blocks *= hg[k]
		}
		run := lat.Halo * lower   // contiguous sites per block
		skip := hg[axis] * lower  // sites between block starts
		plane := lower * extent   // bytes per unit step along the axis

		lowRank, lowOK := lat.Neighbor(axis, lattice.Low)
		highRank, highOK := lat.Neighbor(axis, lattice.High)

		for face := lattice.Low; face <= lattice.High; face++ {
			var t Transfer
			var destOK, srcOK bool
			if face == lattice.Low {
				// Send the low interior slab to the low neighbor; the
				// high neighbor's mirror transfer fills our high halo.
				t.DestRank, destOK = lowRank, lowOK
				t.SourceRank, srcOK = highRank, highOK
				t.SendOffset = lat.Halo * plane
				t.RecvOffset = (lat.Grid[axis] + lat.Halo) * plane
			} else {
				t.DestRank, destOK = highRank, highOK
				t.SourceRank, srcOK = lowRank, lowOK
				t.SendOffset = lat.Grid[axis] * plane
				t.RecvOffset = 0
			}

			switch {
			case lat.RankGrid[axis] == 1 && lat.Periodic[axis]:
				t.Kind = LocalCopy
			case lat.RankGrid[axis] == 1:
				t.Kind = Open
			case destOK && srcOK:
				t.Kind = SendRecv
			case destOK:
				t.Kind = Send
			case srcOK:
				t.Kind = Recv
			default:
				t.Kind = Open
			}

			if t.Kind != Open {
				layout, err := Vector(blocks, run, skip, site)
				if err != nil {
					plan.Release()
					return nil, fmt.Errorf("prepare axis %d face %d: %w", axis, face, err)
				}
				t.Layout = layout
				if t.Kind != LocalCopy {
					dt, err := tr.Commit(layout.Spec())
					if err != nil {
						layout.Release()
						plan.Release()
						return nil, fmt.Errorf("prepare axis %d face %d: commit datatype: %w", axis, face, err)
					}
					t.Datatype = dt
				}
			}

			logrus.Debugf("halo plan rank %d axis %d face %d: %s send@%d recv@%d dest=%d src=%d",
				lat.Rank(), axis, face, t.Kind, t.SendOffset, t.RecvOffset, t.DestRank, t.SourceRank)
			plan.transfers = append(plan.transfers, t)
		}
	}
	return plan, nil
}
