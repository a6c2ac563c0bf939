package halo

import (
	"bytes"
	"fmt"

	"github.com/lattice-sim/lattice-sim/transport"
)

// Communicate executes the plan against the local extended buffer one axis
// at a time: an axis's local copies run immediately, its sends and receives
// are posted non-blocking on the halo-update tag and completed before the
// next axis starts, and open boundaries are skipped. On return every halo
// region the plan covers has been refreshed; the buffer must not be reused
// before then.
//
// The two slabs of one axis cover disjoint regions, so they post together
// and wait together. Slabs of different axes are not disjoint: they overlap
// where halo regions meet at edges and corners, and a later axis resends
// the sites an earlier axis delivered there. Completing each axis before
// the next both serializes the overlapping writes and relays corner and
// edge data to diagonal neighbors.
//
// A transport failure is fatal: the exchange may have partially completed
// and the halo state is unknown, so the error is surfaced unretried.
func Communicate(p *Plan, base []byte, tr transport.Transport) error {
	if p == nil || p.released {
		return fmt.Errorf("communicate: plan not built: %w", ErrInvalidGeometry)
	}
	fused, hasFused := tr.(transport.Sendrecver)
	reqs := make([]transport.Request, 0, 4)

	for i := range p.transfers {
		t := &p.transfers[i]
		switch t.Kind {
		case LocalCopy:
			t.Layout.Copy(base[t.RecvOffset:], base[t.SendOffset:], 1)
		case SendRecv:
			if hasFused {
				req, err := fused.Sendrecv(base[t.SendOffset:], t.Datatype, t.DestRank,
					base[t.RecvOffset:], t.Datatype, t.SourceRank, transport.TagHaloUpdate)
				if err != nil {
					return transferErr(i, t, err)
				}
				reqs = append(reqs, req)
			} else {
				req, err := tr.Isend(base[t.SendOffset:], t.Datatype, t.DestRank, transport.TagHaloUpdate)
				if err != nil {
					return transferErr(i, t, err)
				}
				reqs = append(reqs, req)
				req, err = tr.Irecv(base[t.RecvOffset:], t.Datatype, t.SourceRank, transport.TagHaloUpdate)
				if err != nil {
					return transferErr(i, t, err)
				}
				reqs = append(reqs, req)
			}
		case Send:
			req, err := tr.Isend(base[t.SendOffset:], t.Datatype, t.DestRank, transport.TagHaloUpdate)
			if err != nil {
				return transferErr(i, t, err)
			}
			reqs = append(reqs, req)
		case Recv:
			req, err := tr.Irecv(base[t.RecvOffset:], t.Datatype, t.SourceRank, transport.TagHaloUpdate)
			if err != nil {
				return transferErr(i, t, err)
			}
			reqs = append(reqs, req)
		case Open:
			// Halo memory on an open face belongs to the external
			// boundary-condition routine.
		}

		// The plan is face-minor: every odd index closes an axis.
		if i%2 == 1 {
			if err := tr.Waitall(reqs); err != nil {
				return fmt.Errorf("halo exchange wait: %w", err)
			}
			reqs = reqs[:0]
		}
	}
	return nil
}

func transferErr(i int, t *Transfer, err error) error {
	return fmt.Errorf("halo exchange transfer %d (%s): %w", i, t.Kind, err)
}

// Check verifies halo consistency out of band: every communicating rank
// re-sends its interior slab on the check tag and compares the bytes it
// receives against its current halo content; local-copy transfers compare
// in place. Check is collective over the plan's rank pairs, like
// Communicate, and reports the first mismatching transfer.
//
// It is a debugging aid for the stepping loop: after a Communicate, Check
// passes unless something else corrupted the halo in between.
func Check(p *Plan, base []byte, tr transport.Transport) error {
	if p == nil || p.released {
		return fmt.Errorf("halo check: plan not built: %w", ErrInvalidGeometry)
	}

	type pending struct {
		index int
		dt    transport.Datatype
		got   []byte
	}
	var pend []pending
	var reqs []transport.Request
	var firstErr error

	for i := range p.transfers {
		t := &p.transfers[i]
		switch t.Kind {
		case LocalCopy:
			// A mismatch here must not short-circuit the loop: peers are
			// blocked on this rank's check messages, so record it and
			// keep posting.
			interior := gatherSlab(base[t.SendOffset:], t.Layout)
			margin := gatherSlab(base[t.RecvOffset:], t.Layout)
			if !bytes.Equal(interior, margin) && firstErr == nil {
				firstErr = checkMismatch(i, t)
			}
		case SendRecv, Send, Recv:
			if t.Kind != Recv {
				req, err := tr.Isend(base[t.SendOffset:], t.Datatype, t.DestRank, transport.TagHaloCheck)
				if err != nil {
					return fmt.Errorf("halo check transfer %d (%s): %w", i, t.Kind, err)
				}
				reqs = append(reqs, req)
			}
			if t.Kind != Send {
				// Receive the neighbor's interior into scratch so the
				// halo under comparison stays untouched.
				dt, err := tr.Commit(transport.Contiguous(t.Datatype.Size()))
				if err != nil {
					return fmt.Errorf("halo check transfer %d (%s): %w", i, t.Kind, err)
				}
				got := make([]byte, t.Datatype.Size())
				req, err := tr.Irecv(got, dt, t.SourceRank, transport.TagHaloCheck)
				if err != nil {
					dt.Free()
					return fmt.Errorf("halo check transfer %d (%s): %w", i, t.Kind, err)
				}
				reqs = append(reqs, req)
				pend = append(pend, pending{index: i, dt: dt, got: got})
			}
		}
	}

	if err := tr.Waitall(reqs); err != nil {
		return fmt.Errorf("halo check wait: %w", err)
	}
	for _, pc := range pend {
		t := &p.transfers[pc.index]
		if firstErr == nil && !bytes.Equal(pc.got, gatherSlab(base[t.RecvOffset:], t.Layout)) {
			firstErr = checkMismatch(pc.index, t)
		}
		pc.dt.Free()
	}
	return firstErr
}

func checkMismatch(i int, t *Transfer) error {
	return fmt.Errorf("halo check transfer %d (%s): halo differs from rank %d interior",
		i, t.Kind, t.SourceRank)
}

// gatherSlab packs the bytes a layout covers into one contiguous slice, in
// segment order.
func gatherSlab(buf []byte, ft *Fieldtype) []byte {
	segs := ft.Segments()
	size := 0
	for _, s := range segs {
		size += s.Length
	}
	out := make([]byte, 0, size)
	for _, s := range segs {
		out = append(out, buf[s.Offset:s.Offset+s.Length]...)
	}
	return out
}
