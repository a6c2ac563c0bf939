package halo

import (
	"github.com/lattice-sim/lattice-sim/transport"
)

// Kind classifies one halo transfer.
type Kind int

const (
	// LocalCopy is an intra-rank strided copy: the face's logical
	// neighbor is this rank itself (periodic axis, rank-grid extent 1).
	LocalCopy Kind = iota
	// Send is an outgoing-only transfer, emitted at the inward edge of a
	// non-periodic split axis.
	Send
	// Recv is an incoming-only transfer, the mirror of Send.
	Recv
	// SendRecv is the fused bidirectional exchange: send the interior
	// slab to one neighbor, receive the halo slab from the opposite one.
	SendRecv
	// Open marks a non-communicating boundary face; the exchange leaves
	// its halo memory untouched.
	Open
)

func (k Kind) String() string {
	switch k {
	case LocalCopy:
		return "local-copy"
	case Send:
		return "send"
	case Recv:
		return "recv"
	case SendRecv:
		return "send-recv"
	case Open:
		return "open"
	}
	return "unknown"
}

// Transfer is one atomic action of an exchange plan, tied to a rank pair
// and a layout slice of the local extended buffer.
type Transfer struct {
	Kind Kind

	// SourceRank is the rank halo data is received from; DestRank the
	// rank interior data is sent to. A LocalCopy uses this rank for both;
	// an Open transfer has neither.
	SourceRank int
	DestRank   int

	// SendOffset and RecvOffset locate the interior and halo slabs in the
	// local extended buffer, in bytes from its base.
	SendOffset int
	RecvOffset int

	// Layout describes the slab; owned by the plan. Nil for Open.
	Layout *Fieldtype
	// Datatype is the committed transport equivalent of Layout, built
	// once at plan build and reused every exchange. Nil for LocalCopy and
	// Open transfers, which never touch the transport.
	Datatype transport.Datatype
}

// Plan is the ordered transfer sequence covering all six faces of the
// decomposition, dimension-major and face-minor (axis-0 low, axis-0 high,
// axis-1 low, ...). Two ranks sharing a face hold their paired transfers at
// mutually consistent positions, which keeps the axis-by-axis
// post-then-wait execution free of circular waits.
//
// A Plan owns every Layout and Datatype reachable from its transfers.
type Plan struct {
	transfers []Transfer
	released  bool
}

// Transfers returns the plan's entries in execution order. The slice is the
// plan's own storage; callers must not modify it.
func (p *Plan) Transfers() []Transfer { return p.transfers }

// Len returns the number of transfers in the plan.
func (p *Plan) Len() int { return len(p.transfers) }

// Release frees every layout descriptor and committed transport datatype
// the plan owns. Safe on a never-built or already-released plan: both are
// no-ops, so teardown and rebuild paths cannot double-free.
func (p *Plan) Release() {
	if p == nil || p.released {
		return
	}
	for i := range p.transfers {
		t := &p.transfers[i]
		if t.Datatype != nil {
			t.Datatype.Free()
			t.Datatype = nil
		}
		t.Layout.Release()
		t.Layout = nil
	}
	p.released = true
}
