package halo

import (
	"fmt"

	"github.com/lattice-sim/lattice-sim/transport"
)

// Fieldtype describes the in-memory layout of lattice field data: an
// ordered set of (displacement, length) byte ranges within a repeating
// extent, optionally composed as a vector of a nested subtype. It is the
// compact equivalent of a structured transport datatype; Copy and Segments
// are guaranteed to cover exactly the same byte set, so local copies and
// messages built from one descriptor move identical data.
//
// Composition nests to arbitrary depth: a 3-D sub-slab is three vector
// layers over the per-site type, one per spatial axis.
//
// A composite node owns (a reference on) its subtype; sharing a descriptor
// across plans is safe because ownership is reference-counted and Release
// only frees a node when its last owner lets go.
type Fieldtype struct {
	count   int   // number of covered byte ranges
	disps   []int // displacement of each range within the extent
	lengths []int // length of each range
	extent  int   // full repeat distance in bytes, internal gaps included

	// Vector composition, zero for base types. skip is kept in bytes
	// regardless of which constructor built the node.
	blocks  int
	stride  int
	skip    int
	subtype *Fieldtype

	refs int
}

// Float64 describes a single double-precision lattice value, the element
// type of scalar fields.
var Float64 = mustScalar(8)

func mustScalar(size int) *Fieldtype {
	ft, err := Scalar(size)
	if err != nil {
		panic(err)
	}
	return ft
}

// Scalar builds the base descriptor for one primitive element of the given
// byte size.
func Scalar(size int) (*Fieldtype, error) {
	return NewFieldtype([]int{size}, []int{0}, size)
}

// NewFieldtype builds a base descriptor from explicit byte ranges. The
// extent must cover every range; gaps between ranges are allowed and are
// neither copied nor transferred.
func NewFieldtype(lengths, disps []int, extent int) (*Fieldtype, error) {
	if len(lengths) == 0 || len(lengths) != len(disps) {
		return nil, fmt.Errorf("fieldtype needs matching non-empty lengths and displacements, got %d and %d: %w",
			len(lengths), len(disps), ErrInvalidLayout)
	}
	covered := 0
	for i := range lengths {
		if lengths[i] <= 0 || disps[i] < 0 {
			return nil, fmt.Errorf("fieldtype range %d has displacement %d length %d: %w",
				i, disps[i], lengths[i], ErrInvalidLayout)
		}
		if disps[i]+lengths[i] > extent {
			return nil, fmt.Errorf("fieldtype range %d ends at %d beyond extent %d: %w",
				i, disps[i]+lengths[i], extent, ErrInvalidLayout)
		}
		covered += lengths[i]
	}
	if covered > extent {
		return nil, fmt.Errorf("fieldtype covers %d bytes but extent is %d: %w", covered, extent, ErrInvalidLayout)
	}
	return &Fieldtype{
		count:   len(lengths),
		disps:   append([]int(nil), disps...),
		lengths: append([]int(nil), lengths...),
		extent:  extent,
		refs:    1,
	}, nil
}

// Vector composes sub into a strided vector: blocks runs of stride
// contiguous sub elements, consecutive runs displaced skip sub extents
// apart. skip >= stride, so runs never overlap; skip > stride leaves gaps.
// The new descriptor takes a reference on sub.
func Vector(blocks, stride, skip int, sub *Fieldtype) (*Fieldtype, error) {
	if sub == nil {
		return nil, fmt.Errorf("vector composition needs a subtype: %w", ErrInvalidLayout)
	}
	if err := checkVector(blocks, stride, skip); err != nil {
		return nil, err
	}
	return sub.compose(blocks, stride, skip*sub.extent), nil
}

// Hvector composes sub into a vector with an absolute byte stride:
// consecutive runs start skipBytes apart regardless of the subtype extent.
// It serves axes whose natural lattice stride is not a multiple of the
// element extent.
func Hvector(blocks, stride, skipBytes int, sub *Fieldtype) (*Fieldtype, error) {
	if sub == nil {
		return nil, fmt.Errorf("hvector composition needs a subtype: %w", ErrInvalidLayout)
	}
	if err := checkVector(blocks, stride, skipBytes); err != nil {
		return nil, err
	}
	if skipBytes < stride*sub.extent {
		return nil, fmt.Errorf("hvector byte skip %d overlaps %d blocks of %d bytes: %w",
			skipBytes, stride, sub.extent, ErrInvalidLayout)
	}
	return sub.compose(blocks, stride, skipBytes), nil
}

func checkVector(blocks, stride, skip int) error {
	if blocks <= 0 || stride <= 0 || skip <= 0 {
		return fmt.Errorf("vector composition with blocks %d stride %d skip %d: %w",
			blocks, stride, skip, ErrInvalidLayout)
	}
	if skip < stride {
		return fmt.Errorf("vector skip %d smaller than stride %d would overlap blocks: %w",
			skip, stride, ErrInvalidLayout)
	}
	return nil
}

func (ft *Fieldtype) compose(blocks, stride, skipBytes int) *Fieldtype {
	ft.retain()
	return &Fieldtype{
		count:   ft.count,
		disps:   append([]int(nil), ft.disps...),
		lengths: append([]int(nil), ft.lengths...),
		extent:  blocks * skipBytes,
		blocks:  blocks,
		stride:  stride,
		skip:    skipBytes,
		subtype: ft,
		refs:    1,
	}
}

// Extent returns the full repeat distance of the descriptor in bytes,
// internal gaps included.
func (ft *Fieldtype) Extent() int { return ft.extent }

// Composite reports whether the descriptor was built by vector composition.
func (ft *Fieldtype) Composite() bool { return ft.subtype != nil }

func (ft *Fieldtype) retain() { ft.refs++ }

// Release drops one ownership reference. When the last reference goes, the
// node releases its subtype recursively. Releasing an already-released
// descriptor is a no-op.
func (ft *Fieldtype) Release() {
	if ft == nil || ft.refs == 0 {
		return
	}
	ft.refs--
	if ft.refs == 0 && ft.subtype != nil {
		ft.subtype.Release()
		ft.subtype = nil
	}
}

// Copy performs the strided copy the descriptor describes, moving count
// consecutive elements from src to dst. dst and src are positioned at the
// element origin; both must reach every byte the descriptor covers.
func (ft *Fieldtype) Copy(dst, src []byte, count int) {
	if ft.subtype != nil {
		for i := 0; i < count; i++ {
			d := dst[i*ft.extent:]
			s := src[i*ft.extent:]
			for b := 0; b < ft.blocks; b++ {
				ft.subtype.Copy(d[b*ft.skip:], s[b*ft.skip:], ft.stride)
			}
		}
		return
	}
	for i := 0; i < count; i++ {
		base := i * ft.extent
		for r := 0; r < ft.count; r++ {
			lo := base + ft.disps[r]
			hi := lo + ft.lengths[r]
			copy(dst[lo:hi], src[lo:hi])
		}
	}
}

// Segments flattens the descriptor into the ordered byte ranges of one
// element, the layout-equivalent specification a transport commits into a
// structured datatype. The enumeration order matches Copy, so packed
// messages and strided copies agree byte for byte.
func (ft *Fieldtype) Segments() []transport.Segment {
	return ft.appendSegments(nil, 0)
}

func (ft *Fieldtype) appendSegments(segs []transport.Segment, origin int) []transport.Segment {
	if ft.subtype != nil {
		for b := 0; b < ft.blocks; b++ {
			start := origin + b*ft.skip
			for i := 0; i < ft.stride; i++ {
				segs = ft.subtype.appendSegments(segs, start+i*ft.subtype.extent)
			}
		}
		return segs
	}
	for r := 0; r < ft.count; r++ {
		segs = append(segs, transport.Segment{Offset: origin + ft.disps[r], Length: ft.lengths[r]})
	}
	return segs
}

// Spec returns the descriptor as a transport TypeSpec.
func (ft *Fieldtype) Spec() transport.TypeSpec {
	return transport.TypeSpec{Segments: ft.Segments()}
}
