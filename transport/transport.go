// Package transport defines the point-to-point messaging boundary consumed
// by the halo exchange. It is deliberately MPI-shaped: ranks address each
// other by integer identifier, messages carry an integer tag, sends and
// receives are posted non-blocking and joined with Waitall, and strided
// payloads are described by committed datatypes that are built once and
// reused across exchanges.
//
// The package also ships World, an in-process reference implementation over
// goroutines and FIFO mailboxes, used by tests and the demo command. Real
// deployments substitute their own Transport.
package transport

import (
	"errors"
	"fmt"
)

// Message tags. Routine halo refreshes and out-of-band consistency checks
// must not match each other's receives.
const (
	// TagHaloUpdate tags a routine halo region refresh.
	TagHaloUpdate = 501
	// TagHaloCheck tags an out-of-band halo consistency check.
	TagHaloCheck = 599
)

// ErrFailure is the sentinel wrapped by every error the transport layer
// produces. A transport failure mid-exchange leaves halo memory in an
// unknown state, so callers treat it as fatal rather than retrying.
var ErrFailure = errors.New("transport failure")

// Segment is one contiguous byte range of a strided payload, relative to
// the buffer passed to Isend or Irecv.
type Segment struct {
	Offset int
	Length int
}

// TypeSpec is the layout-equivalent specification handed to Commit: the
// ordered byte ranges a datatype covers. Both ends of an exchange must
// commit specs whose packed byte sequences line up.
type TypeSpec struct {
	Segments []Segment
}

// Size returns the packed payload size of the spec in bytes.
func (s TypeSpec) Size() int {
	total := 0
	for _, seg := range s.Segments {
		total += seg.Length
	}
	return total
}

// Contiguous returns a spec covering a single unbroken run of size bytes.
func Contiguous(size int) TypeSpec {
	return TypeSpec{Segments: []Segment{{Offset: 0, Length: size}}}
}

// Datatype is a committed, reusable handle for a strided payload layout.
// Free releases transport-side resources; using a freed datatype is an
// error. Free is idempotent.
type Datatype interface {
	Size() int
	Free()
}

// Request is an outstanding non-blocking operation. Requests are completed
// only through Waitall on the transport that issued them.
type Request interface {
	wait() error
}

// Transport is the point-to-point messaging surface the halo exchange
// requires from its environment.
//
// Isend and Irecv post non-blocking operations; the buffer they are given
// must stay untouched until Waitall returns. A posted operation without a
// matching peer never completes: the design treats that as a fatal hang,
// not a recoverable condition.
type Transport interface {
	// Rank returns this process's identifier, 0 <= Rank() < Size().
	Rank() int
	// Size returns the number of ranks in the communicator.
	Size() int
	// Commit builds a reusable datatype from a layout specification.
	Commit(spec TypeSpec) (Datatype, error)
	// Isend posts a non-blocking send of the bytes dt selects from buf.
	Isend(buf []byte, dt Datatype, dest, tag int) (Request, error)
	// Irecv posts a non-blocking receive scattering into buf through dt.
	Irecv(buf []byte, dt Datatype, source, tag int) (Request, error)
	// Waitall blocks until every request has completed and returns the
	// first failure, if any.
	Waitall(reqs []Request) error
}

// Sendrecver is implemented by transports that support a fused
// bidirectional exchange as one call. The send and the receive may address
// different peers, as they do on a split lattice axis.
type Sendrecver interface {
	Sendrecv(sendBuf []byte, sendType Datatype, dest int,
		recvBuf []byte, recvType Datatype, source, tag int) (Request, error)
}

func failuref(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrFailure)...)
}
