package halo

import (
	"errors"

	"github.com/lattice-sim/lattice-sim/lattice"
	"github.com/lattice-sim/lattice-sim/transport"
)

// ErrInvalidLayout reports malformed layout composition parameters: a
// non-positive block count, stride, or skip, or a missing subtype.
var ErrInvalidLayout = errors.New("invalid halo layout")

// ErrInvalidGeometry is the geometry validation failure surfaced at build
// time, re-exported so callers can match the whole taxonomy in one place.
var ErrInvalidGeometry = lattice.ErrInvalidGeometry

// ErrTransportFailure wraps messaging-layer failures. A failed transfer can
// leave halo memory inconsistent, so it is fatal: nothing is retried.
var ErrTransportFailure = transport.ErrFailure
