// Package halo synchronizes the boundary (ghost) regions of a regular
// lattice partitioned across ranks.
//
// # Reading Guide
//
// Start with these three files to understand the subsystem:
//   - fieldtype.go: Fieldtype, the nestable strided-layout descriptor, and
//     the strided copy / transport flattening built on it
//   - builder.go: Prepare, which turns lattice geometry into an ordered
//     exchange Plan of per-face transfers
//   - engine.go: Communicate, which executes a Plan against the local
//     extended buffer every simulation step, and Check, the out-of-band
//     halo consistency verification
//
// # Lifecycle
//
// A Fieldtype is built once per field kind and may back many plans. A Plan
// is built once per (geometry, field kind) pair, executed once per step
// that needs fresh halo data, and released exactly once at teardown or
// before a rebuild after a geometry change; Release is idempotent, so the
// rebuild path cannot double-free.
//
// Geometry comes from package lattice, messaging from package transport;
// this package owns only the exchange scheme itself.
package halo
