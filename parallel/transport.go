// Package parallel exchanges face data between ranks of a partitioned mesh
// under local time stepping. Remix manages the non-blocking messages of all
// communication channels; a Transport moves the bytes.
package parallel

import "errors"

// ErrRank is returned for a peer rank outside the world
var ErrRank = errors.New("rank out of range")

// Request is an outstanding non-blocking operation
type Request interface {
	// Test reports whether the operation finished; it never blocks
	Test() (bool, error)
}

// Transport is a process-scoped point-to-point and collective layer. One
// handle is owned per process and injected into Remix; Finalize ends its
// lifecycle.
type Transport interface {
	Rank() int
	Size() int
	// Version is the highest supported protocol version, e.g. "3.1"
	Version() string

	// Alloc returns a buffer that stays valid while non-blocking operations
	// on it are outstanding; Free releases it.
	Alloc(n int) ([]byte, error)
	Free(buf []byte)

	Isend(buf []byte, dest, tag int) (Request, error)
	Irecv(buf []byte, source, tag int) (Request, error)

	// AllreduceMinLoc returns, for every value, the rank holding the global
	// minimum. Ties resolve to the lowest rank.
	AllreduceMinLoc(vals []float64) ([]int, error)

	Finalize() error
}
