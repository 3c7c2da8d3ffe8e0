// internal/driver/device/miner.go
// GPU proof-of-work miner backends behind a common interface.

package device

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Driver identifies a mining backend. The numeric values are part of the
// external contract and match the wire values used by callers across the
// C boundary.
type Driver uint32

const (
	DriverCUDA   Driver = 1
	DriverOpenCL Driver = 2
)

func (d Driver) String() string {
	switch d {
	case DriverCUDA:
		return "cuda"
	case DriverOpenCL:
		return "opencl"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(d))
	}
}

// Valid reports whether d is one of the recognized backend identifiers.
func (d Driver) Valid() bool {
	return d == DriverCUDA || d == DriverOpenCL
}

// Work is one unit of candidate-nonce search. The header hash, height,
// epoch, boundary and starting nonce are handed to the backend as-is;
// scheduling (synchronous vs. device-queued) is the backend's call.
type Work struct {
	Header     common.Hash
	Height     uint64
	Epoch      int32
	Boundary   uint64
	StartNonce uint64
}

// SolutionSize is the byte length of one encoded solution: an 8-byte
// little-endian nonce followed by the 32-byte mix hash.
const SolutionSize = 40

// Solution is a qualifying nonce together with the mix hash the backend
// produced for it.
type Solution struct {
	Nonce   uint64
	MixHash common.Hash
}

// Encode writes the solution into buf, which must hold at least
// SolutionSize bytes.
func (s Solution) Encode(buf []byte) error {
	if len(buf) < SolutionSize {
		return fmt.Errorf("solution buffer too small: %d < %d", len(buf), SolutionSize)
	}
	binary.LittleEndian.PutUint64(buf[0:8], s.Nonce)
	copy(buf[8:40], s.MixHash[:])
	return nil
}

// DecodeSolution parses a solution previously written by Encode.
func DecodeSolution(buf []byte) (Solution, error) {
	if len(buf) < SolutionSize {
		return Solution{}, fmt.Errorf("solution buffer too small: %d < %d", len(buf), SolutionSize)
	}
	var s Solution
	s.Nonce = binary.LittleEndian.Uint64(buf[0:8])
	copy(s.MixHash[:], buf[8:40])
	return s, nil
}

// Miner is one physical (or simulated) device bound to one backend.
// Implementations are not safe for concurrent use of the same instance;
// the caller serializes Compute/Solutions/Close per miner.
type Miner interface {
	// Device returns the device index the miner was bound to.
	Device() uint32

	// Backend returns the driver the miner runs on.
	Backend() Driver

	// Compute submits one unit of nonce-search work.
	Compute(work Work) error

	// Solutions writes the oldest pending solution into buf (at least
	// SolutionSize bytes) and reports whether one was written.
	Solutions(buf []byte) (bool, error)

	// Stats returns a snapshot of the miner's counters.
	Stats() StatsSnapshot

	// Close releases the device resources. Close is idempotent per the
	// owning handle; the owner must not use the miner afterwards.
	Close() error
}
