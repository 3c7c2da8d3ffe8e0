// pkg/progpow/progpow.go
// Package progpow is the flat lifecycle surface exposed to foreign
// callers: configure the GPU backends once, open one handle per device,
// push work, poll for solutions, destroy the handle. Handles are opaque
// integer tokens so the same surface can cross a C boundary without
// leaking Go pointers.
//
// Errors come in two tiers: configure failure and any use of an
// invalid handle in Compute/GetSolutions are fatal — the caller (or
// the exported C layer) is expected to terminate the process so a
// supervisor restarts it. Init returning the zero handle and Destroy of
// an unknown handle are recoverable and merely reported.
package progpow

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"progminer/internal/driver/device"
)

// Handle identifies one open miner. The zero value is the null handle.
type Handle int64

// SolutionSize re-exports the encoded solution length: an 8-byte
// little-endian nonce followed by the 32-byte mix hash.
const SolutionSize = device.SolutionSize

var (
	mu     sync.Mutex
	miners = make(map[Handle]device.Miner)
	nextID Handle
)

// Configure applies the default tuning parameters for the given device
// count to every compiled-in backend. Must be called exactly once before
// Init; the returned error is fatal-tier when a backend's device setup
// fails.
func Configure(deviceCount uint32) error {
	s := device.DefaultSettings()
	s.Devices = deviceCount
	return ConfigureWith(s)
}

// ConfigureWith is Configure with explicit settings, for callers that
// override the tuning defaults (or enable the simulated backend).
func ConfigureWith(s device.Settings) error {
	return device.Configure(s)
}

// Init opens a miner for the device index and driver (1 = CUDA,
// 2 = OpenCL) and returns its handle. The zero handle means construction
// failed: unknown driver, backend not compiled in, or device not enabled.
// The failure is logged by the factory; it is never fatal.
func Init(deviceIdx uint32, driver uint32) Handle {
	m, err := device.Open(deviceIdx, device.Driver(driver))
	if err != nil {
		return 0
	}

	mu.Lock()
	defer mu.Unlock()
	nextID++
	h := nextID
	miners[h] = m
	return h
}

func lookup(h Handle) (device.Miner, error) {
	mu.Lock()
	defer mu.Unlock()
	m, ok := miners[h]
	if !ok {
		return nil, fmt.Errorf("invalid miner handle %d", h)
	}
	return m, nil
}

// Compute submits one unit of nonce-search work to the handle's device.
// Using the null handle, or a handle already destroyed, is fatal-tier.
func Compute(h Handle, header common.Hash, height uint64, epoch int32, boundary uint64, startNonce uint64) error {
	m, err := lookup(h)
	if err != nil {
		return device.Fatal("compute", err)
	}
	return m.Compute(device.Work{
		Header:     header,
		Height:     height,
		Epoch:      epoch,
		Boundary:   boundary,
		StartNonce: startNonce,
	})
}

// GetSolutions writes the oldest pending solution into buf (at least
// SolutionSize bytes) and reports whether one was written. Invalid
// handles are fatal-tier, mirroring Compute.
func GetSolutions(h Handle, buf []byte) (bool, error) {
	m, err := lookup(h)
	if err != nil {
		return false, device.Fatal("get_solutions", err)
	}
	return m.Solutions(buf)
}

// Stats returns the handle's counters, or false for an unknown handle.
func Stats(h Handle) (device.StatsSnapshot, bool) {
	m, err := lookup(h)
	if err != nil {
		return device.StatsSnapshot{}, false
	}
	return m.Stats(), true
}

// Destroy releases the handle's miner through its own Close and reports
// whether a live handle was supplied. Destroying the null handle or the
// same handle twice returns false with no side effect.
func Destroy(h Handle) bool {
	mu.Lock()
	m, ok := miners[h]
	if ok {
		delete(miners, h)
	}
	mu.Unlock()

	if !ok {
		return false
	}
	m.Close()
	return true
}

// IsFatal reports whether err belongs to the terminate-the-process tier.
func IsFatal(err error) bool { return device.IsFatal(err) }
