//go:build cuda
// +build cuda

// internal/driver/device/cuda.go
// CUDA miner backend. The kernel and per-device scheduling live in the
// external libprogpow-cuda library; this file is the binding only.

package device

/*
#cgo LDFLAGS: -lprogpow-cuda

#include <stdint.h>
#include <stddef.h>

extern int      progpow_cuda_configure(uint32_t device_count, uint32_t block_size,
                    uint32_t grid_size, uint32_t streams, uint32_t schedule,
                    uint32_t parallel_hash, int dag_load_mode, int dag_create_device);
extern void*    progpow_cuda_create(uint32_t device);
extern int      progpow_cuda_compute(void* miner, const void* header, uint64_t height,
                    int32_t epoch, uint64_t boundary, uint64_t start_nonce);
extern int      progpow_cuda_solutions(void* miner, void* out);
extern uint64_t progpow_cuda_hashes(void* miner);
extern void     progpow_cuda_destroy(void* miner);
*/
import "C"

import (
	"fmt"
	"unsafe"
)

const cudaCompiled = true

func cudaConfigureGPU(s *Settings) error {
	rc := C.progpow_cuda_configure(
		C.uint32_t(s.Devices),
		C.uint32_t(s.CUDA.BlockSize),
		C.uint32_t(s.CUDA.GridSize),
		C.uint32_t(s.CUDA.Streams),
		C.uint32_t(s.CUDA.Schedule),
		C.uint32_t(s.CUDA.ParallelHash),
		C.int(s.DAGLoadMode),
		C.int(s.DAGCreateDevice),
	)
	if rc != 0 {
		return fmt.Errorf("cuda configure failed: %d", int(rc))
	}
	return nil
}

type cudaMiner struct {
	device uint32
	handle unsafe.Pointer
	closed bool
	stats  MinerStats
}

func newCUDAMiner(deviceIdx uint32, _ Settings) (Miner, error) {
	h := C.progpow_cuda_create(C.uint32_t(deviceIdx))
	if h == nil {
		return nil, fmt.Errorf("cuda device %d: %w", deviceIdx, ErrNoBackend)
	}
	return &cudaMiner{device: deviceIdx, handle: h}, nil
}

func (m *cudaMiner) Device() uint32  { return m.device }
func (m *cudaMiner) Backend() Driver { return DriverCUDA }

func (m *cudaMiner) Compute(work Work) error {
	if m.closed {
		return ErrMinerClosed
	}
	m.stats.recordWork(work.Height, work.Epoch)

	header := work.Header
	rc := C.progpow_cuda_compute(m.handle, unsafe.Pointer(&header[0]),
		C.uint64_t(work.Height), C.int32_t(work.Epoch),
		C.uint64_t(work.Boundary), C.uint64_t(work.StartNonce))
	if rc != 0 {
		return fmt.Errorf("cuda compute failed: %d", int(rc))
	}
	m.stats.recordHashes(uint64(C.progpow_cuda_hashes(m.handle)))
	return nil
}

func (m *cudaMiner) Solutions(buf []byte) (bool, error) {
	if m.closed {
		return false, ErrMinerClosed
	}
	if len(buf) < SolutionSize {
		return false, fmt.Errorf("solution buffer too small: %d < %d", len(buf), SolutionSize)
	}
	found := C.progpow_cuda_solutions(m.handle, unsafe.Pointer(&buf[0])) != 0
	m.stats.recordPoll(found)
	return found, nil
}

func (m *cudaMiner) Stats() StatsSnapshot { return m.stats.Snapshot() }

func (m *cudaMiner) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	C.progpow_cuda_destroy(m.handle)
	m.handle = nil
	return nil
}
