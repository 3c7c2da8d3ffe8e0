// internal/driver/device/settings.go
// Backend tuning state. Settings are applied once by Configure and
// captured by each miner at construction time. Reconfiguring later does
// not touch existing miners.

package device

import (
	"log"
	"sync"
)

// MaxMiners is the fixed device slot capacity shared by both backends.
const MaxMiners = 4

// DAG load modes.
const (
	DAGLoadParallel   = 0
	DAGLoadSequential = 1
	DAGLoadSingle     = 2
)

// CLSettings carries the OpenCL backend tuning parameters.
type CLSettings struct {
	Platform                 uint32 `json:"platform"`
	SelectedKernel           uint32 `json:"selected_kernel"`
	ThreadsPerHash           uint32 `json:"threads_per_hash"`
	LocalWorkSize            uint32 `json:"local_work_size"`
	GlobalWorkSizeMultiplier uint32 `json:"global_work_size_multiplier"`

	// KernelFile is the path of the externally supplied kernel source.
	// The kernel itself is a collaborator, not part of this module.
	KernelFile string `json:"kernel_file,omitempty"`
}

// CUDASettings carries the CUDA backend tuning parameters.
type CUDASettings struct {
	BlockSize    uint32 `json:"block_size"`
	GridSize     uint32 `json:"grid_size"`
	Streams      uint32 `json:"streams"`
	Schedule     uint32 `json:"schedule"`
	ParallelHash uint32 `json:"parallel_hash"`
}

// Settings is the full backend configuration applied by Configure.
type Settings struct {
	// Devices enables the first N of the MaxMiners device slots for
	// every compiled-in backend.
	Devices uint32 `json:"devices"`

	// Simulate routes miner construction to the simulated backend
	// regardless of which GPU backends were compiled in. Used for
	// development and tests.
	Simulate bool `json:"simulate"`

	DAGLoadMode     int `json:"dag_load_mode"`
	DAGCreateDevice int `json:"dag_create_device"`

	CL   CLSettings   `json:"opencl"`
	CUDA CUDASettings `json:"cuda"`
}

// DefaultSettings returns the stock tuning parameters for both backends.
func DefaultSettings() Settings {
	return Settings{
		DAGLoadMode:     DAGLoadSequential,
		DAGCreateDevice: 1,
		CL: CLSettings{
			Platform:                 0,
			SelectedKernel:           0,
			ThreadsPerHash:           8,
			LocalWorkSize:            128,
			GlobalWorkSizeMultiplier: 8192,
		},
		CUDA: CUDASettings{
			BlockSize:    128,
			GridSize:     8192,
			Streams:      2,
			Schedule:     4, // sync
			ParallelHash: 4,
		},
	}
}

var (
	mu            sync.Mutex
	current       *Settings
	slots         [MaxMiners]bool
	miningThreads uint32
)

// Configure applies s to every compiled-in backend: it marks the first
// s.Devices slots enabled and pushes the tuning parameters down. It must
// run once before any Open. A backend setup failure is fatal-tier — a
// mining process with no usable device cannot proceed — but is reported
// as an error value so the caller decides when to exit.
func Configure(s Settings) error {
	if s.Devices > MaxMiners {
		return ErrTooManyDevices
	}

	mu.Lock()
	defer mu.Unlock()

	if !s.Simulate {
		if clCompiled {
			log.Printf("configuring OpenCL backend for %d device(s)", s.Devices)
			if err := clConfigureGPU(&s); err != nil {
				return Fatal("configure opencl", err)
			}
		}
		if cudaCompiled {
			log.Printf("configuring CUDA backend for %d device(s)", s.Devices)
			if err := cudaConfigureGPU(&s); err != nil {
				return Fatal("configure cuda", err)
			}
		}
	}

	for i := range slots {
		slots[i] = uint32(i) < s.Devices
	}
	miningThreads = s.Devices

	cfg := s
	current = &cfg
	return nil
}

// Configured reports whether Configure has completed successfully.
func Configured() bool {
	mu.Lock()
	defer mu.Unlock()
	return current != nil
}

// CurrentSettings returns a copy of the applied settings.
func CurrentSettings() (Settings, bool) {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return Settings{}, false
	}
	return *current, true
}

// MiningThreads returns the per-process miner instance count set by the
// last Configure.
func MiningThreads() uint32 {
	mu.Lock()
	defer mu.Unlock()
	return miningThreads
}

// EnabledDevices lists the device indices enabled by the last Configure.
func EnabledDevices() []uint32 {
	mu.Lock()
	defer mu.Unlock()
	var out []uint32
	for i, on := range slots {
		if on {
			out = append(out, uint32(i))
		}
	}
	return out
}

func deviceEnabled(idx uint32) bool {
	if idx >= MaxMiners {
		return false
	}
	mu.Lock()
	defer mu.Unlock()
	return slots[idx]
}
