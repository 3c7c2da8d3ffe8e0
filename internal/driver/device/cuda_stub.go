//go:build !cuda
// +build !cuda

package device

const cudaCompiled = false

func cudaConfigureGPU(_ *Settings) error { return nil }

func newCUDAMiner(_ uint32, _ Settings) (Miner, error) {
	return nil, ErrNoBackend
}
