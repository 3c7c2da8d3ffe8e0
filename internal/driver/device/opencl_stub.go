//go:build !opencl
// +build !opencl

package device

const clCompiled = false

func clConfigureGPU(_ *Settings) error { return nil }

func newCLMiner(_ uint32, _ Settings) (Miner, error) {
	return nil, ErrNoBackend
}
