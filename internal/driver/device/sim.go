// internal/driver/device/sim.go
// Simulated miner backend. It stands in for a GPU when none is compiled
// in, the way a mock kernel stands in for real silicon during
// development: the nonce search is a keccak sweep over a small batch per
// Compute call, not a ProgPoW implementation. The lifecycle, solution
// queue and wire format are the real thing.

package device

import (
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

// simBatchSize is the number of nonces swept per Compute call.
const simBatchSize = 4096

type simMiner struct {
	device  uint32
	backend Driver

	mu      sync.Mutex
	closed  bool
	pending []Solution
	stats   MinerStats
}

func newSimMiner(deviceIdx uint32, backend Driver, _ Settings) *simMiner {
	return &simMiner{device: deviceIdx, backend: backend}
}

func (m *simMiner) Device() uint32  { return m.device }
func (m *simMiner) Backend() Driver { return m.backend }

func (m *simMiner) Compute(work Work) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMinerClosed
	}

	m.stats.recordWork(work.Height, work.Epoch)

	var nonceLE [8]byte
	for i := uint64(0); i < simBatchSize; i++ {
		nonce := work.StartNonce + i
		binary.LittleEndian.PutUint64(nonceLE[:], nonce)
		digest := crypto.Keccak256(work.Header[:], nonceLE[:])
		if binary.BigEndian.Uint64(digest[:8]) < work.Boundary {
			var sol Solution
			sol.Nonce = nonce
			copy(sol.MixHash[:], digest)
			m.pending = append(m.pending, sol)
		}
	}
	m.stats.recordHashes(simBatchSize)
	return nil
}

func (m *simMiner) Solutions(buf []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrMinerClosed
	}

	if len(m.pending) == 0 {
		m.stats.recordPoll(false)
		return false, nil
	}

	sol := m.pending[0]
	m.pending = m.pending[1:]
	if err := sol.Encode(buf); err != nil {
		return false, err
	}
	m.stats.recordPoll(true)
	return true, nil
}

func (m *simMiner) Stats() StatsSnapshot { return m.stats.Snapshot() }

func (m *simMiner) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.pending = nil
	return nil
}
