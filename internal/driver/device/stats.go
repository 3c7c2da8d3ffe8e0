// internal/driver/device/stats.go
package device

import "sync"

// MinerStats holds per-miner counters with internal synchronization.
type MinerStats struct {
	mu sync.RWMutex

	workDispatched  uint64
	polls           uint64
	hashesAttempted uint64
	solutionsFound  uint64
	lastHeight      uint64
	lastEpoch       int32
}

// StatsSnapshot is a copy of miner counters without synchronization,
// safe to hand to callers and to serialize.
type StatsSnapshot struct {
	WorkDispatched  uint64 `json:"work_dispatched"`
	Polls           uint64 `json:"polls"`
	HashesAttempted uint64 `json:"hashes_attempted"`
	SolutionsFound  uint64 `json:"solutions_found"`
	LastHeight      uint64 `json:"last_height"`
	LastEpoch       int32  `json:"last_epoch"`
}

func (s *MinerStats) recordWork(height uint64, epoch int32) {
	s.mu.Lock()
	s.workDispatched++
	s.lastHeight = height
	s.lastEpoch = epoch
	s.mu.Unlock()
}

func (s *MinerStats) recordHashes(n uint64) {
	s.mu.Lock()
	s.hashesAttempted += n
	s.mu.Unlock()
}

func (s *MinerStats) recordPoll(found bool) {
	s.mu.Lock()
	s.polls++
	if found {
		s.solutionsFound++
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *MinerStats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatsSnapshot{
		WorkDispatched:  s.workDispatched,
		Polls:           s.polls,
		HashesAttempted: s.hashesAttempted,
		SolutionsFound:  s.solutionsFound,
		LastHeight:      s.lastHeight,
		LastEpoch:       s.lastEpoch,
	}
}
