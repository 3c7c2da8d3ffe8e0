// internal/server/rig.go
// The Rig owns one miner per enabled device and runs their
// compute/poll cycles. The shim itself stays synchronous; all
// parallelism lives here, on the caller side of the contract.

package server

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"progminer/internal/config"
	"progminer/internal/driver/device"
)

// maxKeptSolutions caps the solution log the API serves.
const maxKeptSolutions = 64

// nonceSegmentShift spreads devices across the nonce space so their
// sweeps never overlap: device i starts at StartNonce + i<<40.
const nonceSegmentShift = 40

// pollInterval paces a miner loop when no work is queued.
const pollInterval = 100 * time.Millisecond

// FoundSolution is one qualifying nonce with its provenance.
type FoundSolution struct {
	Device  uint32      `json:"device"`
	Height  uint64      `json:"height"`
	Nonce   uint64      `json:"nonce"`
	MixHash common.Hash `json:"mix_hash"`
	Found   time.Time   `json:"found"`
}

// DeviceStatus describes one rig device for the API.
type DeviceStatus struct {
	Device uint32               `json:"device"`
	Driver string               `json:"driver"`
	Stats  device.StatsSnapshot `json:"stats"`
}

type workState struct {
	work device.Work
	gen  uint64
}

// Rig drives one miner per enabled device.
type Rig struct {
	cfg    *config.Config
	driver device.Driver

	mu        sync.RWMutex
	miners    map[uint32]device.Miner
	current   *workState
	solutions []FoundSolution
	started   time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New configures the backends from cfg and opens one miner per enabled
// device. A backend configuration failure comes back fatal-tier; the
// caller decides to exit.
func New(cfg *config.Config) (*Rig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	driver, err := cfg.DriverID()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Driver) {
	case "sim", "simulate":
		cfg.Settings.Simulate = true
	}

	if err := device.Configure(cfg.Settings); err != nil {
		return nil, err
	}

	miners := make(map[uint32]device.Miner)
	for _, idx := range device.EnabledDevices() {
		m, err := device.Open(idx, driver)
		if err != nil {
			for _, open := range miners {
				open.Close()
			}
			return nil, fmt.Errorf("open device %d: %w", idx, err)
		}
		miners[idx] = m
	}

	return &Rig{
		cfg:     cfg,
		driver:  driver,
		miners:  miners,
		started: time.Now(),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start launches one mining loop per device.
func (r *Rig) Start() {
	for idx, m := range r.miners {
		r.wg.Add(1)
		go r.mineLoop(idx, m)
	}
	log.Printf("rig started: %d device(s) on %s", len(r.miners), r.driver)
}

func (r *Rig) mineLoop(idx uint32, m device.Miner) {
	defer r.wg.Done()

	var (
		gen    uint64
		offset uint64
	)
	buf := make([]byte, device.SolutionSize)

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		r.mu.RLock()
		state := r.current
		r.mu.RUnlock()

		if state == nil {
			time.Sleep(pollInterval)
			continue
		}
		if state.gen != gen {
			gen = state.gen
			offset = 0
		}

		work := state.work
		work.StartNonce += uint64(idx)<<nonceSegmentShift + offset
		if err := m.Compute(work); err != nil {
			log.Printf("device %d: compute: %v", idx, err)
			time.Sleep(pollInterval)
			continue
		}
		offset += uint64(r.cfg.Settings.CL.LocalWorkSize) * uint64(r.cfg.Settings.CL.GlobalWorkSizeMultiplier)

		for {
			found, err := m.Solutions(buf)
			if err != nil {
				log.Printf("device %d: solutions: %v", idx, err)
				break
			}
			if !found {
				break
			}
			sol, err := device.DecodeSolution(buf)
			if err != nil {
				log.Printf("device %d: decode solution: %v", idx, err)
				break
			}
			r.recordSolution(idx, state.work.Height, sol)
		}
	}
}

func (r *Rig) recordSolution(idx uint32, height uint64, sol device.Solution) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.solutions = append(r.solutions, FoundSolution{
		Device:  idx,
		Height:  height,
		Nonce:   sol.Nonce,
		MixHash: sol.MixHash,
		Found:   time.Now(),
	})
	if len(r.solutions) > maxKeptSolutions {
		r.solutions = r.solutions[len(r.solutions)-maxKeptSolutions:]
	}
	log.Printf("device %d: solution nonce=%d height=%d", idx, sol.Nonce, height)
}

// SubmitWork replaces the current work unit. Every device loop restarts
// its sweep from the new starting nonce.
func (r *Rig) SubmitWork(w device.Work) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var gen uint64
	if r.current != nil {
		gen = r.current.gen
	}
	r.current = &workState{work: w, gen: gen + 1}
	log.Printf("work accepted: height=%d epoch=%d boundary=%#x", w.Height, w.Epoch, w.Boundary)
}

// CurrentWork returns the active work unit, if any.
func (r *Rig) CurrentWork() (device.Work, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return device.Work{}, false
	}
	return r.current.work, true
}

// Solutions returns the retained solution log, newest last.
func (r *Rig) Solutions() []FoundSolution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FoundSolution, len(r.solutions))
	copy(out, r.solutions)
	return out
}

// Devices returns a status snapshot per device.
func (r *Rig) Devices() []DeviceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DeviceStatus, 0, len(r.miners))
	for idx := uint32(0); idx < device.MaxMiners; idx++ {
		m, ok := r.miners[idx]
		if !ok {
			continue
		}
		out = append(out, DeviceStatus{
			Device: idx,
			Driver: m.Backend().String(),
			Stats:  m.Stats(),
		})
	}
	return out
}

// Uptime reports how long the rig has been running.
func (r *Rig) Uptime() time.Duration {
	return time.Since(r.started)
}

// Driver names the backend the rig was opened on.
func (r *Rig) Driver() string {
	if r.cfg.Settings.Simulate {
		return "sim"
	}
	return r.driver.String()
}

// Stop halts the loops and closes every miner.
func (r *Rig) Stop() {
	close(r.stopCh)
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for idx, m := range r.miners {
		if err := m.Close(); err != nil {
			log.Printf("device %d: close: %v", idx, err)
		}
	}
	r.miners = map[uint32]device.Miner{}
	log.Printf("rig stopped")
}
