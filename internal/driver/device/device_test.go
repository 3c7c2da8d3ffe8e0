package device

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// resetConfig clears the package configuration state between tests.
func resetConfig() {
	mu.Lock()
	current = nil
	slots = [MaxMiners]bool{}
	miningThreads = 0
	mu.Unlock()
}

func configureSim(t *testing.T, devices uint32) {
	t.Helper()
	s := DefaultSettings()
	s.Devices = devices
	s.Simulate = true
	if err := Configure(s); err != nil {
		t.Fatalf("Configure(%d) failed: %v", devices, err)
	}
}

func TestConfigureRejectsTooManyDevices(t *testing.T) {
	defer resetConfig()

	s := DefaultSettings()
	s.Devices = MaxMiners + 1
	s.Simulate = true
	if err := Configure(s); !errors.Is(err, ErrTooManyDevices) {
		t.Fatalf("expected ErrTooManyDevices, got %v", err)
	}
	if Configured() {
		t.Fatal("failed Configure must not leave the package configured")
	}
}

func TestConfigureEnablesSlots(t *testing.T) {
	defer resetConfig()
	configureSim(t, 2)

	enabled := EnabledDevices()
	if len(enabled) != 2 || enabled[0] != 0 || enabled[1] != 1 {
		t.Fatalf("expected devices [0 1], got %v", enabled)
	}
	if got := MiningThreads(); got != 2 {
		t.Fatalf("expected 2 mining threads, got %d", got)
	}
}

func TestOpenBeforeConfigure(t *testing.T) {
	resetConfig()

	m, err := Open(0, DriverOpenCL)
	if m != nil {
		t.Fatal("expected nil miner before Configure")
	}
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	defer resetConfig()
	configureSim(t, 1)

	for _, driver := range []Driver{0, 3, 7, 255} {
		m, err := Open(0, driver)
		if m != nil {
			t.Fatalf("driver %d: expected nil miner", driver)
		}
		if !errors.Is(err, ErrNoBackend) {
			t.Fatalf("driver %d: expected ErrNoBackend, got %v", driver, err)
		}
	}
}

func TestOpenWithoutCompiledBackend(t *testing.T) {
	if clCompiled || cudaCompiled {
		t.Skip("a GPU backend is compiled in")
	}
	defer resetConfig()

	s := DefaultSettings()
	s.Devices = 1
	if err := Configure(s); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	for _, driver := range []Driver{DriverCUDA, DriverOpenCL} {
		m, err := Open(0, driver)
		if m != nil {
			t.Fatalf("driver %s: expected nil miner", driver)
		}
		if !errors.Is(err, ErrNoBackend) {
			t.Fatalf("driver %s: expected ErrNoBackend, got %v", driver, err)
		}
	}
}

func TestOpenDisabledDevice(t *testing.T) {
	defer resetConfig()
	configureSim(t, 1)

	m, err := Open(3, DriverOpenCL)
	if m != nil {
		t.Fatal("expected nil miner for a disabled slot")
	}
	if !errors.Is(err, ErrDeviceNotEnabled) {
		t.Fatalf("expected ErrDeviceNotEnabled, got %v", err)
	}
}

func TestOpenSimulatedDistinctHandles(t *testing.T) {
	defer resetConfig()
	configureSim(t, 2)

	a, err := Open(0, DriverOpenCL)
	if err != nil {
		t.Fatalf("Open(0) failed: %v", err)
	}
	b, err := Open(1, DriverCUDA)
	if err != nil {
		t.Fatalf("Open(1) failed: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct miners per Open call")
	}
	if a.Backend() != DriverOpenCL || b.Backend() != DriverCUDA {
		t.Fatalf("backend mismatch: %s, %s", a.Backend(), b.Backend())
	}
	a.Close()
	b.Close()
}

func TestSimMinerFindsSolution(t *testing.T) {
	defer resetConfig()
	configureSim(t, 1)

	m, err := Open(0, DriverOpenCL)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer m.Close()

	work := Work{
		Header:     common.HexToHash("0x1414141414141414141414141414141414141414141414141414141414141414"),
		Height:     100,
		Epoch:      0,
		Boundary:   math.MaxUint64,
		StartNonce: 0,
	}
	if err := m.Compute(work); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	buf := make([]byte, SolutionSize)
	found, err := m.Solutions(buf)
	if err != nil {
		t.Fatalf("Solutions failed: %v", err)
	}
	if !found {
		t.Fatal("expected a solution with an open boundary")
	}

	sol, err := DecodeSolution(buf)
	if err != nil {
		t.Fatalf("DecodeSolution failed: %v", err)
	}
	var nonceLE [8]byte
	binary.LittleEndian.PutUint64(nonceLE[:], sol.Nonce)
	want := crypto.Keccak256Hash(work.Header[:], nonceLE[:])
	if sol.MixHash != want {
		t.Fatalf("mix hash mismatch: got %x want %x", sol.MixHash, want)
	}

	stats := m.Stats()
	if stats.WorkDispatched != 1 || stats.SolutionsFound != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.LastHeight != 100 {
		t.Fatalf("expected last height 100, got %d", stats.LastHeight)
	}
}

func TestSimMinerRespectsBoundary(t *testing.T) {
	defer resetConfig()
	configureSim(t, 1)

	m, _ := Open(0, DriverCUDA)
	defer m.Close()

	// Boundary 0 means no hash can qualify.
	if err := m.Compute(Work{Boundary: 0}); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	buf := make([]byte, SolutionSize)
	found, err := m.Solutions(buf)
	if err != nil {
		t.Fatalf("Solutions failed: %v", err)
	}
	if found {
		t.Fatal("no solution should pass a zero boundary")
	}
}

func TestClosedMinerRejectsUse(t *testing.T) {
	defer resetConfig()
	configureSim(t, 1)

	m, _ := Open(0, DriverOpenCL)
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Compute(Work{}); !errors.Is(err, ErrMinerClosed) {
		t.Fatalf("expected ErrMinerClosed from Compute, got %v", err)
	}
	if _, err := m.Solutions(make([]byte, SolutionSize)); !errors.Is(err, ErrMinerClosed) {
		t.Fatalf("expected ErrMinerClosed from Solutions, got %v", err)
	}
}

func TestSolutionRoundTrip(t *testing.T) {
	sol := Solution{Nonce: 0xdeadbeefcafe, MixHash: common.HexToHash("0xabcdef")}
	buf := make([]byte, SolutionSize)
	if err := sol.Encode(buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := DecodeSolution(buf)
	if err != nil {
		t.Fatalf("DecodeSolution failed: %v", err)
	}
	if got != sol {
		t.Fatalf("round trip mismatch: %+v != %+v", got, sol)
	}

	if err := sol.Encode(make([]byte, SolutionSize-1)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestSeedHash(t *testing.T) {
	if (SeedHash(0) != common.Hash{}) {
		t.Fatal("epoch 0 seed must be the zero hash")
	}

	var zero common.Hash
	want := crypto.Keccak256Hash(zero[:])
	if got := SeedHash(1); got != want {
		t.Fatalf("epoch 1 seed mismatch: got %x want %x", got, want)
	}

	// Each epoch applies one more keccak round.
	want = crypto.Keccak256Hash(want[:])
	if got := SeedHash(2); got != want {
		t.Fatalf("epoch 2 seed mismatch: got %x want %x", got, want)
	}
}

func TestEpochOf(t *testing.T) {
	if EpochOf(0) != 0 || EpochOf(EpochLength-1) != 0 {
		t.Fatal("heights below EpochLength belong to epoch 0")
	}
	if EpochOf(EpochLength) != 1 {
		t.Fatal("height EpochLength belongs to epoch 1")
	}
}

func TestFatalError(t *testing.T) {
	err := Fatal("compute", ErrMinerClosed)
	if !IsFatal(err) {
		t.Fatal("expected fatal classification")
	}
	if !errors.Is(err, ErrMinerClosed) {
		t.Fatal("fatal errors must unwrap to their cause")
	}
	if IsFatal(ErrNoBackend) {
		t.Fatal("ErrNoBackend is recoverable, not fatal")
	}
}
