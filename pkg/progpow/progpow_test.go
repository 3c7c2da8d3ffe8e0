package progpow

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"progminer/internal/driver/device"
)

func configureSim(t *testing.T, devices uint32) {
	t.Helper()
	s := device.DefaultSettings()
	s.Devices = devices
	s.Simulate = true
	require.NoError(t, ConfigureWith(s))
}

func TestInitUnknownDriverReturnsNullHandle(t *testing.T) {
	configureSim(t, 1)

	for _, driver := range []uint32{0, 3, 9, 42} {
		h := Init(0, driver)
		assert.Equal(t, Handle(0), h, "driver %d must yield the null handle", driver)
	}
}

func TestInitDistinctHandles(t *testing.T) {
	configureSim(t, 2)

	a := Init(0, uint32(device.DriverOpenCL))
	b := Init(1, uint32(device.DriverCUDA))
	require.NotEqual(t, Handle(0), a)
	require.NotEqual(t, Handle(0), b)
	assert.NotEqual(t, a, b, "each Init call returns a distinct handle")

	assert.True(t, Destroy(a))
	assert.True(t, Destroy(b))
}

func TestDestroySemantics(t *testing.T) {
	configureSim(t, 1)

	assert.False(t, Destroy(0), "destroying the null handle reports false")

	h := Init(0, uint32(device.DriverOpenCL))
	require.NotEqual(t, Handle(0), h)
	assert.True(t, Destroy(h), "destroying a live handle reports true")
	assert.False(t, Destroy(h), "double destroy reports false")

	// A destroyed handle is no longer usable; use is fatal-tier, not UB.
	err := Compute(h, common.Hash{}, 1, 0, 1, 0)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestNilHandleUseIsFatal(t *testing.T) {
	configureSim(t, 1)

	err := Compute(0, common.Hash{}, 1, 0, 1, 0)
	require.Error(t, err)
	assert.True(t, IsFatal(err), "compute on the null handle is fatal-tier")

	_, err = GetSolutions(0, make([]byte, SolutionSize))
	require.Error(t, err)
	assert.True(t, IsFatal(err), "poll on the null handle is fatal-tier")
}

func TestConfigureRejectsExcessDeviceCount(t *testing.T) {
	err := Configure(device.MaxMiners + 1)
	require.Error(t, err)
	assert.False(t, IsFatal(err), "capacity rejection is an explicit error, not fatal")
}

// Full lifecycle: configure(1) -> init -> compute -> poll -> destroy.
func TestMiningScenario(t *testing.T) {
	configureSim(t, 1)

	h := Init(0, uint32(device.DriverOpenCL))
	require.NotEqual(t, Handle(0), h)

	header := common.HexToHash("0x1414141414141414141414141414141414141414141414141414141414141414")
	require.NoError(t, Compute(h, header, 100, 0, math.MaxUint64, 0))

	buf := make([]byte, SolutionSize)
	found, err := GetSolutions(h, buf)
	require.NoError(t, err)
	require.True(t, found, "open boundary must yield a solution")

	sol, err := device.DecodeSolution(buf)
	require.NoError(t, err)
	assert.NotZero(t, sol.MixHash, "mix hash must be filled in")

	stats, ok := Stats(h)
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.WorkDispatched)
	assert.Equal(t, uint64(1), stats.SolutionsFound)

	assert.True(t, Destroy(h))
}
