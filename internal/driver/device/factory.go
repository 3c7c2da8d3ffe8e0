// internal/driver/device/factory.go
package device

import (
	"fmt"
	"log"
)

// Open constructs one miner bound to the given device index and driver.
//
// A nil miner with an error means construction failed recoverably: the
// requested driver is unknown, its backend was not compiled in, or the
// device slot was never enabled.
func Open(deviceIdx uint32, driver Driver) (Miner, error) {
	settings, ok := CurrentSettings()
	if !ok {
		return nil, ErrNotConfigured
	}
	if !deviceEnabled(deviceIdx) {
		return nil, fmt.Errorf("device %d: %w", deviceIdx, ErrDeviceNotEnabled)
	}

	if !driver.Valid() {
		log.Printf("init device=%d: no backend for driver %s", deviceIdx, driver)
		return nil, fmt.Errorf("driver %d: %w", uint32(driver), ErrNoBackend)
	}

	if settings.Simulate {
		return newSimMiner(deviceIdx, driver, settings), nil
	}

	var (
		m   Miner
		err error
	)
	switch driver {
	case DriverCUDA:
		m, err = newCUDAMiner(deviceIdx, settings)
	case DriverOpenCL:
		m, err = newCLMiner(deviceIdx, settings)
	}
	if err != nil {
		log.Printf("init device=%d driver=%s: %v", deviceIdx, driver, err)
		return nil, err
	}
	return m, nil
}
