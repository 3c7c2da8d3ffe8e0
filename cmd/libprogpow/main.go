// cmd/libprogpow/main.go
// C-callable entry points over pkg/progpow, built with
// -buildmode=c-shared (or c-archive). Handles cross the boundary as
// opaque void* tokens, never as Go pointers.
//
// This is the one layer where the fatal error tier becomes a real
// exit(1): a mining process whose backend cannot be configured, or that
// dereferences a null miner, is terminated so a supervisor restarts it.
package main

/*
#include <stdint.h>
#include <stdbool.h>
*/
import "C"

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ethereum/go-ethereum/common"

	"progminer/pkg/progpow"
)

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

//export progpow_gpu_configure
func progpow_gpu_configure(devicesCount C.uint32_t) {
	if err := progpow.Configure(uint32(devicesCount)); err != nil {
		fatal(err)
	}
}

//export progpow_gpu_init
func progpow_gpu_init(device C.uint32_t, driver C.uint32_t) unsafe.Pointer {
	h := progpow.Init(uint32(device), uint32(driver))
	if h == 0 {
		fmt.Println("Isn't possible found a GPU")
		return nil
	}
	return unsafe.Pointer(uintptr(h))
}

//export progpow_gpu_compute
func progpow_gpu_compute(miner unsafe.Pointer, header unsafe.Pointer, height C.uint64_t, epoch C.int32_t, boundary C.uint64_t, startNonce C.uint64_t) {
	var headerHash common.Hash
	if header != nil {
		copy(headerHash[:], unsafe.Slice((*byte)(header), common.HashLength))
	}

	err := progpow.Compute(progpow.Handle(uintptr(miner)), headerHash,
		uint64(height), int32(epoch), uint64(boundary), uint64(startNonce))
	if err != nil {
		if progpow.IsFatal(err) {
			fatal(err)
		}
		fmt.Fprintln(os.Stderr, err)
	}
}

//export progpow_gpu_get_solutions
func progpow_gpu_get_solutions(miner unsafe.Pointer, data unsafe.Pointer) C.bool {
	if data == nil {
		fatal(fmt.Errorf("progpow_gpu_get_solutions: nil output buffer"))
	}
	buf := unsafe.Slice((*byte)(data), progpow.SolutionSize)

	found, err := progpow.GetSolutions(progpow.Handle(uintptr(miner)), buf)
	if err != nil {
		if progpow.IsFatal(err) {
			fatal(err)
		}
		fmt.Fprintln(os.Stderr, err)
		return C.bool(false)
	}
	return C.bool(found)
}

//export progpow_destroy
func progpow_destroy(miner unsafe.Pointer) C.bool {
	return C.bool(progpow.Destroy(progpow.Handle(uintptr(miner))))
}

func main() {}
