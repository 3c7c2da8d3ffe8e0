//go:build opencl
// +build opencl

// internal/driver/device/opencl.go
// OpenCL miner backend. Device enumeration and dispatch only; the ProgPoW
// kernel source is an external collaborator loaded from
// Settings.CL.KernelFile at configure time.
//
// Kernel ABI: arg0 header (32 bytes), arg1 output buffer, arg2 start
// nonce (ulong), arg3 boundary (ulong), arg4 DAG buffer. The output
// buffer starts with a uint32 found counter followed by packed 40-byte
// solutions (nonce LE + mix).

package device

/*
#cgo linux LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL

#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif

#include <stdlib.h>
*/
import "C"

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"unsafe"
)

const clCompiled = true

// maxCLSolutions bounds the output buffer: one found counter plus up to
// four packed solutions per dispatch.
const maxCLSolutions = 4

var (
	clMu      sync.Mutex
	clDevices []C.cl_device_id
	clKernel  []byte
)

// clConfigureGPU enumerates the selected platform's GPU devices and loads
// the kernel source. Any failure here means the process has no usable
// OpenCL device.
func clConfigureGPU(s *Settings) error {
	clMu.Lock()
	defer clMu.Unlock()

	var numPlatforms C.cl_uint
	if C.clGetPlatformIDs(0, nil, &numPlatforms) != C.CL_SUCCESS || numPlatforms == 0 {
		return fmt.Errorf("no OpenCL platforms")
	}
	platforms := make([]C.cl_platform_id, numPlatforms)
	C.clGetPlatformIDs(numPlatforms, &platforms[0], nil)
	if s.CL.Platform >= uint32(numPlatforms) {
		return fmt.Errorf("OpenCL platform %d out of range (%d available)", s.CL.Platform, numPlatforms)
	}
	platform := platforms[s.CL.Platform]

	var numDevices C.cl_uint
	if C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, 0, nil, &numDevices) != C.CL_SUCCESS || numDevices == 0 {
		return fmt.Errorf("no OpenCL GPU devices on platform %d", s.CL.Platform)
	}
	devices := make([]C.cl_device_id, numDevices)
	C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, numDevices, &devices[0], nil)
	if s.Devices > uint32(numDevices) {
		return fmt.Errorf("%d device(s) requested, %d present", s.Devices, numDevices)
	}

	kernel, err := os.ReadFile(s.CL.KernelFile)
	if err != nil {
		return fmt.Errorf("read kernel source: %w", err)
	}

	clDevices = devices
	clKernel = kernel
	return nil
}

type clMiner struct {
	device  uint32
	context C.cl_context
	queue   C.cl_command_queue
	program C.cl_program
	kernel  C.cl_kernel

	bufHeader C.cl_mem
	bufOutput C.cl_mem

	localWorkSize  C.size_t
	globalWorkSize C.size_t

	hostOutput []byte
	pending    []Solution
	closed     bool
	stats      MinerStats
}

func newCLMiner(deviceIdx uint32, s Settings) (Miner, error) {
	clMu.Lock()
	defer clMu.Unlock()

	if int(deviceIdx) >= len(clDevices) {
		return nil, fmt.Errorf("OpenCL device %d: %w", deviceIdx, ErrDeviceNotEnabled)
	}
	dev := clDevices[deviceIdx]

	m := &clMiner{
		device:        deviceIdx,
		localWorkSize: C.size_t(s.CL.LocalWorkSize),
	}
	m.globalWorkSize = m.localWorkSize * C.size_t(s.CL.GlobalWorkSizeMultiplier)

	var ret C.cl_int
	m.context = C.clCreateContext(nil, 1, &dev, nil, nil, &ret)
	if ret != C.CL_SUCCESS {
		return nil, fmt.Errorf("create context: %d", ret)
	}
	m.queue = C.clCreateCommandQueue(m.context, dev, 0, &ret)
	if ret != C.CL_SUCCESS {
		m.release()
		return nil, fmt.Errorf("create queue: %d", ret)
	}

	src := C.CString(string(clKernel))
	defer C.free(unsafe.Pointer(src))
	length := C.size_t(len(clKernel))
	m.program = C.clCreateProgramWithSource(m.context, 1, &src, &length, &ret)
	if ret != C.CL_SUCCESS {
		m.release()
		return nil, fmt.Errorf("create program: %d", ret)
	}
	if ret = C.clBuildProgram(m.program, 1, &dev, nil, nil, nil); ret != C.CL_SUCCESS {
		var logSize C.size_t
		C.clGetProgramBuildInfo(m.program, dev, C.CL_PROGRAM_BUILD_LOG, 0, nil, &logSize)
		buildLog := make([]byte, logSize)
		C.clGetProgramBuildInfo(m.program, dev, C.CL_PROGRAM_BUILD_LOG, logSize, unsafe.Pointer(&buildLog[0]), nil)
		m.release()
		return nil, fmt.Errorf("build program: %s", string(buildLog))
	}

	name := C.CString(fmt.Sprintf("progpow_search_%d", s.CL.SelectedKernel))
	defer C.free(unsafe.Pointer(name))
	m.kernel = C.clCreateKernel(m.program, name, &ret)
	if ret != C.CL_SUCCESS {
		m.release()
		return nil, fmt.Errorf("create kernel: %d", ret)
	}

	outputSize := C.size_t(4 + maxCLSolutions*SolutionSize)
	m.bufHeader = C.clCreateBuffer(m.context, C.CL_MEM_READ_ONLY, 32, nil, &ret)
	if ret != C.CL_SUCCESS {
		m.release()
		return nil, fmt.Errorf("create header buffer: %d", ret)
	}
	m.bufOutput = C.clCreateBuffer(m.context, C.CL_MEM_READ_WRITE, outputSize, nil, &ret)
	if ret != C.CL_SUCCESS {
		m.release()
		return nil, fmt.Errorf("create output buffer: %d", ret)
	}
	m.hostOutput = make([]byte, outputSize)

	return m, nil
}

func (m *clMiner) Device() uint32  { return m.device }
func (m *clMiner) Backend() Driver { return DriverOpenCL }

func (m *clMiner) Compute(work Work) error {
	if m.closed {
		return ErrMinerClosed
	}
	m.stats.recordWork(work.Height, work.Epoch)

	header := work.Header
	ret := C.clEnqueueWriteBuffer(m.queue, m.bufHeader, C.CL_TRUE, 0, 32,
		unsafe.Pointer(&header[0]), 0, nil, nil)
	if ret != C.CL_SUCCESS {
		return fmt.Errorf("write header: %d", ret)
	}

	// Reset the found counter.
	var zero [4]byte
	ret = C.clEnqueueWriteBuffer(m.queue, m.bufOutput, C.CL_TRUE, 0, 4,
		unsafe.Pointer(&zero[0]), 0, nil, nil)
	if ret != C.CL_SUCCESS {
		return fmt.Errorf("reset output: %d", ret)
	}

	startNonce := C.cl_ulong(work.StartNonce)
	boundary := C.cl_ulong(work.Boundary)
	C.clSetKernelArg(m.kernel, 0, C.size_t(unsafe.Sizeof(m.bufHeader)), unsafe.Pointer(&m.bufHeader))
	C.clSetKernelArg(m.kernel, 1, C.size_t(unsafe.Sizeof(m.bufOutput)), unsafe.Pointer(&m.bufOutput))
	C.clSetKernelArg(m.kernel, 2, 8, unsafe.Pointer(&startNonce))
	C.clSetKernelArg(m.kernel, 3, 8, unsafe.Pointer(&boundary))

	ret = C.clEnqueueNDRangeKernel(m.queue, m.kernel, 1, nil, &m.globalWorkSize, &m.localWorkSize, 0, nil, nil)
	if ret != C.CL_SUCCESS {
		return fmt.Errorf("enqueue kernel: %d", ret)
	}

	ret = C.clEnqueueReadBuffer(m.queue, m.bufOutput, C.CL_TRUE, 0, C.size_t(len(m.hostOutput)),
		unsafe.Pointer(&m.hostOutput[0]), 0, nil, nil)
	if ret != C.CL_SUCCESS {
		return fmt.Errorf("read output: %d", ret)
	}
	m.stats.recordHashes(uint64(m.globalWorkSize))

	found := binary.LittleEndian.Uint32(m.hostOutput[0:4])
	if found > maxCLSolutions {
		found = maxCLSolutions
	}
	for i := uint32(0); i < found; i++ {
		off := 4 + int(i)*SolutionSize
		sol, err := DecodeSolution(m.hostOutput[off : off+SolutionSize])
		if err != nil {
			return err
		}
		m.pending = append(m.pending, sol)
	}
	return nil
}

func (m *clMiner) Solutions(buf []byte) (bool, error) {
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

func (m *clMiner) Stats() StatsSnapshot { return m.stats.Snapshot() }

func (m *clMiner) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.release()
	return nil
}

func (m *clMiner) release() {
	if m.bufHeader != nil {
		C.clReleaseMemObject(m.bufHeader)
	}
	if m.bufOutput != nil {
		C.clReleaseMemObject(m.bufOutput)
	}
	if m.kernel != nil {
		C.clReleaseKernel(m.kernel)
	}
	if m.program != nil {
		C.clReleaseProgram(m.program)
	}
	if m.queue != nil {
		C.clReleaseCommandQueue(m.queue)
	}
	if m.context != nil {
		C.clReleaseContext(m.context)
	}
}
