//go:build wasip1

// Package guest glues the proxy driver to a WASM host. It exports the byte
// allocator the host writes responses through and implements the driver's
// CallHost function on top of the host's sql_request import.
package guest

import (
	"fmt"
	"unsafe"

	"github.com/tomyedwab/sqlbridge/sqlproxy/driver"
)

var byteHandles = make(map[uint32][]byte)
var nextByteHandle uint32 = 1

//go:wasmexport alloc_bytes
func allocBytes(size uint32) uint64 {
	bytes := make([]byte, size)
	handle := nextByteHandle
	byteHandles[handle] = bytes
	nextByteHandle++
	return uint64(handle)<<32 | uint64(uintptr(unsafe.Pointer(&bytes[0])))
}

//go:wasmexport free_bytes
func freeBytes(handle uint32) {
	delete(byteHandles, handle)
}

//go:wasmimport env sql_request
func sqlRequest(reqPtr, reqLen uint32) uint64

// Init wires the driver's CallHost to the host's sql_request import. Call
// once before any database operation.
func Init() {
	driver.SetHostHandler(callHost)
}

func callHost(requestPayload []byte) ([]byte, error) {
	var ptr uint32
	if len(requestPayload) > 0 {
		ptr = uint32(uintptr(unsafe.Pointer(&requestPayload[0])))
	}
	result := sqlRequest(ptr, uint32(len(requestPayload)))
	handle := uint32(result & 0xffffffff)
	failed := result>>32 != 0

	response := byteHandles[handle]
	delete(byteHandles, handle)
	if failed {
		return nil, fmt.Errorf("sqlproxy: host transport error: %s", response)
	}
	return response, nil
}
