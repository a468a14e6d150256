// Command sqlhost runs a WebAssembly guest with access to a host-owned
// database. The guest calls the exported sql_request function with a JSON
// proxy request and receives a JSON response; the host keeps every database
// object on its own side of the boundary.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/tomyedwab/sqlbridge/sqlproxy/host"
)

type contextKey int

const contextKeySQLHost contextKey = iota

func readBytes(m api.Module, offset, byteCount uint32) []byte {
	buf, ok := m.Memory().Read(offset, byteCount)
	if !ok {
		log.Panicf("Memory.Read(%d, %d) out of range", offset, byteCount)
	}
	return buf
}

// writeBytes copies data into guest memory using the guest's allocator
// exports, returning the allocation handle and a release function.
func writeBytes(m api.Module, data []byte) (freeFn func(), handle uint32) {
	alloc := m.ExportedFunction("alloc_bytes")
	free := m.ExportedFunction("free_bytes")
	result, err := alloc.Call(context.Background(), uint64(len(data)))
	if err != nil {
		log.Panicln(err)
	}
	handle = uint32(result[0] >> 32)
	ptr := uint32(result[0])
	freeFn = func() {
		free.Call(context.Background(), uint64(handle))
	}
	if !m.Memory().Write(ptr, data) {
		log.Panicln("Memory.Write failed")
	}
	return
}

// sqlRequest is the host function the guest calls with one proxy request.
// The low 32 bits of the return value are the response allocation handle;
// bit 32 flags a transport-level failure.
func sqlRequest(ctx context.Context, m api.Module, reqOffset, reqByteCount uint32) uint64 {
	request := readBytes(m, reqOffset, reqByteCount)

	sqlHost := ctx.Value(contextKeySQLHost)
	if sqlHost == nil {
		log.Panicln("Missing SQL host in context")
	}

	response, err := sqlHost.(*host.SQLHost).HandleRequest(request)
	if err != nil {
		log.Printf("Error handling SQL request: %v", err)
		_, handle := writeBytes(m, []byte(err.Error()))
		return uint64(handle) | (1 << 32)
	}
	_, handle := writeBytes(m, response)
	return uint64(handle)
}

func main() {
	wasmFile := flag.String("wasm", "", "Path to the WASM guest to run")
	flag.Parse()

	if *wasmFile == "" {
		log.Fatal("WASM file path must be provided via -wasm flag")
	}
	wasmBytes, err := os.ReadFile(*wasmFile)
	if err != nil {
		log.Fatalf("Failed to read WASM file %s: %v", *wasmFile, err)
	}

	ctx := context.WithValue(context.Background(), contextKeySQLHost, host.NewSQLHost())

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	_, err = r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(sqlRequest).Export("sql_request").
		Instantiate(ctx)
	if err != nil {
		log.Fatal(err)
	}

	// The guest owns its own lifecycle; its databases are opened and closed
	// through sql_request while it runs.
	_, err = r.InstantiateWithConfig(
		ctx,
		wasmBytes,
		wazero.NewModuleConfig().
			WithStdout(os.Stdout).
			WithStderr(os.Stderr).
			WithArgs(flag.Args()...),
	)
	if err != nil {
		log.Fatal(err)
	}
}
