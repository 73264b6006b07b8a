//  Copyright 2023 Stealth Rocket, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package excore

import (
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"
)

// StackMemory is the minimum interface required to read and write the flat,
// byte-addressed stack a handler chain lives on. It replaces direct pointer
// dereferences of the original ABI: this core never assumes the stack it is
// walking is the host Go runtime's own stack, so every node access goes
// through here. Read returns ok=false instead of panicking on an
// out-of-bounds or unmapped access — callers that already validated bounds
// treat a false here as a bug, callers reading speculatively (logging.go)
// treat it as "unavailable" (spec.md §9, second Open Question).
type StackMemory interface {
	Read(address Addr32, size uint32) ([]byte, bool)
	Write(address Addr32, b []byte) bool
}

// flatMemory is a StackMemory backed by a plain byte slice representing the
// inclusive-low/exclusive-high span [Low, Low+len(Bytes)). It is the
// backend used by tests and by any pure-Go embedding that models its own
// stack as a byte arena.
type flatMemory struct {
	Low   Addr32
	Bytes []byte
}

// NewFlatMemory constructs a StackMemory over an in-process byte slice
// beginning at the given low address.
func NewFlatMemory(low Addr32, bytes []byte) StackMemory {
	return &flatMemory{Low: low, Bytes: bytes}
}

func (m *flatMemory) span(address Addr32, size uint32) (int, bool) {
	if address < m.Low {
		return 0, false
	}
	off := int(address - m.Low)
	if off < 0 || off+int(size) > len(m.Bytes) {
		return 0, false
	}
	return off, true
}

func (m *flatMemory) Read(address Addr32, size uint32) ([]byte, bool) {
	off, ok := m.span(address, size)
	if !ok {
		return nil, false
	}
	out := make([]byte, size)
	copy(out, m.Bytes[off:off+int(size)])
	return out, true
}

func (m *flatMemory) Write(address Addr32, b []byte) bool {
	off, ok := m.span(address, uint32(len(b)))
	if !ok {
		return false
	}
	copy(m.Bytes[off:off+len(b)], b)
	return true
}

// wasmGuestMemory adapts a wazero guest's linear memory to StackMemory, so
// a host embedding this core to dispatch faults raised by WebAssembly code
// can model the guest's own stack (which wazero already exposes as a flat,
// byte-addressed, 32-bit space) without copying it into a Go byte slice
// first. offset arithmetic is identity: wasm linear memory addresses are
// already flat 32-bit offsets, matching this core's ABI exactly.
type wasmGuestMemory struct {
	mem api.Memory
}

// NewWasmGuestMemory wraps a wazero guest's linear memory (api.Memory, as
// returned by api.Module.Memory()) as a StackMemory.
func NewWasmGuestMemory(mem api.Memory) StackMemory {
	return &wasmGuestMemory{mem: mem}
}

func (m *wasmGuestMemory) Read(address Addr32, size uint32) ([]byte, bool) {
	return m.mem.Read(uint32(address), size)
}

func (m *wasmGuestMemory) Write(address Addr32, b []byte) bool {
	return m.mem.Write(uint32(address), b)
}

// readNode decodes a RegistrationRecord at address, little-endian, without
// trusting alignment or bounds beyond what StackMemory.Read itself enforces
// (the caller, dispatch.go/unwind.go, is responsible for the spec.md §4.5
// step 2 bounds/alignment check before calling this).
func readNode(mem StackMemory, address Addr32) (RegistrationRecord, bool) {
	b, ok := mem.Read(address, sizeOfRegistrationRecord)
	if !ok {
		return RegistrationRecord{}, false
	}
	return RegistrationRecord{
		Next:    Addr32(binary.LittleEndian.Uint32(b[0:4])),
		Handler: Addr32(binary.LittleEndian.Uint32(b[4:8])),
	}, true
}

// readUint32 reads a single little-endian Addr32-sized word, used by
// logging.go to capture the fixed-size prefix preceding a node.
func readUint32(mem StackMemory, address Addr32) (uint32, bool) {
	b, ok := mem.Read(address, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// writeNode encodes a RegistrationRecord at address, little-endian. Used by
// Thread.PushHandler and by tests constructing a synthetic chain; the core
// dispatch/unwind state machines never write to the chain themselves.
func writeNode(mem StackMemory, address Addr32, rec RegistrationRecord) bool {
	var b [sizeOfRegistrationRecord]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(rec.Next))
	binary.LittleEndian.PutUint32(b[4:8], uint32(rec.Handler))
	return mem.Write(address, b[:])
}
