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

// Package excore implements the core of a structured-exception dispatch
// and unwind runtime for a 32-bit, flat-addressed, stack-based call-frame
// model. It walks a thread-local chain of frame-resident handlers on
// fault/raise (dispatch) and on transfer-of-control (unwind); everything
// outside that — context capture, the image/function-table registry, the
// continue/raise system calls, and assembler trampolines — is consumed
// through the Environment interface in env.go.
package excore

// Addr32 is a flat 32-bit address: a stack slot, a registration record, or
// a handler entry point. It stands in for the raw machine pointer of the
// original ABI; this core never dereferences one directly, always through
// a StackMemory.
type Addr32 uint32

// ChainEnd is the sentinel terminating a handler chain. It is not a valid
// node address.
const ChainEnd Addr32 = 0xFFFFFFFF

// ExceptionCode identifies the kind of exception carried by a record.
type ExceptionCode uint32

// Exception codes raised by this core itself (spec.md §7). Host-defined
// fault codes live in whatever numbering space the collaborator chooses;
// this core never interprets Code except to compare/propagate it.
const (
	CodeNoncontinuableException ExceptionCode = 0xC0000025
	CodeInvalidDisposition      ExceptionCode = 0xC0000026
	CodeBadStack                ExceptionCode = 0xC0000028
	CodeInvalidUnwindTarget     ExceptionCode = 0xC0000029
	CodeUnwind                  ExceptionCode = 0x80000027
)

// ExceptionFlags is a bitset OR'd into by the dispatcher and unwind
// driver; handlers only ever observe or add bits, never clear them
// directly (spec.md §3).
type ExceptionFlags uint32

const (
	FlagNoncontinuable ExceptionFlags = 1 << iota
	FlagUnwinding
	FlagExitUnwind
	FlagStackInvalid
	FlagNestedCall
)

// MaxExceptionParameters bounds the inline parameter array, mirroring the
// EXCEPTION_MAXIMUM_PARAMETERS convention of the original ABI.
const MaxExceptionParameters = 15

// ExceptionRecord carries a numeric code, a flag bitset, an optional
// chained inner record, the address the exception arose at, and up to
// MaxExceptionParameters numeric parameters. Handlers may only OR into
// Flags; every other field is conceptually immutable once raised.
type ExceptionRecord struct {
	Code             ExceptionCode
	Flags            ExceptionFlags
	Record           *ExceptionRecord // chained inner exception, or nil
	Address          Addr32           // instruction address where the exception arose
	NumberParameters uint32
	Parameters       [MaxExceptionParameters]uint32
}

// chain builds a new exception record whose Record field points at inner,
// the way the original raises ExceptionRecord1 with ExceptionRecord as its
// inner record (exdsptch.c, every RtlRaiseException call site).
func chain(code ExceptionCode, inner *ExceptionRecord) *ExceptionRecord {
	return &ExceptionRecord{
		Code:   code,
		Flags:  FlagNoncontinuable,
		Record: inner,
	}
}

// ContextFlags records which register groups of a ContextRecord are
// populated, mirroring CONTEXT_INTEGER/CONTEXT_CONTROL/CONTEXT_SEGMENTS.
type ContextFlags uint32

const (
	ContextInteger ContextFlags = 1 << iota
	ContextControl
	ContextSegments
)

// ContextRecord snapshots machine state: integer registers, control
// registers (including the stack/frame pointers and instruction pointer),
// and segment registers. It is captured at dispatch/unwind entry, mutated
// by handlers during unwind, and consumed by the final continue.
type ContextRecord struct {
	ContextFlags ContextFlags

	// Integer registers.
	Eax, Ebx, Ecx, Edx, Esi, Edi uint32

	// Control registers.
	Esp, Ebp, Eip, EFlags uint32

	// Segment registers.
	SegCs, SegSs, SegDs, SegEs, SegFs, SegGs uint16
}

// Disposition is a handler's verdict when invoked in either exception or
// unwind mode.
type Disposition int32

const (
	ContinueExecution Disposition = iota
	ContinueSearch
	NestedException
	CollidedUnwind
)

// RegistrationRecord is a stack-resident handler chain node: a pointer to
// the next (older) node, and a pointer to this frame's handler routine.
// Its own address is the "establisher frame" passed to its handler.
type RegistrationRecord struct {
	Next    Addr32
	Handler Addr32
}

// sizeOfRegistrationRecord is the node's footprint in the flat address
// space: two Addr32 fields, 4-byte aligned.
const sizeOfRegistrationRecord = 8

// DispatcherContext is the scratch structure threaded through a handler
// invocation (see trampoline.go and DESIGN.md Open Question 2). A handler
// writes RegistrationPointer to signal either the establishing frame of a
// nested exception, or the handler to resume at after a collided unwind.
type DispatcherContext struct {
	RegistrationPointer Addr32
}
