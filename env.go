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

// Environment bundles every collaborator spec.md §6 lists as external to
// the core. Dispatch (dispatch.go) and Unwind (unwind.go) depend only on
// this interface, never on a concrete OS — the seam a test or an embedding
// host uses to supply a synthetic stack, a scripted handler chain, and its
// own continue/raise primitives.
type Environment interface {
	// Memory gives access to the flat stack the chain lives on.
	Memory() StackMemory

	// GetStackLimits returns the current thread's inclusive low and
	// exclusive high stack addresses (spec.md §4.1).
	GetStackLimits() (low, high Addr32)

	// GetRegistrationHead returns the head of the current thread's
	// handler chain.
	GetRegistrationHead() Addr32

	// SetRegistrationHead replaces the head of the current thread's
	// handler chain. Used by the trampoline (trampoline.go) to push and
	// later restore its own boundary node around a handler invocation.
	SetRegistrationHead(node Addr32)

	// UnlinkHandler removes node from the handler chain. Called exactly
	// once per node consumed during an unwind (spec.md §4.6 step 5).
	UnlinkHandler(node Addr32)

	// LookupFunctionTable returns the registered, sorted handler-entry
	// table for the image containing handler and the image's base
	// address. ok is false if no table is registered for that address at
	// all (spec.md §4.3 step 2: "can't verify").
	LookupFunctionTable(handler Addr32) (table FunctionTable, imageBase Addr32, ok bool)

	// CaptureContext fills ctx with the calling thread's current integer,
	// control, and segment register state (spec.md §6).
	CaptureContext(ctx *ContextRecord)

	// CallHandler invokes the handler routine at address handler — the
	// actual per-frame handler code, supplied by whatever registered the
	// protected region. This is the one true "collaborator" piece of
	// spec.md §4.4: the trampolines in trampoline.go are implemented by
	// this core and call through this method, they do not reimplement
	// the handler itself.
	CallHandler(rec *ExceptionRecord, establisher Addr32, ctx *ContextRecord, dc *DispatcherContext, handler Addr32, unwinding bool) Disposition

	// Continue transfers control to ctx and never returns.
	Continue(ctx *ContextRecord, alertable bool)

	// RaiseException re-enters the fault path with rec, optionally with a
	// context record and a first-chance flag, and never returns. The
	// single-argument OS form (first-chance dispatch to vectored
	// handlers) is modeled by passing a nil ctx.
	RaiseException(rec *ExceptionRecord, ctx *ContextRecord, firstChance bool)

	// CurrentIrql and CurrentProcessorBlock support the §4.2 alternate
	// (DPC) stack probe.
	CurrentIrql() Irql
	CurrentProcessorBlock() ProcessorBlock

	// OnInvalidHandlerDetected is a detection hook invoked by
	// IsValidHandler before it returns false, carried over from the
	// original's RtlInvalidHandlerDetected (see SPEC_FULL.md §12).
	// IsValidHandler always calls it; an implementation with no use for it
	// leaves the method body empty.
	OnInvalidHandlerDetected(handler Addr32, table FunctionTable, imageBase Addr32)

	// LogExceptionHandler and LogLastExceptionDisposition are the
	// optional §4.7 logging hook, gated by the process-wide logging flag.
	LogExceptionHandler(rec *ExceptionRecord, ctx *ContextRecord, bias uint32, node Addr32) (index int)
	LogLastExceptionDisposition(index int, d Disposition)
}
