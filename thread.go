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

// HandlerFunc is the Go-side stand-in for a frame's handler routine, used
// by Thread (below) to resolve a node's Handler address to actual code to
// run. A real embedding would instead jump to machine code at that
// address; Thread is the reference/test Environment, not a core type.
type HandlerFunc func(rec *ExceptionRecord, establisher Addr32, ctx *ContextRecord, dc *DispatcherContext, unwinding bool) Disposition

// ContinueSignal is what Thread.Continue panics with, letting test code
// and the demonstration CLI recover the "never returns" control transfer
// spec.md requires of Continue without actually transferring control to
// machine code (spec.md §7 notes that a test Environment "may choose to
// panic with a sentinel to unwind its own call stack").
type ContinueSignal struct {
	Context   *ContextRecord
	Alertable bool
}

// RaiseSignal is what Thread.RaiseException panics with.
type RaiseSignal struct {
	Record      *ExceptionRecord
	Context     *ContextRecord
	FirstChance bool
}

// Thread is a reference Environment: an in-memory flat stack, a handler
// chain head, a function-table Registry, and a table mapping handler
// addresses to Go closures. It is the Environment used by this package's
// own tests and by cmd/excoretool; it is not part of the core state
// machines in dispatch.go/unwind.go, which depend only on the Environment
// interface.
type Thread struct {
	mem      StackMemory
	low, high Addr32
	head     Addr32

	registry *Registry
	handlers map[Addr32]HandlerFunc

	irql Irql
	prcb ProcessorBlock

	logger *ChainLogger

	ctx ContextRecord // the "current machine state" CaptureContext snapshots
}

// NewThread constructs a Thread over mem, whose flat address space spans
// [low, high), with an initially empty handler chain.
func NewThread(mem StackMemory, low, high Addr32) *Thread {
	return &Thread{
		mem:      mem,
		low:      low,
		high:     high,
		head:     ChainEnd,
		registry: NewRegistry(),
		handlers: make(map[Addr32]HandlerFunc),
		logger:   NewChainLogger(),
	}
}

// Registry exposes the thread's function-table registry for registration.
func (t *Thread) Registry() *Registry { return t.registry }

// Logger exposes the thread's logging hook implementation.
func (t *Thread) Logger() *ChainLogger { return t.logger }

// PushHandler writes a RegistrationRecord at node (which must lie within
// the thread's stack bounds) pointing at the current chain head, makes it
// the new head, and associates fn as the Go code to run when this node's
// handler is invoked. It mirrors what a protected region's entry code
// does in the original ABI.
func (t *Thread) PushHandler(node, handlerAddr Addr32, fn HandlerFunc) {
	rec := RegistrationRecord{Next: t.head, Handler: handlerAddr}
	writeNode(t.mem, node, rec)
	t.handlers[handlerAddr] = fn
	t.head = node
}

// SetIrql and SetProcessorBlock configure the §4.2 alternate-stack probe
// inputs for tests exercising the DPC-stack substitution.
func (t *Thread) SetIrql(irql Irql)                       { t.irql = irql }
func (t *Thread) SetProcessorBlock(prcb ProcessorBlock)   { t.prcb = prcb }
func (t *Thread) SetContext(ctx ContextRecord)            { t.ctx = ctx }

func (t *Thread) Memory() StackMemory { return t.mem }

func (t *Thread) GetStackLimits() (Addr32, Addr32) { return t.low, t.high }

func (t *Thread) GetRegistrationHead() Addr32 { return t.head }

func (t *Thread) SetRegistrationHead(node Addr32) { t.head = node }

func (t *Thread) UnlinkHandler(node Addr32) {
	if t.head == node {
		n, ok := readNode(t.mem, node)
		if ok {
			t.head = n.Next
		}
		return
	}
	for cur := t.head; cur != ChainEnd; {
		n, ok := readNode(t.mem, cur)
		if !ok {
			return
		}
		if n.Next == node {
			next, ok := readNode(t.mem, node)
			if ok {
				n.Next = next.Next
				writeNode(t.mem, cur, n)
			}
			return
		}
		cur = n.Next
	}
}

func (t *Thread) LookupFunctionTable(handler Addr32) (FunctionTable, Addr32, bool) {
	return t.registry.Lookup(handler)
}

func (t *Thread) CaptureContext(ctx *ContextRecord) {
	*ctx = t.ctx
	ctx.ContextFlags = ContextInteger | ContextControl | ContextSegments
}

func (t *Thread) CallHandler(rec *ExceptionRecord, establisher Addr32, ctx *ContextRecord, dc *DispatcherContext, handler Addr32, unwinding bool) Disposition {
	fn, ok := t.handlers[handler]
	if !ok {
		panic("excore: no handler registered for address")
	}
	return fn(rec, establisher, ctx, dc, unwinding)
}

func (t *Thread) Continue(ctx *ContextRecord, alertable bool) {
	panic(ContinueSignal{Context: ctx, Alertable: alertable})
}

func (t *Thread) RaiseException(rec *ExceptionRecord, ctx *ContextRecord, firstChance bool) {
	panic(RaiseSignal{Record: rec, Context: ctx, FirstChance: firstChance})
}

func (t *Thread) CurrentIrql() Irql                     { return t.irql }
func (t *Thread) CurrentProcessorBlock() ProcessorBlock { return t.prcb }

func (t *Thread) OnInvalidHandlerDetected(Addr32, FunctionTable, Addr32) {}

func (t *Thread) LogExceptionHandler(rec *ExceptionRecord, ctx *ContextRecord, bias uint32, node Addr32) int {
	return t.logger.LogExceptionHandler(t.mem, rec, ctx, bias, node)
}

func (t *Thread) LogLastExceptionDisposition(index int, d Disposition) {
	t.logger.LogLastExceptionDisposition(index, d)
}

var _ Environment = (*Thread)(nil)
