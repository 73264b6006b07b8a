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

import "testing"

// scriptedHandler is one frame's pre-programmed behavior for a dispatch
// scenario: what disposition to return, and (for NestedException) what
// DispatcherContext.RegistrationPointer to report.
type scriptedHandler struct {
	disposition Disposition
	nestedAt    Addr32
	calls       int
	sawUnwind   []bool
}

// dispatchScenarioEnv drives DispatchException/Unwind over a handwritten
// chain of registration records on an in-memory stack, dispatching each
// handler invocation to a scriptedHandler by node address. It is
// deliberately independent of Thread (thread.go): the literal scenarios in
// spec.md §8 are exact, narrow state-machine assertions, better pinned
// against a minimal purpose-built Environment than the general-purpose
// reference one.
type dispatchScenarioEnv struct {
	nopEnvironment
	mem       StackMemory
	low, high Addr32
	head      Addr32

	handlers map[Addr32]*scriptedHandler // keyed by node address

	raised      *ExceptionRecord
	continued   bool
	continuedAt *ContextRecord
}

func newDispatchScenarioEnv(low, high Addr32) *dispatchScenarioEnv {
	size := uint32(high - low)
	return &dispatchScenarioEnv{
		mem:      NewFlatMemory(low, make([]byte, size)),
		low:      low,
		high:     high,
		head:     ChainEnd,
		handlers: make(map[Addr32]*scriptedHandler),
	}
}

// pushNode writes a node at addr pointing at the current head, makes it
// the new head, and associates h as its handler's script. The node's own
// address doubles as its "handler address" for simplicity, since these
// tests never consult LookupFunctionTable (no table is ever registered,
// so IsValidHandler trusts every address).
func (e *dispatchScenarioEnv) pushNode(addr Addr32, h *scriptedHandler) {
	writeNode(e.mem, addr, RegistrationRecord{Next: e.head, Handler: addr})
	e.handlers[addr] = h
	e.head = addr
}

func (e *dispatchScenarioEnv) Memory() StackMemory              { return e.mem }
func (e *dispatchScenarioEnv) GetStackLimits() (Addr32, Addr32) { return e.low, e.high }
func (e *dispatchScenarioEnv) GetRegistrationHead() Addr32      { return e.head }
func (e *dispatchScenarioEnv) SetRegistrationHead(n Addr32)     { e.head = n }

func (e *dispatchScenarioEnv) UnlinkHandler(node Addr32) {
	if e.head == node {
		n, _ := readNode(e.mem, node)
		e.head = n.Next
		return
	}
	for cur := e.head; cur != ChainEnd; {
		n, _ := readNode(e.mem, cur)
		if n.Next == node {
			target, _ := readNode(e.mem, node)
			n.Next = target.Next
			writeNode(e.mem, cur, n)
			return
		}
		cur = n.Next
	}
}

func (e *dispatchScenarioEnv) CallHandler(rec *ExceptionRecord, establisher Addr32, ctx *ContextRecord, dc *DispatcherContext, handler Addr32, unwinding bool) Disposition {
	h := e.handlers[handler]
	h.calls++
	h.sawUnwind = append(h.sawUnwind, unwinding)
	if h.disposition == NestedException {
		dc.RegistrationPointer = h.nestedAt
	}
	return h.disposition
}

func (e *dispatchScenarioEnv) Continue(ctx *ContextRecord, alertable bool) {
	e.continued = true
	e.continuedAt = ctx
}

func (e *dispatchScenarioEnv) RaiseException(rec *ExceptionRecord, ctx *ContextRecord, firstChance bool) {
	e.raised = rec
}

func (e *dispatchScenarioEnv) CaptureContext(ctx *ContextRecord) {}

// Scenario 1: Chain = [H1 -> H2 -> END]. H1 ContinueSearch, H2
// ContinueExecution on a continuable record. Both invoked in order,
// dispatch returns true.
func TestDispatchScenario1ContinueExecutionStopsSearch(t *testing.T) {
	env := newDispatchScenarioEnv(0x1000, 0x2000)
	h2 := &scriptedHandler{disposition: ContinueExecution}
	h1 := &scriptedHandler{disposition: ContinueSearch}
	env.pushNode(0x1100, h2) // pushed first -> becomes Next of h1
	env.pushNode(0x1110, h1) // pushed second -> head (innermost)

	rec := &ExceptionRecord{}
	ctx := &ContextRecord{}
	handled := DispatchException(env, rec, ctx)

	if !handled {
		t.Fatal("expected dispatch to return true")
	}
	if h1.calls != 1 || h2.calls != 1 {
		t.Fatalf("expected both handlers invoked exactly once, got h1=%d h2=%d", h1.calls, h2.calls)
	}
	if env.raised != nil {
		t.Fatalf("unexpected exception raised: %+v", env.raised)
	}
}

// Scenario 2: Chain = [H1 -> END], noncontinuable flag set, H1 returns
// ContinueExecution. Expect a noncontinuable-exception raised chaining the
// original record.
func TestDispatchScenario2NoncontinuableRejected(t *testing.T) {
	env := newDispatchScenarioEnv(0x1000, 0x2000)
	h1 := &scriptedHandler{disposition: ContinueExecution}
	env.pushNode(0x1100, h1)

	rec := &ExceptionRecord{Flags: FlagNoncontinuable}
	ctx := &ContextRecord{}
	handled := DispatchException(env, rec, ctx)

	if handled {
		t.Fatal("expected dispatch to return false")
	}
	if env.raised == nil || env.raised.Code != CodeNoncontinuableException {
		t.Fatalf("expected a noncontinuable-exception, got %+v", env.raised)
	}
	if env.raised.Record != rec {
		t.Fatalf("expected the raised record to chain the original as its inner record")
	}
}

// Scenario 3: chain head below the stack's low bound. Expect stack-invalid
// set and dispatch returns false without invoking any handler.
func TestDispatchScenario3InvalidChainHead(t *testing.T) {
	env := newDispatchScenarioEnv(0x2000, 0x10000)
	h1 := &scriptedHandler{disposition: ContinueExecution}
	// The node is written at an address below the stack's low bound; we
	// poke head directly rather than through pushNode, which would also
	// place the write below the writable arena.
	env.handlers[0x1000] = h1
	env.head = 0x1000

	rec := &ExceptionRecord{}
	ctx := &ContextRecord{}
	handled := DispatchException(env, rec, ctx)

	if handled {
		t.Fatal("expected dispatch to return false")
	}
	if rec.Flags&FlagStackInvalid == 0 {
		t.Error("expected stack-invalid to be set")
	}
	if h1.calls != 0 {
		t.Error("expected no handler to be invoked")
	}
}

// Scenario 4: Chain = [H1 -> H2 -> H3 -> END]. H1 returns NestedException
// with dispatcher_context.RegistrationPointer = H3's node. H2 returns
// ContinueSearch. H3 returns ContinueExecution. Expect nested-call set
// after H1, still set through H2, cleared at H3, dispatch returns true.
func TestDispatchScenario4NestedExceptionClearsAtBoundary(t *testing.T) {
	env := newDispatchScenarioEnv(0x1000, 0x2000)

	nodeH3 := Addr32(0x1100)
	nodeH2 := Addr32(0x1110)
	nodeH1 := Addr32(0x1120)

	h3 := &scriptedHandler{disposition: ContinueExecution}
	h2 := &scriptedHandler{disposition: ContinueSearch}
	h1 := &scriptedHandler{disposition: NestedException, nestedAt: nodeH3}

	env.pushNode(nodeH3, h3)
	env.pushNode(nodeH2, h2)
	env.pushNode(nodeH1, h1)

	rec := &ExceptionRecord{}
	ctx := &ContextRecord{}
	handled := DispatchException(env, rec, ctx)

	if !handled {
		t.Fatal("expected dispatch to return true")
	}
	if h1.calls != 1 || h2.calls != 1 || h3.calls != 1 {
		t.Fatalf("expected each handler invoked exactly once, got h1=%d h2=%d h3=%d", h1.calls, h2.calls, h3.calls)
	}
	if rec.Flags&FlagNestedCall != 0 {
		t.Error("expected nested-call to be cleared by the time dispatch returns (boundary reached)")
	}
}

// Invariant: two successive dispatches with identical inputs and no
// handler state change yield the same return value.
func TestDispatchIdempotentOnUnchangedChain(t *testing.T) {
	env := newDispatchScenarioEnv(0x1000, 0x2000)
	h1 := &scriptedHandler{disposition: ContinueSearch}
	env.pushNode(0x1100, h1)

	rec1 := &ExceptionRecord{}
	got1 := DispatchException(env, rec1, &ContextRecord{})

	rec2 := &ExceptionRecord{}
	got2 := DispatchException(env, rec2, &ContextRecord{})

	if got1 != got2 {
		t.Fatalf("expected identical return values, got %v and %v", got1, got2)
	}
	if rec1.Flags != rec2.Flags {
		t.Fatalf("expected identical resulting flags, got %v and %v", rec1.Flags, rec2.Flags)
	}
}
