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
	"fmt"
	"sync"

	"github.com/google/pprof/profile"
)

// traceStep is one handler visit recorded by a Tracer, in either dispatch
// or unwind mode.
type traceStep struct {
	kind        string // "dispatch" or "unwind"
	node        Addr32
	handler     Addr32
	disposition Disposition
}

// Tracer accumulates every handler visit made across calls to
// DispatchException/Unwind and renders them as a pprof profile, the way
// the teacher's CPU/memory profilers accumulate samples and hand them to
// buildProfile (wzprof.go). Unlike those profilers this is not itself an
// Environment collaborator: callers record steps explicitly, typically
// from inside their own CallHandler implementation, since this core has
// no built-in hook point between "handler chosen" and "handler invoked"
// beyond the optional §4.7 logging hook (which this type does not
// replace — Tracer is for visualizing a chain walk, ChainLogger is for
// the process-wide audit log).
type Tracer struct {
	mu    sync.Mutex
	steps []traceStep
}

// NewTracer constructs an empty Tracer.
func NewTracer() *Tracer {
	return &Tracer{}
}

// RecordDispatchStep records one handler visited while dispatching an
// exception.
func (t *Tracer) RecordDispatchStep(node, handler Addr32, disposition Disposition) {
	t.record("dispatch", node, handler, disposition)
}

// RecordUnwindStep records one handler visited while unwinding.
func (t *Tracer) RecordUnwindStep(node, handler Addr32, disposition Disposition) {
	t.record("unwind", node, handler, disposition)
}

func (t *Tracer) record(kind string, node, handler Addr32, disposition Disposition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, traceStep{kind: kind, node: node, handler: handler, disposition: disposition})
}

// Reset discards every recorded step.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = nil
}

// dispositionName mirrors the teacher's locationForCall's approach of
// falling back to a synthesized name (wzprof.go) when no richer symbol
// information is available — here there is no symbolizer at all, since a
// handler address in this core is just a flat 32-bit stack address, not
// a wasm function index with DWARF/debug names attached.
func dispositionName(d Disposition) string {
	switch d {
	case ContinueExecution:
		return "ContinueExecution"
	case ContinueSearch:
		return "ContinueSearch"
	case NestedException:
		return "NestedException"
	case CollidedUnwind:
		return "CollidedUnwind"
	default:
		return fmt.Sprintf("Disposition(%d)", d)
	}
}

// Profile renders the recorded steps as a pprof profile with one sample
// per step, a "visits" value of 1, and a two-frame location stack (the
// handler, called from its chain node) labelled with the disposition it
// returned — following the teacher's buildProfile (wzprof.go): a location
// cache keyed by address, a function cache keyed by name, both assigned
// sequential IDs starting at 1.
func (t *Tracer) Profile() *profile.Profile {
	t.mu.Lock()
	steps := make([]traceStep, len(t.steps))
	copy(steps, t.steps)
	t.mu.Unlock()

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "visits", Unit: "count"}},
		Sample:     make([]*profile.Sample, 0, len(steps)),
	}

	functionCache := make(map[string]*profile.Function)
	locationCache := make(map[Addr32]*profile.Location)
	nextFunctionID := uint64(1)
	nextLocationID := uint64(1)

	functionFor := func(name string) *profile.Function {
		fn, ok := functionCache[name]
		if !ok {
			fn = &profile.Function{ID: nextFunctionID, Name: name}
			nextFunctionID++
			functionCache[name] = fn
		}
		return fn
	}

	locationFor := func(addr Addr32, label string) *profile.Location {
		loc, ok := locationCache[addr]
		if !ok {
			loc = &profile.Location{
				ID:      nextLocationID,
				Address: uint64(addr),
				Line: []profile.Line{{
					Function: functionFor(label),
				}},
			}
			nextLocationID++
			locationCache[addr] = loc
		}
		return loc
	}

	for _, step := range steps {
		handlerLoc := locationFor(step.handler, fmt.Sprintf("handler@0x%08x[%s]", step.handler, dispositionName(step.disposition)))
		nodeLoc := locationFor(step.node, fmt.Sprintf("node@0x%08x[%s]", step.node, step.kind))

		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{handlerLoc, nodeLoc},
			Value:    []int64{1},
		})
	}

	prof.Location = make([]*profile.Location, len(locationCache))
	for _, loc := range locationCache {
		prof.Location[loc.ID-1] = loc
	}
	prof.Function = make([]*profile.Function, len(functionCache))
	for _, fn := range functionCache {
		prof.Function[fn.ID-1] = fn
	}

	return prof
}
