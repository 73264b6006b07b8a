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

package main

import (
	"github.com/stealthrocket/excore"
)

// frameSize is the stack footprint given to each synthetic frame: enough
// room for a RegistrationRecord plus a little headroom, 4-byte aligned.
const frameSize = 0x10

// buildScenario lays out a synthetic chain of n frames on a flat,
// in-memory stack and returns a Thread ready to dispatch or unwind
// through it, innermost frame first. Every handler reports ContinueSearch
// except frame failAt (if in range), which reports an out-of-range
// disposition to demonstrate the invalid-disposition path; a negative
// failAt disables this.
func buildScenario(n, failAt int, tracer *excore.Tracer) (*excore.Thread, func()) {
	const low, high = 0x1000, 0x10000
	mem := excore.NewFlatMemory(low, make([]byte, high-low))
	thread := excore.NewThread(mem, low, high)

	// No function table is registered for the synthetic handler addresses
	// below, so IsValidHandler treats them as "can't verify" and trusts
	// them (spec.md §4.3) — this demo is about the chain walk, not about
	// exercising the validator's rejection path.
	handlerBase := excore.Addr32(0x900000)

	node := excore.Addr32(low + 0x100)
	for i := 0; i < n; i++ {
		idx := i
		handlerAddr := handlerBase + excore.Addr32(idx)*0x10
		thread.PushHandler(node, handlerAddr, func(rec *excore.ExceptionRecord, establisher excore.Addr32, ctx *excore.ContextRecord, dc *excore.DispatcherContext, unwinding bool) excore.Disposition {
			d := excore.ContinueSearch
			if idx == failAt {
				d = excore.Disposition(99)
			}
			if unwinding {
				tracer.RecordUnwindStep(establisher, handlerAddr, d)
			} else {
				tracer.RecordDispatchStep(establisher, handlerAddr, d)
			}
			return d
		})
		node += frameSize
	}

	return thread, func() {}
}
