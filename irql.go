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

// Irql models the processor's interrupt request level. Only the ordering
// against DispatchLevel matters to this core (spec.md §4.2).
type Irql uint32

// DispatchLevel is the threshold at or above which the alternate
// (interrupt-time) stack substitution becomes eligible.
const DispatchLevel Irql = 2

// KernelStackSize is the fixed size of the alternate (DPC) stack region,
// matching the original's KERNEL_STACK_SIZE constant for this ABI.
const KernelStackSize = 0x3000 // 12KiB

// ProcessorBlock is the subset of per-processor state the alternate-stack
// probe needs: the top of the DPC stack, and whether a deferred procedure
// call is currently executing on it.
type ProcessorBlock struct {
	DpcStack        Addr32
	DpcRoutineActive bool
}

// boundsProbe tracks the current stack bounds for one dispatch/unwind call
// and enforces that the §4.2 alternate-stack substitution happens at most
// once per call — further out-of-bounds frames after the one allowed
// substitution are corruption, not a second substitution (spec.md §4.2,
// §12). This mirrors the teacher's CPUProfiler.StartProfile "already
// started" latch (cpu.go): a boolean flipped once, consulted before any
// retry is attempted.
type boundsProbe struct {
	low, high   Addr32
	substituted bool
}

func newBoundsProbe(low, high Addr32) *boundsProbe {
	return &boundsProbe{low: low, high: high}
}

func (p *boundsProbe) bounds() (Addr32, Addr32) {
	return p.low, p.high
}

// tryAlternate attempts the one-shot DPC-stack substitution for a frame
// address that fell outside the current bounds. It reports whether the
// substitution happened; on success p.bounds() reflects the new region and
// the caller should re-examine the same frame without advancing.
func (p *boundsProbe) tryAlternate(env Environment, addr Addr32) bool {
	if p.substituted {
		return false
	}
	if uint32(addr)&0x3 != 0 {
		return false
	}
	if env.CurrentIrql() < DispatchLevel {
		return false
	}

	prcb := env.CurrentProcessorBlock()
	if !prcb.DpcRoutineActive {
		return false
	}

	dpcStack := prcb.DpcStack
	low := dpcStack - KernelStackSize
	highAddr := addr + sizeOfRegistrationRecord

	if highAddr > dpcStack || addr < low {
		return false
	}

	p.low, p.high = low, dpcStack
	p.substituted = true
	return true
}

// checkFrame validates a candidate chain-node address against the current
// bounds and alignment, attempting the one-shot alternate-stack
// substitution on failure (spec.md §4.5 step 2 / §4.6 step 3). restart is
// true when the substitution succeeded and the same address should be
// re-examined against the (now updated) bounds.
func (p *boundsProbe) checkFrame(env Environment, addr Addr32) (ok, restart bool) {
	low, high := p.bounds()
	highAddr := addr + sizeOfRegistrationRecord

	if addr >= low && highAddr <= high && uint32(addr)&0x3 == 0 {
		return true, false
	}

	if p.tryAlternate(env, addr) {
		return false, true
	}

	return false, false
}
