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

// unwindArgWords is the number of word-sized parameters Unwind takes in
// this core's ABI (targetFrame, targetIP, exception record, return
// value). The captured stack pointer is adjusted by this many words
// before the first handler is invoked. Changing the parameter count
// requires updating this constant (spec.md §6 ABI contract, DESIGN.md
// Open Question 1).
const unwindArgWords = 4

// Unwind initiates an unwind of procedure call frames toward targetFrame
// (or, if hasTarget is false, to the end of the chain — an exit unwind).
// It never returns: it ends by calling Environment.Continue or
// Environment.RaiseException (spec.md §4.6).
//
// targetIP is part of this core's external signature (spec.md §6) but,
// like the original, is not consulted by Unwind itself — it is the
// continuation address the caller's own generated code jumps to after
// Continue transfers control back, entirely outside this core's
// responsibility.
func Unwind(env Environment, targetFrame Addr32, hasTarget bool, targetIP uint32, rec *ExceptionRecord, returnValue uint32) {
	ctx := &ContextRecord{ContextFlags: ContextInteger | ContextControl | ContextSegments}
	env.CaptureContext(ctx)

	if rec == nil {
		rec = &ExceptionRecord{Code: CodeUnwind, Address: Addr32(ctx.Eip)}
	}

	if hasTarget {
		rec.Flags |= FlagUnwinding
	} else {
		rec.Flags |= FlagUnwinding | FlagExitUnwind
	}

	// Adjust the captured stack pointer to pop this call's own argument
	// list, and place the return value in the integer-return slot, even
	// along the exit-unwind path where we will ultimately re-raise rather
	// than continue (SPEC_FULL.md §12 — carried over from the original
	// unconditional assignment).
	ctx.Esp += unwindArgWords * 4
	ctx.Eax = returnValue

	low, high := env.GetStackLimits()
	probe := newBoundsProbe(low, high)

	reg := env.GetRegistrationHead()

	for reg != ChainEnd {
		if reg == targetFrame {
			env.Continue(ctx, false)
			return
		}

		if hasTarget && targetFrame < reg {
			env.RaiseException(chain(CodeInvalidUnwindTarget, rec), nil, false)
			return
		}

		ok, restart := probe.checkFrame(env, reg)
		if restart {
			continue
		}
		if !ok {
			env.RaiseException(chain(CodeBadStack, rec), nil, false)
			return
		}

		node, ok := readNode(env.Memory(), reg)
		if !ok {
			env.RaiseException(chain(CodeBadStack, rec), nil, false)
			return
		}

		var dc DispatcherContext
		disposition := executeHandlerForUnwind(env, rec, reg, ctx, &dc, node.Handler)

		switch disposition {
		case ContinueSearch:
			// node already describes reg; nothing to re-read.

		case CollidedUnwind:
			// Adopt the registration pointer that was active at the time
			// of the colliding inner unwind, and continue from there —
			// without unlinking the node we just examined. Its Next must
			// be re-read since it belongs to a different chain than the
			// one node.Next describes.
			reg = dc.RegistrationPointer
			node, ok = readNode(env.Memory(), reg)
			if !ok {
				env.RaiseException(chain(CodeBadStack, rec), nil, false)
				return
			}

		default:
			env.RaiseException(chain(CodeInvalidDisposition, rec), nil, false)
			return
		}

		// Step to the next registration record and unlink the one just
		// serviced. Under CollidedUnwind this still operates on the
		// (already replaced) reg: prior is the node the inner unwind
		// handed back, and its successor is whatever follows in the
		// chain it belonged to (spec.md §4.6 step 5).
		prior := reg
		reg = node.Next
		env.UnlinkHandler(prior)
	}

	if targetFrame == ChainEnd {
		// Caller wanted to unwind every exception record, no exit
		// desired: we've effectively reached the target.
		env.Continue(ctx, false)
		return
	}

	// Either an exit unwind was requested, or targetFrame was never
	// found in the chain. Either way, give the debugger/subsystem a
	// chance to see the unwind.
	env.RaiseException(rec, ctx, false)
}
