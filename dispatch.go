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

// nestedNone is the "no nested region in progress" value for the
// dispatcher's nested-registration tracker. Chain node addresses are
// never zero in a well-formed stack, mirroring the original's use of 0
// for NestedRegistration.
const nestedNone Addr32 = 0

// DispatchException attempts to dispatch rec to a frame-based handler by
// walking the current thread's handler chain innermost-first. It returns
// true if a handler elected to continue execution, false if the search
// exhausted the chain or the stack/a handler was found invalid (spec.md
// §4.5).
func DispatchException(env Environment, rec *ExceptionRecord, ctx *ContextRecord) bool {
	low, high := env.GetStackLimits()
	probe := newBoundsProbe(low, high)

	reg := env.GetRegistrationHead()
	nested := nestedNone

	for reg != ChainEnd {
		ok, restart := probe.checkFrame(env, reg)
		if restart {
			continue // re-examine the same reg against the substituted bounds
		}
		if !ok {
			rec.Flags |= FlagStackInvalid
			return false
		}

		node, ok := readNode(env.Memory(), reg)
		if !ok {
			rec.Flags |= FlagStackInvalid
			return false
		}

		if !IsValidHandler(env, node.Handler) {
			rec.Flags |= FlagStackInvalid
			return false
		}

		index := -1
		if LoggingEnabled() {
			index = env.LogExceptionHandler(rec, ctx, 0, reg)
		}

		var dc DispatcherContext
		disposition := executeHandlerForException(env, rec, reg, ctx, &dc, node.Handler)

		if LoggingEnabled() {
			env.LogLastExceptionDisposition(index, disposition)
		}

		// If the current scan is within a nested context and the frame
		// just examined is the end of that context, clear it.
		if nested != nestedNone && reg == nested {
			rec.Flags &^= FlagNestedCall
			nested = nestedNone
		}

		switch disposition {
		case ContinueExecution:
			if rec.Flags&FlagNoncontinuable != 0 {
				env.RaiseException(chain(CodeNoncontinuableException, rec), nil, true)
				return false
			}
			return true

		case ContinueSearch:
			if rec.Flags&FlagStackInvalid != 0 {
				return false
			}

		case NestedException:
			rec.Flags |= FlagNestedCall
			if dc.RegistrationPointer > nested {
				nested = dc.RegistrationPointer
			}

		default:
			env.RaiseException(chain(CodeInvalidDisposition, rec), nil, true)
			return false
		}

		reg = node.Next
	}

	return false
}
