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

import "golang.org/x/exp/slices"

// FunctionTable is a registered image's sorted array of RVA-encoded
// handler entry points (spec.md §3 "Function-table entry"). Entries must
// be sorted ascending by RVA for the binary search in IsValidHandler to be
// meaningful; the reference in-memory registry's Registry.Register
// (registry.go) neither sorts nor checks its input, and the Environment
// contract does not require any particular writer, only that readers see
// a sorted slice.
//
// NoHandlers is this Go port's typed stand-in for the original's
// "table pointer and length both -1" sentinel used to mark an image that
// must not have any handlers at all (e.g. a resource-only DLL).
type FunctionTable struct {
	Entries    []Addr32
	NoHandlers bool
}

// IsValidHandler reports whether handler is a legitimate entry point:
// either no table is registered for its image (trusted, can't verify), or
// it is present in the image's sorted table once biased down by the image
// base (spec.md §4.3).
func IsValidHandler(env Environment, handler Addr32) bool {
	table, imageBase, ok := env.LookupFunctionTable(handler)
	if !ok {
		// Can't verify; treat as trusted.
		return true
	}

	if table.NoHandlers {
		env.OnInvalidHandlerDetected(handler, table, imageBase)
		return false
	}

	biased := handler - imageBase
	_, found := slices.BinarySearchFunc(table.Entries, biased, func(e, target Addr32) int {
		switch {
		case e < target:
			return -1
		case e > target:
			return 1
		default:
			return 0
		}
	})
	if !found {
		env.OnInvalidHandlerDetected(handler, table, imageBase)
		return false
	}
	return true
}

// binarySearchTable is the hand-rolled oracle matching spec.md §4.3's
// exact contract ("low <= high", midpoint = (low+high)/2 truncating) bit
// for bit. It is kept alongside the slices.BinarySearchFunc-based
// IsValidHandler above specifically so tests can assert the two agree —
// slices.BinarySearchFunc computes its midpoint the same way internally,
// but the spec calls out the truncating-midpoint detail explicitly enough
// (as the one piece of the validator an assembly port would have to get
// bit-exact) that this core keeps an independent implementation to pin it
// down, rather than trusting the stdlib-style helper alone.
func binarySearchTable(entries []Addr32, target Addr32) bool {
	low, high := 0, len(entries)-1
	for low <= high {
		mid := (low + high) / 2
		switch {
		case entries[mid] < target:
			low = mid + 1
		case entries[mid] > target:
			high = mid - 1
		default:
			return true
		}
	}
	return false
}
