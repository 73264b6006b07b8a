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

import "sync"

// imageRange is one registered image: the [Low, High) span of addresses
// it occupies, its base (used to bias handler addresses before the §4.3
// binary search), and its handler table.
type imageRange struct {
	Low, High Addr32
	Base      Addr32
	Table     FunctionTable
}

// Registry is a reference, in-memory implementation of the function-table
// registry spec.md §6 describes as an external collaborator
// (LookupFunctionTable). It is read-mostly: registration happens once per
// image at load time, lookups happen on every dispatch/unwind step, so
// reads take a RWMutex (spec.md §5 — "read-only from the dispatcher's
// point of view and assumed lock-free for reads; writers live outside
// this core" is approximated here with a RWMutex rather than truly
// lock-free reads, since this core has no writers of its own to race
// against the assumption).
type Registry struct {
	mu     sync.RWMutex
	images []imageRange
}

// NewRegistry constructs an empty function-table registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register records a sorted handler table for the image occupying
// [low, high) with the given base. entries must already be sorted
// ascending; Register does not sort them, matching spec.md §4.3's
// "the table is sorted ascending" precondition on the lookup side.
func (r *Registry) Register(low, high, base Addr32, entries []Addr32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, imageRange{Low: low, High: high, Base: base, Table: FunctionTable{Entries: entries}})
}

// RegisterNoHandlers records that the image occupying [low, high) must
// not have any handlers at all (e.g. a resource-only image), the typed
// stand-in for the original's all-ones table sentinel.
func (r *Registry) RegisterNoHandlers(low, high, base Addr32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, imageRange{Low: low, High: high, Base: base, Table: FunctionTable{NoHandlers: true}})
}

// Lookup finds the image containing handler, if any.
func (r *Registry) Lookup(handler Addr32) (table FunctionTable, imageBase Addr32, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, img := range r.images {
		if handler >= img.Low && handler < img.High {
			return img.Table, img.Base, true
		}
	}
	return FunctionTable{}, 0, false
}
