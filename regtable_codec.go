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

import "encoding/binary"

// EncodeFunctionTable serializes a sorted handler table as a length-
// prefixed run of unsigned LEB128 deltas: the first entry verbatim, every
// following entry as its difference from the one before. Entries are
// required to already be sorted ascending (the same precondition
// IsValidHandler's binary search relies on), so every delta is
// non-negative and the varint encoding stays compact — the format an
// image loader would use to ship a registered table to another process
// or persist it in a test fixture.
func EncodeFunctionTable(entries []Addr32) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64*(len(entries)+1))
	var scratch [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(scratch[:], uint64(len(entries)))
	buf = append(buf, scratch[:n]...)

	var prev Addr32
	for i, e := range entries {
		delta := uint64(e)
		if i > 0 {
			delta = uint64(e - prev)
		}
		n := binary.PutUvarint(scratch[:], delta)
		buf = append(buf, scratch[:n]...)
		prev = e
	}
	return buf
}

// tableDecoder walks an encoded function table, matching the cursor shape
// of the teacher's dataIterator (wasmbin.go): a remaining-bytes slice
// consumed one varint at a time.
type tableDecoder struct {
	b []byte
}

func (d *tableDecoder) uvarint() (uint64, bool) {
	v, n := binary.Uvarint(d.b)
	if n <= 0 {
		return 0, false
	}
	d.b = d.b[n:]
	return v, true
}

// DecodeFunctionTable reverses EncodeFunctionTable. It reports ok=false on
// truncated or otherwise malformed input rather than panicking, matching
// this core's policy of never trusting external byte streams (spec.md §9
// — malformed input is corruption, not something to be masked).
func DecodeFunctionTable(b []byte) (entries []Addr32, ok bool) {
	d := tableDecoder{b: b}

	count, ok := d.uvarint()
	if !ok {
		return nil, false
	}
	// Every entry takes at least one byte, so a count larger than what is
	// left is truncated input; checking it here also keeps make below from
	// panicking on a huge count.
	if count > uint64(len(d.b)) {
		return nil, false
	}

	entries = make([]Addr32, 0, count)
	var prev Addr32
	for i := uint64(0); i < count; i++ {
		delta, ok := d.uvarint()
		if !ok {
			return nil, false
		}
		var v Addr32
		if i == 0 {
			v = Addr32(delta)
		} else {
			v = prev + Addr32(delta)
		}
		entries = append(entries, v)
		prev = v
	}
	return entries, true
}
