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
	"reflect"
	"testing"
)

func TestFunctionTableCodecRoundTrip(t *testing.T) {
	cases := [][]Addr32{
		nil,
		{0x10},
		{0x10, 0x40, 0x100, 0x204, 0xffff},
	}

	for _, entries := range cases {
		encoded := EncodeFunctionTable(entries)
		decoded, ok := DecodeFunctionTable(encoded)
		if !ok {
			t.Fatalf("decode failed for %v", entries)
		}
		if len(decoded) == 0 && len(entries) == 0 {
			continue
		}
		if !reflect.DeepEqual(decoded, entries) {
			t.Errorf("round trip mismatch: got %v want %v", decoded, entries)
		}
	}
}

func TestDecodeFunctionTableTruncated(t *testing.T) {
	encoded := EncodeFunctionTable([]Addr32{0x10, 0x20, 0x30})
	if _, ok := DecodeFunctionTable(encoded[:1]); ok {
		t.Error("decoding a truncated buffer must fail")
	}
}
