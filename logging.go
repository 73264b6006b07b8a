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
	"math/rand"
	"sync/atomic"
)

// loggingEnabled is the process-wide bit gating the §4.7 logging hook
// (spec.md §6's "global flag"). There is no other process-wide config in
// this core.
var loggingEnabled atomic.Bool

// SetLoggingEnabled turns the optional exception-handler logging hook on
// or off process-wide.
func SetLoggingEnabled(enabled bool) {
	loggingEnabled.Store(enabled)
}

// LoggingEnabled reports whether the logging hook is currently enabled.
func LoggingEnabled() bool {
	return loggingEnabled.Load()
}

// Sampler decides whether a given dispatch/unwind logging call should
// actually be recorded, letting a host rate-limit logging under high
// exception volume instead of choosing only between always-on and
// always-off. Ported from the teacher's Sampler interface
// (sampler.go/samplers.go).
type Sampler interface {
	// Do reports true if this call should be logged.
	Do() bool
}

type alwaysSampler struct{}

// AlwaysSampler logs every call; it is the default used by
// NewChainLogger.
func AlwaysSampler() Sampler { return alwaysSampler{} }

func (alwaysSampler) Do() bool { return true }

type randomSampler struct {
	rand   *rand.Rand
	chance float32
}

// RandomSampler logs a call with probability chance (in [0,1]), seeded
// deterministically so tests can reproduce a sampled sequence.
func RandomSampler(seed int64, chance float32) Sampler {
	return &randomSampler{rand: rand.New(rand.NewSource(seed)), chance: chance}
}

func (s *randomSampler) Do() bool {
	return s.rand.Float32() < s.chance
}

// loggedCall is one pre-invocation record captured by ChainLogger,
// returned to the caller as an opaque index (its slot in entries) per
// spec.md §4.7.
type loggedCall struct {
	Record      *ExceptionRecord
	Context     *ContextRecord
	Bias        uint32
	Node        Addr32
	Prefix      [4]uint32
	PrefixValid [4]bool
	Disposition Disposition
	Logged      bool
}

// ChainLogger is a reference implementation of the §4.7 logging hook,
// suitable for embedding in an Environment implementation. For each node
// it is asked about it records a fixed-size run of four words starting one
// node-width below the node (the two words preceding the node, then the
// node's own two words), tolerating unmapped memory per spec.md §9's second
// Open Question: a failed read simply leaves that word unrecorded rather
// than aborting the call.
type ChainLogger struct {
	Sampler Sampler
	entries []loggedCall
}

// NewChainLogger constructs a ChainLogger that records every call.
func NewChainLogger() *ChainLogger {
	return &ChainLogger{Sampler: AlwaysSampler()}
}

// LogExceptionHandler implements the pre-invocation half of the hook. It
// returns -1 (an invalid index) without recording anything if the
// sampler declines this call.
func (l *ChainLogger) LogExceptionHandler(mem StackMemory, rec *ExceptionRecord, ctx *ContextRecord, bias uint32, node Addr32) int {
	if !l.Sampler.Do() {
		return -1
	}

	call := loggedCall{Record: rec, Context: ctx, Bias: bias, Node: node}
	// The original captures 4 words beginning before the node (it needs
	// the two words above EXCEPTION_REGISTRATION_RECORD, not just the
	// record itself). Here that is simply the four words starting one
	// node-width below node.
	base := node - sizeOfRegistrationRecord
	for i := 0; i < 4; i++ {
		v, ok := readUint32(mem, base+Addr32(i*4))
		call.Prefix[i] = v
		call.PrefixValid[i] = ok
	}

	l.entries = append(l.entries, call)
	return len(l.entries) - 1
}

// LogLastExceptionDisposition implements the post-invocation half of the
// hook. It is a no-op if index is out of range (e.g. -1 from a sampled-out
// call).
func (l *ChainLogger) LogLastExceptionDisposition(index int, d Disposition) {
	if index < 0 || index >= len(l.entries) {
		return
	}
	l.entries[index].Disposition = d
	l.entries[index].Logged = true
}

// Entries returns the calls recorded so far, in order.
func (l *ChainLogger) Entries() []loggedCall {
	return l.entries
}
