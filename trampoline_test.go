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

import "testing"

type trampolineEnv struct {
	nopEnvironment
	head Addr32

	headDuringCall Addr32
	called         bool
}

func (e *trampolineEnv) GetRegistrationHead() Addr32  { return e.head }
func (e *trampolineEnv) SetRegistrationHead(n Addr32) { e.head = n }

func (e *trampolineEnv) CallHandler(rec *ExceptionRecord, establisher Addr32, ctx *ContextRecord, dc *DispatcherContext, handler Addr32, unwinding bool) Disposition {
	e.called = true
	e.headDuringCall = e.head
	return ContinueSearch
}

func TestTrampolinePushesAndRestoresChainHead(t *testing.T) {
	env := &trampolineEnv{head: 0x2000}

	disposition := executeHandlerForException(env, &ExceptionRecord{}, 0x1000, &ContextRecord{}, &DispatcherContext{}, 0x9000)

	if disposition != ContinueSearch {
		t.Fatalf("unexpected disposition: %v", disposition)
	}
	if !env.called {
		t.Fatal("expected CallHandler to be invoked")
	}
	if env.headDuringCall != 0x1000 {
		t.Errorf("expected the chain head to be reg (0x1000) during the call, got 0x%x", env.headDuringCall)
	}
	if env.head != 0x2000 {
		t.Errorf("expected the chain head restored to 0x2000 after the call, got 0x%x", env.head)
	}
}

func TestTrampolineRestoresHeadEvenForUnwind(t *testing.T) {
	env := &trampolineEnv{head: ChainEnd}

	executeHandlerForUnwind(env, &ExceptionRecord{}, 0x500, &ContextRecord{}, &DispatcherContext{}, 0x9000)

	if env.headDuringCall != 0x500 {
		t.Errorf("expected the chain head to be reg (0x500) during the call, got 0x%x", env.headDuringCall)
	}
	if env.head != ChainEnd {
		t.Errorf("expected the chain head restored to ChainEnd, got 0x%x", env.head)
	}
}
