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

// The original implementation realizes the two trampolines in assembly so
// that a handler invoked several activations deep can reach back up into
// the dispatcher's locals (the DispatcherContext) when it itself raises a
// nested exception or starts a collided unwind. This port takes the
// design notes' explicit alternative (spec.md §9, DESIGN.md Open Question
// 2): the DispatcherContext pointer is threaded as an ordinary argument
// through Environment.CallHandler, so there is no frame to climb.
//
// What remains the trampoline's job — making the frame being serviced the
// chain head while its handler runs, and restoring the chain head when
// the handler returns — is still real work, because a
// handler invoked here may itself call DispatchException or Unwind
// recursively, and that inner call must see a chain whose head is the
// node for the frame currently being serviced, not the frame's original
// (pre-dispatch) successor. pushTrampolineNode/popTrampolineNode do
// exactly that against Environment's chain head accessors.

// executeHandlerForException invokes reg's handler in exception mode.
func executeHandlerForException(env Environment, rec *ExceptionRecord, reg Addr32, ctx *ContextRecord, dc *DispatcherContext, handler Addr32) Disposition {
	prior := pushTrampolineNode(env, reg)
	defer popTrampolineNode(env, prior)

	return env.CallHandler(rec, reg, ctx, dc, handler, false)
}

// executeHandlerForUnwind invokes reg's handler in unwind mode.
func executeHandlerForUnwind(env Environment, rec *ExceptionRecord, reg Addr32, ctx *ContextRecord, dc *DispatcherContext, handler Addr32) Disposition {
	prior := pushTrampolineNode(env, reg)
	defer popTrampolineNode(env, prior)

	return env.CallHandler(rec, reg, ctx, dc, handler, true)
}

// pushTrampolineNode makes reg the chain head for the duration of the
// handler call and returns the previous head so it can be restored. reg is
// already a node on the chain (it is the frame currently being serviced);
// no separate boundary node is written. A dispatch or unwind that the
// handler starts recursively therefore begins its walk at this frame and
// continues through the rest of the chain after it.
func pushTrampolineNode(env Environment, reg Addr32) Addr32 {
	prior := env.GetRegistrationHead()
	env.SetRegistrationHead(reg)
	return prior
}

// popTrampolineNode restores the chain head saved by pushTrampolineNode.
func popTrampolineNode(env Environment, prior Addr32) {
	env.SetRegistrationHead(prior)
}
