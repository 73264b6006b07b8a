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

// nopEnvironment implements Environment with methods that panic if called,
// except where harmless zero values make sense. Tests embed it and
// override only the handful of methods a given scenario actually
// exercises, rather than writing out the full interface every time.
type nopEnvironment struct{}

func (nopEnvironment) Memory() StackMemory                { return nil }
func (nopEnvironment) GetStackLimits() (Addr32, Addr32)   { return 0, 0 }
func (nopEnvironment) GetRegistrationHead() Addr32        { return ChainEnd }
func (nopEnvironment) SetRegistrationHead(Addr32)         {}
func (nopEnvironment) UnlinkHandler(Addr32)               {}

func (nopEnvironment) LookupFunctionTable(Addr32) (FunctionTable, Addr32, bool) {
	return FunctionTable{}, 0, false
}

func (nopEnvironment) CaptureContext(*ContextRecord) {}

func (nopEnvironment) CallHandler(*ExceptionRecord, Addr32, *ContextRecord, *DispatcherContext, Addr32, bool) Disposition {
	panic("nopEnvironment: CallHandler not overridden")
}

func (nopEnvironment) Continue(*ContextRecord, bool) {
	panic("nopEnvironment: Continue not overridden")
}

func (nopEnvironment) RaiseException(*ExceptionRecord, *ContextRecord, bool) {
	panic("nopEnvironment: RaiseException not overridden")
}

func (nopEnvironment) CurrentIrql() Irql                     { return 0 }
func (nopEnvironment) CurrentProcessorBlock() ProcessorBlock { return ProcessorBlock{} }

func (nopEnvironment) OnInvalidHandlerDetected(Addr32, FunctionTable, Addr32) {}

func (nopEnvironment) LogExceptionHandler(*ExceptionRecord, *ContextRecord, uint32, Addr32) int {
	return -1
}
func (nopEnvironment) LogLastExceptionDisposition(int, Disposition) {}

var _ Environment = nopEnvironment{}
