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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/stealthrocket/excore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type program struct {
	mode       string
	pprofAddr  string
	profileOut string
	frames     int
	failAt     int
	logging    bool
}

func (prog *program) run(ctx context.Context) error {
	excore.SetLoggingEnabled(prog.logging)

	tracer := excore.NewTracer()
	thread, cleanup := buildScenario(prog.frames, prog.failAt, tracer)
	defer cleanup()

	if prog.pprofAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/debug/excore/trace", &excore.TraceHandler{Tracer: tracer})
		mux.Handle("/debug/excore/registry", &excore.RegistryHandler{Registry: thread.Registry()})

		go func() {
			if err := http.ListenAndServe(prog.pprofAddr, mux); err != nil {
				log.Println(err)
			}
		}()
	}

	switch prog.mode {
	case "dispatch":
		runDispatchDemo(thread)
	case "unwind":
		runUnwindDemo(thread)
	default:
		return fmt.Errorf("unknown -mode %q, want \"dispatch\" or \"unwind\"", prog.mode)
	}

	if prog.profileOut != "" {
		f, err := os.Create(prog.profileOut)
		if err != nil {
			return fmt.Errorf("creating profile output: %w", err)
		}
		defer f.Close()
		if err := tracer.Profile().Write(f); err != nil {
			return fmt.Errorf("writing profile: %w", err)
		}
	}

	if prog.pprofAddr != "" {
		<-ctx.Done()
	}
	return nil
}

func runDispatchDemo(thread *excore.Thread) {
	defer func() {
		switch sig := recover().(type) {
		case excore.RaiseSignal:
			fmt.Printf("dispatch re-raised code=0x%08x\n", sig.Record.Code)
		case nil:
		default:
			panic(sig)
		}
	}()

	rec := &excore.ExceptionRecord{Code: excore.CodeBadStack}
	var ctx excore.ContextRecord
	handled := excore.DispatchException(thread, rec, &ctx)
	fmt.Printf("dispatch handled=%v\n", handled)
}

func runUnwindDemo(thread *excore.Thread) {
	defer func() {
		switch sig := recover().(type) {
		case excore.ContinueSignal:
			fmt.Printf("unwind continued at esp=0x%08x\n", sig.Context.Esp)
		case excore.RaiseSignal:
			fmt.Printf("unwind re-raised code=0x%08x\n", sig.Record.Code)
		case nil:
		default:
			panic(sig)
		}
	}()
	excore.Unwind(thread, excore.ChainEnd, false, 0, nil, 0)
}

var (
	mode       string
	pprofAddr  string
	profileOut string
	frames     int
	failAt     int
	logging    bool
)

func init() {
	log.Default().SetOutput(os.Stderr)
	pflag.StringVar(&mode, "mode", "dispatch", `Demo to run: "dispatch" or "unwind".`)
	pflag.StringVar(&pprofAddr, "pprof-addr", "", "Address where to expose the trace/registry HTTP endpoints.")
	pflag.StringVar(&profileOut, "profile-out", "", "Write the recorded trace as a pprof profile to the specified file.")
	pflag.IntVar(&frames, "frames", 4, "Number of synthetic handler-chain frames to build.")
	pflag.IntVar(&failAt, "fail-at", -1, "Index (0 = outermost) of a frame whose handler reports an invalid disposition; -1 disables.")
	pflag.BoolVar(&logging, "logging", false, "Enable the exception-handler logging hook.")
}

func run(ctx context.Context) error {
	pflag.Parse()

	return (&program{
		mode:       mode,
		pprofAddr:  pprofAddr,
		profileOut: profileOut,
		frames:     frames,
		failAt:     failAt,
		logging:    logging,
	}).run(ctx)
}
