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
	"fmt"
	"net/http"
)

// TraceHandler serves a Tracer's accumulated steps as a pprof profile,
// grounded on the teacher's ProfilerListener.ServeHTTP (http.go): same
// headers, same "write the profile straight to the response body, report
// write failures through a plain-text 500" shape.
type TraceHandler struct {
	Tracer *Tracer
}

func (h *TraceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="excore.pprof"`)

	prof := h.Tracer.Profile()
	if err := prof.Write(w); err != nil {
		writeDebugError(w, http.StatusInternalServerError, err.Error())
	}
}

// RegistryHandler serves a plain-text listing of a Registry's registered
// images, for inspecting what this core currently believes is loaded
// without needing a full pprof viewer.
type RegistryHandler struct {
	Registry *Registry
}

func (h *RegistryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Registry.mu.RLock()
	defer h.Registry.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, img := range h.Registry.images {
		if img.Table.NoHandlers {
			fmt.Fprintf(w, "[0x%08x,0x%08x) base=0x%08x no-handlers\n", img.Low, img.High, img.Base)
			continue
		}
		fmt.Fprintf(w, "[0x%08x,0x%08x) base=0x%08x entries=%d\n", img.Low, img.High, img.Base, len(img.Table.Entries))
	}
}

// writeDebugError mirrors the teacher's serveError (http.go/pprof.go): a
// plain-text error body with the net/http/pprof-compatible headers.
func writeDebugError(w http.ResponseWriter, status int, txt string) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Go-Pprof", "1")
	h.Del("Content-Disposition")
	w.WriteHeader(status)
	fmt.Fprintln(w, txt)
}
