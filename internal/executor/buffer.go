// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"strings"

	"github.com/dop251/goja"
)

// outputBuffer collects text written by the dialect's console/print
// built-ins. goja has no process-level stdio to redirect, so capture
// happens at the built-in function boundary instead of via OS file
// descriptors.
type outputBuffer struct {
	b strings.Builder
}

func (o *outputBuffer) writeArgs(args []goja.Value) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	o.b.WriteString(strings.Join(parts, " "))
	o.b.WriteByte('\n')
}

func (o *outputBuffer) String() string {
	return o.b.String()
}
