// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_HasError(t *testing.T) {
	p, err := Parse([]byte("let x = (;"))
	require.NoError(t, err)
	defer p.Close()
	assert.True(t, p.HasError())
}

func TestLastTopLevelExpression(t *testing.T) {
	p, err := Parse([]byte("let x = 1;\nx + 1"))
	require.NoError(t, err)
	defer p.Close()

	start, ok := p.LastTopLevelExpression()
	require.True(t, ok)
	assert.Equal(t, "x + 1", string(p.Source[start:]))
}

func TestLastTopLevelExpression_NoneWhenDeclaration(t *testing.T) {
	p, err := Parse([]byte("let x = 1;\nlet y = 2;"))
	require.NoError(t, err)
	defer p.Close()

	_, ok := p.LastTopLevelExpression()
	assert.False(t, ok)
}

func TestImportedModules(t *testing.T) {
	p, err := Parse([]byte(`
import foo from "numpy";
const bar = require("pandas");
bar.use(foo);
`))
	require.NoError(t, err)
	defer p.Close()

	assert.ElementsMatch(t, []string{"numpy", "pandas"}, p.ImportedModules())
}

func TestCalleeName(t *testing.T) {
	p, err := Parse([]byte(`eval("1+1")`))
	require.NoError(t, err)
	defer p.Close()

	calls := p.CallCallees()
	require.Len(t, calls, 1)
	assert.Equal(t, "eval", p.CalleeName(calls[0]))
}
