// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator() *Validator {
	return New(100,
		map[string]bool{"math": true, "json": true},
		map[string]bool{"fs": true, "child_process": true},
	)
}

func TestValidate_Clean(t *testing.T) {
	v := newTestValidator()
	assert.Nil(t, v.Validate("let x = 1 + 1;"))
}

func TestValidate_TooLong(t *testing.T) {
	v := newTestValidator()
	viol := v.Validate(string(make([]byte, 200)))
	require.NotNil(t, viol)
	assert.Equal(t, ReasonTooLong, viol.Reason)
}

func TestValidate_SyntaxError(t *testing.T) {
	v := newTestValidator()
	viol := v.Validate("let x = (;")
	require.NotNil(t, viol)
	assert.Equal(t, ReasonSyntaxError, viol.Reason)
}

func TestValidate_BlockedImport(t *testing.T) {
	v := newTestValidator()
	viol := v.Validate(`import fs from "fs";`)
	require.NotNil(t, viol)
	assert.Equal(t, ReasonBlockedImport, viol.Reason)
}

func TestValidate_NotAllowedImport(t *testing.T) {
	v := newTestValidator()
	viol := v.Validate(`import x from "some-random-lib";`)
	require.NotNil(t, viol)
	assert.Equal(t, ReasonNotAllowed, viol.Reason)
}

func TestValidate_AllowlistWinsOverDenylist(t *testing.T) {
	v := New(100, map[string]bool{"fs": true}, map[string]bool{"fs": true})
	assert.Nil(t, v.Validate(`import fs from "fs";`))
}

func TestValidate_DynamicEval(t *testing.T) {
	v := newTestValidator()
	viol := v.Validate(`eval("1+1")`)
	require.NotNil(t, viol)
	assert.Equal(t, ReasonDynamicEval, viol.Reason)
}

func TestRootModule(t *testing.T) {
	assert.Equal(t, "lodash", rootModule("lodash/fp"))
	assert.Equal(t, "pandas", rootModule("pandas"))
}
