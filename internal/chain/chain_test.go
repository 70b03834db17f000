// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/streamverify/ingest/pkg/types"
)

func TestVerify(t *testing.T) {
	h1 := []byte("H1")
	h2 := []byte("H2")

	for _, tst := range []struct {
		description string
		filename    string
		checkpoint  types.Checkpoint
		previous    []byte
		expected    bool
	}{
		{
			description: "matching previous hash",
			filename:    "b.rcd",
			checkpoint:  types.Checkpoint{Filename: "a.rcd", FileHash: h1},
			previous:    h1,
			expected:    true,
		},
		{
			description: "mismatching previous hash",
			filename:    "b.rcd",
			checkpoint:  types.Checkpoint{Filename: "a.rcd", FileHash: h1},
			previous:    h2,
		},
		{
			description: "missing previous hash",
			filename:    "b.rcd",
			checkpoint:  types.Checkpoint{},
		},
		{
			description: "bootstrap",
			filename:    "b.rcd",
			previous:    h2,
			expected:    true,
		},
		{
			description: "zero sentinel",
			filename:    "b.rcd",
			checkpoint:  types.Checkpoint{Filename: "a.rcd", FileHash: h1},
			previous:    make([]byte, 48),
			expected:    true,
		},
		{
			description: "before bypass marker",
			filename:    "b.rcd",
			checkpoint:  types.Checkpoint{Filename: "a.rcd", FileHash: h1, BypassMarker: "c.rcd"},
			previous:    h2,
			expected:    true,
		},
		{
			description: "at bypass marker",
			filename:    "c.rcd",
			checkpoint:  types.Checkpoint{Filename: "a.rcd", FileHash: h1, BypassMarker: "c.rcd"},
			previous:    h2,
		},
	} {
		tst := tst
		t.Run(tst.description, func(t *testing.T) {
			v := &Validator{Logger: zap.NewNop().Sugar()}
			assert.Equal(t, tst.expected, v.Verify(tst.filename, tst.checkpoint, tst.previous))
		})
	}
}
