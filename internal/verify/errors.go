// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package verify

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/streamverify/ingest/pkg/types"
)

var (
	ErrInsufficientParticipation = errors.New("insufficient participation")
	ErrNoHashAgreement           = errors.New("no 2/3 hash agreement")
	ErrConsensusNotReached       = errors.New("consensus not reached")
)

// Error is an expected trust failure of one filename. It never aborts a cycle.
type Error struct {
	Filename string
	Reason   error
	Nodes    []types.NodeID // Nodes is diagnostic: the nodes involved in the failed decision
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v for file %s", e.Reason, e.Filename)
	if len(e.Nodes) == 0 {
		return msg
	}
	nodes := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		nodes[i] = string(n)
	}
	return msg + ", nodes: " + strings.Join(nodes, ",")
}

func (e *Error) Unwrap() error {
	return e.Reason
}

func failure(filename string, reason error, sigs []*types.FileStreamSignature) *Error {
	var nodes []types.NodeID
	for _, s := range sigs {
		nodes = append(nodes, s.NodeID)
	}
	sortNodes(nodes)
	return &Error{Filename: filename, Reason: reason, Nodes: nodes}
}
