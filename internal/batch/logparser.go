// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package batch

import (
	"time"

	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/types"
)

var _ api.Parser = (*LogParser)(nil)

// LogParser is a downstream parser that only logs what it receives.
type LogParser struct {
	Logger api.Logger
}

func (p *LogParser) Parse(file *types.StreamFile) error {
	p.Logger.Infof("Received %s from node %s, consensus end %s", file, file.NodeID,
		time.Unix(0, file.ConsensusEnd).UTC().Format(time.RFC3339Nano))
	return nil
}

func (p *LogParser) ParseBatch(files []*types.StreamFile) error {
	var items uint64
	for _, f := range files {
		items += f.Count
	}
	p.Logger.Infof("Received a batch of %d files with %d items", len(files), items)
	for _, f := range files {
		if err := p.Parse(f); err != nil {
			return err
		}
	}
	return nil
}
