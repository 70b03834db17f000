// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package batch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/streamverify/ingest/pkg/types"
)

// Dispatcher routes stream files to the notifier of their type. A nil notifier means the
// stream type is not enabled.
type Dispatcher struct {
	Balance *Notifier
	Record  *Notifier
	Event   *Notifier
}

func (d *Dispatcher) notifier(st types.StreamType) (*Notifier, error) {
	var n *Notifier
	switch st {
	case types.StreamTypeBalance:
		n = d.Balance
	case types.StreamTypeRecord:
		n = d.Record
	case types.StreamTypeEvent:
		n = d.Event
	default:
		return nil, errors.Errorf("unsupported stream type %s", st)
	}
	if n == nil {
		return nil, errors.Errorf("stream type %s is not enabled", st)
	}
	return n, nil
}

// Set installs the notifier of a stream type.
func (d *Dispatcher) Set(st types.StreamType, n *Notifier) error {
	switch st {
	case types.StreamTypeBalance:
		d.Balance = n
	case types.StreamTypeRecord:
		d.Record = n
	case types.StreamTypeEvent:
		d.Event = n
	default:
		return errors.Errorf("unsupported stream type %s", st)
	}
	return nil
}

func (d *Dispatcher) Submit(ctx context.Context, file *types.StreamFile) error {
	n, err := d.notifier(file.Type)
	if err != nil {
		return err
	}
	return n.Submit(ctx, file)
}

func (d *Dispatcher) all() []*Notifier {
	var notifiers []*Notifier
	for _, n := range []*Notifier{d.Balance, d.Record, d.Event} {
		if n != nil {
			notifiers = append(notifiers, n)
		}
	}
	return notifiers
}

// Start starts every enabled notifier.
func (d *Dispatcher) Start() {
	for _, n := range d.all() {
		n.Start()
	}
}

// Stop stops every enabled notifier, returning the first error.
func (d *Dispatcher) Stop(ctx context.Context) error {
	var first error
	for _, n := range d.all() {
		if err := n.Stop(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
