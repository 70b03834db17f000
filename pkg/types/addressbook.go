// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package types

import (
	"math/bits"
	"sort"

	"github.com/pkg/errors"
)

// ErrStakeOverflow means stakes add up to more than a uint64 holds.
var ErrStakeOverflow = errors.New("stake total overflows")

// NodeKey is the public key of a node and the scheme it signs with.
type NodeKey struct {
	Scheme    SignatureScheme
	PublicKey []byte
}

// AddressBook is an immutable snapshot of the node set, taken once per cycle.
type AddressBook struct {
	keys   map[NodeID]NodeKey
	stakes map[NodeID]uint64
}

// NewAddressBook copies the given maps into a new snapshot. stakes may be nil or empty.
func NewAddressBook(keys map[NodeID]NodeKey, stakes map[NodeID]uint64) *AddressBook {
	ab := &AddressBook{
		keys:   make(map[NodeID]NodeKey, len(keys)),
		stakes: make(map[NodeID]uint64, len(stakes)),
	}
	for id, k := range keys {
		pk := make([]byte, len(k.PublicKey))
		copy(pk, k.PublicKey)
		ab.keys[id] = NodeKey{Scheme: k.Scheme, PublicKey: pk}
	}
	for id, s := range stakes {
		ab.stakes[id] = s
	}
	return ab
}

// Size returns the number of nodes with a known key.
func (ab *AddressBook) Size() int {
	return len(ab.keys)
}

// Key returns the key of the given node.
func (ab *AddressBook) Key(id NodeID) (NodeKey, bool) {
	k, exists := ab.keys[id]
	return k, exists
}

// Nodes returns the node ids in ascending order.
func (ab *AddressBook) Nodes() []NodeID {
	nodes := make([]NodeID, 0, len(ab.keys))
	for id := range ab.keys {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i] < nodes[j]
	})
	return nodes
}

// Stakes returns a copy of the stake table. It is empty when no stake table is known.
func (ab *AddressBook) Stakes() NodeStakes {
	stakes := make(NodeStakes, len(ab.stakes))
	for id, s := range ab.stakes {
		stakes[id] = s
	}
	return stakes
}

// NodeStakes maps nodes to their stake weight.
type NodeStakes map[NodeID]uint64

// Weight returns the stake of a node, or 1 when the node is not in the table.
func (ns NodeStakes) Weight(id NodeID) uint64 {
	if s, exists := ns[id]; exists {
		return s
	}
	return 1
}

// Total returns the total voting weight for the given node set: every stake in the
// table, plus one for each node that is absent from it.
func (ns NodeStakes) Total(nodes []NodeID) (uint64, error) {
	var total, carry uint64
	for _, s := range ns {
		if total, carry = bits.Add64(total, s, 0); carry != 0 {
			return 0, ErrStakeOverflow
		}
	}
	for _, id := range nodes {
		if _, exists := ns[id]; !exists {
			if total, carry = bits.Add64(total, 1, 0); carry != 0 {
				return 0, ErrStakeOverflow
			}
		}
	}
	return total, nil
}
