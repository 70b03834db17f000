// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

// Package verify decides which claimed file hash is trusted, first by signature count
// and then by stake.
package verify

import (
	"math/big"
	"math/bits"
	"sort"

	"github.com/pkg/errors"

	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/keys"
	"github.com/streamverify/ingest/pkg/types"
)

// SignatureVerifier drops signatures that do not verify and requires more than 2/3 of
// the address book to agree on one hash.
type SignatureVerifier struct {
	Logger api.Logger
}

// Verify checks the signatures of one filename. On success, the signatures of the agreeing
// group are marked StatusVerified. Dropped signatures are marked StatusNotVerified.
// A node counts once: signatures after its first are dropped.
func (v *SignatureVerifier) Verify(book *types.AddressBook, sigs []*types.FileStreamSignature) error {
	filename := filenameOf(sigs)
	sigs = onePerNode(sigs, v.Logger)
	if !exceedsTwoThirds(len(sigs), book.Size()) {
		return failure(filename, ErrInsufficientParticipation, sigs)
	}

	var valid []*types.FileStreamSignature
	for _, sig := range sigs {
		key, exists := book.Key(sig.NodeID)
		if !exists {
			v.Logger.Warnf("Dropping signature of %s by %s: node is not in the address book", filename, sig.NodeID)
			sig.Status = types.StatusNotVerified
			continue
		}
		if !keys.Verify(key, sig.FileHash, sig.Signature) {
			v.Logger.Warnf("Dropping signature of %s by %s: %s signature does not verify", filename, sig.NodeID, key.Scheme)
			sig.Status = types.StatusNotVerified
			continue
		}
		valid = append(valid, sig)
	}

	groups := groupByHash(valid)
	var largest []*types.FileStreamSignature
	for _, group := range groups {
		if exceedsTwoThirds(len(group), book.Size()) {
			for _, sig := range group {
				sig.Status = types.StatusVerified
			}
			return nil
		}
		if len(group) > len(largest) {
			largest = group
		}
	}

	return failure(filename, ErrNoHashAgreement, outside(valid, largest))
}

// ConsensusValidator requires the stake of the nodes agreeing on a hash to reach
// ceil(total * Ratio). A zero Ratio accepts any non-empty set of verified signatures.
type ConsensusValidator struct {
	Ratio  *big.Rat
	Logger api.Logger
}

// Validate marks the signatures of the winning hash group StatusConsensusReached.
// Only signatures already marked StatusVerified take part.
func (c *ConsensusValidator) Validate(book *types.AddressBook, sigs []*types.FileStreamSignature) error {
	filename := filenameOf(sigs)

	var verified []*types.FileStreamSignature
	for _, sig := range sigs {
		if sig.Status == types.StatusVerified {
			verified = append(verified, sig)
		}
	}
	verified = onePerNode(verified, c.Logger)
	if len(verified) == 0 {
		return failure(filename, ErrConsensusNotReached, nil)
	}

	stakes := book.Stakes()
	total, err := stakes.Total(book.Nodes())
	if err != nil {
		return errors.Wrapf(err, "cannot weigh file %s", filename)
	}
	threshold := uint64(0)
	if c.Ratio.Sign() != 0 {
		threshold = quorumWeight(total, c.Ratio)
	}

	var winner []*types.FileStreamSignature
	var winnerWeight uint64
	for _, group := range groupByHash(verified) {
		var weight uint64
		for _, sig := range group {
			var carry uint64
			if weight, carry = bits.Add64(weight, stakes.Weight(sig.NodeID), 0); carry != 0 {
				return errors.Wrapf(types.ErrStakeOverflow, "cannot weigh file %s", filename)
			}
		}
		c.Logger.Debugf("File %s: hash %s has weight %d of %d, needs %d", filename, group[0].HashKey(), weight, total, threshold)
		if weight < threshold {
			continue
		}
		// groups arrive ordered by hash key, so the first of equally heavy groups wins
		if winner == nil || weight > winnerWeight {
			winner, winnerWeight = group, weight
		}
	}

	if winner == nil {
		return failure(filename, ErrConsensusNotReached, verified)
	}

	for _, sig := range winner {
		sig.Status = types.StatusConsensusReached
	}
	return nil
}

// groupByHash partitions signatures by claimed hash. Groups are ordered by hash key and
// the signatures within a group by node id.
func groupByHash(sigs []*types.FileStreamSignature) [][]*types.FileStreamSignature {
	byHash := make(map[string][]*types.FileStreamSignature)
	var hashes []string
	for _, sig := range sigs {
		k := sig.HashKey()
		if _, exists := byHash[k]; !exists {
			hashes = append(hashes, k)
		}
		byHash[k] = append(byHash[k], sig)
	}
	sort.Strings(hashes)

	groups := make([][]*types.FileStreamSignature, 0, len(hashes))
	for _, h := range hashes {
		group := byHash[h]
		sort.Slice(group, func(i, j int) bool {
			return group[i].NodeID < group[j].NodeID
		})
		groups = append(groups, group)
	}
	return groups
}

// onePerNode keeps the first signature of every node. Later ones are marked StatusNotVerified.
func onePerNode(sigs []*types.FileStreamSignature, logger api.Logger) []*types.FileStreamSignature {
	seen := make(map[types.NodeID]struct{}, len(sigs))
	unique := make([]*types.FileStreamSignature, 0, len(sigs))
	for _, sig := range sigs {
		if _, exists := seen[sig.NodeID]; exists {
			logger.Warnf("Dropping duplicate signature %s of node %s for %s", sig.Key, sig.NodeID, sig.Filename)
			sig.Status = types.StatusNotVerified
			continue
		}
		seen[sig.NodeID] = struct{}{}
		unique = append(unique, sig)
	}
	return unique
}

// outside returns the signatures that are not in group.
func outside(sigs, group []*types.FileStreamSignature) []*types.FileStreamSignature {
	in := make(map[*types.FileStreamSignature]struct{}, len(group))
	for _, sig := range group {
		in[sig] = struct{}{}
	}
	var rest []*types.FileStreamSignature
	for _, sig := range sigs {
		if _, exists := in[sig]; !exists {
			rest = append(rest, sig)
		}
	}
	return rest
}

func filenameOf(sigs []*types.FileStreamSignature) string {
	if len(sigs) == 0 {
		return ""
	}
	return sigs[0].Filename
}

func sortNodes(nodes []types.NodeID) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i] < nodes[j]
	})
}
