// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

// Package addressbook provides sources of the node set.
package addressbook

import (
	"context"
	"encoding/hex"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/types"
)

var (
	_ api.AddressBookSource = (*Static)(nil)
	_ api.AddressBookSource = (*File)(nil)
)

// Static always yields the same address book.
type Static struct {
	Book *types.AddressBook
}

func (s *Static) Load(context.Context) (*types.AddressBook, error) {
	if s.Book == nil {
		return nil, errors.New("no address book configured")
	}
	return s.Book, nil
}

// Document is the YAML layout of an address book file.
type Document struct {
	Nodes []Entry `yaml:"nodes"`
}

// Entry describes one node. A node without stake counts with a weight of one.
type Entry struct {
	ID        string  `yaml:"id"`
	Scheme    string  `yaml:"scheme"`
	PublicKey string  `yaml:"publicKey"`
	Stake     *uint64 `yaml:"stake,omitempty"`
}

// File reads the address book from a YAML file on every Load, so edits are picked up
// at the next cycle.
type File struct {
	Path string
}

func (f *File) Load(ctx context.Context) (*types.AddressBook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading address book %s", f.Path)
	}
	return Parse(raw)
}

// Parse builds an address book from its YAML encoding.
func Parse(raw []byte) (*types.AddressBook, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "failed parsing address book")
	}
	if len(doc.Nodes) == 0 {
		return nil, errors.New("address book has no nodes")
	}

	keys := make(map[types.NodeID]types.NodeKey, len(doc.Nodes))
	stakes := make(map[types.NodeID]uint64)
	for _, e := range doc.Nodes {
		if e.ID == "" {
			return nil, errors.New("address book entry without id")
		}
		id := types.NodeID(e.ID)
		if _, exists := keys[id]; exists {
			return nil, errors.Errorf("node %s appears twice in address book", id)
		}
		scheme, err := types.ParseSignatureScheme(e.Scheme)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s", id)
		}
		pk, err := hex.DecodeString(e.PublicKey)
		if err != nil || len(pk) == 0 {
			return nil, errors.Errorf("node %s has an invalid public key", id)
		}
		keys[id] = types.NodeKey{Scheme: scheme, PublicKey: pk}
		if e.Stake != nil {
			stakes[id] = *e.Stake
		}
	}

	book := types.NewAddressBook(keys, stakes)
	if _, err := book.Stakes().Total(book.Nodes()); err != nil {
		return nil, errors.Wrap(err, "invalid address book stakes")
	}
	return book, nil
}

// Marshal encodes an address book as YAML, listing nodes in ascending order.
func Marshal(book *types.AddressBook) ([]byte, error) {
	stakes := book.Stakes()
	var doc Document
	for _, id := range book.Nodes() {
		key, _ := book.Key(id)
		e := Entry{ID: string(id), Scheme: key.Scheme.String(), PublicKey: hex.EncodeToString(key.PublicKey)}
		if s, exists := stakes[id]; exists {
			s := s
			e.Stake = &s
		}
		doc.Nodes = append(doc.Nodes, e)
	}
	return yaml.Marshal(&doc)
}
