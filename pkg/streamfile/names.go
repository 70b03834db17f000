// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package streamfile

import (
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/streamverify/ingest/pkg/types"
)

// SignatureSuffix is appended to a data filename to name its detached signature.
const SignatureSuffix = "_sig"

// InstantLayout formats the consensus instant a data file is named after. Names sort chronologically.
const InstantLayout = "2006-01-02T15_04_05.000000000Z"

type layout struct {
	dir       string
	prefix    string
	extension string
}

var layouts = map[types.StreamType]layout{
	types.StreamTypeBalance: {dir: "accountBalances", prefix: "balance", extension: ".pb"},
	types.StreamTypeRecord:  {dir: "recordstreams", prefix: "record", extension: ".rcd"},
	types.StreamTypeEvent:   {dir: "eventsStreams", prefix: "events_", extension: ".evts"},
}

// Dir returns the top level directory of a stream type.
func Dir(st types.StreamType) string {
	return layouts[st].dir
}

// Extension returns the data file extension of a stream type.
func Extension(st types.StreamType) string {
	return layouts[st].extension
}

// NodePrefix returns the directory holding the files a node published, with a trailing slash.
func NodePrefix(st types.StreamType, node types.NodeID) string {
	l := layouts[st]
	return l.dir + "/" + l.prefix + string(node) + "/"
}

// DataKey returns the object key of a data file published by a node.
func DataKey(st types.StreamType, node types.NodeID, filename string) string {
	return NodePrefix(st, node) + filename
}

// SignatureKey returns the object key of a node's signature of a data file.
func SignatureKey(st types.StreamType, node types.NodeID, filename string) string {
	return NodePrefix(st, node) + filename + SignatureSuffix
}

// Filename returns the data filename of a stream type for the given consensus instant.
func Filename(st types.StreamType, instant time.Time) string {
	return instant.UTC().Format(InstantLayout) + layouts[st].extension
}

// IsSignature reports whether key names a signature of a data file of the stream type.
func IsSignature(st types.StreamType, key string) bool {
	return strings.HasSuffix(key, layouts[st].extension+SignatureSuffix)
}

// DataFilename strips the directory and signature suffix from a signature key.
func DataFilename(key string) string {
	return strings.TrimSuffix(path.Base(key), SignatureSuffix)
}

// Instant parses the consensus instant a data filename is named after.
func Instant(filename string) (time.Time, error) {
	if len(filename) < len(InstantLayout) {
		return time.Time{}, errors.Errorf("filename %s is too short", filename)
	}
	t, err := time.Parse(InstantLayout, filename[:len(InstantLayout)])
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "filename %s does not start with an instant", filename)
	}
	return t, nil
}
