// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package objectstore

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/streamverify/ingest/pkg/api"
)

var _ api.ObjectStore = (*FileStore)(nil)

// FileStore serves objects from a local directory tree mirroring a bucket.
// Keys are slash separated paths relative to the root.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at dir. The directory must exist.
func NewFileStore(dir string) (*FileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "object store root %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("object store root %s is not a directory", dir)
	}
	return &FileStore{root: filepath.Clean(dir)}, nil
}

// List walks the directory of the prefix. The prefix is expected to end at a directory boundary
// or inside the name of the entries of one directory, as node prefixes do.
func (f *FileStore) List(ctx context.Context, prefix, marker string, limit int) ([]string, error) {
	dir := prefix
	if !strings.HasSuffix(dir, "/") {
		dir = path.Dir(dir)
	}

	base := filepath.Join(f.root, filepath.FromSlash(dir))
	var keys []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) && key > marker {
			keys = append(keys, key)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed listing %s", prefix)
	}

	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (f *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.Contains(key, "..") {
		return nil, errors.Errorf("invalid key %s", key)
	}
	content, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "key %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading %s", key)
	}
	return content, nil
}
