// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package downloader

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/streamfile"
	"github.com/streamverify/ingest/pkg/types"
)

var _ api.Archiver = (*FileArchiver)(nil)

// FileArchiver writes verified data files, as stored, under <Dir>/<stream dir>/<filename>.
type FileArchiver struct {
	Dir string
}

func (a *FileArchiver) Archive(file *types.StreamFile) error {
	dir := filepath.Join(a.Dir, streamfile.Dir(file.Type))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "failed creating valid area %s", dir)
	}

	tmp, err := os.CreateTemp(dir, file.Name+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed archiving %s", file.Name)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(file.Bytes); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed archiving %s", file.Name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed archiving %s", file.Name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed archiving %s", file.Name)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), filepath.Join(dir, file.Name)), "failed archiving %s", file.Name)
}
