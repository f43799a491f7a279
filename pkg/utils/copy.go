// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/pkg/xattr"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// CopyFile copies src to dst through a temporary file renamed over dst once
// the content is synced, so dst never holds a partial copy. Extended
// attributes are carried over where the file systems support them.
func CopyFile(src, dst string) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrapf(err, "open source file %s", src)
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat source file %s", src)
	}
	if !info.Mode().IsRegular() {
		return 0, errors.Errorf("source %s is not a regular file", src)
	}

	tmp := TempPath(dst)
	tmpFile, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return 0, errors.Wrapf(err, "create temporary file for %s", dst)
	}
	committed := false
	defer func() {
		if !committed {
			tmpFile.Close()
			os.Remove(tmp)
		}
	}()

	n, err := io.Copy(tmpFile, srcFile)
	if err != nil {
		return n, errors.Wrapf(err, "copy %s to %s", src, dst)
	}
	if err := tmpFile.Sync(); err != nil {
		return n, errors.Wrapf(err, "sync %s", tmp)
	}
	if err := tmpFile.Close(); err != nil {
		return n, errors.Wrapf(err, "close %s", tmp)
	}
	if err := copyXattrs(src, tmp); err != nil {
		return n, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return n, errors.Wrapf(err, "rename %s to %s", tmp, dst)
	}
	committed = true

	return n, nil
}

func copyXattrs(src, dst string) error {
	names, err := xattr.LList(src)
	if err != nil {
		if isXattrUnsupported(err) {
			return nil
		}
		return errors.Wrapf(err, "list xattrs of %s", src)
	}
	for _, name := range names {
		data, err := xattr.LGet(src, name)
		if err != nil {
			return errors.Wrapf(err, "get xattr %s of %s", name, src)
		}
		if err := xattr.LSet(dst, name, data); err != nil {
			if isXattrUnsupported(err) || errors.Is(err, unix.EPERM) {
				logrus.Debugf("skip xattr %s of %s: %s", name, src, err)
				continue
			}
			return errors.Wrapf(err, "set xattr %s on %s", name, dst)
		}
	}
	return nil
}

func isXattrUnsupported(err error) bool {
	return errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP)
}
