// Copyright 2020 Ant Group. All rights reserved.
// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

const defaultRetryAttempts = 3
const defaultRetryInterval = time.Second * 2

// RetryOpt tunes WithRetry. Zero values select the defaults.
type RetryOpt struct {
	Attempts int
	Interval time.Duration
}

func IsEmptyString(str string) bool {
	return strings.TrimSpace(str) == ""
}

func IsPathExists(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	return false
}

// EnsureDirectory creates dir and its parents when missing.
func EnsureDirectory(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	} else if err != nil {
		return err
	}
	return nil
}

// WithRetry runs op until it succeeds, the attempts are exhausted or ctx is
// done. The last error of op is returned.
func WithRetry(ctx context.Context, opt RetryOpt, op func() error) error {
	attempts := opt.Attempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	interval := opt.Interval
	if interval <= 0 {
		interval = defaultRetryInterval
	}

	var err error
	for attempts > 0 {
		attempts--
		if err != nil {
			logrus.Warnf("Retry due to error: %s", err)
			select {
			case <-ctx.Done():
				return err
			case <-time.After(interval):
			}
		}
		if err = op(); err == nil {
			break
		}
	}
	return err
}

func HashFile(path string) ([]byte, error) {
	hasher := blake3.New(32, nil)

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open file before hashing file")
	}
	defer file.Close()

	buf := make([]byte, 2<<15) // 64KB
	for {
		n, err := file.Read(buf)
		if n > 0 {
			if _, err := hasher.Write(buf[:n]); err != nil {
				return nil, errors.Wrap(err, "calculate hash of file")
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read file during hashing file")
		}
	}

	return hasher.Sum(nil), nil
}

// SameContent compares the blake3 digests of two files.
func SameContent(a, b string) (bool, error) {
	hashA, err := HashFile(a)
	if err != nil {
		return false, err
	}
	hashB, err := HashFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(hashA, hashB), nil
}

// TempPath returns a unique hidden path next to target, used to stage a file
// before renaming it over target.
func TempPath(target string) string {
	return filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+"."+uuid.NewString()+".tmp")
}
