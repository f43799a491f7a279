// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dragonflyoss/rpfify/pkg/utils"
)

const defaultPushWorkers = 4

type PushOpt struct {
	Logger    *logrus.Entry
	Workers   int
	ForcePush bool
	// Retry controls the attempts of each upload.
	Retry     utils.RetryOpt
}

// Push uploads every file of a synthesized archive below dir. Object IDs are
// slash separated paths relative to dir. Hidden files, such as staged copies,
// are skipped. Frames are uploaded first and tables of contents only once
// every frame is stored, so a mirror never sees a table of contents indexing
// frames it can not fetch.
func Push(ctx context.Context, b Backend, dir string, opt PushOpt) (descs []*Descriptor, retErr error) {
	logger := opt.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opt.Workers <= 0 {
		opt.Workers = defaultPushWorkers
	}

	var frames, tocs []Object
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		obj := Object{ID: filepath.ToSlash(rel), Path: path, Size: info.Size()}
		if obj.Kind() == KindToc {
			tocs = append(tocs, obj)
		} else {
			frames = append(frames, obj)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk archive directory %s", dir)
	}

	defer func() {
		if err := b.Finalize(retErr != nil); err != nil {
			logger.WithError(err).Warn("failed to finalize backend")
		}
	}()

	var total int64
	for _, phase := range [][]Object{frames, tocs} {
		pushed, size, err := pushObjects(ctx, b, phase, opt, logger)
		if err != nil {
			return nil, err
		}
		descs = append(descs, pushed...)
		total += size
	}

	sort.Slice(descs, func(i, j int) bool {
		return descs[i].ObjectID < descs[j].ObjectID
	})
	logger.Infof("pushed %d frames and %d tables of contents (%s) from %s",
		len(frames), len(tocs), humanize.IBytes(uint64(total)), dir)
	return descs, nil
}

// pushObjects uploads objects with at most opt.Workers uploads in flight.
func pushObjects(ctx context.Context, b Backend, objects []Object, opt PushOpt, logger *logrus.Entry) ([]*Descriptor, int64, error) {
	var (
		mu    sync.Mutex
		descs []*Descriptor
		total int64
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opt.Workers)
	for _, obj := range objects {
		obj := obj
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			var desc *Descriptor
			err := utils.WithRetry(egCtx, opt.Retry, func() error {
				var err error
				desc, err = b.Upload(egCtx, obj, opt.ForcePush)
				return err
			})
			if err != nil {
				return errors.Wrapf(err, "push %s", obj.ID)
			}
			mu.Lock()
			descs = append(descs, desc)
			total += obj.Size
			mu.Unlock()
			logger.Debugf("pushed %s %s (%s)", desc.Kind, obj.ID, humanize.IBytes(uint64(obj.Size)))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}
	return descs, total, nil
}
