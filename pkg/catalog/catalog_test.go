/*
 * Copyright (c) 2026. Nydus Developers. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package catalog

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
	"github.com/dragonflyoss/rpfify/pkg/rpf"
	"github.com/dragonflyoss/rpfify/pkg/toc"
)

type fakeSource struct {
	entries []*toc.TocEntry
}

func (s *fakeSource) NumberOfEntries() int {
	return len(s.entries)
}

func (s *fakeSource) TocEntry(index int) (*toc.TocEntry, error) {
	if index < 0 || index >= len(s.entries) {
		return nil, errdefs.Lookup("entry %d", index)
	}
	return s.entries[index], nil
}

func newSource(t *testing.T, root string, frames map[[3]int]string) *fakeSource {
	src := &fakeSource{}
	for idx := 0; idx < 2; idx++ {
		entry, err := toc.NewTocEntry(rpf.BoundaryRectRecord{FramesVertical: 2, FramesHorizontal: 2})
		require.NoError(t, err)
		src.entries = append(src.entries, entry)
	}
	for cell, rel := range frames {
		require.NoError(t, src.entries[cell[0]].SetEntry(toc.NewFrameEntry(root, rel), cell[1], cell[2]))
	}
	return src
}

func Test_catalog(t *testing.T) {
	rootDir := t.TempDir()
	c, err := New(filepath.Join(rootDir, "db"))
	require.Nil(t, err)
	defer c.Close()

	ctx := context.TODO()
	archiveA := filepath.Join(rootDir, "A", "A.TOC")
	srcA := newSource(t, filepath.Dir(archiveA), map[[3]int]string{
		{0, 0, 1}: "N1/0A1B2C01.ON1",
		{0, 1, 0}: "N1/0A1B2C02.ON1",
		{1, 0, 0}: "N2/0B000001.TP2",
	})
	archive, err := c.AddToc(ctx, archiveA, srcA)
	require.Nil(t, err)
	require.Equal(t, 2, archive.Entries)
	require.Equal(t, 3, archive.Frames)

	frame, err := c.LookupFrame(ctx, "0a1b2c02.on1")
	require.Nil(t, err)
	require.Equal(t, &Frame{
		Archive: archiveA,
		Entry:   0,
		Row:     1,
		Col:     0,
		Path:    filepath.Join(rootDir, "A", "N1", "0A1B2C02.ON1"),
	}, frame)

	_, err = c.LookupFrame(ctx, "MISSING.ON1")
	require.True(t, errdefs.IsNotFound(err))

	stored, err := c.GetArchive(ctx, archiveA)
	require.Nil(t, err)
	require.Equal(t, 3, stored.Frames)

	// Reindexing drops frames no longer present.
	srcA = newSource(t, filepath.Dir(archiveA), map[[3]int]string{
		{0, 0, 1}: "N1/0A1B2C01.ON1",
	})
	_, err = c.AddToc(ctx, archiveA, srcA)
	require.Nil(t, err)
	_, err = c.LookupFrame(ctx, "0A1B2C02.ON1")
	require.True(t, errdefs.IsNotFound(err))

	archiveB := filepath.Join(rootDir, "B", "a.toc")
	srcB := newSource(t, filepath.Dir(archiveB), map[[3]int]string{
		{1, 1, 1}: "N3/0C000001.ON1",
	})
	_, err = c.AddToc(ctx, archiveB, srcB)
	require.Nil(t, err)

	names := make([]string, 0)
	err = c.WalkFrames(ctx, func(frame *Frame) error {
		names = append(names, filepath.Base(frame.Path))
		return nil
	})
	require.Nil(t, err)
	sort.Strings(names)
	require.Equal(t, []string{"0A1B2C01.ON1", "0C000001.ON1"}, names)

	require.Nil(t, c.RemoveToc(ctx, archiveA))
	_, err = c.LookupFrame(ctx, "0A1B2C01.ON1")
	require.True(t, errdefs.IsNotFound(err))
	_, err = c.GetArchive(ctx, archiveA)
	require.True(t, errdefs.IsNotFound(err))
	frame, err = c.LookupFrame(ctx, "0C000001.ON1")
	require.Nil(t, err)
	require.Equal(t, archiveB, frame.Archive)

	require.True(t, errdefs.IsNotFound(c.RemoveToc(ctx, archiveA)))
}

func Test_catalogReopen(t *testing.T) {
	rootDir := t.TempDir()
	c, err := New(rootDir)
	require.Nil(t, err)

	archive := filepath.Join(rootDir, "A.TOC")
	_, err = c.AddToc(context.TODO(), archive, newSource(t, rootDir, map[[3]int]string{
		{1, 0, 1}: "N2/0B000002.TP2",
	}))
	require.Nil(t, err)
	require.Nil(t, c.Close())

	c, err = New(rootDir)
	require.Nil(t, err)
	defer c.Close()
	frame, err := c.LookupFrame(context.TODO(), "0B000002.TP2")
	require.Nil(t, err)
	require.Equal(t, 1, frame.Entry)
	require.Equal(t, 0, frame.Row)
	require.Equal(t, 1, frame.Col)
}

func Test_catalogCancelled(t *testing.T) {
	rootDir := t.TempDir()
	c, err := New(rootDir)
	require.Nil(t, err)
	defer c.Close()

	archive := filepath.Join(rootDir, "A.TOC")
	_, err = c.AddToc(context.TODO(), archive, newSource(t, rootDir, map[[3]int]string{
		{0, 0, 0}: "N1/0A1B2C01.ON1",
		{0, 1, 1}: "N1/0A1B2C02.ON1",
	}))
	require.Nil(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.AddToc(cancelled, filepath.Join(rootDir, "B.TOC"), newSource(t, rootDir, map[[3]int]string{
		{1, 0, 0}: "N2/0B000001.TP2",
	}))
	require.ErrorIs(t, err, context.Canceled)
	_, err = c.LookupFrame(context.TODO(), "0B000001.TP2")
	require.True(t, errdefs.IsNotFound(err))

	_, err = c.LookupFrame(cancelled, "0A1B2C01.ON1")
	require.ErrorIs(t, err, context.Canceled)
	_, err = c.GetArchive(cancelled, archive)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, c.RemoveToc(cancelled, archive), context.Canceled)
	_, err = c.GetArchive(context.TODO(), archive)
	require.Nil(t, err)

	// Cancelling from the callback stops the walk at the next frame.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	visited := 0
	err = c.WalkFrames(ctx, func(frame *Frame) error {
		visited++
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, visited)
}
