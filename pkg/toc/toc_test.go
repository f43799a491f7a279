// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package toc

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
	"github.com/dragonflyoss/rpfify/pkg/nitf"
	"github.com/dragonflyoss/rpfify/pkg/rpf"
)

func existingCells(entry *TocEntry) [][2]int {
	var cells [][2]int
	for _, cell := range entry.ExistingFrames() {
		cells = append(cells, [2]int{cell.Row, cell.Col})
	}
	return cells
}

func TestParseFile(t *testing.T) {
	for name, order := range map[string]binary.ByteOrder{
		"big endian":    binary.BigEndian,
		"little endian": binary.LittleEndian,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, order)

			toc := New(Opt{})
			require.NoError(t, toc.ParseFile(f.tocPath, false))
			require.NoError(t, toc.ErrorStatus())
			require.Nil(t, toc.FileHeader())
			require.Equal(t, order, toc.RpfHeader().ByteOrder())
			require.Equal(t, f.rpfDir, toc.RootDirectory())

			require.Equal(t, 2, toc.NumberOfEntries())
			require.Equal(t, 2, toc.NumberOfFramesVertical(0))
			require.Equal(t, 3, toc.NumberOfFramesHorizontal(0))
			require.Equal(t, 1, toc.NumberOfFramesVertical(1))
			require.Equal(t, 1, toc.NumberOfFramesHorizontal(1))

			entry, err := toc.TocEntry(0)
			require.NoError(t, err)
			require.Equal(t, [][2]int{{0, 0}, {0, 2}, {1, 1}}, existingCells(entry))
			require.Equal(t, fixtureBoundaries()[0], entry.BoundaryInformation())

			rel, err := toc.RelativeFramePath(0, 0, 2)
			require.NoError(t, err)
			require.Equal(t, filepath.Join("N1", "0A1B2C02.ON1"), rel)

			full, err := toc.FramePath(1, 0, 0)
			require.NoError(t, err)
			require.Equal(t, f.frames["0B000001.TP2"], full)

			frame, err := toc.RpfFrameEntry(0, 1, 0)
			require.NoError(t, err)
			require.False(t, frame.Exists)
			_, err = toc.RelativeFramePath(0, 1, 0)
			require.True(t, errdefs.IsLookup(err))
		})
	}
}

func TestParseFileKeepFileHeader(t *testing.T) {
	f := newFixture(t, binary.BigEndian)

	toc := New(Opt{})
	require.NoError(t, toc.ParseFile(f.tocPath, true))
	header := toc.FileHeader()
	require.NotNil(t, header)
	require.Equal(t, "RPFSTN", header.StationID)
	require.Equal(t, "NGA", header.OriginatorName)

	info, err := os.Stat(f.tocPath)
	require.NoError(t, err)
	require.Equal(t, info.Size(), header.FileLength)

	tag, ok := header.Tag(rpf.HeaderTag)
	require.True(t, ok)
	rpfHeader, err := rpf.ParseHeader(tag.Data)
	require.NoError(t, err)
	require.Equal(t, "A.TOC", rpfHeader.FileName)
	require.Equal(t, toc.RpfHeader().LocationSectionLocation, rpfHeader.LocationSectionLocation)
}

func TestParseFileIdempotent(t *testing.T) {
	f := newFixture(t, binary.LittleEndian)

	first := New(Opt{})
	require.NoError(t, first.ParseFile(f.tocPath, false))
	second := New(Opt{})
	require.NoError(t, second.ParseFile(f.tocPath, false))

	require.Equal(t, first.NumberOfEntries(), second.NumberOfEntries())
	for idx := 0; idx < first.NumberOfEntries(); idx++ {
		require.Equal(t, first.NumberOfFramesHorizontal(idx), second.NumberOfFramesHorizontal(idx))
		require.Equal(t, first.NumberOfFramesVertical(idx), second.NumberOfFramesVertical(idx))
		a, _ := first.TocEntry(idx)
		b, _ := second.TocEntry(idx)
		require.Equal(t, existingCells(a), existingCells(b))
	}

	// Reparsing the same Toc replaces its table.
	require.NoError(t, first.ParseFile(f.tocPath, false))
	require.Equal(t, 2, first.NumberOfEntries())
}

func TestInvalidEntryIndex(t *testing.T) {
	f := newFixture(t, binary.BigEndian)
	toc := New(Opt{})
	require.NoError(t, toc.ParseFile(f.tocPath, false))

	for _, idx := range []int{-1, 2, 100} {
		assert.Equal(t, 0, toc.NumberOfFramesHorizontal(idx))
		assert.Equal(t, 0, toc.NumberOfFramesVertical(idx))
		_, err := toc.TocEntry(idx)
		assert.True(t, errdefs.IsLookup(err))
	}
	_, err := toc.RpfFrameEntry(0, 2, 0)
	require.True(t, errdefs.IsLookup(err))
}

func requireInvalid(t *testing.T, toc *Toc, err error) {
	require.Error(t, err)
	require.Equal(t, err, toc.ErrorStatus())
	require.Equal(t, 0, toc.NumberOfEntries())
	require.Empty(t, toc.Entries())
	require.Nil(t, toc.FileHeader())
}

func TestParseFileMissingTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.toc")
	file, err := os.Create(path)
	require.NoError(t, err)
	header := nitf.NewFileHeader(fixtureTime)
	header.SetTag(nitf.NewTag("OTHERT", []byte("payload")))
	_, err = header.WriteTo(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	toc := New(Opt{})
	err = toc.ParseFile(path, true)
	requireInvalid(t, toc, err)
	require.True(t, errdefs.IsMissingTag(err))
}

func TestParseFileMissing(t *testing.T) {
	toc := New(Opt{})
	err := toc.ParseFile(filepath.Join(t.TempDir(), "a.toc"), false)
	requireInvalid(t, toc, err)
	require.True(t, errdefs.IsIO(err))
}

func TestParseFileNotNITF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.toc")
	require.NoError(t, os.WriteFile(path, []byte("this is not an archive"), 0644))

	toc := New(Opt{})
	err := toc.ParseFile(path, false)
	requireInvalid(t, toc, err)
	require.True(t, errdefs.IsMalformedArchive(err))
}

func TestParseFileTruncated(t *testing.T) {
	f := newFixture(t, binary.BigEndian)
	toc := New(Opt{})
	require.NoError(t, toc.ParseFile(f.tocPath, false))
	locationOffset := int64(toc.RpfHeader().LocationSectionLocation)

	info, err := os.Stat(f.tocPath)
	require.NoError(t, err)

	// Cut into the last pathname record.
	require.NoError(t, os.Truncate(f.tocPath, info.Size()-3))
	err = toc.ParseFile(f.tocPath, false)
	requireInvalid(t, toc, err)
	require.True(t, errdefs.IsMalformedArchive(err))

	// Keep two of the six location records.
	require.NoError(t, os.Truncate(f.tocPath, locationOffset+rpf.LocationSubheaderSize+2*rpf.ComponentLocationRecordSize))
	err = toc.ParseFile(f.tocPath, false)
	requireInvalid(t, toc, err)
	require.True(t, errdefs.IsMalformedArchive(err))
	require.Contains(t, err.Error(), "location table declares 6 records, found 2")
}

func TestParseFileBadFrameIndex(t *testing.T) {
	tests := []struct {
		name   string
		frames []fixtureFrame
		msg    string
	}{
		{
			name:   "unknown boundary rectangle",
			frames: []fixtureFrame{{dir: "N1", name: "0A1B2C01.ON1", entry: 5}},
			msg:    "refers to boundary rectangle 5 of 2",
		},
		{
			name:   "cell outside grid",
			frames: []fixtureFrame{{dir: "N1", name: "0A1B2C01.ON1", entry: 1, row: 0, col: 3}},
			msg:    "outside 1x1 grid",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "a.toc")
			writeArchive(t, path, binary.BigEndian, fixtureBoundaries(), tt.frames)

			toc := New(Opt{})
			err := toc.ParseFile(path, false)
			requireInvalid(t, toc, err)
			require.True(t, errdefs.IsMalformedArchive(err))
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestTocEntry(t *testing.T) {
	boundary := fixtureBoundaries()[0]
	entry, err := NewTocEntry(boundary)
	require.NoError(t, err)
	require.Empty(t, entry.ExistingFrames())

	frame := NewFrameEntry("/data/RPF", "./N1/0A1B2C01.ON1")
	require.Equal(t, filepath.Join("N1", "0A1B2C01.ON1"), frame.RelativePath)
	require.Equal(t, filepath.Join("/data/RPF", "N1", "0A1B2C01.ON1"), frame.FullPath())
	require.Empty(t, FrameEntry{}.FullPath())

	require.NoError(t, entry.SetEntry(frame, 1, 2))
	got, err := entry.Entry(1, 2)
	require.NoError(t, err)
	require.Equal(t, frame, got)
	require.Equal(t, []FrameCell{{Row: 1, Col: 2, Frame: frame}}, entry.ExistingFrames())

	require.True(t, errdefs.IsMalformedArchive(entry.SetEntry(frame, 2, 0)))
	_, err = entry.Entry(0, -1)
	require.True(t, errdefs.IsLookup(err))

	boundary.FramesVertical = 1 << 13
	boundary.FramesHorizontal = 1 << 13
	_, err = NewTocEntry(boundary)
	require.True(t, errdefs.IsMalformedArchive(err))
}

func TestNewTocEntryGridTooLarge(t *testing.T) {
	for _, dims := range [][2]uint32{
		{0xffffffff, 0xffffffff},
		{0x10000, 0x10000},
		{1, maxGridCells + 1},
		{maxGridCells + 1, 0},
	} {
		boundary := fixtureBoundaries()[0]
		boundary.FramesVertical, boundary.FramesHorizontal = dims[0], dims[1]
		_, err := NewTocEntry(boundary)
		require.True(t, errdefs.IsMalformedArchive(err), "grid %dx%d", dims[0], dims[1])
		require.Contains(t, err.Error(), "too large")
	}
}

func TestBuildTocEntryListMissingPathname(t *testing.T) {
	toc := New(Opt{})
	toc.boundaryTable = rpf.NewBoundaryRectTable(fixtureBoundaries()[0])
	toc.frameSubsection = rpf.NewFrameFileIndexSubsection(
		[]rpf.FrameFileIndexRecord{{Filename: "0A1B2C01.ON1", PathnameRecordOffset: 99}},
		[]rpf.PathnameRecord{{Offset: rpf.FrameFileIndexRecordSize, Pathname: "./N1/"}},
	)

	err := toc.buildTocEntryList(toc.logger)
	require.True(t, errdefs.IsMalformedArchive(err))
	require.False(t, errdefs.IsLookup(err))
	require.Contains(t, err.Error(), "frame 0A1B2C01.ON1 has no pathname record at offset 99")
}
