// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package toc

import (
	"path/filepath"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
	"github.com/dragonflyoss/rpfify/pkg/rpf"
)

// maxGridCells bounds the frame grid allocated for one entry so a corrupt
// boundary record can not exhaust memory.
const maxGridCells = 1 << 24

// FrameEntry locates one frame file. It does not own the file.
type FrameEntry struct {
	RootDirectory string
	RelativePath  string
	Exists        bool
}

// NewFrameEntry returns an existing frame entry below rootDir.
func NewFrameEntry(rootDir, relativePath string) FrameEntry {
	return FrameEntry{
		RootDirectory: rootDir,
		RelativePath:  filepath.Clean(filepath.FromSlash(relativePath)),
		Exists:        true,
	}
}

// FullPath joins the root directory and the relative path.
func (f FrameEntry) FullPath() string {
	if !f.Exists {
		return ""
	}
	return filepath.Join(f.RootDirectory, f.RelativePath)
}

// FrameCell is an existing frame at a grid position.
type FrameCell struct {
	Row   int
	Col   int
	Frame FrameEntry
}

// TocEntry is one product entry: its boundary rectangle and a grid of
// frames indexed [row][col]. Cells without a frame do not exist.
type TocEntry struct {
	boundary rpf.BoundaryRectRecord
	frames   [][]FrameEntry
}

// NewTocEntry allocates an entry whose grid matches the boundary record.
func NewTocEntry(boundary rpf.BoundaryRectRecord) (*TocEntry, error) {
	if boundary.FramesVertical > maxGridCells || boundary.FramesHorizontal > maxGridCells ||
		boundary.NumberOfFrames() > maxGridCells {
		return nil, errdefs.Malformed(nil, "frame grid %dx%d too large",
			boundary.FramesVertical, boundary.FramesHorizontal)
	}
	frames := make([][]FrameEntry, boundary.FramesVertical)
	for row := range frames {
		frames[row] = make([]FrameEntry, boundary.FramesHorizontal)
	}
	return &TocEntry{boundary: boundary, frames: frames}, nil
}

func (e *TocEntry) BoundaryInformation() rpf.BoundaryRectRecord {
	return e.boundary
}

func (e *TocEntry) NumberOfFramesVertical() int {
	return int(e.boundary.FramesVertical)
}

func (e *TocEntry) NumberOfFramesHorizontal() int {
	return int(e.boundary.FramesHorizontal)
}

func (e *TocEntry) inGrid(row, col int) bool {
	return row >= 0 && row < e.NumberOfFramesVertical() && col >= 0 && col < e.NumberOfFramesHorizontal()
}

// SetEntry stores frame at (row, col).
func (e *TocEntry) SetEntry(frame FrameEntry, row, col int) error {
	if !e.inGrid(row, col) {
		return errdefs.Malformed(nil, "frame cell (%d, %d) outside %dx%d grid",
			row, col, e.NumberOfFramesVertical(), e.NumberOfFramesHorizontal())
	}
	e.frames[row][col] = frame
	return nil
}

// Entry returns the frame at (row, col); it may not exist.
func (e *TocEntry) Entry(row, col int) (FrameEntry, error) {
	if !e.inGrid(row, col) {
		return FrameEntry{}, errdefs.Lookup("frame cell (%d, %d) outside %dx%d grid",
			row, col, e.NumberOfFramesVertical(), e.NumberOfFramesHorizontal())
	}
	return e.frames[row][col], nil
}

// ExistingFrames lists the cells holding a frame in row-major order.
func (e *TocEntry) ExistingFrames() []FrameCell {
	var cells []FrameCell
	for row := range e.frames {
		for col, frame := range e.frames[row] {
			if frame.Exists {
				cells = append(cells, FrameCell{Row: row, Col: col, Frame: frame})
			}
		}
	}
	return cells
}
