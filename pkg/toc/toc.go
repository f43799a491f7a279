// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package toc parses RPF table of contents files into an entry table of
// frame grids, and synthesizes new single entry tables of contents from a
// manifest of frame files.
package toc

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
	"github.com/dragonflyoss/rpfify/pkg/metrics"
	"github.com/dragonflyoss/rpfify/pkg/nitf"
	"github.com/dragonflyoss/rpfify/pkg/rpf"
)

type parseState int

const (
	stateStart parseState = iota
	stateHeaderRead
	stateLocationTableRead
	stateBoundarySectionRead
	stateEntriesAllocated
	stateFrameIndexWalked
	stateDone
)

var parseStateNames = [...]string{
	stateStart:               "start",
	stateHeaderRead:          "header read",
	stateLocationTableRead:   "location table read",
	stateBoundarySectionRead: "boundary section read",
	stateEntriesAllocated:    "entries allocated",
	stateFrameIndexWalked:    "frame index walked",
	stateDone:                "done",
}

func (s parseState) String() string {
	return parseStateNames[s]
}

// Opt configures a Toc.
type Opt struct {
	// Logger receives parse progress and failures. Defaults to the standard
	// logrus logger.
	Logger *logrus.Entry
}

// Toc is a parsed table of contents. Once ParseFile succeeds the entry table
// is immutable and safe for concurrent reads.
type Toc struct {
	logger *logrus.Entry

	path       string
	rootDir    string
	fileHeader *nitf.FileHeader

	rpfHeader         *rpf.Header
	location          *rpf.LocationSection
	boundarySubheader *rpf.BoundaryRectSectionSubheader
	boundaryTable     *rpf.BoundaryRectTable
	frameSubheader    *rpf.FrameFileIndexSectionSubheader
	frameSubsection   *rpf.FrameFileIndexSubsection

	entries []*TocEntry
	state   parseState
	err     error
}

// New creates an empty Toc reporting zero entries.
func New(opt Opt) *Toc {
	logger := opt.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Toc{logger: logger}
}

// ParseFile parses the table of contents at path. The outer file header is
// kept in memory only when keepFileHeader is set. On failure the Toc holds
// no entries and ErrorStatus returns the failure.
func (t *Toc) ParseFile(path string, keepFileHeader bool) error {
	t.reset()
	logger := t.logger.WithField("toc", path)

	err := t.parseFile(path, keepFileHeader, logger)
	metrics.TocParsed(err)
	if err != nil {
		logger.WithError(err).Errorf("failed to parse table of contents in state %q", t.state)
		t.reset()
		t.err = err
		return err
	}

	logger.Debugf("parsed table of contents with %d entries", len(t.entries))
	return nil
}

func (t *Toc) reset() {
	*t = Toc{logger: t.logger}
}

func (t *Toc) advance(logger *logrus.Entry, state parseState) {
	logger.Tracef("parse state %q -> %q", t.state, state)
	t.state = state
}

func (t *Toc) parseFile(path string, keepFileHeader bool, logger *logrus.Entry) error {
	file, err := os.Open(path)
	if err != nil {
		return errdefs.IO(err, "open table of contents %s", path)
	}
	defer file.Close()

	t.path = path
	t.rootDir = filepath.Dir(path)

	fileHeader, err := nitf.Parse(file)
	if err != nil {
		return errors.Wrap(err, "parse file header")
	}
	tag, ok := fileHeader.Tag(rpf.HeaderTag)
	if !ok {
		return errors.Wrapf(errdefs.ErrMissingTag, "file header of %s", path)
	}
	if _, err := file.Seek(tag.Offset, io.SeekStart); err != nil {
		return errdefs.IO(err, "seek to rpf header")
	}
	rpfHeader := &rpf.Header{}
	if err := rpfHeader.Parse(file); err != nil {
		return errors.Wrap(err, "parse rpf header")
	}
	t.rpfHeader = rpfHeader
	if keepFileHeader {
		t.fileHeader = fileHeader
	}
	t.advance(logger, stateHeaderRead)

	order := rpfHeader.ByteOrder()
	if _, err := file.Seek(int64(rpfHeader.LocationSectionLocation), io.SeekStart); err != nil {
		return errdefs.IO(err, "seek to location section")
	}
	location := &rpf.LocationSection{}
	if err := location.Parse(file, order); err != nil {
		return errors.Wrap(err, "parse location section")
	}
	t.location = location
	t.advance(logger, stateLocationTableRead)

	if err := t.parseBoundarySection(file, order); err != nil {
		return err
	}
	t.advance(logger, stateBoundarySectionRead)

	if err := t.parseFrameFileIndexSection(file, order); err != nil {
		return err
	}

	return t.buildTocEntryList(logger)
}

// seekComponent positions file at a component found in the location table,
// or at fallback when the table does not list it and fallback is not negative.
func (t *Toc) seekComponent(file io.Seeker, id rpf.ComponentID, fallback int64) (int64, error) {
	offset := fallback
	if record, ok := t.location.ComponentRecord(id); ok {
		offset = int64(record.ComponentLocation)
	}
	if offset < 0 {
		return 0, errdefs.Malformed(nil, "location table has no %s", id)
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return 0, errdefs.IO(err, "seek to %s", id)
	}
	return offset, nil
}

func (t *Toc) parseBoundarySection(file io.ReadSeeker, order binary.ByteOrder) error {
	offset, err := t.seekComponent(file, rpf.ComponentBoundaryRectSectionSubheader, -1)
	if err != nil {
		return err
	}
	subheader := &rpf.BoundaryRectSectionSubheader{}
	if err := subheader.Parse(file, order); err != nil {
		return errors.Wrap(err, "parse boundary rectangle subheader")
	}

	fallback := offset + rpf.BoundaryRectSubheaderSize + int64(subheader.TableOffset)
	if _, err := t.seekComponent(file, rpf.ComponentBoundaryRectTable, fallback); err != nil {
		return err
	}
	table := &rpf.BoundaryRectTable{}
	if err := table.Parse(file, order, int(subheader.NumberOfEntries)); err != nil {
		return errors.Wrap(err, "parse boundary rectangle table")
	}

	t.boundarySubheader = subheader
	t.boundaryTable = table
	return nil
}

func (t *Toc) parseFrameFileIndexSection(file io.ReadSeeker, order binary.ByteOrder) error {
	offset, err := t.seekComponent(file, rpf.ComponentFrameFileIndexSectionSubheader, -1)
	if err != nil {
		return err
	}
	subheader := &rpf.FrameFileIndexSectionSubheader{}
	if err := subheader.Parse(file, order); err != nil {
		return errors.Wrap(err, "parse frame file index subheader")
	}

	if _, err := t.seekComponent(file, rpf.ComponentFrameFileIndexSubsection, offset+rpf.FrameFileIndexSubheaderSize); err != nil {
		return err
	}
	subsection := &rpf.FrameFileIndexSubsection{}
	if err := subsection.Parse(file, order, subheader); err != nil {
		return errors.Wrap(err, "parse frame file index subsection")
	}

	t.frameSubheader = subheader
	t.frameSubsection = subsection
	return nil
}

// buildTocEntryList allocates one entry per boundary rectangle and places
// every indexed frame in its entry's grid.
func (t *Toc) buildTocEntryList(logger *logrus.Entry) error {
	entries := make([]*TocEntry, t.boundaryTable.NumberOfEntries())
	for idx := range entries {
		boundary, err := t.boundaryTable.Entry(idx)
		if err != nil {
			return err
		}
		entry, err := NewTocEntry(*boundary)
		if err != nil {
			return errors.Wrapf(err, "allocate entry %d", idx)
		}
		entries[idx] = entry
	}
	t.advance(logger, stateEntriesAllocated)

	for _, record := range t.frameSubsection.Records() {
		if int(record.BoundaryRecNumber) >= len(entries) {
			return errdefs.Malformed(nil, "frame %s refers to boundary rectangle %d of %d",
				record.Filename, record.BoundaryRecNumber, len(entries))
		}
		pathname, err := t.frameSubsection.Pathname(record.PathnameRecordOffset)
		if err != nil {
			return errdefs.Malformed(nil, "frame %s has no pathname record at offset %d",
				record.Filename, record.PathnameRecordOffset)
		}
		frame := NewFrameEntry(t.rootDir, filepath.Join(filepath.FromSlash(pathname), record.Filename))
		entry := entries[record.BoundaryRecNumber]
		if err := entry.SetEntry(frame, int(record.LocationRowNumber), int(record.LocationColNumber)); err != nil {
			return errors.Wrapf(err, "frame %s of entry %d", record.Filename, record.BoundaryRecNumber)
		}
	}
	t.advance(logger, stateFrameIndexWalked)

	t.entries = entries
	t.advance(logger, stateDone)
	return nil
}

// ErrorStatus returns the failure of the last parse, nil when it succeeded.
func (t *Toc) ErrorStatus() error {
	return t.err
}

// Path returns the parsed file.
func (t *Toc) Path() string {
	return t.path
}

// RootDirectory returns the directory frame paths are relative to.
func (t *Toc) RootDirectory() string {
	return t.rootDir
}

// FileHeader returns the outer file header, nil unless kept at parse time.
func (t *Toc) FileHeader() *nitf.FileHeader {
	return t.fileHeader
}

func (t *Toc) RpfHeader() *rpf.Header {
	return t.rpfHeader
}

func (t *Toc) LocationSection() *rpf.LocationSection {
	return t.location
}

func (t *Toc) BoundaryRectSubheader() *rpf.BoundaryRectSectionSubheader {
	return t.boundarySubheader
}

func (t *Toc) BoundaryRectTable() *rpf.BoundaryRectTable {
	return t.boundaryTable
}

func (t *Toc) FrameFileIndexSubheader() *rpf.FrameFileIndexSectionSubheader {
	return t.frameSubheader
}

func (t *Toc) FrameFileIndexSubsection() *rpf.FrameFileIndexSubsection {
	return t.frameSubsection
}

func (t *Toc) NumberOfEntries() int {
	return len(t.entries)
}

// Entries returns the entry table in boundary rectangle order.
func (t *Toc) Entries() []*TocEntry {
	return t.entries
}

func (t *Toc) TocEntry(index int) (*TocEntry, error) {
	if index < 0 || index >= len(t.entries) {
		return nil, errdefs.Lookup("entry %d out of range [0, %d)", index, len(t.entries))
	}
	return t.entries[index], nil
}

// NumberOfFramesHorizontal returns the grid width of an entry, 0 for an
// unknown entry.
func (t *Toc) NumberOfFramesHorizontal(index int) int {
	entry, err := t.TocEntry(index)
	if err != nil {
		return 0
	}
	return entry.NumberOfFramesHorizontal()
}

// NumberOfFramesVertical returns the grid height of an entry, 0 for an
// unknown entry.
func (t *Toc) NumberOfFramesVertical(index int) int {
	entry, err := t.TocEntry(index)
	if err != nil {
		return 0
	}
	return entry.NumberOfFramesVertical()
}

func (t *Toc) RpfFrameEntry(index, row, col int) (FrameEntry, error) {
	entry, err := t.TocEntry(index)
	if err != nil {
		return FrameEntry{}, err
	}
	return entry.Entry(row, col)
}

// RelativeFramePath returns the frame path relative to the root directory.
func (t *Toc) RelativeFramePath(index, row, col int) (string, error) {
	frame, err := t.existingFrame(index, row, col)
	if err != nil {
		return "", err
	}
	return frame.RelativePath, nil
}

// FramePath returns the full path of a frame.
func (t *Toc) FramePath(index, row, col int) (string, error) {
	frame, err := t.existingFrame(index, row, col)
	if err != nil {
		return "", err
	}
	return frame.FullPath(), nil
}

func (t *Toc) existingFrame(index, row, col int) (FrameEntry, error) {
	frame, err := t.RpfFrameEntry(index, row, col)
	if err != nil {
		return FrameEntry{}, err
	}
	if !frame.Exists {
		return FrameEntry{}, errdefs.Lookup("no frame at entry %d cell (%d, %d)", index, row, col)
	}
	return frame, nil
}
