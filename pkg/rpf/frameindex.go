// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package rpf

import (
	"encoding/binary"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
)

const (
	// FrameFileIndexSubheaderSize is the size of the frame file index section subheader.
	FrameFileIndexSubheaderSize = 13
	// FrameFileIndexRecordSize is the size of one frame file index record.
	FrameFileIndexRecordSize = 33
	// MaxFrameFileNameLength is the width of the frame file name field.
	MaxFrameFileNameLength = 12
)

// FrameFileIndexSectionSubheader describes the frame file index subsection.
type FrameFileIndexSectionSubheader struct {
	SecurityClassification  string
	IndexTableOffset        uint32
	NumberOfIndexRecords    uint32
	NumberOfPathnameRecords uint16
	IndexRecordLength       uint16
}

func (s *FrameFileIndexSectionSubheader) Parse(r io.Reader, order binary.ByteOrder) error {
	buf, err := readRecord(r, FrameFileIndexSubheaderSize, "frame file index subheader")
	if err != nil {
		return err
	}
	d := newDecoder(buf, order)
	s.SecurityClassification = d.string(1)
	s.IndexTableOffset = d.uint32()
	s.NumberOfIndexRecords = d.uint32()
	s.NumberOfPathnameRecords = d.uint16()
	s.IndexRecordLength = d.uint16()

	if s.NumberOfIndexRecords > 0 && s.IndexRecordLength != FrameFileIndexRecordSize {
		return errdefs.Malformed(nil, "frame file index record length %d, want %d", s.IndexRecordLength, FrameFileIndexRecordSize)
	}
	return nil
}

func (s *FrameFileIndexSectionSubheader) Write(w io.Writer, order binary.ByteOrder) error {
	e := newEncoder(FrameFileIndexSubheaderSize, order)
	e.string(s.SecurityClassification, 1)
	e.uint32(s.IndexTableOffset)
	e.uint32(s.NumberOfIndexRecords)
	e.uint16(s.NumberOfPathnameRecords)
	e.uint16(FrameFileIndexRecordSize)
	buf, err := e.bytes()
	if err != nil {
		return errdefs.Malformed(err, "encode frame file index subheader")
	}
	return writeRecord(w, buf, "frame file index subheader")
}

// FrameFileIndexRecord addresses one frame file by entry, row and column.
// PathnameRecordOffset is relative to the start of the subsection.
type FrameFileIndexRecord struct {
	BoundaryRecNumber      uint16
	LocationRowNumber      uint16
	LocationColNumber      uint16
	PathnameRecordOffset   uint32
	Filename               string
	GeographicLocation     string
	SecurityClassification string
	SecurityCountryCode    string
	SecurityReleaseMarking string
}

func (r *FrameFileIndexRecord) Parse(rd io.Reader, order binary.ByteOrder) error {
	buf, err := readRecord(rd, FrameFileIndexRecordSize, "frame file index record")
	if err != nil {
		return err
	}
	d := newDecoder(buf, order)
	r.BoundaryRecNumber = d.uint16()
	r.LocationRowNumber = d.uint16()
	r.LocationColNumber = d.uint16()
	r.PathnameRecordOffset = d.uint32()
	r.Filename = d.string(MaxFrameFileNameLength)
	r.GeographicLocation = d.string(6)
	r.SecurityClassification = d.string(1)
	r.SecurityCountryCode = d.string(2)
	r.SecurityReleaseMarking = d.string(2)
	return nil
}

func (r *FrameFileIndexRecord) Write(w io.Writer, order binary.ByteOrder) error {
	e := newEncoder(FrameFileIndexRecordSize, order)
	e.uint16(r.BoundaryRecNumber)
	e.uint16(r.LocationRowNumber)
	e.uint16(r.LocationColNumber)
	e.uint32(r.PathnameRecordOffset)
	e.string(r.Filename, MaxFrameFileNameLength)
	e.string(r.GeographicLocation, 6)
	e.string(r.SecurityClassification, 1)
	e.string(r.SecurityCountryCode, 2)
	e.string(r.SecurityReleaseMarking, 2)
	buf, err := e.bytes()
	if err != nil {
		return errdefs.Malformed(err, "encode frame file index record %q", r.Filename)
	}
	return writeRecord(w, buf, "frame file index record")
}

// PathnameRecord names a directory shared by frame file index records.
// Offset is where the record lives, relative to the subsection start; it is
// not part of the encoding.
type PathnameRecord struct {
	Offset   uint32
	Pathname string
}

// Size returns the encoded size: a 2 byte length and the characters.
func (p *PathnameRecord) Size() int {
	return 2 + len(p.Pathname)
}

func (p *PathnameRecord) Parse(r io.Reader, order binary.ByteOrder) error {
	buf, err := readRecord(r, 2, "pathname length")
	if err != nil {
		return err
	}
	n := int(order.Uint16(buf))
	buf, err = readRecord(r, n, "pathname")
	if err != nil {
		return err
	}
	p.Pathname = strings.TrimRight(string(buf), " \x00")
	return nil
}

func (p *PathnameRecord) Write(w io.Writer, order binary.ByteOrder) error {
	if len(p.Pathname) > 0xffff {
		return errdefs.Malformed(nil, "pathname longer than %d bytes", 0xffff)
	}
	buf := make([]byte, p.Size())
	order.PutUint16(buf, uint16(len(p.Pathname)))
	copy(buf[2:], p.Pathname)
	return writeRecord(w, buf, "pathname record")
}

// FrameFileIndexSubsection holds the index records followed by the pathname
// records they point to.
type FrameFileIndexSubsection struct {
	records   []FrameFileIndexRecord
	pathnames []PathnameRecord
}

// NewFrameFileIndexSubsection returns a subsection holding records and pathnames.
func NewFrameFileIndexSubsection(records []FrameFileIndexRecord, pathnames []PathnameRecord) *FrameFileIndexSubsection {
	return &FrameFileIndexSubsection{records: records, pathnames: pathnames}
}

// Parse reads the index records and pathname records described by sub. The
// reader must be positioned at the start of the subsection. Pathname records
// are read in sequence after the index records; any record offset left
// unresolved is then read by seeking to it.
func (s *FrameFileIndexSubsection) Parse(r io.ReadSeeker, order binary.ByteOrder, sub *FrameFileIndexSectionSubheader) error {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return errdefs.IO(err, "locate frame file index subsection")
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return errdefs.IO(err, "locate end of frame file index subsection")
	}
	table := start + int64(sub.IndexTableOffset)
	if _, err := r.Seek(table, io.SeekStart); err != nil {
		return errdefs.IO(err, "seek to frame file index table")
	}
	if need := int64(sub.NumberOfIndexRecords) * FrameFileIndexRecordSize; need > end-table {
		return errdefs.Malformed(nil, "frame file index declares %d records, %d bytes left",
			sub.NumberOfIndexRecords, max(end-table, 0))
	}

	s.records = make([]FrameFileIndexRecord, sub.NumberOfIndexRecords)
	for idx := range s.records {
		if err := s.records[idx].Parse(r, order); err != nil {
			return err
		}
	}

	s.pathnames = s.pathnames[:0]
	for idx := 0; idx < int(sub.NumberOfPathnameRecords); idx++ {
		pos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return errdefs.IO(err, "locate pathname record")
		}
		p := PathnameRecord{Offset: uint32(pos - start)}
		if err := p.Parse(r, order); err != nil {
			return err
		}
		s.pathnames = append(s.pathnames, p)
	}

	for _, record := range s.records {
		if _, ok := s.pathnameAt(record.PathnameRecordOffset); ok {
			continue
		}
		if _, err := r.Seek(start+int64(record.PathnameRecordOffset), io.SeekStart); err != nil {
			return errdefs.IO(err, "seek to pathname record")
		}
		p := PathnameRecord{Offset: record.PathnameRecordOffset}
		if err := p.Parse(r, order); err != nil {
			return errors.Wrapf(err, "pathname record at offset %d of %q", record.PathnameRecordOffset, record.Filename)
		}
		s.pathnames = append(s.pathnames, p)
	}
	sort.Slice(s.pathnames, func(i, j int) bool {
		return s.pathnames[i].Offset < s.pathnames[j].Offset
	})
	return nil
}

// Write writes the index records then the pathname records. Each pathname
// record must declare the offset at which it lands.
func (s *FrameFileIndexSubsection) Write(w io.Writer, order binary.ByteOrder) error {
	for idx := range s.records {
		if err := s.records[idx].Write(w, order); err != nil {
			return err
		}
	}
	pos := uint32(len(s.records) * FrameFileIndexRecordSize)
	for idx := range s.pathnames {
		p := &s.pathnames[idx]
		if p.Offset != pos {
			return errdefs.Malformed(nil, "pathname %q declared at offset %d, written at %d", p.Pathname, p.Offset, pos)
		}
		if err := p.Write(w, order); err != nil {
			return err
		}
		pos += uint32(p.Size())
	}
	return nil
}

// Size returns the encoded size of the subsection.
func (s *FrameFileIndexSubsection) Size() int {
	size := len(s.records) * FrameFileIndexRecordSize
	for idx := range s.pathnames {
		size += s.pathnames[idx].Size()
	}
	return size
}

func (s *FrameFileIndexSubsection) Records() []FrameFileIndexRecord {
	return s.records
}

func (s *FrameFileIndexSubsection) Pathnames() []PathnameRecord {
	return s.pathnames
}

// Pathname returns the pathname stored at offset.
func (s *FrameFileIndexSubsection) Pathname(offset uint32) (string, error) {
	p, ok := s.pathnameAt(offset)
	if !ok {
		return "", errdefs.Lookup("no pathname record at offset %d", offset)
	}
	return p.Pathname, nil
}

func (s *FrameFileIndexSubsection) pathnameAt(offset uint32) (*PathnameRecord, bool) {
	for idx := range s.pathnames {
		if s.pathnames[idx].Offset == offset {
			return &s.pathnames[idx], true
		}
	}
	return nil, false
}

// FrameFileIndexRecordFromFile finds the record of a frame file. Names are
// compared case insensitively.
func (s *FrameFileIndexSubsection) FrameFileIndexRecordFromFile(filename string) (*FrameFileIndexRecord, error) {
	for idx := range s.records {
		if strings.EqualFold(s.records[idx].Filename, filename) {
			return &s.records[idx], nil
		}
	}
	return nil, errdefs.Lookup("frame file %q not in frame file index", filename)
}
