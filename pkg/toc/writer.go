// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package toc

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
	"github.com/dragonflyoss/rpfify/pkg/nitf"
	"github.com/dragonflyoss/rpfify/pkg/rpf"
)

// component is one body section of an archive, following the location
// section on disk.
type component struct {
	id rpf.ComponentID
	// size is the encoded length, 0 when it is only known once written. Only
	// the last component may leave it unknown.
	size  uint32
	write func(w io.Writer, order binary.ByteOrder) error
}

// tocWriter writes an archive to a seekable stream in two phases. The layout
// phase writes the file header to learn where the location section starts and
// derives every component location from the sizes. The body is then written
// once, checking each component lands at its location, and the file header
// and location section are patched in place with the final lengths.
type tocWriter struct {
	w          io.WriteSeeker
	fileHeader *nitf.FileHeader
	rpfHeader  *rpf.Header
	body       []component

	location *rpf.LocationSection
}

// Write lays out, writes and patches the archive. It returns the file length.
func (tw *tocWriter) Write() (int64, error) {
	if err := tw.layout(); err != nil {
		return 0, err
	}
	end, err := tw.writeBody()
	if err != nil {
		return 0, err
	}
	if err := tw.patch(end); err != nil {
		return 0, err
	}
	return end, nil
}

// writeHeader writes the file header at the start of the stream, carrying the
// current RPF header as its RPFHDR tag.
func (tw *tocWriter) writeHeader() (length, tagOffset int64, err error) {
	data, err := tw.rpfHeader.Bytes()
	if err != nil {
		return 0, 0, err
	}
	tag := nitf.NewTag(rpf.HeaderTag, data)
	tw.fileHeader.SetTag(tag)

	if _, err := tw.w.Seek(0, io.SeekStart); err != nil {
		return 0, 0, errdefs.IO(err, "seek to file header")
	}
	length, err = tw.fileHeader.WriteTo(tw.w)
	if err != nil {
		return 0, 0, errors.Wrap(err, "write file header")
	}
	return length, tag.Offset, nil
}

func (tw *tocWriter) layout() error {
	for idx, c := range tw.body {
		if c.size == 0 && idx != len(tw.body)-1 {
			return errdefs.Malformed(nil, "%s has no size but is followed by %s", c.id, tw.body[idx+1].id)
		}
	}

	tw.rpfHeader.LocationSectionLocation = 0
	headerLength, tagOffset, err := tw.writeHeader()
	if err != nil {
		return err
	}

	numRecords := 2 + len(tw.body)
	locationSize := uint32(rpf.LocationSubheaderSize + numRecords*rpf.ComponentLocationRecordSize)

	location := rpf.NewLocationSection()
	location.LocationSectionLength = uint16(locationSize)
	location.AddComponentRecord(rpf.ComponentLocationRecord{
		ComponentID:       rpf.ComponentHeaderSection,
		ComponentLength:   rpf.HeaderSize,
		ComponentLocation: uint32(tagOffset),
	})
	next := uint32(headerLength)
	location.AddComponentRecord(rpf.ComponentLocationRecord{
		ComponentID:       rpf.ComponentLocationSection,
		ComponentLength:   locationSize,
		ComponentLocation: next,
	})
	next += locationSize
	for _, c := range tw.body {
		location.AddComponentRecord(rpf.ComponentLocationRecord{
			ComponentID:       c.id,
			ComponentLength:   c.size,
			ComponentLocation: next,
		})
		next += c.size
	}
	location.SetNumberOfComponentLocationRecords(uint16(numRecords))

	tw.location = location
	tw.rpfHeader.LocationSectionLocation = uint32(headerLength)
	return nil
}

func (tw *tocWriter) position() (int64, error) {
	pos, err := tw.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errdefs.IO(err, "locate write position")
	}
	return pos, nil
}

func (tw *tocWriter) writeBody() (int64, error) {
	headerLength, _, err := tw.writeHeader()
	if err != nil {
		return 0, err
	}
	if headerLength != int64(tw.rpfHeader.LocationSectionLocation) {
		return 0, errdefs.Malformed(nil, "file header length changed from %d to %d",
			tw.rpfHeader.LocationSectionLocation, headerLength)
	}

	order := tw.rpfHeader.ByteOrder()
	if err := tw.location.Write(tw.w, order); err != nil {
		return 0, errors.Wrap(err, "write location section")
	}

	records := tw.location.LocationRecordList()
	for idx, c := range tw.body {
		record := &records[idx+2]
		start, err := tw.position()
		if err != nil {
			return 0, err
		}
		if start != int64(record.ComponentLocation) {
			return 0, errdefs.Malformed(nil, "%s starts at %d, located at %d", c.id, start, record.ComponentLocation)
		}
		if err := c.write(tw.w, order); err != nil {
			return 0, errors.Wrapf(err, "write %s", c.id)
		}
		end, err := tw.position()
		if err != nil {
			return 0, err
		}
		written := uint32(end - start)
		if c.size == 0 {
			record.ComponentLength = written
		} else if written != c.size {
			return 0, errdefs.Malformed(nil, "%s is %d bytes, laid out as %d", c.id, written, c.size)
		}
	}
	return tw.position()
}

func (tw *tocWriter) patch(end int64) error {
	tw.location.SetComponentAggregateLength(uint32(end) - tw.rpfHeader.LocationSectionLocation)
	tw.fileHeader.FileLength = end

	if _, _, err := tw.writeHeader(); err != nil {
		return err
	}
	if err := tw.location.Write(tw.w, tw.rpfHeader.ByteOrder()); err != nil {
		return errors.Wrap(err, "patch location section")
	}
	if _, err := tw.w.Seek(end, io.SeekStart); err != nil {
		return errdefs.IO(err, "seek to end of file")
	}
	return nil
}
