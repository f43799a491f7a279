// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package rpf

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
)

const (
	// BoundaryRectSubheaderSize is the size of the boundary rectangle section subheader.
	BoundaryRectSubheaderSize = 8
	// BoundaryRectRecordSize is the size of one boundary rectangle record.
	BoundaryRectRecordSize = 132
)

// BoundaryRectSectionSubheader describes the boundary rectangle table.
type BoundaryRectSectionSubheader struct {
	TableOffset     uint32
	NumberOfEntries uint16
	RecordLength    uint16
}

func (s *BoundaryRectSectionSubheader) SetNumberOfEntries(n uint16) {
	s.NumberOfEntries = n
}

func (s *BoundaryRectSectionSubheader) Parse(r io.Reader, order binary.ByteOrder) error {
	buf, err := readRecord(r, BoundaryRectSubheaderSize, "boundary rectangle subheader")
	if err != nil {
		return err
	}
	d := newDecoder(buf, order)
	s.TableOffset = d.uint32()
	s.NumberOfEntries = d.uint16()
	s.RecordLength = d.uint16()

	if s.NumberOfEntries > 0 && s.RecordLength != BoundaryRectRecordSize {
		return errdefs.Malformed(nil, "boundary rectangle record length %d, want %d", s.RecordLength, BoundaryRectRecordSize)
	}
	return nil
}

func (s *BoundaryRectSectionSubheader) Write(w io.Writer, order binary.ByteOrder) error {
	e := newEncoder(BoundaryRectSubheaderSize, order)
	e.uint32(s.TableOffset)
	e.uint16(s.NumberOfEntries)
	e.uint16(BoundaryRectRecordSize)
	buf, err := e.bytes()
	if err != nil {
		return errdefs.Malformed(err, "encode boundary rectangle subheader")
	}
	return writeRecord(w, buf, "boundary rectangle subheader")
}

// LatLon is a geographic position in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// BoundaryRectRecord holds the extent and frame grid of one product entry.
type BoundaryRectRecord struct {
	ProductDataType  string
	CompressionRatio string
	Scale            string
	Zone             string
	Producer         string

	UpperLeft  LatLon
	LowerLeft  LatLon
	UpperRight LatLon
	LowerRight LatLon

	VerticalResolution   float64
	HorizontalResolution float64
	VerticalInterval     float64
	HorizontalInterval   float64

	FramesVertical   uint32
	FramesHorizontal uint32
}

// Bounds returns the south, west, north and east extent of the corners.
func (r *BoundaryRectRecord) Bounds() (south, west, north, east float64) {
	south = math.Min(r.LowerLeft.Lat, r.LowerRight.Lat)
	north = math.Max(r.UpperLeft.Lat, r.UpperRight.Lat)
	west = math.Min(r.UpperLeft.Lon, r.LowerLeft.Lon)
	east = math.Max(r.UpperRight.Lon, r.LowerRight.Lon)
	return
}

// NumberOfFrames returns the number of addressable grid cells. Both
// dimensions are 32 bits wide so the product always fits in a uint64.
func (r *BoundaryRectRecord) NumberOfFrames() uint64 {
	return uint64(r.FramesVertical) * uint64(r.FramesHorizontal)
}

func (r *BoundaryRectRecord) Parse(rd io.Reader, order binary.ByteOrder) error {
	buf, err := readRecord(rd, BoundaryRectRecordSize, "boundary rectangle record")
	if err != nil {
		return err
	}
	d := newDecoder(buf, order)
	r.ProductDataType = d.string(5)
	r.CompressionRatio = d.string(5)
	r.Scale = d.string(12)
	r.Zone = d.string(1)
	r.Producer = d.string(5)
	r.UpperLeft = LatLon{Lat: d.float64(), Lon: d.float64()}
	r.LowerLeft = LatLon{Lat: d.float64(), Lon: d.float64()}
	r.UpperRight = LatLon{Lat: d.float64(), Lon: d.float64()}
	r.LowerRight = LatLon{Lat: d.float64(), Lon: d.float64()}
	r.VerticalResolution = d.float64()
	r.HorizontalResolution = d.float64()
	r.VerticalInterval = d.float64()
	r.HorizontalInterval = d.float64()
	r.FramesVertical = d.uint32()
	r.FramesHorizontal = d.uint32()
	return nil
}

func (r *BoundaryRectRecord) Write(w io.Writer, order binary.ByteOrder) error {
	e := newEncoder(BoundaryRectRecordSize, order)
	e.string(r.ProductDataType, 5)
	e.string(r.CompressionRatio, 5)
	e.string(r.Scale, 12)
	e.string(r.Zone, 1)
	e.string(r.Producer, 5)
	for _, corner := range []LatLon{r.UpperLeft, r.LowerLeft, r.UpperRight, r.LowerRight} {
		e.float64(corner.Lat)
		e.float64(corner.Lon)
	}
	e.float64(r.VerticalResolution)
	e.float64(r.HorizontalResolution)
	e.float64(r.VerticalInterval)
	e.float64(r.HorizontalInterval)
	e.uint32(r.FramesVertical)
	e.uint32(r.FramesHorizontal)
	buf, err := e.bytes()
	if err != nil {
		return errdefs.Malformed(err, "encode boundary rectangle record")
	}
	return writeRecord(w, buf, "boundary rectangle record")
}

// BoundaryRectTable holds one record per entry, in entry order.
type BoundaryRectTable struct {
	records []BoundaryRectRecord
}

// NewBoundaryRectTable returns a table holding the given records.
func NewBoundaryRectTable(records ...BoundaryRectRecord) *BoundaryRectTable {
	return &BoundaryRectTable{records: records}
}

// Parse reads n consecutive records.
func (t *BoundaryRectTable) Parse(r io.Reader, order binary.ByteOrder, n int) error {
	t.records = make([]BoundaryRectRecord, n)
	for idx := range t.records {
		if err := t.records[idx].Parse(r, order); err != nil {
			return err
		}
	}
	return nil
}

func (t *BoundaryRectTable) Write(w io.Writer, order binary.ByteOrder) error {
	for idx := range t.records {
		if err := t.records[idx].Write(w, order); err != nil {
			return err
		}
	}
	return nil
}

func (t *BoundaryRectTable) NumberOfEntries() int {
	return len(t.records)
}

// Entry returns the record at index.
func (t *BoundaryRectTable) Entry(index int) (*BoundaryRectRecord, error) {
	if index < 0 || index >= len(t.records) {
		return nil, errdefs.Lookup("boundary rectangle index %d out of range [0, %d)", index, len(t.records))
	}
	return &t.records[index], nil
}
