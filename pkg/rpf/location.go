// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package rpf

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
)

// ComponentID identifies a section of an RPF file in the location table.
type ComponentID uint16

const (
	ComponentHeaderSection                  ComponentID = 128
	ComponentLocationSection                ComponentID = 129
	ComponentCoverageSection                ComponentID = 130
	ComponentCompressionSection             ComponentID = 131
	ComponentCompressionLookupSubsection    ComponentID = 132
	ComponentCompressionParameterSubsection ComponentID = 133
	ComponentColorGrayscaleSectionSubheader ComponentID = 134
	ComponentColormapSubsection             ComponentID = 135
	ComponentImageDescriptionSubheader      ComponentID = 136
	ComponentImageDisplayParametersSubhdr   ComponentID = 137
	ComponentMaskSubsection                 ComponentID = 138
	ComponentColorConverterSubsection       ComponentID = 139
	ComponentSpatialDataSubsection          ComponentID = 140
	ComponentAttributeSectionSubheader      ComponentID = 141
	ComponentAttributeSubsection            ComponentID = 142
	ComponentExplicitArealCoverageTable     ComponentID = 143
	ComponentRelatedImagesSectionSubheader  ComponentID = 144
	ComponentRelatedImagesSubsection        ComponentID = 145
	ComponentReplaceUpdateSectionSubheader  ComponentID = 146
	ComponentReplaceUpdateTable             ComponentID = 147
	ComponentBoundaryRectSectionSubheader   ComponentID = 148
	ComponentBoundaryRectTable              ComponentID = 149
	ComponentFrameFileIndexSectionSubheader ComponentID = 150
	ComponentFrameFileIndexSubsection       ComponentID = 151
	ComponentColorTableIndexSectionSubhdr   ComponentID = 152
	ComponentColorTableIndexRecord          ComponentID = 153
)

var componentNames = map[ComponentID]string{
	ComponentHeaderSection:                  "header section",
	ComponentLocationSection:                "location section",
	ComponentCoverageSection:                "coverage section",
	ComponentCompressionSection:             "compression section",
	ComponentCompressionLookupSubsection:    "compression lookup subsection",
	ComponentCompressionParameterSubsection: "compression parameter subsection",
	ComponentColorGrayscaleSectionSubheader: "color/grayscale section subheader",
	ComponentColormapSubsection:             "colormap subsection",
	ComponentImageDescriptionSubheader:      "image description subheader",
	ComponentImageDisplayParametersSubhdr:   "image display parameters subheader",
	ComponentMaskSubsection:                 "mask subsection",
	ComponentColorConverterSubsection:       "color converter subsection",
	ComponentSpatialDataSubsection:          "spatial data subsection",
	ComponentAttributeSectionSubheader:      "attribute section subheader",
	ComponentAttributeSubsection:            "attribute subsection",
	ComponentExplicitArealCoverageTable:     "explicit areal coverage table",
	ComponentRelatedImagesSectionSubheader:  "related images section subheader",
	ComponentRelatedImagesSubsection:        "related images subsection",
	ComponentReplaceUpdateSectionSubheader:  "replace/update section subheader",
	ComponentReplaceUpdateTable:             "replace/update table",
	ComponentBoundaryRectSectionSubheader:   "boundary rectangle section subheader",
	ComponentBoundaryRectTable:              "boundary rectangle table",
	ComponentFrameFileIndexSectionSubheader: "frame file index section subheader",
	ComponentFrameFileIndexSubsection:       "frame file index subsection",
	ComponentColorTableIndexSectionSubhdr:   "color table index section subheader",
	ComponentColorTableIndexRecord:          "color table index record",
}

func (id ComponentID) String() string {
	if name, ok := componentNames[id]; ok {
		return name
	}
	return fmt.Sprintf("component %d", uint16(id))
}

const (
	// LocationSubheaderSize is the size of the location section subheader.
	LocationSubheaderSize = 14
	// ComponentLocationRecordSize is the size of one location table record.
	ComponentLocationRecordSize = 10
)

// ComponentLocationRecord gives the absolute offset and length of a component.
type ComponentLocationRecord struct {
	ComponentID       ComponentID
	ComponentLength   uint32
	ComponentLocation uint32
}

// End returns the offset of the first byte after the component.
func (r ComponentLocationRecord) End() uint32 {
	return r.ComponentLocation + r.ComponentLength
}

// LocationSection is the directory of every other component of the file.
// Record order is the on-disk order.
type LocationSection struct {
	LocationSectionLength            uint16
	LocationTableOffset              uint32
	NumberOfComponentLocationRecords uint16
	LocationRecordLength             uint16
	ComponentAggregateLength         uint32

	records []ComponentLocationRecord
}

// NewLocationSection returns an empty section ready for synthesis.
func NewLocationSection() *LocationSection {
	return &LocationSection{
		LocationSectionLength: LocationSubheaderSize,
		LocationTableOffset:   LocationSubheaderSize,
		LocationRecordLength:  ComponentLocationRecordSize,
	}
}

// AddComponentRecord appends a record. Records are written in insertion order.
func (s *LocationSection) AddComponentRecord(record ComponentLocationRecord) {
	s.records = append(s.records, record)
}

// LocationRecordList returns the records. The slice aliases the section so
// callers can patch lengths once a component has been streamed.
func (s *LocationSection) LocationRecordList() []ComponentLocationRecord {
	return s.records
}

// ComponentRecord returns the record of the given component.
func (s *LocationSection) ComponentRecord(id ComponentID) (*ComponentLocationRecord, bool) {
	for idx := range s.records {
		if s.records[idx].ComponentID == id {
			return &s.records[idx], true
		}
	}
	return nil, false
}

func (s *LocationSection) SetComponentAggregateLength(n uint32) {
	s.ComponentAggregateLength = n
}

func (s *LocationSection) SetLocationTableOffset(n uint32) {
	s.LocationTableOffset = n
}

func (s *LocationSection) SetNumberOfComponentLocationRecords(n uint16) {
	s.NumberOfComponentLocationRecords = n
}

// Size returns the number of bytes Write produces.
func (s *LocationSection) Size() int {
	return int(s.LocationTableOffset) + len(s.records)*ComponentLocationRecordSize
}

// Parse reads the subheader and the declared number of records. The reader
// must be positioned at the start of the location section.
func (s *LocationSection) Parse(r io.Reader, order binary.ByteOrder) error {
	buf, err := readRecord(r, LocationSubheaderSize, "location section subheader")
	if err != nil {
		return err
	}
	d := newDecoder(buf, order)
	s.LocationSectionLength = d.uint16()
	s.LocationTableOffset = d.uint32()
	s.NumberOfComponentLocationRecords = d.uint16()
	s.LocationRecordLength = d.uint16()
	s.ComponentAggregateLength = d.uint32()

	if s.LocationRecordLength != ComponentLocationRecordSize {
		return errdefs.Malformed(nil, "location record length %d, want %d", s.LocationRecordLength, ComponentLocationRecordSize)
	}
	if s.LocationTableOffset < LocationSubheaderSize {
		return errdefs.Malformed(nil, "location table offset %d inside subheader", s.LocationTableOffset)
	}
	if skip := int64(s.LocationTableOffset) - LocationSubheaderSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return errdefs.Malformed(err, "skip to location table")
		}
	}

	s.records = make([]ComponentLocationRecord, 0, s.NumberOfComponentLocationRecords)
	for idx := 0; idx < int(s.NumberOfComponentLocationRecords); idx++ {
		buf, err := readRecord(r, ComponentLocationRecordSize, "component location record")
		if err != nil {
			if errdefs.IsMalformedArchive(err) {
				return errdefs.Malformed(nil, "location table declares %d records, found %d",
					s.NumberOfComponentLocationRecords, idx)
			}
			return err
		}
		d := newDecoder(buf, order)
		s.records = append(s.records, ComponentLocationRecord{
			ComponentID:       ComponentID(d.uint16()),
			ComponentLength:   d.uint32(),
			ComponentLocation: d.uint32(),
		})
	}
	return nil
}

// Write writes the subheader followed by the records.
func (s *LocationSection) Write(w io.Writer, order binary.ByteOrder) error {
	if int(s.NumberOfComponentLocationRecords) != len(s.records) {
		return errdefs.Malformed(nil, "location section declares %d records, holds %d",
			s.NumberOfComponentLocationRecords, len(s.records))
	}
	if s.LocationTableOffset < LocationSubheaderSize {
		return errdefs.Malformed(nil, "location table offset %d inside subheader", s.LocationTableOffset)
	}

	e := newEncoder(s.Size(), order)
	e.uint16(s.LocationSectionLength)
	e.uint32(s.LocationTableOffset)
	e.uint16(s.NumberOfComponentLocationRecords)
	e.uint16(ComponentLocationRecordSize)
	e.uint32(s.ComponentAggregateLength)
	e.off = int(s.LocationTableOffset)
	for _, record := range s.records {
		e.uint16(uint16(record.ComponentID))
		e.uint32(record.ComponentLength)
		e.uint32(record.ComponentLocation)
	}
	buf, err := e.bytes()
	if err != nil {
		return err
	}
	return writeRecord(w, buf, "location section")
}
