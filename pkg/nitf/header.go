// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package nitf reads and writes the NITF 2.0 file header wrapping an RPF
// table of contents. Numeric fields are fixed-width ASCII decimals; registered
// extensions (tags) live in the user defined and extended header data.
package nitf

import (
	"io"
	"strings"
	"time"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
)

const (
	FileProfileName = "NITF"
	FileVersion     = "02.00"

	downgradeEvent = "999998"
)

// Segment is the subheader and data length of one image, symbol, label,
// text, data extension or reserved extension segment.
type Segment struct {
	SubheaderLength int64
	Length          int64
}

// segment field widths, in NITF 2.0 order
var segmentWidths = [6][2]int{
	{6, 10}, // images
	{4, 6},  // symbols
	{4, 3},  // labels
	{4, 5},  // texts
	{4, 9},  // data extensions
	{4, 7},  // reserved extensions
}

// FileHeader is a NITF 2.0 file header.
type FileHeader struct {
	ComplexityLevel         string
	SystemType              string
	StationID               string
	DateTime                string
	Title                   string
	Classification          string
	ClassificationCode      string
	ControlAndHandling      string
	ReleasingInstructions   string
	ClassificationAuthority string
	SecurityControlNumber   string
	Downgrade               string
	DowngradingEvent        string
	CopyNumber              string
	NumberOfCopies          string
	Encryption              string
	OriginatorName          string
	OriginatorPhone         string

	FileLength   int64
	HeaderLength int64

	// Images, Symbols, Labels, Texts, DataExtensions, ReservedExtensions
	Segments [6][]Segment

	UserDefinedOverflow int
	UserDefined         []*Tag
	ExtendedOverflow    int
	Extended            []*Tag
}

// NewFileHeader returns a header with NITF 2.0 defaults and no segments.
func NewFileHeader(now time.Time) *FileHeader {
	return &FileHeader{
		ComplexityLevel: "01",
		SystemType:      "BF01",
		DateTime:        FormatDateTime(now),
		Classification:  "U",
		Encryption:      "0",
		CopyNumber:      "00000",
		NumberOfCopies:  "00000",
	}
}

// FormatDateTime renders t in the NITF 2.0 DDHHMMSSZMONYY form.
func FormatDateTime(t time.Time) string {
	return strings.ToUpper(t.UTC().Format("02150405ZJan06"))
}

// Tag returns the first extension named name, searching the extended header
// data before the user defined header data.
func (h *FileHeader) Tag(name string) (*Tag, bool) {
	for _, tags := range [][]*Tag{h.Extended, h.UserDefined} {
		for _, tag := range tags {
			if tag.Name == name {
				return tag, true
			}
		}
	}
	return nil, false
}

// SetTag replaces the extended header tag with the same name, or appends it.
func (h *FileHeader) SetTag(tag *Tag) {
	for idx, existing := range h.Extended {
		if existing.Name == tag.Name {
			h.Extended[idx] = tag
			return
		}
	}
	h.Extended = append(h.Extended, tag)
}

// Length returns the encoded size of the header.
func (h *FileHeader) Length() int64 {
	n := int64(4 + 5 + 2 + 4 + 10 + 14 + 80 + 1 + 40 + 40 + 40 + 20 + 20 + 6)
	if h.Downgrade == downgradeEvent {
		n += 40
	}
	n += 5 + 5 + 1 + 27 + 18 + 12 + 6
	for idx, segments := range h.Segments {
		n += 3 + int64(len(segments))*int64(segmentWidths[idx][0]+segmentWidths[idx][1])
	}
	n += 5 + tagAreaLength(h.UserDefined)
	n += 5 + tagAreaLength(h.Extended)
	return n
}

func tagAreaLength(tags []*Tag) int64 {
	if len(tags) == 0 {
		return 0
	}
	n := int64(3)
	for _, tag := range tags {
		n += tag.Size()
	}
	return n
}

// Clone returns a deep copy of the header.
func (h *FileHeader) Clone() *FileHeader {
	c := *h
	for idx := range h.Segments {
		c.Segments[idx] = append([]Segment(nil), h.Segments[idx]...)
	}
	c.UserDefined = cloneTags(h.UserDefined)
	c.Extended = cloneTags(h.Extended)
	return &c
}

func cloneTags(tags []*Tag) []*Tag {
	if tags == nil {
		return nil
	}
	cloned := make([]*Tag, 0, len(tags))
	for _, tag := range tags {
		cloned = append(cloned, tag.Clone())
	}
	return cloned
}

// Parse reads a file header from the start of r. Tag offsets are absolute
// positions within the stream.
func Parse(r io.Reader) (*FileHeader, error) {
	fr := &fieldReader{r: r}
	h := &FileHeader{}

	if profile := fr.raw(4); fr.err == nil && profile != FileProfileName {
		return nil, errdefs.Malformed(nil, "file profile %q, want %q", profile, FileProfileName)
	}
	if version := fr.raw(5); fr.err == nil && version != FileVersion {
		return nil, errdefs.Malformed(nil, "unsupported file version %q", version)
	}
	h.ComplexityLevel = fr.str(2)
	h.SystemType = fr.str(4)
	h.StationID = fr.str(10)
	h.DateTime = fr.str(14)
	h.Title = fr.str(80)
	h.Classification = fr.str(1)
	h.ClassificationCode = fr.str(40)
	h.ControlAndHandling = fr.str(40)
	h.ReleasingInstructions = fr.str(40)
	h.ClassificationAuthority = fr.str(20)
	h.SecurityControlNumber = fr.str(20)
	h.Downgrade = fr.str(6)
	if h.Downgrade == downgradeEvent {
		h.DowngradingEvent = fr.str(40)
	}
	h.CopyNumber = fr.str(5)
	h.NumberOfCopies = fr.str(5)
	h.Encryption = fr.str(1)
	h.OriginatorName = fr.str(27)
	h.OriginatorPhone = fr.str(18)
	h.FileLength = fr.num(12)
	h.HeaderLength = fr.num(6)

	for idx := range h.Segments {
		count := fr.num(3)
		if fr.err != nil {
			break
		}
		for i := int64(0); i < count; i++ {
			h.Segments[idx] = append(h.Segments[idx], Segment{
				SubheaderLength: fr.num(segmentWidths[idx][0]),
				Length:          fr.num(segmentWidths[idx][1]),
			})
		}
	}

	h.UserDefinedOverflow, h.UserDefined = fr.tagArea()
	h.ExtendedOverflow, h.Extended = fr.tagArea()

	if fr.err != nil {
		return nil, fr.err
	}
	if h.HeaderLength != fr.pos {
		return nil, errdefs.Malformed(nil, "header declares length %d, read %d bytes", h.HeaderLength, fr.pos)
	}
	return h, nil
}

// WriteTo writes the header, recomputing the header length and recording the
// absolute data offset of every tag.
func (h *FileHeader) WriteTo(w io.Writer) (int64, error) {
	h.HeaderLength = h.Length()
	fw := &fieldWriter{w: w}

	fw.raw(FileProfileName)
	fw.raw(FileVersion)
	fw.str(h.ComplexityLevel, 2)
	fw.str(h.SystemType, 4)
	fw.str(h.StationID, 10)
	fw.str(h.DateTime, 14)
	fw.str(h.Title, 80)
	fw.str(h.Classification, 1)
	fw.str(h.ClassificationCode, 40)
	fw.str(h.ControlAndHandling, 40)
	fw.str(h.ReleasingInstructions, 40)
	fw.str(h.ClassificationAuthority, 20)
	fw.str(h.SecurityControlNumber, 20)
	fw.str(h.Downgrade, 6)
	if h.Downgrade == downgradeEvent {
		fw.str(h.DowngradingEvent, 40)
	}
	fw.str(h.CopyNumber, 5)
	fw.str(h.NumberOfCopies, 5)
	fw.str(h.Encryption, 1)
	fw.str(h.OriginatorName, 27)
	fw.str(h.OriginatorPhone, 18)
	fw.num(h.FileLength, 12)
	fw.num(h.HeaderLength, 6)

	for idx, segments := range h.Segments {
		fw.num(int64(len(segments)), 3)
		for _, segment := range segments {
			fw.num(segment.SubheaderLength, segmentWidths[idx][0])
			fw.num(segment.Length, segmentWidths[idx][1])
		}
	}

	fw.tagArea(h.UserDefinedOverflow, h.UserDefined)
	fw.tagArea(h.ExtendedOverflow, h.Extended)

	if fw.err != nil {
		return fw.pos, fw.err
	}
	if fw.pos != h.HeaderLength {
		return fw.pos, errdefs.Malformed(nil, "wrote %d header bytes, computed %d", fw.pos, h.HeaderLength)
	}
	return fw.pos, nil
}
