// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package rpf

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
)

const (
	// HeaderTag is the name of the NITF extension carrying the RPF header.
	HeaderTag = "RPFHDR"
	// HeaderSize is the fixed size of the RPF header.
	HeaderSize = 48
)

// Header is the RPF header carried by the RPFHDR tag of the outer file header.
type Header struct {
	order binary.ByteOrder

	HeaderSectionLength     uint16
	FileName                string
	NewRepUpIndicator       byte
	GovSpecNumber           string
	GovSpecDate             string
	SecurityClassification  string
	SecurityCountryCode     string
	SecurityReleaseMarking  string
	LocationSectionLocation uint32
}

// NewHeader returns a header with the given byte order and default lengths.
func NewHeader(order binary.ByteOrder) *Header {
	return &Header{
		order:               order,
		HeaderSectionLength: HeaderSize,
	}
}

// ByteOrder returns the byte order announced by the header. Every section
// of the archive uses it.
func (h *Header) ByteOrder() binary.ByteOrder {
	if h.order == nil {
		return binary.BigEndian
	}
	return h.order
}

// SetByteOrder changes the byte order used when writing the archive.
func (h *Header) SetByteOrder(order binary.ByteOrder) {
	h.order = order
}

// Parse reads the header. The byte order is taken from the first byte.
func (h *Header) Parse(r io.Reader) error {
	buf, err := readRecord(r, HeaderSize, "rpf header")
	if err != nil {
		return err
	}
	order, err := ByteOrderFromIndicator(buf[0])
	if err != nil {
		return err
	}
	h.order = order

	d := newDecoder(buf[1:], order)
	h.HeaderSectionLength = d.uint16()
	h.FileName = d.string(12)
	h.NewRepUpIndicator = d.byte()
	h.GovSpecNumber = d.string(15)
	h.GovSpecDate = d.string(8)
	h.SecurityClassification = d.string(1)
	h.SecurityCountryCode = d.string(2)
	h.SecurityReleaseMarking = d.string(2)
	h.LocationSectionLocation = d.uint32()

	if h.HeaderSectionLength != HeaderSize {
		return errdefs.Malformed(nil, "rpf header declares length %d, want %d", h.HeaderSectionLength, HeaderSize)
	}
	return nil
}

// Write writes the header in its own byte order.
func (h *Header) Write(w io.Writer) error {
	buf, err := h.Bytes()
	if err != nil {
		return err
	}
	return writeRecord(w, buf, "rpf header")
}

// Bytes encodes the header, as stored in the RPFHDR tag.
func (h *Header) Bytes() ([]byte, error) {
	order := h.ByteOrder()
	e := newEncoder(HeaderSize, order)
	e.byte(indicatorFromByteOrder(order))
	e.uint16(HeaderSize)
	e.string(h.FileName, 12)
	e.byte(h.newRepUpIndicator())
	e.string(h.GovSpecNumber, 15)
	e.string(h.GovSpecDate, 8)
	e.string(h.SecurityClassification, 1)
	e.string(h.SecurityCountryCode, 2)
	e.string(h.SecurityReleaseMarking, 2)
	e.uint32(h.LocationSectionLocation)
	buf, err := e.bytes()
	if err != nil {
		return nil, errdefs.Malformed(err, "encode rpf header")
	}
	return buf, nil
}

func (h *Header) newRepUpIndicator() byte {
	if h.NewRepUpIndicator == 0 {
		return '0'
	}
	return h.NewRepUpIndicator
}

// ParseHeader decodes an RPF header from tag data.
func ParseHeader(data []byte) (*Header, error) {
	h := &Header{}
	if err := h.Parse(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return h, nil
}

// Clone returns a deep copy of the header.
func (h *Header) Clone() *Header {
	c := *h
	return &c
}
