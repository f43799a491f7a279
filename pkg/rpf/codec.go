// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package rpf implements the fixed-layout records of a Raster Product Format
// table of contents: the RPF header, the location section, the boundary
// rectangle section and the frame file index section.
//
// Every record reads exactly its declared size from the stream and writes
// exactly that many bytes back. Multi-byte integers and floats follow the byte
// order announced by the first byte of the RPF header; character fields are
// space padded on write and trimmed on read.
package rpf

import (
	"encoding/binary"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
)

const (
	bigEndianIndicator    byte = 0x00
	littleEndianIndicator byte = 0xff
)

// ByteOrderFromIndicator maps the first byte of an RPF header to a byte order.
func ByteOrderFromIndicator(b byte) (binary.ByteOrder, error) {
	switch b {
	case bigEndianIndicator:
		return binary.BigEndian, nil
	case littleEndianIndicator:
		return binary.LittleEndian, nil
	default:
		return nil, errdefs.Malformed(nil, "invalid byte order indicator 0x%02x", b)
	}
}

func indicatorFromByteOrder(order binary.ByteOrder) byte {
	if order == binary.LittleEndian {
		return littleEndianIndicator
	}
	return bigEndianIndicator
}

// readRecord fills a buffer of exactly size bytes from r. A short stream is a
// malformed archive.
func readRecord(r io.Reader, size int, name string) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errdefs.Malformed(io.ErrUnexpectedEOF, "truncated %s, want %d bytes", name, size)
		}
		return nil, errdefs.IO(err, "read %s", name)
	}
	return buf, nil
}

func writeRecord(w io.Writer, buf []byte, name string) error {
	if _, err := w.Write(buf); err != nil {
		return errdefs.IO(err, "write %s", name)
	}
	return nil
}

// decoder walks a record buffer field by field.
type decoder struct {
	buf   []byte
	off   int
	order binary.ByteOrder
}

func newDecoder(buf []byte, order binary.ByteOrder) *decoder {
	return &decoder{buf: buf, order: order}
}

func (d *decoder) byte() byte {
	b := d.buf[d.off]
	d.off++
	return b
}

func (d *decoder) uint16() uint16 {
	v := d.order.Uint16(d.buf[d.off:])
	d.off += 2
	return v
}

func (d *decoder) uint32() uint32 {
	v := d.order.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) float64() float64 {
	v := math.Float64frombits(d.order.Uint64(d.buf[d.off:]))
	d.off += 8
	return v
}

func (d *decoder) string(n int) string {
	s := string(d.buf[d.off : d.off+n])
	d.off += n
	return strings.TrimRight(strings.TrimLeft(s, " "), " \x00")
}

// encoder fills a record buffer field by field.
type encoder struct {
	buf   []byte
	off   int
	order binary.ByteOrder
	err   error
}

func newEncoder(size int, order binary.ByteOrder) *encoder {
	return &encoder{buf: make([]byte, size), order: order}
}

func (e *encoder) byte(b byte) {
	e.buf[e.off] = b
	e.off++
}

func (e *encoder) uint16(v uint16) {
	e.order.PutUint16(e.buf[e.off:], v)
	e.off += 2
}

func (e *encoder) uint32(v uint32) {
	e.order.PutUint32(e.buf[e.off:], v)
	e.off += 4
}

func (e *encoder) float64(v float64) {
	e.order.PutUint64(e.buf[e.off:], math.Float64bits(v))
	e.off += 8
}

func (e *encoder) string(s string, n int) {
	if len(s) > n && e.err == nil {
		e.err = errors.Errorf("field value %q longer than %d bytes", s, n)
	}
	copy(e.buf[e.off:e.off+n], padRight(s, n))
	e.off += n
}

func (e *encoder) bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}
