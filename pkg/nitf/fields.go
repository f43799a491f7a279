// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package nitf

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
)

// fieldReader reads fixed-width ASCII fields and counts consumed bytes. The
// first failure sticks; later reads return zero values.
type fieldReader struct {
	r   io.Reader
	pos int64
	err error
}

func (fr *fieldReader) raw(n int) string {
	if fr.err != nil {
		return ""
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			fr.err = errdefs.Malformed(io.ErrUnexpectedEOF, "truncated file header at offset %d", fr.pos)
		} else {
			fr.err = errdefs.IO(err, "read file header")
		}
		return ""
	}
	fr.pos += int64(n)
	return string(buf)
}

func (fr *fieldReader) str(n int) string {
	return strings.TrimSpace(fr.raw(n))
}

func (fr *fieldReader) num(n int) int64 {
	start := fr.pos
	s := fr.str(n)
	if fr.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		fr.err = errdefs.Malformed(err, "invalid numeric field %q at offset %d", s, start)
		return 0
	}
	return v
}

// tagArea reads a length-prefixed user defined or extended header area.
func (fr *fieldReader) tagArea() (int, []*Tag) {
	length := fr.num(5)
	if fr.err != nil || length == 0 {
		return 0, nil
	}
	if length < 3 {
		fr.err = errdefs.Malformed(nil, "tag area length %d shorter than its overflow field", length)
		return 0, nil
	}
	overflow := int(fr.num(3))
	end := fr.pos + length - 3

	var tags []*Tag
	for fr.err == nil && fr.pos < end {
		if end-fr.pos < tagPrefixSize {
			fr.err = errdefs.Malformed(nil, "trailing %d bytes in tag area", end-fr.pos)
			break
		}
		name := fr.str(6)
		size := fr.num(5)
		if fr.err != nil {
			break
		}
		if fr.pos+size > end {
			fr.err = errdefs.Malformed(nil, "tag %s overruns its area", name)
			break
		}
		offset := fr.pos
		data := fr.raw(int(size))
		tags = append(tags, &Tag{Name: name, Data: []byte(data), Offset: offset})
	}
	return overflow, tags
}

// fieldWriter writes fixed-width ASCII fields and counts written bytes. The
// first failure sticks.
type fieldWriter struct {
	w   io.Writer
	pos int64
	err error
}

func (fw *fieldWriter) raw(s string) {
	if fw.err != nil {
		return
	}
	n, err := io.WriteString(fw.w, s)
	fw.pos += int64(n)
	if err != nil {
		fw.err = errdefs.IO(err, "write file header")
	}
}

func (fw *fieldWriter) str(s string, n int) {
	if len(s) > n {
		if fw.err == nil {
			fw.err = errdefs.Malformed(nil, "field value %q longer than %d bytes", s, n)
		}
		return
	}
	fw.raw(s + strings.Repeat(" ", n-len(s)))
}

func (fw *fieldWriter) num(v int64, n int) {
	s := fmt.Sprintf("%0*d", n, v)
	if v < 0 || len(s) > n {
		if fw.err == nil {
			fw.err = errdefs.Malformed(nil, "numeric value %d does not fit %d digits", v, n)
		}
		return
	}
	fw.raw(s)
}

func (fw *fieldWriter) tagArea(overflow int, tags []*Tag) {
	length := tagAreaLength(tags)
	fw.num(length, 5)
	if length == 0 {
		return
	}
	fw.num(int64(overflow), 3)
	for _, tag := range tags {
		fw.str(tag.Name, 6)
		fw.num(int64(len(tag.Data)), 5)
		tag.Offset = fw.pos
		fw.raw(string(tag.Data))
	}
}
