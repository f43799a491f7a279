// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package nitf

const tagPrefixSize = 6 + 5

// Tag is a registered extension: a 6 character name, a 5 digit length and
// the data. Offset is the absolute position of Data in the file, known once
// the header has been parsed or written.
type Tag struct {
	Name   string
	Data   []byte
	Offset int64
}

// NewTag returns a tag holding a copy of data.
func NewTag(name string, data []byte) *Tag {
	return &Tag{Name: name, Data: append([]byte(nil), data...)}
}

// Size returns the encoded size of the tag.
func (t *Tag) Size() int64 {
	return tagPrefixSize + int64(len(t.Data))
}

// Clone returns a deep copy of the tag.
func (t *Tag) Clone() *Tag {
	c := *t
	c.Data = append([]byte(nil), t.Data...)
	return &c
}
