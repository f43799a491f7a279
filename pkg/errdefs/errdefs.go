// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package errdefs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMissingTag errors when the outer file header carries no RPFHDR tag.
	ErrMissingTag = errors.New("missing RPFHDR tag")
	// ErrMalformedArchive errors when declared counts, offsets or lengths
	// disagree with the stream content.
	ErrMalformedArchive = errors.New("malformed archive")
	// ErrIO errors when a file can not be opened, read, written or created.
	ErrIO = errors.New("i/o failure")
	// ErrLookup errors when a frame file or table index has no record.
	ErrLookup = errors.New("lookup failed")
	// ErrNotFound errors when an object, such as the source TOC of a
	// manifest, can not be located.
	ErrNotFound = errors.New("not found")
	// ErrNoFrames errors when a manifest lists no frame file.
	ErrNoFrames = errors.New("no frames found")
)

// IsMissingTag returns true if the error is due to an absent RPFHDR tag
func IsMissingTag(err error) bool {
	return errors.Is(err, ErrMissingTag)
}

// IsMalformedArchive returns true if the error is due to inconsistent archive content
func IsMalformedArchive(err error) bool {
	return errors.Is(err, ErrMalformedArchive)
}

// IsIO returns true if the error is due to a file system failure
func IsIO(err error) bool {
	return errors.Is(err, ErrIO)
}

// IsLookup returns true if the error is due to a missing index record
func IsLookup(err error) bool {
	return errors.Is(err, ErrLookup)
}

// IsNotFound returns true if the error is due to an object not found
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNoFrames returns true if the error is due to an empty manifest
func IsNoFrames(err error) bool {
	return errors.Is(err, ErrNoFrames)
}

// Malformed marks err as a malformed archive failure, keeping err's message.
func Malformed(err error, format string, args ...interface{}) error {
	return mark(ErrMalformedArchive, err, format, args...)
}

// IO marks err as a file system failure, keeping err's message.
func IO(err error, format string, args ...interface{}) error {
	return mark(ErrIO, err, format, args...)
}

// Lookup returns an error marked as a failed lookup.
func Lookup(format string, args ...interface{}) error {
	return mark(ErrLookup, nil, format, args...)
}

// NotFound returns an error marked as not found.
func NotFound(format string, args ...interface{}) error {
	return mark(ErrNotFound, nil, format, args...)
}

type markedError struct {
	sentinel error
	cause    error
	msg      string
}

func (e *markedError) Error() string {
	if e.cause == nil {
		return e.msg + ": " + e.sentinel.Error()
	}
	return e.msg + ": " + e.sentinel.Error() + ": " + e.cause.Error()
}

func (e *markedError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.sentinel}
	}
	return []error{e.sentinel, e.cause}
}

func mark(sentinel, err error, format string, args ...interface{}) error {
	return &markedError{
		sentinel: sentinel,
		cause:    err,
		msg:      fmt.Sprintf(format, args...),
	}
}
