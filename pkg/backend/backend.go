// Copyright 2020 Ant Group. All rights reserved.
// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// Backend publishes the files of a synthesized archive to an object storage
// such as:
// 1. oss: Aliyun object storage, using its SDK to transfer files.
// 2. s3: any S3 compatible object storage.
//
// Every object carries its sha256 digest and kind as user metadata, so a
// mirror can tell a table of contents from a frame and verify either.
type Backend interface {
	Upload(ctx context.Context, obj Object, forcePush bool) (*Descriptor, error)
	Finalize(cancel bool) error
	// Check reports whether the stored object carries the digest of desc.
	Check(ctx context.Context, desc *Descriptor) (bool, error)
	Type() Type
}

type Type = int

const (
	OssBackend Type = iota
	S3backend
)

// ObjectKind tells the table of contents of an archive from its frames.
type ObjectKind string

const (
	KindToc   ObjectKind = "toc"
	KindFrame ObjectKind = "frame"
)

const (
	// MediaTypeToc is the registered NITF media type; a table of contents is
	// a NITF file carrying an RPFHDR tag.
	MediaTypeToc   = "application/vnd.nitf"
	MediaTypeFrame = "application/octet-stream"

	metaDigest = "digest"
	metaKind   = "rpf-kind"
)

func (k ObjectKind) MediaType() string {
	if k == KindToc {
		return MediaTypeToc
	}
	return MediaTypeFrame
}

// Object is one file of an archive. ID is the slash separated path relative
// to the archive root.
type Object struct {
	ID   string
	Path string
	Size int64
}

func (o Object) Kind() ObjectKind {
	if strings.EqualFold(path.Ext(o.ID), ".toc") {
		return KindToc
	}
	return KindFrame
}

// Descriptor describes an uploaded object.
type Descriptor struct {
	ObjectID  string        `json:"object_id"`
	Kind      ObjectKind    `json:"kind"`
	MediaType string        `json:"media_type"`
	Digest    digest.Digest `json:"digest"`
	Size      int64         `json:"size"`
	URLs      []string      `json:"urls,omitempty"`
}

// metadata is the user metadata stored along the object.
func (d *Descriptor) metadata() map[string]string {
	return map[string]string{
		metaDigest: d.Digest.String(),
		metaKind:   string(d.Kind),
	}
}

// matches reports whether a stored digest metadata value is the digest of d.
// Objects uploaded without metadata never match.
func (d *Descriptor) matches(stored string) bool {
	if stored == "" {
		return false
	}
	dgst, err := digest.Parse(stored)
	if err != nil {
		return false
	}
	return dgst == d.Digest
}

// objectDesc digests the file content of an object.
func objectDesc(obj Object) (*Descriptor, error) {
	file, err := os.Open(obj.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open object file")
	}
	defer file.Close()

	dgst, err := digest.SHA256.FromReader(file)
	if err != nil {
		return nil, errors.Wrap(err, "digest object file")
	}
	kind := obj.Kind()
	return &Descriptor{
		ObjectID:  obj.ID,
		Kind:      kind,
		MediaType: kind.MediaType(),
		Digest:    dgst,
		Size:      obj.Size,
	}, nil
}

// NewBackend creates a backend from its JSON configuration. Archives are
// usually shipped on removable media, but rpfify can also publish them to an
// object storage for downstream mirrors.
func NewBackend(bt string, config []byte) (Backend, error) {
	switch bt {
	case "oss":
		return newOSSBackend(config)
	case "s3":
		return newS3Backend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type %s", bt)
	}
}
