// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

func TestObjectDesc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0A1B2C01.ON1")
	require.NoError(t, os.WriteFile(path, []byte("frame data"), 0644))

	desc, err := objectDesc(Object{ID: "N1/0A1B2C01.ON1", Path: path, Size: 10})
	require.NoError(t, err)
	require.Equal(t, "N1/0A1B2C01.ON1", desc.ObjectID)
	require.Equal(t, int64(10), desc.Size)
	require.Equal(t, digest.FromString("frame data"), desc.Digest)
	require.Equal(t, KindFrame, desc.Kind)
	require.Equal(t, MediaTypeFrame, desc.MediaType)
	require.Empty(t, desc.URLs)
	require.Equal(t, map[string]string{
		"digest":   digest.FromString("frame data").String(),
		"rpf-kind": "frame",
	}, desc.metadata())

	desc, err = objectDesc(Object{ID: "missing", Path: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "open object file")
	require.Nil(t, desc)
}

func TestObjectKind(t *testing.T) {
	for id, kind := range map[string]ObjectKind{
		"a.toc":           KindToc,
		"A.TOC":           KindToc,
		"sub/b.Toc":       KindToc,
		"N1/0A1B2C01.ON1": KindFrame,
		"N2/0B000001.TP2": KindFrame,
		"toc":             KindFrame,
	} {
		require.Equal(t, kind, Object{ID: id}.Kind(), id)
	}
	require.Equal(t, "application/vnd.nitf", KindToc.MediaType())
	require.Equal(t, "application/octet-stream", KindFrame.MediaType())
}

func TestDescriptorMatches(t *testing.T) {
	desc := &Descriptor{ObjectID: "a.toc", Digest: digest.FromString("toc")}
	require.True(t, desc.matches(digest.FromString("toc").String()))
	require.False(t, desc.matches(digest.FromString("old toc").String()))
	require.False(t, desc.matches(""))
	require.False(t, desc.matches("not a digest"))
}

func TestNewBackend(t *testing.T) {
	ossConfigJSON := `
	{
		"bucket_name": "test",
		"endpoint": "region.oss.com",
		"access_key_id": "testAK",
		"access_key_secret": "testSK",
		"object_prefix": "charts/"
	}`
	require.True(t, json.Valid([]byte(ossConfigJSON)))
	backend, err := NewBackend("oss", []byte(ossConfigJSON))
	require.NoError(t, err)
	require.Equal(t, OssBackend, backend.Type())

	s3ConfigJSON := `
	{
		"bucket_name": "test",
		"endpoint": "s3.amazonaws.com",
		"access_key_id": "testAK",
		"access_key_secret": "testSK",
		"object_prefix": "charts/",
		"scheme": "https",
		"region": "region1"
	}`
	require.True(t, json.Valid([]byte(s3ConfigJSON)))
	backend, err = NewBackend("s3", []byte(s3ConfigJSON))
	require.NoError(t, err)
	require.Equal(t, S3backend, backend.Type())

	backend, err = NewBackend("registry", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported backend type")
	require.Nil(t, backend)
}
