// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"hash/crc64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// objectStore is an in-memory object storage speaking just enough HTTP for
// path style PUT and HEAD requests. Stored objects keep their content type
// and the user metadata headers starting with metaPrefix.
type objectStore struct {
	mu         sync.Mutex
	metaPrefix string
	headers    map[string]http.Header
	puts       []string
	server     *httptest.Server
}

func newObjectStore(t *testing.T, metaPrefix string) *objectStore {
	s := &objectStore{metaPrefix: metaPrefix, headers: map[string]http.Header{}}
	s.server = httptest.NewServer(s)
	t.Cleanup(s.server.Close)
	return s
}

// host returns the address of the store without scheme.
func (s *objectStore) host(t *testing.T) string {
	u, err := url.Parse(s.server.URL)
	require.NoError(t, err)
	return u.Host
}

func (s *objectStore) header(path string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[path]
}

func (s *objectStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

func (s *objectStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		header := http.Header{}
		for key, values := range r.Header {
			if key == "Content-Type" || strings.HasPrefix(key, s.metaPrefix) {
				header[key] = values
			}
		}
		crc := strconv.FormatUint(crc64.Checksum(body, crc64.MakeTable(crc64.ECMA)), 10)
		header.Set("X-Oss-Hash-Crc64ecma", crc)
		s.headers[r.URL.Path] = header
		s.puts = append(s.puts, r.URL.Path)

		w.Header().Set("ETag", `"`+crc+`"`)
		w.Header().Set("X-Oss-Hash-Crc64ecma", crc)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		header, ok := s.headers[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		for key, values := range header {
			w.Header()[key] = values
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// writeObjects writes an archive with one frame and one table of contents.
func writeObjects(t *testing.T) (frame, toc Object) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "N1"), 0755))
	framePath := filepath.Join(dir, "N1", "0A1B2C01.ON1")
	require.NoError(t, os.WriteFile(framePath, []byte("frame 1"), 0644))
	tocPath := filepath.Join(dir, "a.toc")
	require.NoError(t, os.WriteFile(tocPath, []byte("toc"), 0644))
	return Object{ID: "N1/0A1B2C01.ON1", Path: framePath, Size: 7}, Object{ID: "a.toc", Path: tocPath, Size: 3}
}
