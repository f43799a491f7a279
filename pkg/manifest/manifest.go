// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package manifest reads the dot-RPF manifest listing frame files to pack
// into a new table of contents.
//
// The first line holds the overall bounding rectangle; every following line
// describes one frame:
//
//	<frame-file-path>|<lower-right-lon>,<lower-right-lat>|<upper-right-lon>,<upper-right-lat>
//
// Only the path before the first '|' is interpreted.
package manifest

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
	"github.com/dragonflyoss/rpfify/pkg/utils"
)

// SourceTocNames are the table of contents names probed next to frames.
var SourceTocNames = []string{"a.toc", "A.TOC"}

// Frame is one frame line of a manifest.
type Frame struct {
	Path   string
	Extent string
}

// Filename returns the base name of the frame file.
func (f Frame) Filename() string {
	return filepath.Base(f.Path)
}

// Dir returns the directory holding the frame file.
func (f Frame) Dir() string {
	return filepath.Dir(f.Path)
}

// Manifest is a parsed dot-RPF file.
type Manifest struct {
	BoundingRect string
	Frames       []Frame
}

// Parse reads the manifest at path.
func Parse(path string) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errdefs.IO(err, "open manifest %s", path)
	}
	defer file.Close()

	m, err := Read(file)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Read parses a manifest from r. Blank lines are skipped.
func Read(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	haveBoundingRect := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !haveBoundingRect {
			m.BoundingRect = line
			haveBoundingRect = true
			continue
		}
		framePath, extent, _ := strings.Cut(line, "|")
		framePath = strings.TrimSpace(framePath)
		if framePath == "" {
			return nil, errdefs.Malformed(nil, "manifest line %q has no frame path", line)
		}
		m.Frames = append(m.Frames, Frame{Path: framePath, Extent: extent})
	}
	if err := scanner.Err(); err != nil {
		return nil, errdefs.IO(err, "read manifest")
	}
	if !haveBoundingRect {
		return nil, errdefs.Malformed(nil, "manifest has no bounding rectangle line")
	}
	return m, nil
}

// FindSourceToc walks up from a frame file looking for the table of contents
// it was indexed by: the frame's directory first, then its parent.
func FindSourceToc(framePath string) (string, error) {
	dir := filepath.Dir(framePath)
	for _, candidateDir := range []string{dir, filepath.Dir(dir)} {
		for _, name := range SourceTocNames {
			candidate := filepath.Join(candidateDir, name)
			if utils.IsPathExists(candidate) {
				return candidate, nil
			}
		}
	}
	return "", errdefs.NotFound("no %s near frame %s", strings.Join(SourceTocNames, " or "), framePath)
}
