// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package toc

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dragonflyoss/rpfify/pkg/nitf"
	"github.com/dragonflyoss/rpfify/pkg/rpf"
)

var fixtureTime = time.Date(2026, time.March, 4, 5, 6, 7, 0, time.UTC)

type fixtureFrame struct {
	dir   string
	name  string
	entry uint16
	row   uint16
	col   uint16
}

// Entry 0 is a 2x3 grid in N1 with three frames, entry 1 a 1x1 grid in N2.
var fixtureFrames = []fixtureFrame{
	{dir: "N1", name: "0A1B2C01.ON1", entry: 0, row: 0, col: 0},
	{dir: "N1", name: "0A1B2C02.ON1", entry: 0, row: 0, col: 2},
	{dir: "N1", name: "0A1B2C03.ON1", entry: 0, row: 1, col: 1},
	{dir: "N2", name: "0B000001.TP2", entry: 1, row: 0, col: 0},
}

func fixtureBoundaries() []rpf.BoundaryRectRecord {
	return []rpf.BoundaryRectRecord{
		{
			ProductDataType:      "CADRG",
			CompressionRatio:     "55:1",
			Scale:                "1:250K",
			Zone:                 "2",
			Producer:             "NIMA",
			UpperLeft:            rpf.LatLon{Lat: 39, Lon: -77},
			LowerLeft:            rpf.LatLon{Lat: 38, Lon: -77},
			UpperRight:           rpf.LatLon{Lat: 39, Lon: -75.5},
			LowerRight:           rpf.LatLon{Lat: 38, Lon: -75.5},
			VerticalResolution:   250,
			HorizontalResolution: 250,
			VerticalInterval:     0.5,
			HorizontalInterval:   0.5,
			FramesVertical:       2,
			FramesHorizontal:     3,
		},
		{
			ProductDataType:      "CADRG",
			CompressionRatio:     "55:1",
			Scale:                "1:500K",
			Zone:                 "2",
			Producer:             "NIMA",
			UpperLeft:            rpf.LatLon{Lat: 40, Lon: -78},
			LowerLeft:            rpf.LatLon{Lat: 39, Lon: -78},
			UpperRight:           rpf.LatLon{Lat: 40, Lon: -77},
			LowerRight:           rpf.LatLon{Lat: 39, Lon: -77},
			VerticalResolution:   500,
			HorizontalResolution: 500,
			VerticalInterval:     1,
			HorizontalInterval:   1,
			FramesVertical:       1,
			FramesHorizontal:     1,
		},
	}
}

type fixture struct {
	root    string
	rpfDir  string
	tocPath string
	frames  map[string]string
}

// newFixture lays out root/RPF/A.TOC indexing fixtureFrames stored below
// root/RPF.
func newFixture(t *testing.T, order binary.ByteOrder) *fixture {
	root := t.TempDir()
	rpfDir := filepath.Join(root, "RPF")
	frames := make(map[string]string)
	for _, f := range fixtureFrames {
		dir := filepath.Join(rpfDir, f.dir)
		require.NoError(t, os.MkdirAll(dir, 0755))
		path := filepath.Join(dir, f.name)
		require.NoError(t, os.WriteFile(path, []byte("frame data of "+f.name), 0644))
		frames[f.name] = path
	}

	tocPath := filepath.Join(rpfDir, "A.TOC")
	writeArchive(t, tocPath, order, fixtureBoundaries(), fixtureFrames)
	return &fixture{root: root, rpfDir: rpfDir, tocPath: tocPath, frames: frames}
}

func writeArchive(t *testing.T, path string, order binary.ByteOrder, boundaries []rpf.BoundaryRectRecord, frames []fixtureFrame) {
	offsets := make(map[string]uint32)
	var pathnames []rpf.PathnameRecord
	next := uint32(len(frames) * rpf.FrameFileIndexRecordSize)
	for _, f := range frames {
		if _, ok := offsets[f.dir]; ok {
			continue
		}
		p := rpf.PathnameRecord{Offset: next, Pathname: "./" + f.dir + "/"}
		offsets[f.dir] = next
		pathnames = append(pathnames, p)
		next += uint32(p.Size())
	}

	records := make([]rpf.FrameFileIndexRecord, len(frames))
	for idx, f := range frames {
		records[idx] = rpf.FrameFileIndexRecord{
			BoundaryRecNumber:      f.entry,
			LocationRowNumber:      f.row,
			LocationColNumber:      f.col,
			PathnameRecordOffset:   offsets[f.dir],
			Filename:               f.name,
			GeographicLocation:     "N38W77",
			SecurityClassification: "U",
			SecurityCountryCode:    "US",
		}
	}

	boundarySubheader := &rpf.BoundaryRectSectionSubheader{
		NumberOfEntries: uint16(len(boundaries)),
		RecordLength:    rpf.BoundaryRectRecordSize,
	}
	table := rpf.NewBoundaryRectTable(boundaries...)
	frameSubheader := &rpf.FrameFileIndexSectionSubheader{
		SecurityClassification:  "U",
		NumberOfIndexRecords:    uint32(len(records)),
		NumberOfPathnameRecords: uint16(len(pathnames)),
		IndexRecordLength:       rpf.FrameFileIndexRecordSize,
	}
	subsection := rpf.NewFrameFileIndexSubsection(records, pathnames)

	fileHeader := nitf.NewFileHeader(fixtureTime)
	fileHeader.StationID = "RPFSTN"
	fileHeader.Title = "CADRG TABLE OF CONTENTS"
	fileHeader.OriginatorName = "NGA"
	fileHeader.OriginatorPhone = "555-0100"

	rpfHeader := rpf.NewHeader(order)
	rpfHeader.FileName = "A.TOC"
	rpfHeader.GovSpecNumber = "MIL-C-89038"
	rpfHeader.GovSpecDate = "19941006"
	rpfHeader.SecurityClassification = "U"
	rpfHeader.SecurityCountryCode = "US"

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	tw := &tocWriter{
		w:          file,
		fileHeader: fileHeader,
		rpfHeader:  rpfHeader,
		body: []component{
			{id: rpf.ComponentBoundaryRectSectionSubheader, size: rpf.BoundaryRectSubheaderSize, write: boundarySubheader.Write},
			{id: rpf.ComponentBoundaryRectTable, size: uint32(len(boundaries) * rpf.BoundaryRectRecordSize), write: table.Write},
			{id: rpf.ComponentFrameFileIndexSectionSubheader, size: rpf.FrameFileIndexSubheaderSize, write: frameSubheader.Write},
			{id: rpf.ComponentFrameFileIndexSubsection, write: subsection.Write},
		},
	}
	_, err = tw.Write()
	require.NoError(t, err)
}

func writeManifest(t *testing.T, path string, framePaths ...string) {
	lines := []string{"-77.0,38.0|-75.5,39.0"}
	for _, p := range framePaths {
		lines = append(lines, p+"|-75.5,38.0|-75.5,39.0")
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}
