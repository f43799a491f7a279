// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package toc

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
	"github.com/dragonflyoss/rpfify/pkg/manifest"
	"github.com/dragonflyoss/rpfify/pkg/metrics"
	"github.com/dragonflyoss/rpfify/pkg/nitf"
	"github.com/dragonflyoss/rpfify/pkg/rpf"
	"github.com/dragonflyoss/rpfify/pkg/utils"
)

// DefaultTocName is the name of a synthesized table of contents.
const DefaultTocName = "a.toc"

type BuilderOpt struct {
	Logger *logrus.Entry
	// Now stamps the new file header. Defaults to time.Now.
	Now func() time.Time
	// VerifyCopies compares the digests of every frame and its copy.
	VerifyCopies bool
	// TocName overrides DefaultTocName.
	TocName string
}

// Builder synthesizes a single entry table of contents from a manifest,
// using the table of contents indexing the manifest's frames as template.
type Builder struct {
	logger       *logrus.Entry
	now          func() time.Time
	verifyCopies bool
	tocName      string
}

// BuildResult describes a committed archive.
type BuildResult struct {
	TocPath      string
	SourceToc    string
	FrameDir     string
	FramesCopied int
	BytesCopied  int64
	FileLength   int64
	Components   []rpf.ComponentLocationRecord
}

func NewBuilder(opt BuilderOpt) *Builder {
	b := &Builder{
		logger:       opt.Logger,
		now:          opt.Now,
		verifyCopies: opt.VerifyCopies,
		tocName:      opt.TocName,
	}
	if b.logger == nil {
		b.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.tocName == "" {
		b.tocName = DefaultTocName
	}
	return b
}

// plan is everything needed to write the archive, gathered from the manifest
// and the source table of contents before any output exists.
type plan struct {
	sourcePath string
	source     *Toc
	boundary   rpf.BoundaryRectRecord
	frames     []plannedFrame
	subdir     string
}

type plannedFrame struct {
	src    string
	record rpf.FrameFileIndexRecord
}

// CreateTocAndCopyFrames writes outputDir/a.toc indexing the frames listed
// by the manifest and copies the frames below outputDir. The table of
// contents is staged under a temporary name and renamed once every frame has
// been copied.
func (b *Builder) CreateTocAndCopyFrames(manifestPath, outputDir string) (*BuildResult, error) {
	start := time.Now()
	logger := b.logger.WithField("manifest", manifestPath)

	result, err := b.createTocAndCopyFrames(manifestPath, outputDir, logger)
	metrics.TocCreated(err, start)
	if err != nil {
		logger.WithError(err).Error("failed to create table of contents")
		return nil, err
	}

	logger.Infof("created %s with %d frames (%s) in %s",
		result.TocPath, result.FramesCopied, humanize.IBytes(uint64(result.BytesCopied)), time.Since(start))
	return result, nil
}

func (b *Builder) createTocAndCopyFrames(manifestPath, outputDir string, logger *logrus.Entry) (*BuildResult, error) {
	p, err := b.prepare(manifestPath, logger)
	if err != nil {
		return nil, err
	}

	frameDir := filepath.Join(outputDir, p.subdir)
	if err := utils.EnsureDirectory(frameDir); err != nil {
		return nil, errdefs.IO(err, "create output directory %s", frameDir)
	}

	tocPath := filepath.Join(outputDir, b.tocName)
	tmpPath := utils.TempPath(tocPath)
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, errdefs.IO(err, "create %s", tmpPath)
	}
	committed := false
	defer func() {
		if !committed {
			file.Close()
			os.Remove(tmpPath)
		}
	}()

	tw := b.newTocWriter(file, p)
	fileLength, err := tw.Write()
	if err != nil {
		return nil, errors.Wrapf(err, "write %s", tocPath)
	}
	if err := file.Sync(); err != nil {
		return nil, errdefs.IO(err, "sync %s", tmpPath)
	}

	result := &BuildResult{
		TocPath:    tocPath,
		SourceToc:  p.sourcePath,
		FrameDir:   frameDir,
		FileLength: fileLength,
		Components: append([]rpf.ComponentLocationRecord(nil), tw.location.LocationRecordList()...),
	}
	if err := b.copyFrames(p, frameDir, result, logger); err != nil {
		return nil, err
	}

	if err := file.Close(); err != nil {
		return nil, errdefs.IO(err, "close %s", tmpPath)
	}
	if err := os.Rename(tmpPath, tocPath); err != nil {
		return nil, errdefs.IO(err, "commit %s", tocPath)
	}
	committed = true
	return result, nil
}

// prepare reads the manifest and source table of contents and resolves the
// index record of every frame.
func (b *Builder) prepare(manifestPath string, logger *logrus.Entry) (*plan, error) {
	m, err := manifest.Parse(manifestPath)
	if err != nil {
		return nil, err
	}
	if len(m.Frames) == 0 {
		return nil, errors.Wrapf(errdefs.ErrNoFrames, "manifest %s", manifestPath)
	}

	first := m.Frames[0]
	sourcePath, err := manifest.FindSourceToc(first.Path)
	if err != nil {
		return nil, err
	}
	logger = logger.WithField("source", sourcePath)

	source := New(Opt{Logger: b.logger})
	if err := source.ParseFile(sourcePath, true); err != nil {
		return nil, errors.Wrap(err, "parse source table of contents")
	}

	boundary, boundaryIdx, err := correspondingEntry(source, first)
	if err != nil {
		return nil, err
	}

	p := &plan{
		sourcePath: sourcePath,
		source:     source,
		boundary:   *boundary,
		subdir:     filepath.Base(first.Dir()),
	}
	seen := make(map[string]bool, len(m.Frames))
	for _, frame := range m.Frames {
		key := strings.ToUpper(frame.Filename())
		if seen[key] {
			logger.Warnf("skip duplicate frame %s", frame.Path)
			continue
		}
		seen[key] = true

		record, err := source.FrameFileIndexSubsection().FrameFileIndexRecordFromFile(frame.Filename())
		if err != nil {
			return nil, errors.Wrapf(err, "frame %s in %s", frame.Path, sourcePath)
		}
		if record.BoundaryRecNumber != boundaryIdx {
			logger.Warnf("frame %s belongs to entry %d, indexed under entry %d",
				frame.Filename(), record.BoundaryRecNumber, boundaryIdx)
		}
		if uint32(record.LocationRowNumber) >= p.boundary.FramesVertical ||
			uint32(record.LocationColNumber) >= p.boundary.FramesHorizontal {
			return nil, errdefs.Lookup("frame %s at cell (%d, %d) outside %dx%d grid of entry %d",
				frame.Filename(), record.LocationRowNumber, record.LocationColNumber,
				p.boundary.FramesVertical, p.boundary.FramesHorizontal, boundaryIdx)
		}
		if _, err := os.Stat(frame.Path); err != nil {
			return nil, errdefs.IO(err, "stat frame %s", frame.Path)
		}
		p.frames = append(p.frames, plannedFrame{src: frame.Path, record: *record})
	}
	return p, nil
}

// correspondingEntry returns the boundary rectangle of the entry the
// representative frame is indexed under in the source.
func correspondingEntry(source *Toc, frame manifest.Frame) (*rpf.BoundaryRectRecord, uint16, error) {
	record, err := source.FrameFileIndexSubsection().FrameFileIndexRecordFromFile(frame.Filename())
	if err != nil {
		return nil, 0, errors.Wrapf(err, "representative frame %s", frame.Path)
	}
	boundary, err := source.BoundaryRectTable().Entry(int(record.BoundaryRecNumber))
	if err != nil {
		return nil, 0, errors.Wrapf(err, "representative frame %s", frame.Path)
	}
	return boundary, record.BoundaryRecNumber, nil
}

// newFileHeader returns a fresh file header carrying the administrative
// fields of the source.
func (b *Builder) newFileHeader(source *nitf.FileHeader) *nitf.FileHeader {
	header := nitf.NewFileHeader(b.now())
	if source != nil {
		header.StationID = source.StationID
		header.Classification = source.Classification
		header.OriginatorName = source.OriginatorName
		header.OriginatorPhone = source.OriginatorPhone
	}
	return header
}

func (b *Builder) newTocWriter(w io.WriteSeeker, p *plan) *tocWriter {
	records := make([]rpf.FrameFileIndexRecord, len(p.frames))
	pathnameOffset := uint32(len(records) * rpf.FrameFileIndexRecordSize)
	for idx, frame := range p.frames {
		record := frame.record
		record.BoundaryRecNumber = 0
		record.PathnameRecordOffset = pathnameOffset
		records[idx] = record
	}
	pathnames := []rpf.PathnameRecord{{
		Offset:   pathnameOffset,
		Pathname: "./" + p.subdir + "/",
	}}

	boundarySubheader := &rpf.BoundaryRectSectionSubheader{RecordLength: rpf.BoundaryRectRecordSize}
	boundarySubheader.SetNumberOfEntries(1)
	boundaryTable := rpf.NewBoundaryRectTable(p.boundary)

	frameSubheader := &rpf.FrameFileIndexSectionSubheader{
		SecurityClassification:  p.source.FrameFileIndexSubheader().SecurityClassification,
		NumberOfIndexRecords:    uint32(len(records)),
		NumberOfPathnameRecords: uint16(len(pathnames)),
		IndexRecordLength:       rpf.FrameFileIndexRecordSize,
	}
	subsection := rpf.NewFrameFileIndexSubsection(records, pathnames)

	return &tocWriter{
		w:          w,
		fileHeader: b.newFileHeader(p.source.FileHeader()),
		rpfHeader:  p.source.RpfHeader().Clone(),
		body: []component{
			{id: rpf.ComponentBoundaryRectSectionSubheader, size: rpf.BoundaryRectSubheaderSize, write: boundarySubheader.Write},
			{id: rpf.ComponentBoundaryRectTable, size: rpf.BoundaryRectRecordSize, write: boundaryTable.Write},
			{id: rpf.ComponentFrameFileIndexSectionSubheader, size: rpf.FrameFileIndexSubheaderSize, write: frameSubheader.Write},
			{id: rpf.ComponentFrameFileIndexSubsection, write: subsection.Write},
		},
	}
}

// copyFrames copies every planned frame into frameDir under the name its
// index record carries.
func (b *Builder) copyFrames(p *plan, frameDir string, result *BuildResult, logger *logrus.Entry) error {
	for _, frame := range p.frames {
		dst := filepath.Join(frameDir, frame.record.Filename)
		n, err := utils.CopyFile(frame.src, dst)
		if err != nil {
			return errdefs.IO(err, "copy frame %s", frame.src)
		}
		if b.verifyCopies {
			same, err := utils.SameContent(frame.src, dst)
			if err != nil {
				return errdefs.IO(err, "verify copy of frame %s", frame.src)
			}
			if !same {
				return errdefs.IO(nil, "copy of frame %s differs from %s", dst, frame.src)
			}
		}
		logger.Debugf("copied frame %s to %s (%s)", frame.src, dst, humanize.IBytes(uint64(n)))
		result.FramesCopied++
		result.BytesCopied += n
		metrics.FramesCopied(1)
	}
	return nil
}
