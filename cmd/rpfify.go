// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// The rpfify CLI tool inspects RPF tables of contents, synthesizes a new
// archive holding a subset of frames listed in a manifest, indexes archives
// into a local catalog and publishes archives to an object storage.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/dragonflyoss/rpfify/pkg/backend"
	"github.com/dragonflyoss/rpfify/pkg/catalog"
	"github.com/dragonflyoss/rpfify/pkg/metrics"
	"github.com/dragonflyoss/rpfify/pkg/toc"
)

var versionGitCommit string
var versionBuildTime string

func isPossibleValue(excepted []string, value string) bool {
	for _, v := range excepted {
		if value == v {
			return true
		}
	}
	return false
}

func parseBackendConfig(backendConfigJSON, backendConfigFile string) (string, error) {
	if backendConfigJSON != "" && backendConfigFile != "" {
		return "", fmt.Errorf("--backend-config conflicts with --backend-config-file")
	}

	if backendConfigFile != "" {
		_backendConfigJSON, err := os.ReadFile(backendConfigFile)
		if err != nil {
			return "", errors.Wrap(err, "parse backend config file")
		}
		backendConfigJSON = string(_backendConfigJSON)
	}

	return backendConfigJSON, nil
}

type entrySummary struct {
	Index            int      `json:"index"`
	ProductDataType  string   `json:"product_data_type"`
	CompressionRatio string   `json:"compression_ratio"`
	Scale            string   `json:"scale"`
	Zone             string   `json:"zone"`
	Producer         string   `json:"producer"`
	South            float64  `json:"south"`
	West             float64  `json:"west"`
	North            float64  `json:"north"`
	East             float64  `json:"east"`
	FramesVertical   int      `json:"frames_vertical"`
	FramesHorizontal int      `json:"frames_horizontal"`
	Frames           []string `json:"frames"`
}

type tocSummary struct {
	Path          string         `json:"path"`
	RootDirectory string         `json:"root_directory"`
	FileName      string         `json:"file_name"`
	Title         string         `json:"title"`
	DateTime      string         `json:"date_time"`
	Entries       []entrySummary `json:"entries"`
}

func summarize(t *toc.Toc) *tocSummary {
	summary := &tocSummary{
		Path:          t.Path(),
		RootDirectory: t.RootDirectory(),
		FileName:      t.RpfHeader().FileName,
		Title:         t.FileHeader().Title,
		DateTime:      t.FileHeader().DateTime,
	}
	for idx, entry := range t.Entries() {
		boundary := entry.BoundaryInformation()
		south, west, north, east := boundary.Bounds()
		es := entrySummary{
			Index:            idx,
			ProductDataType:  boundary.ProductDataType,
			CompressionRatio: boundary.CompressionRatio,
			Scale:            boundary.Scale,
			Zone:             boundary.Zone,
			Producer:         boundary.Producer,
			South:            south,
			West:             west,
			North:            north,
			East:             east,
			FramesVertical:   entry.NumberOfFramesVertical(),
			FramesHorizontal: entry.NumberOfFramesHorizontal(),
			Frames:           []string{},
		}
		for _, cell := range entry.ExistingFrames() {
			es.Frames = append(es.Frames, cell.Frame.RelativePath)
		}
		summary.Entries = append(summary.Entries, es)
	}
	return summary
}

func printSummary(w io.Writer, summary *tocSummary, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	}

	fmt.Fprintf(w, "%s (%s, %s)\n", summary.Path, summary.FileName, strings.TrimSpace(summary.DateTime))
	for _, entry := range summary.Entries {
		fmt.Fprintf(w, "entry %d: %s %s %s zone %s, %dx%d frames, %d present\n",
			entry.Index, entry.ProductDataType, entry.CompressionRatio, entry.Scale, entry.Zone,
			entry.FramesVertical, entry.FramesHorizontal, len(entry.Frames))
		fmt.Fprintf(w, "  extent: south %.6f west %.6f north %.6f east %.6f\n",
			entry.South, entry.West, entry.North, entry.East)
		for _, frame := range entry.Frames {
			fmt.Fprintf(w, "  %s\n", frame)
		}
	}
	return nil
}

func parseToc(path string) (*toc.Toc, error) {
	t := toc.New(toc.Opt{})
	if err := t.ParseFile(path, true); err != nil {
		return nil, err
	}
	return t, nil
}

func setupLogLevel(c *cli.Context) error {
	logLevel, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(logLevel)
	return nil
}

func exportMetrics(path string) error {
	if path == "" {
		return nil
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create metrics file")
	}
	defer file.Close()
	return metrics.Export(file)
}

func newApp() *cli.App {
	version := fmt.Sprintf("%s.%s", versionGitCommit, versionBuildTime)

	app := &cli.App{
		Name:    "rpfify",
		Usage:   "RPF archive table of contents tool",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "metrics-file", Value: "", Usage: "Write metrics in the Prometheus text format to the file on exit", EnvVars: []string{"METRICS_FILE"}},
		},
		Before: setupLogLevel,
		After: func(c *cli.Context) error {
			return exportMetrics(c.String("metrics-file"))
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:  "inspect",
			Usage: "Print the entries and frames of a table of contents",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "toc", Required: true, TakesFile: true, Usage: "Path of the table of contents file", EnvVars: []string{"TOC"}},
				&cli.BoolFlag{Name: "json", Value: false, Usage: "Print in JSON format"},
			},
			Action: func(c *cli.Context) error {
				t, err := parseToc(c.String("toc"))
				if err != nil {
					return err
				}
				return printSummary(c.App.Writer, summarize(t), c.Bool("json"))
			},
		},
		{
			Name:  "create",
			Usage: "Create a table of contents from a manifest and copy its frames",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "manifest", Required: true, TakesFile: true, Usage: "Manifest listing the frames to copy", EnvVars: []string{"MANIFEST"}},
				&cli.StringFlag{Name: "output", Required: true, Usage: "Output directory of the new archive", EnvVars: []string{"OUTPUT"}},
				&cli.StringFlag{Name: "toc-name", Value: toc.DefaultTocName, Usage: "File name of the new table of contents"},
				&cli.BoolFlag{Name: "verify", Value: false, Usage: "Compare the digests of every frame and its copy", EnvVars: []string{"VERIFY"}},
			},
			Action: func(c *cli.Context) error {
				builder := toc.NewBuilder(toc.BuilderOpt{
					VerifyCopies: c.Bool("verify"),
					TocName:      c.String("toc-name"),
				})
				result, err := builder.CreateTocAndCopyFrames(c.String("manifest"), c.String("output"))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%s: %d frames, %s copied\n",
					result.TocPath, result.FramesCopied, humanize.IBytes(uint64(result.BytesCopied)))
				return nil
			},
		},
		{
			Name:  "index",
			Usage: "Add a table of contents to the frame catalog",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "toc", Required: true, TakesFile: true, Usage: "Path of the table of contents file", EnvVars: []string{"TOC"}},
				&cli.StringFlag{Name: "db", Value: "./catalog", Usage: "Directory of the frame catalog", EnvVars: []string{"CATALOG_DIR"}},
			},
			Action: func(c *cli.Context) error {
				t, err := parseToc(c.String("toc"))
				if err != nil {
					return err
				}
				db, err := catalog.New(c.String("db"))
				if err != nil {
					return err
				}
				defer db.Close()

				archive, err := db.AddToc(context.Background(), c.String("toc"), t)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%s: %d entries, %d frames indexed\n", archive.Path, archive.Entries, archive.Frames)
				return nil
			},
		},
		{
			Name:  "lookup",
			Usage: "Find the archive and grid cell of a frame in the catalog",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "db", Value: "./catalog", Usage: "Directory of the frame catalog", EnvVars: []string{"CATALOG_DIR"}},
				&cli.StringFlag{Name: "frame", Required: true, Usage: "Frame file name, case insensitive"},
			},
			Action: func(c *cli.Context) error {
				db, err := catalog.New(c.String("db"))
				if err != nil {
					return err
				}
				defer db.Close()

				frame, err := db.LookupFrame(context.Background(), c.String("frame"))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%s entry %d row %d col %d: %s\n",
					frame.Archive, frame.Entry, frame.Row, frame.Col, frame.Path)
				return nil
			},
		},
		{
			Name:  "push",
			Usage: "Push a synthesized archive to an object storage",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "dir", Required: true, Usage: "Directory of the archive to push", EnvVars: []string{"ARCHIVE_DIR"}},
				&cli.StringFlag{Name: "backend-type", Value: "", Required: true, Usage: "Specify object storage backend type, `oss` or `s3`", EnvVars: []string{"BACKEND_TYPE"}},
				&cli.StringFlag{Name: "backend-config", Value: "", Usage: "Specify object storage backend in JSON config string", EnvVars: []string{"BACKEND_CONFIG"}},
				&cli.StringFlag{Name: "backend-config-file", Value: "", TakesFile: true, Usage: "Specify object storage backend config from path", EnvVars: []string{"BACKEND_CONFIG_FILE"}},
				&cli.BoolFlag{Name: "backend-force-push", Value: false, Usage: "Force to push objects even if they already exist in storage backend", EnvVars: []string{"BACKEND_FORCE_PUSH"}},
				&cli.IntFlag{Name: "workers", Value: 4, Usage: "Number of concurrent uploads"},
			},
			Action: func(c *cli.Context) error {
				backendType := c.String("backend-type")
				possibleBackendTypes := []string{"oss", "s3"}
				if !isPossibleValue(possibleBackendTypes, backendType) {
					return fmt.Errorf("--backend-type should be one of %v", possibleBackendTypes)
				}
				backendConfig, err := parseBackendConfig(c.String("backend-config"), c.String("backend-config-file"))
				if err != nil {
					return err
				}
				if strings.TrimSpace(backendConfig) == "" {
					return fmt.Errorf("--backend-config or --backend-config-file required")
				}

				b, err := backend.NewBackend(backendType, []byte(backendConfig))
				if err != nil {
					return err
				}
				descs, err := backend.Push(c.Context, b, c.String("dir"), backend.PushOpt{
					Workers:   c.Int("workers"),
					ForcePush: c.Bool("backend-force-push"),
				})
				if err != nil {
					return err
				}
				for _, desc := range descs {
					fmt.Fprintf(c.App.Writer, "%s %s %s %s\n", desc.Digest, desc.Kind, desc.ObjectID, strings.Join(desc.URLs, ","))
				}
				return nil
			},
		},
	}

	return app
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	metrics.Register()

	if err := newApp().Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
