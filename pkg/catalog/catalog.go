/*
 * Copyright (c) 2021. Ant Financial. All rights reserved.
 * Copyright (c) 2026. Nydus Developers. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package catalog persists the frames of indexed tables of contents so a
// frame file can be located without reparsing every archive.
package catalog

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/dragonflyoss/rpfify/pkg/errdefs"
	"github.com/dragonflyoss/rpfify/pkg/toc"
	"github.com/dragonflyoss/rpfify/pkg/utils"
)

const (
	databaseFileName = "rpfify.db"
)

// Bucket names
var (
	archivesBucketName = []byte("archives") // Contains archive info <toc path>=<archive>
	framesBucketName   = []byte("frames")   // Contains frame info <FRAME FILENAME>=<frame>
)

// Source is a parsed table of contents.
type Source interface {
	NumberOfEntries() int
	TocEntry(index int) (*toc.TocEntry, error)
}

// Archive is an indexed table of contents.
type Archive struct {
	Path      string    `json:"path"`
	Entries   int       `json:"entries"`
	Frames    int       `json:"frames"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Frame locates a frame file inside an indexed archive.
type Frame struct {
	Archive string `json:"archive"`
	Entry   int    `json:"entry"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Path    string `json:"path"`
}

// Catalog keeps frame locations across runs. Frame file names are unique
// within a catalog; indexing an archive replaces frames of the same name
// recorded from another archive.
type Catalog struct {
	db *bolt.DB
}

// New creates a new or opens an existing catalog below rootDir.
func New(rootDir string) (*Catalog, error) {
	if err := utils.EnsureDirectory(rootDir); err != nil {
		return nil, errdefs.IO(err, "create catalog directory %s", rootDir)
	}

	db, err := bolt.Open(filepath.Join(rootDir, databaseFileName), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errdefs.IO(err, "open catalog in %s", rootDir)
	}
	c := &Catalog{db: db}
	if err := c.initDatabase(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize catalog")
	}
	return c, nil
}

func (c *Catalog) initDatabase() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(archivesBucketName); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(framesBucketName); err != nil {
			return err
		}
		return nil
	})
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func frameKey(filename string) string {
	return strings.ToUpper(filepath.Base(filename))
}

// AddToc records every existing frame of src, parsed from tocPath. Indexing
// the same archive again replaces its previous records. A cancelled ctx
// rolls the whole archive back.
func (c *Catalog) AddToc(ctx context.Context, tocPath string, src Source) (*Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	archivePath, err := filepath.Abs(tocPath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", tocPath)
	}

	archive := &Archive{
		Path:      archivePath,
		Entries:   src.NumberOfEntries(),
		IndexedAt: time.Now().UTC(),
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		fbkt := tx.Bucket(framesBucketName)
		if err := deleteFrames(ctx, fbkt, archivePath); err != nil {
			return err
		}

		for idx := 0; idx < archive.Entries; idx++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, err := src.TocEntry(idx)
			if err != nil {
				return err
			}
			for _, cell := range entry.ExistingFrames() {
				frame := &Frame{
					Archive: archivePath,
					Entry:   idx,
					Row:     cell.Row,
					Col:     cell.Col,
					Path:    cell.Frame.FullPath(),
				}
				if err := updateObject(fbkt, frameKey(cell.Frame.RelativePath), frame); err != nil {
					return err
				}
				archive.Frames++
			}
		}

		return updateObject(tx.Bucket(archivesBucketName), archivePath, archive)
	})
	if err != nil {
		return nil, err
	}
	return archive, nil
}

// LookupFrame finds a frame by file name, ignoring case.
func (c *Catalog) LookupFrame(ctx context.Context, filename string) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame := &Frame{}
	err := c.db.View(func(tx *bolt.Tx) error {
		return getObject(tx.Bucket(framesBucketName), frameKey(filename), frame)
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// GetArchive returns the record of an indexed archive.
func (c *Catalog) GetArchive(ctx context.Context, tocPath string) (*Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	archivePath, err := filepath.Abs(tocPath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", tocPath)
	}
	archive := &Archive{}
	err = c.db.View(func(tx *bolt.Tx) error {
		return getObject(tx.Bucket(archivesBucketName), archivePath, archive)
	})
	if err != nil {
		return nil, err
	}
	return archive, nil
}

// WalkFrames iterates all frame records and invoke callback on each
func (c *Catalog) WalkFrames(ctx context.Context, cb func(frame *Frame) error) error {
	return c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(framesBucketName)
		return bucket.ForEach(func(key, value []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			frame := &Frame{}
			if err := json.Unmarshal(value, frame); err != nil {
				return errors.Wrapf(err, "failed to unmarshal %s", key)
			}

			return cb(frame)
		})
	})
}

// RemoveToc deletes an archive and its frames.
func (c *Catalog) RemoveToc(ctx context.Context, tocPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	archivePath, err := filepath.Abs(tocPath)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", tocPath)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		abkt := tx.Bucket(archivesBucketName)
		if abkt.Get([]byte(archivePath)) == nil {
			return errdefs.NotFound("archive %s", archivePath)
		}
		if err := abkt.Delete([]byte(archivePath)); err != nil {
			return errors.Wrapf(err, "failed to delete archive %q", archivePath)
		}
		return deleteFrames(ctx, tx.Bucket(framesBucketName), archivePath)
	})
}

func deleteFrames(ctx context.Context, bucket *bolt.Bucket, archivePath string) error {
	var keys [][]byte
	err := bucket.ForEach(func(key, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := &Frame{}
		if err := json.Unmarshal(value, frame); err != nil {
			return errors.Wrapf(err, "failed to unmarshal %s", key)
		}
		if frame.Archive == archivePath {
			keys = append(keys, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := bucket.Delete(key); err != nil {
			return errors.Wrapf(err, "failed to delete frame %q", key)
		}
	}
	return nil
}

func updateObject(bucket *bolt.Bucket, key string, obj interface{}) error {
	keyBytes := []byte(key)

	value, err := json.Marshal(obj)
	if err != nil {
		return errors.Wrapf(err, "failed to marshall object with key %q", key)
	}

	if err := bucket.Put(keyBytes, value); err != nil {
		return errors.Wrapf(err, "failed to insert object with key %q", key)
	}

	return nil
}

func getObject(bucket *bolt.Bucket, key string, obj interface{}) error {
	if obj == nil {
		return errors.Errorf("invalid arg: obj cannot be nil")
	}

	value := bucket.Get([]byte(key))
	if value == nil {
		return errdefs.NotFound("object with key %q", key)
	}

	if err := json.Unmarshal(value, obj); err != nil {
		return errors.Wrapf(err, "failed to unmarshall object with key %q", key)
	}

	return nil
}
