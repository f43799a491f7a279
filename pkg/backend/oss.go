// Copyright 2020 Ant Group. All rights reserved.
// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/crc64"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type OSSBackend struct {
	// OSS storage does not support directory. Therefore add a prefix to each object
	// to make it a path-like object.
	objectPrefix string
	bucket       *oss.Bucket
}

func newOSSBackend(rawConfig []byte) (*OSSBackend, error) {
	var configMap map[string]string
	if err := json.Unmarshal(rawConfig, &configMap); err != nil {
		return nil, errors.Wrap(err, "Parse OSS storage backend configuration")
	}

	endpoint, ok1 := configMap["endpoint"]
	bucketName, ok2 := configMap["bucket_name"]

	// Below items are not mandatory
	accessKeyID := configMap["access_key_id"]
	accessKeySecret := configMap["access_key_secret"]
	objectPrefix := configMap["object_prefix"]

	if !ok1 || !ok2 {
		return nil, fmt.Errorf("invalid OSS configuration: missing 'endpoint' or 'bucket'")
	}

	client, err := oss.New(endpoint, accessKeyID, accessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "Create client")
	}

	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, errors.Wrap(err, "Create bucket")
	}

	return &OSSBackend{
		objectPrefix: objectPrefix,
		bucket:       bucket,
	}, nil
}

func calcCrc64ECMA(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "calc crc64")
	}
	defer f.Close()

	hash := crc64.New(crc64.MakeTable(crc64.ECMA))
	if _, err := io.Copy(hash, f); err != nil {
		return 0, errors.Wrapf(err, "calc crc64")
	}
	return hash.Sum64(), nil
}

// Upload puts one archive file under the object prefix with its media type,
// digest and kind, then compares the CRC64 reported by OSS with the local
// file. Frames and tables of contents stay far below the single PUT limit.
func (b *OSSBackend) Upload(ctx context.Context, obj Object, forcePush bool) (*Descriptor, error) {
	objectKey := b.objectKey(obj.ID)

	desc, err := objectDesc(obj)
	if err != nil {
		return nil, err
	}
	desc.URLs = append(desc.URLs, b.remoteID(objectKey))

	if !forcePush {
		if same, err := b.Check(ctx, desc); err != nil {
			return nil, errors.Wrap(err, "check stored object")
		} else if same {
			logrus.Infof("skip upload of %s %s, stored digest matches", desc.Kind, obj.ID)
			return desc, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	options := []oss.Option{oss.ContentType(desc.MediaType)}
	for key, value := range desc.metadata() {
		options = append(options, oss.Meta(key, value))
	}
	if err := b.bucket.PutObjectFromFile(objectKey, obj.Path, options...); err != nil {
		return nil, errors.Wrapf(err, "upload %s to oss backend", desc.Kind)
	}

	props, err := b.bucket.GetObjectDetailedMeta(objectKey)
	if err != nil {
		return nil, errors.Wrapf(err, "get object meta")
	}
	if err := verifyCrc64(props, obj.Path); err != nil {
		return nil, errors.Wrapf(err, "verify %s", objectKey)
	}

	logrus.Debugf("uploaded %s %s to oss backend, costs %s", desc.Kind, objectKey, time.Since(start))

	return desc, nil
}

// verifyCrc64 compares the CRC64 header of a stored object with the file at
// path. Objects without the header are accepted.
func verifyCrc64(props http.Header, path string) error {
	values, ok := props[http.CanonicalHeaderKey(oss.HTTPHeaderOssCRC64)]
	if !ok {
		logrus.Warnf("no crc64 in header, skip crc64 integrity check.")
		return nil
	}
	if len(values) != 1 {
		logrus.Warnf("too many values, skip crc64 integrity check.")
		return nil
	}
	uploaded, err := strconv.ParseUint(values[0], 10, 64)
	if err != nil {
		return errors.Wrapf(err, "parse uploaded crc64")
	}
	expected, err := calcCrc64ECMA(path)
	if err != nil {
		return err
	}
	if uploaded != expected {
		return errors.Errorf("crc64 mismatch, uploaded=%d, expected=%d", uploaded, expected)
	}
	return nil
}

func (b *OSSBackend) Finalize(_ bool) error {
	return nil
}

func (b *OSSBackend) Check(_ context.Context, desc *Descriptor) (bool, error) {
	props, err := b.bucket.GetObjectDetailedMeta(b.objectKey(desc.ObjectID))
	if err != nil {
		var serviceErr oss.ServiceError
		if errors.As(err, &serviceErr) && serviceErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, errors.Wrapf(err, "get meta of object %s", desc.ObjectID)
	}
	return desc.matches(props.Get(oss.HTTPHeaderOssMetaPrefix + metaDigest)), nil
}

func (b *OSSBackend) Type() Type {
	return OssBackend
}

func (b *OSSBackend) objectKey(objectID string) string {
	return b.objectPrefix + objectID
}

func (b *OSSBackend) remoteID(objectKey string) string {
	return fmt.Sprintf("oss://%s/%s", b.bucket.BucketName, objectKey)
}
