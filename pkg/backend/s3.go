// Copyright 2022 Ant Group. All rights reserved.
// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type S3Backend struct {
	// objectPrefix is the path prefix of the uploaded object.
	// For example, if the objectID which should be uploaded is "N1/0A1B2C01.ON1",
	// and the objectPrefix is "charts/cadrg/", then the object key will be
	// "charts/cadrg/N1/0A1B2C01.ON1".
	objectPrefix       string
	bucketName         string
	endpointWithScheme string
	client             *s3.Client
}

type S3Config struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	AccessKeySecret string `json:"access_key_secret,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	Scheme          string `json:"scheme,omitempty"`
	BucketName      string `json:"bucket_name,omitempty"`
	Region          string `json:"region,omitempty"`
	ObjectPrefix    string `json:"object_prefix,omitempty"`
}

func newS3Backend(rawConfig []byte) (*S3Backend, error) {
	cfg := &S3Config{}
	if err := json.Unmarshal(rawConfig, cfg); err != nil {
		return nil, errors.Wrap(err, "parse S3 storage backend configuration")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "s3.amazonaws.com"
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	endpointWithScheme := fmt.Sprintf("%s://%s", cfg.Scheme, cfg.Endpoint)

	if cfg.BucketName == "" || cfg.Region == "" {
		return nil, fmt.Errorf("invalid S3 configuration: missing 'bucket_name' or 'region'")
	}

	s3AWSConfig, err := awscfg.LoadDefaultConfig(context.TODO())
	if err != nil {
		return nil, errors.Wrap(err, "load default AWS config")
	}

	client := s3.NewFromConfig(s3AWSConfig, func(o *s3.Options) {
		o.BaseEndpoint = &endpointWithScheme
		o.Region = cfg.Region
		o.UsePathStyle = true
		if len(cfg.AccessKeySecret) > 0 && len(cfg.AccessKeyID) > 0 {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")
		}
	})

	return &S3Backend{
		objectPrefix:       cfg.ObjectPrefix,
		bucketName:         cfg.BucketName,
		endpointWithScheme: endpointWithScheme,
		client:             client,
	}, nil
}

// Upload puts one archive file under the object prefix with its media type,
// digest and kind. An object already stored with the same digest is kept
// unless forcePush.
func (b *S3Backend) Upload(ctx context.Context, obj Object, forcePush bool) (*Descriptor, error) {
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

	start := time.Now()

	objectFile, err := os.Open(obj.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open object file")
	}
	defer objectFile.Close()

	uploader := manager.NewUploader(b.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(b.bucketName),
		Key:               aws.String(objectKey),
		Body:              objectFile,
		ContentType:       aws.String(desc.MediaType),
		Metadata:          desc.metadata(),
		ChecksumAlgorithm: types.ChecksumAlgorithmCrc32,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "upload %s to s3 backend", desc.Kind)
	}

	logrus.Debugf("uploaded %s %s to s3 backend, costs %s", desc.Kind, objectKey, time.Since(start))

	return desc, nil
}

func (b *S3Backend) Finalize(_ bool) error {
	return nil
}

func (b *S3Backend) Check(ctx context.Context, desc *Descriptor) (bool, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(desc.ObjectID)),
	})
	if err != nil {
		var responseError *awshttp.ResponseError
		if errors.As(err, &responseError) && responseError.ResponseError.HTTPStatusCode() == http.StatusNotFound {
			return false, nil
		}
		return false, errors.Wrapf(err, "head object %s", desc.ObjectID)
	}
	return desc.matches(out.Metadata[metaDigest]), nil
}

func (b *S3Backend) Type() Type {
	return S3backend
}

func (b *S3Backend) objectKey(objectID string) string {
	return b.objectPrefix + objectID
}

func (b *S3Backend) remoteID(objectKey string) string {
	remoteURL, _ := url.Parse(b.endpointWithScheme)
	remoteURL.Path = path.Join(remoteURL.Path, b.bucketName, objectKey)
	return remoteURL.String()
}
