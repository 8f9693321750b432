// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package objectstore keeps archives and their checksum side-cars in an
// S3 compatible bucket. Archives are only ever transferred whole between
// the bucket and the local output directory; imports always read the
// local copy.
package objectstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/manuals-rag/ragbundle/bundle/archive"
	bundleerrors "github.com/manuals-rag/ragbundle/bundle/errors"
)

var logger = loggo.GetLogger("ragbundle.objectstore")

// Config locates the bucket.
type Config struct {
	Bucket string
	// Prefix is prepended to every key, normally ending in "/".
	Prefix string
	Region string
	// Endpoint selects an S3 compatible service instead of AWS.
	Endpoint string
	// Credentials override the default credential chain.
	Credentials aws.CredentialsProvider
}

// Validate checks the configuration for missing values.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return errors.NotValidf("empty remote bucket")
	}
	return nil
}

// Object describes an archive in the bucket.
type Object struct {
	Name        string    `json:"name" yaml:"name"`
	Size        int64     `json:"size" yaml:"size"`
	ModTime     time.Time `json:"modified" yaml:"modified"`
	HasChecksum bool      `json:"has-checksum" yaml:"has-checksum"`
}

// Store transfers archives to and from a bucket.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New returns a Store for cfg using the default AWS configuration
// sources for anything cfg leaves out.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Credentials != nil {
		opts = append(opts, awsconfig.WithCredentialsProvider(cfg.Credentials))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "loading AWS configuration")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint == "" {
			return
		}
		// Path style, no trailing checksums.
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient returns a Store using an existing client.
func NewWithClient(client *s3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errors.NotValidf("archive name %q", name)
	}
	return nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404
}

// Push uploads a local archive and its side-car. The side-car is written
// when missing and the archive must match it. The side-car is uploaded
// last, so a remote archive with a side-car is complete.
func (s *Store) Push(ctx context.Context, archivePath string) (*Object, error) {
	name := filepath.Base(archivePath)
	if err := validName(name); err != nil {
		return nil, errors.Trace(err)
	}
	digest, err := archive.Verify(archivePath)
	if errors.Is(err, errors.NotFound) {
		logger.Warningf("no checksum recorded for %q, recording one", archivePath)
		if digest, _, err = archive.Checksum(archivePath); err == nil {
			err = archive.WriteSidecar(archivePath, digest)
		}
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	size, err := s.upload(ctx, archivePath, s.key(name))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if _, err := s.upload(ctx, archive.SidecarPath(archivePath), s.key(name+archive.SidecarSuffix)); err != nil {
		return nil, errors.Trace(err)
	}
	logger.Infof("pushed %s (%s) to s3://%s/%s", name, digest, s.bucket, s.key(name))
	return &Object{Name: name, Size: size, ModTime: time.Now().UTC(), HasChecksum: true}, nil
}

func (s *Store) upload(ctx context.Context, path, key string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Trace(err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, errors.Trace(err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return 0, errors.Annotatef(err, "uploading %q", key)
	}
	return info.Size(), nil
}

// List returns the archives in the bucket, newest first.
func (s *Store) List(ctx context.Context) ([]Object, error) {
	objects := make(map[string]*Object)
	sidecars := make(map[string]bool)
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.Annotatef(err, "listing s3://%s/%s", s.bucket, s.prefix)
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if validName(name) != nil {
				continue
			}
			switch {
			case strings.HasSuffix(name, archive.Extension+archive.SidecarSuffix):
				sidecars[strings.TrimSuffix(name, archive.SidecarSuffix)] = true
			case strings.HasSuffix(name, archive.Extension):
				objects[name] = &Object{
					Name:    name,
					Size:    aws.ToInt64(obj.Size),
					ModTime: aws.ToTime(obj.LastModified).UTC(),
				}
			}
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	result := make([]Object, 0, len(objects))
	for name, obj := range objects {
		obj.HasChecksum = sidecars[name]
		result = append(result, *obj)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ModTime.Equal(result[j].ModTime) {
			return result[i].ModTime.After(result[j].ModTime)
		}
		return result[i].Name > result[j].Name
	})
	return result, nil
}

// Latest returns the name of the newest archive in the bucket.
func (s *Store) Latest(ctx context.Context) (string, error) {
	objects, err := s.List(ctx)
	if err != nil {
		return "", errors.Trace(err)
	}
	if len(objects) == 0 {
		return "", errors.Annotatef(bundleerrors.NoArchiveFound, "s3://%s/%s", s.bucket, s.prefix)
	}
	return objects[0].Name, nil
}

// Pull downloads the named archive, or the newest one when name is
// empty, with its side-car into destDir and verifies it. An archive that
// fails verification is not kept.
func (s *Store) Pull(ctx context.Context, name, destDir string) (string, error) {
	if name == "" {
		latest, err := s.Latest(ctx)
		if err != nil {
			return "", errors.Trace(err)
		}
		name = latest
	}
	if err := validName(name); err != nil {
		return "", errors.Trace(err)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", errors.Trace(err)
	}

	archivePath := filepath.Join(destDir, name)
	sidecarPath := archive.SidecarPath(archivePath)
	if err := s.download(ctx, s.key(name+archive.SidecarSuffix), sidecarPath); err != nil {
		return "", errors.Annotatef(err, "checksum of %q", name)
	}
	if err := s.download(ctx, s.key(name), archivePath); err != nil {
		_ = os.Remove(sidecarPath)
		return "", errors.Trace(err)
	}
	if _, err := archive.Verify(archivePath); err != nil {
		_ = os.Remove(archivePath)
		_ = os.Remove(sidecarPath)
		return "", errors.Trace(err)
	}
	logger.Infof("pulled s3://%s/%s to %s", s.bucket, s.key(name), archivePath)
	return archivePath, nil
}

// download writes an object to dest through a hidden temporary file so
// dest never holds a partial object.
func (s *Store) download(ctx context.Context, key, dest string) (err error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return errors.NotFoundf("s3://%s/%s", s.bucket, key)
	} else if err != nil {
		return errors.Annotatef(err, "downloading %q", key)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := io.Copy(tmp, out.Body); err != nil {
		return errors.Annotatef(err, "downloading %q", key)
	}
	if err := tmp.Sync(); err != nil {
		return errors.Trace(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Rename(tmp.Name(), dest))
}
