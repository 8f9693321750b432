// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package objectstore_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	ft "github.com/juju/testing/filetesting"
	gc "gopkg.in/check.v1"

	"github.com/manuals-rag/ragbundle/bundle/archive"
	bundleerrors "github.com/manuals-rag/ragbundle/bundle/errors"
	"github.com/manuals-rag/ragbundle/internal/objectstore"
)

const bucket = "bundles"

type storeSuite struct {
	testing.IsolationSuite

	server *httptest.Server
	client *s3.Client
	store  *objectstore.Store
	local  string
}

var _ = gc.Suite(&storeSuite{})

func (s *storeSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.server = httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	s.AddCleanup(func(*gc.C) { s.server.Close() })

	ctx := context.Background()
	store, err := objectstore.New(ctx, objectstore.Config{
		Bucket:      bucket,
		Prefix:      "bundles/",
		Region:      "us-east-1",
		Endpoint:    s.server.URL,
		Credentials: credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
	c.Assert(err, jc.ErrorIsNil)
	s.store = store

	s.client = s3.New(s3.Options{
		Region:                     "us-east-1",
		Credentials:                credentials.NewStaticCredentialsProvider("test", "test", ""),
		BaseEndpoint:               aws.String(s.server.URL),
		UsePathStyle:               true,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	c.Assert(err, jc.ErrorIsNil)

	s.local = c.MkDir()
}

// writeArchive creates a small archive with a side-car in the local dir.
func (s *storeSuite) writeArchive(c *gc.C, name, content string) string {
	stageRoot := c.MkDir()
	ft.Entries{
		ft.Dir{Path: "data/index", Perm: 0755},
		ft.File{Path: "data/index/faiss.index", Data: content, Perm: 0644},
	}.Create(c, stageRoot)
	res, err := archive.Write(stageRoot, filepath.Join(s.local, name))
	c.Assert(err, jc.ErrorIsNil)
	return res.Path
}

func (s *storeSuite) TestPushList(c *gc.C) {
	ctx := context.Background()
	path := s.writeArchive(c, "manuals-rag-bundle-20250101-120000.zip", "one")

	obj, err := s.store.Push(ctx, path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(obj.Name, gc.Equals, "manuals-rag-bundle-20250101-120000.zip")
	info, err := os.Stat(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(obj.Size, gc.Equals, info.Size())

	objects, err := s.store.List(ctx)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(objects, gc.HasLen, 1)
	c.Check(objects[0].Name, gc.Equals, obj.Name)
	c.Check(objects[0].Size, gc.Equals, info.Size())
	c.Check(objects[0].HasChecksum, jc.IsTrue)

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String("bundles/manuals-rag-bundle-20250101-120000.zip.sha256"),
	})
	c.Check(err, jc.ErrorIsNil)
}

func (s *storeSuite) TestPushRecordsMissingChecksum(c *gc.C) {
	path := s.writeArchive(c, "manuals-rag-bundle-20250101-120000.zip", "one")
	c.Assert(os.Remove(archive.SidecarPath(path)), jc.ErrorIsNil)

	_, err := s.store.Push(context.Background(), path)
	c.Assert(err, jc.ErrorIsNil)
	_, err = archive.Verify(path)
	c.Check(err, jc.ErrorIsNil)
}

func (s *storeSuite) TestPushRefusesCorruptArchive(c *gc.C) {
	path := s.writeArchive(c, "manuals-rag-bundle-20250101-120000.zip", "one")
	c.Assert(archive.WriteSidecar(path, "00"), jc.ErrorIsNil)

	_, err := s.store.Push(context.Background(), path)
	c.Check(err, jc.ErrorIs, bundleerrors.ChecksumMismatch)

	objects, err := s.store.List(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(objects, gc.HasLen, 0)
}

func (s *storeSuite) TestPullNamed(c *gc.C) {
	ctx := context.Background()
	path := s.writeArchive(c, "manuals-rag-bundle-20250101-120000.zip", "one")
	_, err := s.store.Push(ctx, path)
	c.Assert(err, jc.ErrorIsNil)

	dest := c.MkDir()
	pulled, err := s.store.Pull(ctx, "manuals-rag-bundle-20250101-120000.zip", dest)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(pulled, gc.Equals, filepath.Join(dest, "manuals-rag-bundle-20250101-120000.zip"))

	want, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	got, err := os.ReadFile(pulled)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(bytes.Equal(got, want), jc.IsTrue)
	_, err = archive.Verify(pulled)
	c.Check(err, jc.ErrorIsNil)
}

func (s *storeSuite) TestPullLatest(c *gc.C) {
	ctx := context.Background()
	for _, name := range []string{
		"manuals-rag-bundle-20250101-120000.zip",
		"manuals-rag-bundle-20250102-120000.zip",
	} {
		_, err := s.store.Push(ctx, s.writeArchive(c, name, name))
		c.Assert(err, jc.ErrorIsNil)
	}

	latest, err := s.store.Latest(ctx)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(latest, gc.Equals, "manuals-rag-bundle-20250102-120000.zip")

	pulled, err := s.store.Pull(ctx, "", c.MkDir())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(filepath.Base(pulled), gc.Equals, latest)
}

func (s *storeSuite) TestPullRejectsCorruptRemote(c *gc.C) {
	ctx := context.Background()
	path := s.writeArchive(c, "manuals-rag-bundle-20250101-120000.zip", "one")
	_, err := s.store.Push(ctx, path)
	c.Assert(err, jc.ErrorIsNil)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String("bundles/manuals-rag-bundle-20250101-120000.zip"),
		Body:   bytes.NewReader([]byte("tampered")),
	})
	c.Assert(err, jc.ErrorIsNil)

	dest := c.MkDir()
	_, err = s.store.Pull(ctx, "manuals-rag-bundle-20250101-120000.zip", dest)
	c.Check(err, jc.ErrorIs, bundleerrors.ChecksumMismatch)
	entries, err := os.ReadDir(dest)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(entries, gc.HasLen, 0)
}

func (s *storeSuite) TestPullMissing(c *gc.C) {
	_, err := s.store.Pull(context.Background(), "nope.zip", c.MkDir())
	c.Check(err, jc.ErrorIs, errors.NotFound)
}

func (s *storeSuite) TestLatestEmpty(c *gc.C) {
	_, err := s.store.Latest(context.Background())
	c.Check(err, jc.ErrorIs, bundleerrors.NoArchiveFound)
}

func (s *storeSuite) TestPullRejectsPaths(c *gc.C) {
	for _, name := range []string{"../x.zip", `a\b.zip`, ".."} {
		_, err := s.store.Pull(context.Background(), name, c.MkDir())
		c.Check(err, jc.ErrorIs, errors.NotValid, gc.Commentf("%q", name))
	}
}

func (s *storeSuite) TestNewValidates(c *gc.C) {
	_, err := objectstore.New(context.Background(), objectstore.Config{})
	c.Check(err, jc.ErrorIs, errors.NotValid)
}
