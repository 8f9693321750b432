// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands_test

import (
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/manuals-rag/ragbundle/cmd/cmdtesting"
	"github.com/manuals-rag/ragbundle/config"
)

type remoteSuite struct {
	baseSuite

	backend *s3mem.Backend
}

var _ = gc.Suite(&remoteSuite{})

func (s *remoteSuite) SetUpTest(c *gc.C) {
	s.baseSuite.SetUpTest(c)
	s.PatchEnvironment("AWS_ACCESS_KEY_ID", "test")
	s.PatchEnvironment("AWS_SECRET_ACCESS_KEY", "test")
	s.PatchEnvironment("AWS_EC2_METADATA_DISABLED", "true")

	s.backend = s3mem.New()
	c.Assert(s.backend.CreateBucket("manuals"), jc.ErrorIsNil)
	server := httptest.NewServer(gofakes3.New(s.backend).Server())
	s.AddCleanup(func(*gc.C) { server.Close() })

	s.extra = map[string]interface{}{
		config.RemoteBucketKey:   "manuals",
		config.RemoteEndpointKey: server.URL,
	}
	s.writeSettings(c)
}

func (s *remoteSuite) TestPushPull(c *gc.C) {
	result := s.export(c)
	name := filepath.Base(result.Archive)

	out := s.mustRun(c, "push")
	c.Check(out, gc.Matches, `(?s)Archive +`+result.Archive+`
Remote +s3://manuals/bundles/`+name+`
Size +.*`)

	c.Assert(os.RemoveAll(filepath.Join(s.base, "dist")), jc.ErrorIsNil)

	out = s.mustRun(c, "pull", "--format", "yaml")
	c.Check(out, gc.Equals, "archive: "+result.Archive+"\nremote: s3://manuals/bundles/\n")

	out = s.mustRun(c, "verify")
	c.Check(out, gc.Equals, "OK  "+result.SHA256+"  "+result.Archive+"\n")
}

func (s *remoteSuite) TestPullMissing(c *gc.C) {
	code, ctx := s.run(c, "pull", "manuals-rag-20200101-000000.zip")
	c.Check(code, gc.Equals, 1)
	c.Check(cmdtesting.Stderr(ctx), gc.Matches, `(?s).*ERROR pull failed: .*not found\n`)
}

func (s *remoteSuite) TestPullEmpty(c *gc.C) {
	code, ctx := s.run(c, "pull")
	c.Check(code, gc.Equals, 1)
	c.Check(cmdtesting.Stderr(ctx), gc.Matches, `(?s).*ERROR pull failed: .*no archive found\n`)
}

func (s *remoteSuite) TestPushWithoutBucket(c *gc.C) {
	s.export(c)
	s.extra = nil
	s.writeSettings(c)

	code, ctx := s.run(c, "push")
	c.Check(code, gc.Equals, 1)
	c.Check(cmdtesting.Stderr(ctx), gc.Matches, `(?s).*ERROR empty remote-bucket setting not valid\n`)
}
