// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle_test

import (
	"encoding/json"
	"time"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/spf13/afero"
	gc "gopkg.in/check.v1"

	"github.com/manuals-rag/ragbundle/bundle"
)

type manifestSuite struct {
	testing.IsolationSuite
	fs afero.Fs
}

var _ = gc.Suite(&manifestSuite{})

var builtAt = time.Date(2025, 1, 1, 12, 0, 0, 0, time.Local)

var params = bundle.ManifestParams{
	App:           "manuals-rag",
	ConsumerModel: "qwen2.5:3b-instruct",
	EmbedModel:    "sentence-transformers/all-MiniLM-L6-v2",
}

func (s *manifestSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.fs = afero.NewMemMapFs()
}

func (s *manifestSuite) TestReadIndexMeta(c *gc.C) {
	err := afero.WriteFile(s.fs, "/index/meta.json",
		[]byte(`{"count": 12, "embed_model": "bge-small", "schema": {"fields": ["text"]}}`), 0644)
	c.Assert(err, jc.ErrorIsNil)

	meta := bundle.ReadIndexMeta(s.fs, "/index/meta.json")
	c.Assert(meta.Count, gc.NotNil)
	c.Check(*meta.Count, gc.Equals, 12)
	c.Check(meta.EmbedModel, gc.Equals, "bge-small")
	c.Check(meta.Schema, jc.DeepEquals, map[string]interface{}{"fields": []interface{}{"text"}})
}

func (s *manifestSuite) TestReadIndexMetaMissing(c *gc.C) {
	c.Check(bundle.ReadIndexMeta(s.fs, "/index/meta.json"), jc.DeepEquals, bundle.IndexMeta{})
}

func (s *manifestSuite) TestReadIndexMetaMalformed(c *gc.C) {
	err := afero.WriteFile(s.fs, "/meta.json", []byte(`{"count": "many"`), 0644)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(bundle.ReadIndexMeta(s.fs, "/meta.json"), jc.DeepEquals, bundle.IndexMeta{})
}

func (s *manifestSuite) TestNewManifestFromMeta(c *gc.C) {
	count := 7
	m := bundle.NewManifest(params, bundle.IndexMeta{Count: &count, EmbedModel: "bge-small"}, builtAt)
	c.Check(m, jc.DeepEquals, bundle.Manifest{
		App:           "manuals-rag",
		Schema:        "bundle-v1",
		BuiltAt:       "2025-01-01T12:00:00",
		ConsumerModel: "qwen2.5:3b-instruct",
		EmbedModel:    "bge-small",
		ChunkCount:    &count,
	})
}

func (s *manifestSuite) TestNewManifestWithoutMeta(c *gc.C) {
	m := bundle.NewManifest(params, bundle.IndexMeta{}, builtAt)
	c.Check(m.EmbedModel, gc.Equals, "sentence-transformers/all-MiniLM-L6-v2")
	c.Check(m.ChunkCount, gc.IsNil)

	data, err := json.Marshal(m)
	c.Assert(err, jc.ErrorIsNil)
	var keys map[string]interface{}
	c.Assert(json.Unmarshal(data, &keys), jc.ErrorIsNil)
	_, ok := keys["chunk_count"]
	c.Check(ok, jc.IsFalse)
	c.Check(keys["schema"], gc.Equals, "bundle-v1")
}

func (s *manifestSuite) TestWriteManifest(c *gc.C) {
	count := 3
	m := bundle.NewManifest(params, bundle.IndexMeta{Count: &count}, builtAt)
	err := bundle.WriteManifest(s.fs, "/stage", m)
	c.Assert(err, jc.ErrorIsNil)

	data, err := afero.ReadFile(s.fs, "/stage/bundle.json")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, `{
  "app": "manuals-rag",
  "schema": "bundle-v1",
  "built_at": "2025-01-01T12:00:00",
  "consumer_model": "qwen2.5:3b-instruct",
  "embed_model": "sentence-transformers/all-MiniLM-L6-v2",
  "chunk_count": 3
}
`)
}
