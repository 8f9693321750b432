// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/afero"
)

const (
	// ManifestFile is the archive member holding the bundle manifest.
	ManifestFile = "bundle.json"

	// SchemaVersion identifies the archive layout.
	SchemaVersion = "bundle-v1"

	builtAtLayout = "2006-01-02T15:04:05"
)

// Manifest records where a bundle came from. It is written into every
// archive and removed from the tree before it is restored.
type Manifest struct {
	App           string `json:"app" yaml:"app"`
	Schema        string `json:"schema" yaml:"schema"`
	BuiltAt       string `json:"built_at" yaml:"built-at"`
	ConsumerModel string `json:"consumer_model" yaml:"consumer-model"`
	EmbedModel    string `json:"embed_model" yaml:"embed-model"`
	ChunkCount    *int   `json:"chunk_count,omitempty" yaml:"chunk-count,omitempty"`
}

// IndexMeta is the subset of the ingest metadata file the manifest
// draws on.
type IndexMeta struct {
	Count      *int                   `json:"count"`
	EmbedModel string                 `json:"embed_model"`
	Schema     map[string]interface{} `json:"schema"`
}

// ReadIndexMeta parses the ingest metadata at path. A missing or
// unreadable file yields the zero value.
func ReadIndexMeta(fsys afero.Fs, path string) IndexMeta {
	var meta IndexMeta
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		logger.Warningf("no index metadata at %q: %v", path, err)
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		logger.Warningf("ignoring malformed index metadata %q: %v", path, err)
		return IndexMeta{}
	}
	return meta
}

// ManifestParams are the configured values recorded in a manifest.
type ManifestParams struct {
	App           string
	ConsumerModel string
	EmbedModel    string
}

// NewManifest builds the manifest of a bundle built at now. The embedding
// model recorded at ingest wins over the configured one.
func NewManifest(params ManifestParams, meta IndexMeta, now time.Time) Manifest {
	embed := meta.EmbedModel
	if embed == "" {
		embed = params.EmbedModel
	}
	return Manifest{
		App:           params.App,
		Schema:        SchemaVersion,
		BuiltAt:       now.Local().Format(builtAtLayout),
		ConsumerModel: params.ConsumerModel,
		EmbedModel:    embed,
		ChunkCount:    meta.Count,
	}
}

// WriteManifest stores m as indented JSON in dir.
func WriteManifest(fsys afero.Fs, dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	path := filepath.Join(dir, ManifestFile)
	err = afero.WriteFile(fsys, path, append(data, '\n'), 0644)
	return errors.Annotatef(err, "writing %q", path)
}
