// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package config

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/yaml.v3"
)

var logger = loggo.GetLogger("ragbundle.config")

// DefaultFile is read from the working directory when no config file is
// named explicitly.
const DefaultFile = "ragbundle.yaml"

// EnvKeys maps environment variables onto the keys they override.
var EnvKeys = map[string]string{
	"RAGBUNDLE_BASE_DIR":        BaseDirKey,
	"RAGBUNDLE_OUTPUT_DIR":      OutputDirKey,
	"OLLAMA_MODEL":              ConsumerModelKey,
	"EMBED_MODEL":               EmbedModelKey,
	"RAG_HOST":                  ServiceHostKey,
	"RAG_PORT":                  ServicePortKey,
	"RAGBUNDLE_METRICS_FILE":    MetricsFileKey,
	"RAGBUNDLE_REMOTE_BUCKET":   RemoteBucketKey,
	"RAGBUNDLE_REMOTE_PREFIX":   RemotePrefixKey,
	"RAGBUNDLE_REMOTE_REGION":   RemoteRegionKey,
	"RAGBUNDLE_REMOTE_ENDPOINT": RemoteEndpointKey,
}

// LoadArgs says where settings come from.
type LoadArgs struct {
	// File is a YAML file of settings. When empty, DefaultFile is used
	// if it exists.
	File string

	// Getenv looks up environment variables; os.Getenv when nil.
	Getenv func(string) string

	// Overrides take precedence over every other source.
	Overrides map[string]interface{}
}

// Load merges defaults, the config file, the environment and any
// overrides, in increasing order of precedence.
func Load(args LoadArgs) (*Config, error) {
	attrs := make(map[string]interface{})

	path, explicit := args.File, true
	if path == "" {
		path, explicit = DefaultFile, false
	}
	fileAttrs, err := ReadFile(path)
	switch {
	case errors.Is(err, errors.NotFound) && !explicit:
		logger.Tracef("no config file at %q", path)
	case err != nil:
		return nil, errors.Trace(err)
	default:
		logger.Debugf("read config from %q", path)
		for k, v := range fileAttrs {
			attrs[k] = v
		}
	}

	getenv := args.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for env, key := range EnvKeys {
		if v := getenv(env); v != "" {
			attrs[key] = v
		}
	}
	for k, v := range args.Overrides {
		attrs[k] = v
	}

	cfg, err := New(attrs)
	return cfg, errors.Trace(err)
}

// ReadFile parses a YAML settings file.
func ReadFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NotFoundf("config file %q", path)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	attrs := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return nil, errors.NotValidf("config file %q: %v", path, err)
	}
	return attrs, nil
}
