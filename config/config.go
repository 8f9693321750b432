// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config holds the settings shared by every ragbundle command:
// where the live data and archives live, how the query service is run,
// and the timings used while waiting on locks and ports.
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"
)

const (
	BaseDirKey              = "base-dir"
	DataDirKey              = "data-dir"
	OutputDirKey            = "output-dir"
	AppPrefixKey            = "app-prefix"
	IndexFileKey            = "index-file"
	StoreFileKey            = "store-file"
	MetaFileKey             = "meta-file"
	ConsumerModelKey        = "consumer-model"
	EmbedModelKey           = "embed-model"
	ServiceHostKey          = "service-host"
	ServicePortKey          = "service-port"
	ServiceCommandKey       = "service-command"
	ServicePatternsKey      = "service-patterns"
	ServiceLogKey           = "service-log"
	LockWaitKey             = "lock-wait"
	BackupConnectTimeoutKey = "backup-connect-timeout"
	BackupTimeoutKey        = "backup-timeout"
	StopGraceKey            = "stop-grace"
	StopTimeoutKey          = "stop-timeout"
	StartTimeoutKey         = "start-timeout"
	MetricsFileKey          = "metrics-file"
	RemoteBucketKey         = "remote-bucket"
	RemotePrefixKey         = "remote-prefix"
	RemoteRegionKey         = "remote-region"
	RemoteEndpointKey       = "remote-endpoint"
)

const (
	// DefaultServiceCommand starts the query service. {host} and {port}
	// are replaced with the configured values.
	DefaultServiceCommand = "python -m uvicorn app.server:app --host {host} --port {port}"

	// IndexSubdir and RawSubdir are the two live trees below the data dir.
	IndexSubdir = "index"
	RawSubdir   = "raw"
)

var configSchema = environschema.Fields{
	BaseDirKey: {
		Description: "Project directory that relative paths resolve against.",
		Type:        environschema.Tstring,
	},
	DataDirKey: {
		Description: "Directory holding the live index and raw trees (default <base-dir>/data).",
		Type:        environschema.Tstring,
	},
	OutputDirKey: {
		Description: "Directory archives are written to and read from (default <base-dir>/dist).",
		Type:        environschema.Tstring,
	},
	AppPrefixKey: {
		Description: "Prefix of archive names and the app recorded in manifests.",
		Type:        environschema.Tstring,
	},
	IndexFileKey: {
		Description: "File name of the vector index.",
		Type:        environschema.Tstring,
	},
	StoreFileKey: {
		Description: "File name of the SQLite chunk store.",
		Type:        environschema.Tstring,
	},
	MetaFileKey: {
		Description: "File name of the index metadata written at ingest.",
		Type:        environschema.Tstring,
	},
	ConsumerModelKey: {
		Description: "Answering model recorded in manifests.",
		Type:        environschema.Tstring,
	},
	EmbedModelKey: {
		Description: "Embedding model recorded when the index metadata has none.",
		Type:        environschema.Tstring,
	},
	ServiceHostKey: {
		Description: "Host the query service listens on.",
		Type:        environschema.Tstring,
	},
	ServicePortKey: {
		Description: "Port the query service listens on.",
		Type:        environschema.Tint,
	},
	ServiceCommandKey: {
		Description: "Command line used to start the query service.",
		Type:        environschema.Tstring,
	},
	ServicePatternsKey: {
		Description: "Command line fragments identifying query service workers.",
		Type:        environschema.Tlist,
	},
	ServiceLogKey: {
		Description: "File the started query service logs to (default <base-dir>/logs/service.log).",
		Type:        environschema.Tstring,
	},
	LockWaitKey: {
		Description: "How long to wait for a locked chunk store before taking an online backup.",
		Type:        environschema.Tstring,
	},
	BackupConnectTimeoutKey: {
		Description: "Busy timeout when opening the chunk store for an online backup.",
		Type:        environschema.Tstring,
	},
	BackupTimeoutKey: {
		Description: "Upper bound on an online backup.",
		Type:        environschema.Tstring,
	},
	StopGraceKey: {
		Description: "How long the service gets to exit after SIGTERM.",
		Type:        environschema.Tstring,
	},
	StopTimeoutKey: {
		Description: "How long to wait for the service port to be released.",
		Type:        environschema.Tstring,
	},
	StartTimeoutKey: {
		Description: "How long to wait for a restarted service to bind its port.",
		Type:        environschema.Tstring,
	},
	MetricsFileKey: {
		Description: "Prometheus textfile written after each export and import.",
		Type:        environschema.Tstring,
	},
	RemoteBucketKey: {
		Description: "S3 bucket used by push and pull.",
		Type:        environschema.Tstring,
	},
	RemotePrefixKey: {
		Description: "Key prefix of archives in the remote bucket.",
		Type:        environschema.Tstring,
	},
	RemoteRegionKey: {
		Description: "Region of the remote bucket.",
		Type:        environschema.Tstring,
	},
	RemoteEndpointKey: {
		Description: "Custom S3 endpoint, for S3 compatible stores.",
		Type:        environschema.Tstring,
	},
}

var configDefaults = schema.Defaults{
	BaseDirKey:              ".",
	DataDirKey:              schema.Omit,
	OutputDirKey:            schema.Omit,
	AppPrefixKey:            "manuals-rag",
	IndexFileKey:            "faiss.index",
	StoreFileKey:            "chunks.sqlite",
	MetaFileKey:             "meta.json",
	ConsumerModelKey:        "qwen2.5:3b-instruct",
	EmbedModelKey:           "sentence-transformers/all-MiniLM-L6-v2",
	ServiceHostKey:          "127.0.0.1",
	ServicePortKey:          8000,
	ServiceCommandKey:       DefaultServiceCommand,
	ServicePatternsKey:      []interface{}{"uvicorn app.server:app", "app.server:app"},
	ServiceLogKey:           schema.Omit,
	LockWaitKey:             "2s",
	BackupConnectTimeoutKey: "15s",
	BackupTimeoutKey:        "60s",
	StopGraceKey:            "3s",
	StopTimeoutKey:          "10s",
	StartTimeoutKey:         "30s",
	MetricsFileKey:          schema.Omit,
	RemoteBucketKey:         schema.Omit,
	RemotePrefixKey:         "bundles/",
	RemoteRegionKey:         "us-east-1",
	RemoteEndpointKey:       schema.Omit,
}

var durationKeys = []string{
	LockWaitKey,
	BackupConnectTimeoutKey,
	BackupTimeoutKey,
	StopGraceKey,
	StopTimeoutKey,
	StartTimeoutKey,
}

var configChecker = func() schema.Checker {
	fields, _, err := configSchema.ValidationSchema()
	if err != nil {
		panic(err)
	}
	return schema.StrictFieldMap(fields, configDefaults)
}()

// Schema returns the description of every configuration key.
func Schema() environschema.Fields {
	return configSchema
}

// Config is a validated set of settings.
type Config struct {
	validAttrs map[string]interface{}
}

// New validates attrs, fills in defaults and returns the resulting
// configuration. Unknown keys are rejected.
func New(attrs map[string]interface{}) (*Config, error) {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	coerced, err := configChecker.Coerce(attrs, nil)
	if err != nil {
		return nil, errors.NotValidf("configuration: %v", err)
	}
	cfg := &Config{validAttrs: coerced.(map[string]interface{})}
	if err := cfg.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for _, key := range durationKeys {
		v, _ := c.validAttrs[key].(string)
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.NotValidf("%s %q", key, v)
		}
		if d <= 0 {
			return errors.NotValidf("non-positive %s %q", key, v)
		}
	}
	if port := c.ServicePort(); port < 1 || port > 65535 {
		return errors.NotValidf("%s %d", ServicePortKey, port)
	}
	for _, key := range []string{IndexFileKey, StoreFileKey} {
		if c.str(key) == "" {
			return errors.NotValidf("empty %s", key)
		}
	}
	for _, key := range []string{IndexFileKey, StoreFileKey, MetaFileKey} {
		if strings.ContainsAny(c.str(key), `/\`) {
			return errors.NotValidf("%s %q (must be a bare file name)", key, c.str(key))
		}
	}
	if c.AppPrefix() == "" {
		return errors.NotValidf("empty %s", AppPrefixKey)
	}
	if strings.TrimSpace(c.ServiceCommand()) == "" {
		return errors.NotValidf("empty %s", ServiceCommandKey)
	}
	return nil
}

// Attributes returns a copy of the validated settings.
func (c *Config) Attributes() map[string]interface{} {
	if c == nil {
		return nil
	}
	out := make(map[string]interface{}, len(c.validAttrs))
	for k, v := range c.validAttrs {
		out[k] = v
	}
	return out
}

// Keys returns the names of the keys that are set, in order.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.validAttrs))
	for k := range c.validAttrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) str(key string) string {
	v, _ := c.validAttrs[key].(string)
	return v
}

func (c *Config) duration(key string) time.Duration {
	d, _ := time.ParseDuration(c.str(key))
	return d
}

// path resolves a configured path against the base dir, falling back to
// def (also relative to the base dir) when unset.
func (c *Config) path(key string, def ...string) string {
	p := c.str(key)
	if p == "" {
		p = filepath.Join(def...)
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.BaseDir(), p)
}

// BaseDir is the absolute project directory.
func (c *Config) BaseDir() string {
	base := c.str(BaseDirKey)
	if abs, err := filepath.Abs(base); err == nil {
		return abs
	}
	return filepath.Clean(base)
}

func (c *Config) DataDir() string {
	return c.path(DataDirKey, "data")
}

// IndexDir holds the vector index, chunk store and index metadata.
func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir(), IndexSubdir)
}

// RawDir holds the converted documents.
func (c *Config) RawDir() string {
	return filepath.Join(c.DataDir(), RawSubdir)
}

func (c *Config) OutputDir() string {
	return c.path(OutputDirKey, "dist")
}

func (c *Config) AppPrefix() string {
	return c.str(AppPrefixKey)
}

func (c *Config) IndexFile() string {
	return c.str(IndexFileKey)
}

func (c *Config) StoreFile() string {
	return c.str(StoreFileKey)
}

func (c *Config) MetaFile() string {
	return c.str(MetaFileKey)
}

func (c *Config) ConsumerModel() string {
	return c.str(ConsumerModelKey)
}

func (c *Config) EmbedModel() string {
	return c.str(EmbedModelKey)
}

func (c *Config) ServiceHost() string {
	return c.str(ServiceHostKey)
}

func (c *Config) ServicePort() int {
	switch v := c.validAttrs[ServicePortKey].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// ServiceAddress is the host:port the query service binds.
func (c *Config) ServiceAddress() string {
	return fmt.Sprintf("%s:%d", c.ServiceHost(), c.ServicePort())
}

func (c *Config) ServiceCommand() string {
	return c.str(ServiceCommandKey)
}

func (c *Config) ServicePatterns() []string {
	switch v := c.validAttrs[ServicePatternsKey].(type) {
	case []string:
		return v
	case []interface{}:
		patterns := make([]string, 0, len(v))
		for _, p := range v {
			if s := fmt.Sprint(p); s != "" {
				patterns = append(patterns, s)
			}
		}
		return patterns
	}
	return nil
}

func (c *Config) ServiceLog() string {
	return c.path(ServiceLogKey, "logs", "service.log")
}

func (c *Config) LockWait() time.Duration {
	return c.duration(LockWaitKey)
}

func (c *Config) BackupConnectTimeout() time.Duration {
	return c.duration(BackupConnectTimeoutKey)
}

func (c *Config) BackupTimeout() time.Duration {
	return c.duration(BackupTimeoutKey)
}

func (c *Config) StopGrace() time.Duration {
	return c.duration(StopGraceKey)
}

func (c *Config) StopTimeout() time.Duration {
	return c.duration(StopTimeoutKey)
}

func (c *Config) StartTimeout() time.Duration {
	return c.duration(StartTimeoutKey)
}

// MetricsFile is empty when metrics are disabled.
func (c *Config) MetricsFile() string {
	if c.str(MetricsFileKey) == "" {
		return ""
	}
	return c.path(MetricsFileKey)
}

func (c *Config) RemoteBucket() string {
	return c.str(RemoteBucketKey)
}

func (c *Config) RemotePrefix() string {
	return c.str(RemotePrefixKey)
}

func (c *Config) RemoteRegion() string {
	return c.str(RemoteRegionKey)
}

func (c *Config) RemoteEndpoint() string {
	return c.str(RemoteEndpointKey)
}
