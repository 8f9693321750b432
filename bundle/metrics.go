// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const (
	metricLastRun  = "ragbundle_last_run_timestamp_seconds"
	metricSuccess  = "ragbundle_last_run_success"
	metricDuration = "ragbundle_run_duration_seconds"
	metricSize     = "ragbundle_archive_size_bytes"

	operationLabel = "operation"
)

// Operations reported in the metrics textfile.
const (
	OperationExport = "export"
	OperationImport = "import"
)

// RunReport describes one finished export or import.
type RunReport struct {
	Operation   string
	Started     time.Time
	Finished    time.Time
	Success     bool
	ArchiveSize int64
}

type runCollector struct {
	registry *prometheus.Registry
	gauges   map[string]*prometheus.GaugeVec
}

func newRunCollector() *runCollector {
	c := &runCollector{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
	for name, help := range map[string]string{
		metricLastRun:  "Unix time the last run finished.",
		metricSuccess:  "Whether the last run succeeded (1) or failed (0).",
		metricDuration: "Wall time of the last run in seconds.",
		metricSize:     "Size of the archive handled by the last run.",
	} {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, []string{operationLabel})
		c.registry.MustRegister(g)
		c.gauges[name] = g
	}
	return c
}

func (c *runCollector) set(name, operation string, value float64) {
	c.gauges[name].WithLabelValues(operation).Set(value)
}

// WriteMetrics records r in the Prometheus textfile at path. Values of
// other operations already present in the file are carried over.
func WriteMetrics(path string, r RunReport) error {
	if r.Operation == "" {
		return errors.NotValidf("empty operation")
	}
	c := newRunCollector()
	for name, byOperation := range readMetrics(path) {
		if _, ok := c.gauges[name]; !ok {
			continue
		}
		for operation, value := range byOperation {
			if operation != r.Operation {
				c.set(name, operation, value)
			}
		}
	}

	success := 0.0
	if r.Success {
		success = 1
	}
	c.set(metricLastRun, r.Operation, float64(r.Finished.UnixNano())/1e9)
	c.set(metricSuccess, r.Operation, success)
	c.set(metricDuration, r.Operation, r.Finished.Sub(r.Started).Seconds())
	if r.ArchiveSize > 0 {
		c.set(metricSize, r.Operation, float64(r.ArchiveSize))
	}
	return errors.Annotatef(prometheus.WriteToTextfile(path, c.registry), "writing metrics %q", path)
}

// readMetrics returns the gauge values in an existing textfile keyed by
// family and operation. Unreadable files are treated as empty.
func readMetrics(path string) map[string]map[string]float64 {
	result := make(map[string]map[string]float64)
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warningf("cannot read metrics %q: %v", path, err)
		}
		return result
	}
	defer func() { _ = f.Close() }()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		logger.Warningf("discarding unparsable metrics %q: %v", path, err)
		return result
	}
	for name, family := range families {
		for _, m := range family.GetMetric() {
			if m.GetGauge() == nil {
				continue
			}
			for _, label := range m.GetLabel() {
				if label.GetName() != operationLabel {
					continue
				}
				if result[name] == nil {
					result[name] = make(map[string]float64)
				}
				result[name][label.GetValue()] = m.GetGauge().GetValue()
			}
		}
	}
	return result
}
