// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus counters and histograms for a single
// excflow run, so `excflow audit --serve-metrics` can let a CI pipeline's
// monitoring stack track analysis duration and escape counts over time
// without parsing CLI output.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the metric set one Build+Audit run populates.
type Registry struct {
	FilesParsed        prometheus.Counter
	ParseErrors        prometheus.Counter
	FilesCached        prometheus.Counter
	BuildDuration      prometheus.Histogram
	PropagateDuration  prometheus.Histogram
	EntrypointsTotal   prometheus.Gauge
	UncaughtTotal      prometheus.Gauge
	GenericCaughtTotal prometheus.Gauge

	reg *prometheus.Registry
}

// NewRegistry builds a fresh, unregistered-with-anything-else metric set.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		FilesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "excflow_files_parsed_total",
			Help: "Python source files successfully extracted.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "excflow_parse_errors_total",
			Help: "Files that could not be read and were skipped.",
		}),
		FilesCached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "excflow_files_cached_total",
			Help: "Files served from the extraction cache instead of re-parsed.",
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "excflow_build_duration_seconds",
			Help:    "Wall-clock time spent building the program model.",
			Buckets: prometheus.DefBuckets,
		}),
		PropagateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "excflow_propagate_duration_seconds",
			Help:    "Wall-clock time spent running the exception-flow fixpoint.",
			Buckets: prometheus.DefBuckets,
		}),
		EntrypointsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "excflow_entrypoints_total",
			Help: "Entrypoints detected in the last run.",
		}),
		UncaughtTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "excflow_uncaught_exceptions_total",
			Help: "Exception types uncaught at some entrypoint in the last run.",
		}),
		GenericCaughtTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "excflow_generic_caught_exceptions_total",
			Help: "Exception types only caught by a generic handler in the last run.",
		}),
		reg: reg,
	}
	reg.MustRegister(
		m.FilesParsed, m.ParseErrors, m.FilesCached,
		m.BuildDuration, m.PropagateDuration,
		m.EntrypointsTotal, m.UncaughtTotal, m.GenericCaughtTotal,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
