/*
 * Copyright 2025 The Greenroom Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package prometheus provides a Prometheus metrics exporter.
package prometheus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/greenroom-io/greenroom/internal/version"
)

const (
	namespace     = "greenroom"
	outcomeLabel  = "outcome"
	taskTypeLabel = "task_type"
)

// Metrics manages the metric information that Greenroom measures.
type Metrics struct {
	registry *prometheus.Registry

	serverVersion *prometheus.GaugeVec

	saveLockAcquiresTotal *prometheus.CounterVec
	saveLockReleasesTotal *prometheus.CounterVec

	seedProbesTotal *prometheus.CounterVec

	restoresTotal                  *prometheus.CounterVec
	convergencePollAttemptsTotal   prometheus.Counter
	convergencePollsCompletedTotal *prometheus.CounterVec

	backgroundJobsTotal *prometheus.GaugeVec
}

// NewMetrics creates a new instance of Metrics.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	metrics := &Metrics{
		registry: reg,
		serverVersion: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "version",
			Help:      "Which version is running. 1 for 'server_version' label with current version.",
		}, []string{"server_version"}),
		saveLockAcquiresTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "savelock",
			Name:      "acquires_total",
			Help:      "Total number of save lock acquire attempts by outcome.",
		}, []string{outcomeLabel}),
		saveLockReleasesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "savelock",
			Name:      "releases_total",
			Help:      "Total number of save lock release attempts by outcome.",
		}, []string{outcomeLabel}),
		seedProbesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seedlock",
			Name:      "probes_total",
			Help:      "Total number of seed lock probes by outcome.",
		}, []string{outcomeLabel}),
		restoresTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "restore",
			Name:      "restores_total",
			Help:      "Total number of restore operations by outcome.",
		}, []string{outcomeLabel}),
		convergencePollAttemptsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "restore",
			Name:      "convergence_poll_attempts_total",
			Help:      "Total number of convergence poll attempts.",
		}),
		convergencePollsCompletedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "restore",
			Name:      "convergence_polls_completed_total",
			Help:      "Total number of completed convergence polls by outcome.",
		}, []string{outcomeLabel}),
		backgroundJobsTotal: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "background",
			Name:      "jobs_total",
			Help:      "The total number of running background jobs.",
		}, []string{taskTypeLabel}),
	}

	metrics.serverVersion.With(prometheus.Labels{
		"server_version": version.Version,
	}).Set(1)

	return metrics, nil
}

// AddSaveLockAcquire increments the save lock acquire counter.
func (m *Metrics) AddSaveLockAcquire(outcome string) {
	m.saveLockAcquiresTotal.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

// AddSaveLockRelease increments the save lock release counter.
func (m *Metrics) AddSaveLockRelease(outcome string) {
	m.saveLockReleasesTotal.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

// AddSeedProbe increments the seed probe counter.
func (m *Metrics) AddSeedProbe(outcome string) {
	m.seedProbesTotal.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

// AddRestore increments the restore counter.
func (m *Metrics) AddRestore(outcome string) {
	m.restoresTotal.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

// AddConvergencePollAttempt increments the convergence poll attempt counter.
func (m *Metrics) AddConvergencePollAttempt() {
	m.convergencePollAttemptsTotal.Inc()
}

// AddConvergencePollCompleted increments the completed convergence poll counter.
func (m *Metrics) AddConvergencePollCompleted(outcome string) {
	m.convergencePollsCompletedTotal.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

// AddBackgroundJobs adds a running background job of the given task type.
func (m *Metrics) AddBackgroundJobs(taskType string) {
	m.backgroundJobsTotal.With(prometheus.Labels{taskTypeLabel: taskType}).Add(1)
}

// RemoveBackgroundJobs removes a running background job of the given task type.
func (m *Metrics) RemoveBackgroundJobs(taskType string) {
	m.backgroundJobsTotal.With(prometheus.Labels{taskTypeLabel: taskType}).Sub(1)
}

// Registry returns the registry of this metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
