// Copyright 2026 The Harvestd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvestd_worker_jobs_claimed_total",
			Help: "Total number of jobs claimed by this worker",
		},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvestd_worker_jobs_finished_total",
			Help: "Total number of jobs finished, by outcome",
		},
		[]string{"outcome"},
	)

	itemsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvestd_worker_items_ingested_total",
			Help: "Total number of items ingested, by dedup result",
		},
		[]string{"result"},
	)

	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvestd_worker_job_duration_seconds",
			Help:    "Wall-clock duration of job runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
)

// InitMetrics registers worker metrics with Prometheus
func InitMetrics() {
	prometheus.MustRegister(jobsClaimed)
	prometheus.MustRegister(jobsFinished)
	prometheus.MustRegister(itemsIngested)
	prometheus.MustRegister(jobDuration)
}

// MetricsHandler returns the Prometheus metrics HTTP handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
