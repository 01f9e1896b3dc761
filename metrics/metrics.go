// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package metrics mirrors the dispatcher, write-queue, and shutdown stats()
// structs as Prometheus gauges and counters, grounded on gcsfuse's direct
// dependency on prometheus/client_golang for the same purpose (FUSE op
// latency and counters).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/shutdown"
	"github.com/jacobsa/fuse/writequeue"
)

// Registry holds every metric this package exports. Construct with
// NewRegistry and register it with a prometheus.Registerer of the caller's
// choosing (including the default global one).
type Registry struct {
	DispatcherDispatched prometheus.Counter
	DispatcherCompleted  prometheus.Counter
	DispatcherErrors     prometheus.Counter
	DispatcherQueueSize  prometheus.Gauge
	DispatcherLatencyMs  prometheus.Gauge

	WriteQueueOps           prometheus.Counter
	WriteQueueCompleted     prometheus.Counter
	WriteQueueFailed        prometheus.Counter
	WriteQueueBytesWritten  prometheus.Counter
	WriteQueueSize          prometheus.Gauge
	WriteQueueActiveFDs     prometheus.Gauge

	ShutdownState prometheus.Gauge
}

const namespace = "fuse_host"

// NewRegistry constructs a fresh set of metrics, unregistered.
func NewRegistry() *Registry {
	return &Registry{
		DispatcherDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatcher", Name: "dispatched_total",
			Help: "Total operations dispatched to the worker pool.",
		}),
		DispatcherCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatcher", Name: "completed_total",
			Help: "Total operations completed by the worker pool.",
		}),
		DispatcherErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatcher", Name: "errors_total",
			Help: "Total operations that completed with a non-nil error.",
		}),
		DispatcherQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "dispatcher", Name: "queue_size",
			Help: "Current number of items waiting in the dispatcher queue.",
		}),
		DispatcherLatencyMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "dispatcher", Name: "avg_latency_ms",
			Help: "Rolling average dispatch-to-completion latency, in milliseconds.",
		}),
		WriteQueueOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "write_queue", Name: "ops_total",
			Help: "Total writes enqueued.",
		}),
		WriteQueueCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "write_queue", Name: "completed_total",
			Help: "Total writes completed, successfully or not.",
		}),
		WriteQueueFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "write_queue", Name: "failed_total",
			Help: "Total writes that completed with a non-zero errno.",
		}),
		WriteQueueBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "write_queue", Name: "bytes_written_total",
			Help: "Total bytes successfully written.",
		}),
		WriteQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "write_queue", Name: "queue_size",
			Help: "Current aggregate number of queued writes across all fds.",
		}),
		WriteQueueActiveFDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "write_queue", Name: "active_fds",
			Help: "Number of file descriptors with a non-empty write queue.",
		}),
		ShutdownState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "shutdown", Name: "state",
			Help: "Current shutdown state: 0=RUNNING, 1=DRAINING, 2=UNMOUNTING, 3=CLOSED.",
		}),
	}
}

// Collectors returns every metric as a prometheus.Collector, for bulk
// registration: reg.MustRegister(metrics.Collectors()...).
func (r *Registry) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.DispatcherDispatched, r.DispatcherCompleted, r.DispatcherErrors,
		r.DispatcherQueueSize, r.DispatcherLatencyMs,
		r.WriteQueueOps, r.WriteQueueCompleted, r.WriteQueueFailed,
		r.WriteQueueBytesWritten, r.WriteQueueSize, r.WriteQueueActiveFDs,
		r.ShutdownState,
	}
}

// ObserveWriteQueue copies a writequeue.Stats snapshot into the gauges.
// Counters (Ops/Completed/Failed/BytesWritten) are monotonic in the
// snapshot, so this adds only the delta since the last observed totals.
func (r *Registry) ObserveWriteQueue(prev, cur writequeue.Stats) {
	r.WriteQueueOps.Add(float64(cur.TotalOps - prev.TotalOps))
	r.WriteQueueCompleted.Add(float64(cur.Completed - prev.Completed))
	r.WriteQueueFailed.Add(float64(cur.Failed - prev.Failed))
	r.WriteQueueBytesWritten.Add(float64(cur.BytesWritten - prev.BytesWritten))
	r.WriteQueueSize.Set(float64(cur.QueueSize))
	r.WriteQueueActiveFDs.Set(float64(len(cur.ActiveFDs)))
}

// ObserveShutdown records the coordinator's current state as a gauge value.
func (r *Registry) ObserveShutdown(state shutdown.State) {
	r.ShutdownState.Set(float64(state))
}

// ObserveDispatcher copies a fuse.DispatcherStats snapshot into the gauges.
// prev is the previously observed snapshot, used to turn the counters'
// running totals into deltas.
func (r *Registry) ObserveDispatcher(prev, cur fuse.DispatcherStats) {
	r.DispatcherDispatched.Add(float64(cur.TotalDispatched - prev.TotalDispatched))
	r.DispatcherCompleted.Add(float64(cur.TotalCompleted - prev.TotalCompleted))
	r.DispatcherErrors.Add(float64(cur.TotalErrors - prev.TotalErrors))
	r.DispatcherQueueSize.Set(float64(cur.QueueSize))
	r.DispatcherLatencyMs.Set(cur.AvgLatencyMs)
}
