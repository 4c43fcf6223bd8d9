// Copyright 2025 Blink Labs Software
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

// Package metrics provides Prometheus instrumentation for transfer and URI sessions.
//
// All metrics use the "gotransfer_" prefix. Methods handle a nil receiver, so a nil *Metrics
// acts as a no-op when metrics are disabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

type Metrics struct {
	// TransferRequests counts transfer requests handled by servers.
	// Labels: type=[pull, push], result
	TransferRequests *prometheus.CounterVec

	// TransferBytes counts block data bytes moved by servers.
	// Labels: direction=[sent, received]
	TransferBytes *prometheus.CounterVec

	// CrcFailures counts transfers rejected because of a checksum mismatch
	CrcFailures prometheus.Counter

	// ActiveTransfers tracks transfers currently bound to a server session
	ActiveTransfers prometheus.Gauge

	// UriRequests counts URI requests by service name and result
	UriRequests *prometheus.CounterVec

	// UriRequestDuration tracks the time spent in service handlers
	UriRequestDuration *prometheus.HistogramVec
}

// New creates the metrics and registers them with the provided registerer. If registerer is
// nil, prometheus.DefaultRegisterer is used
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TransferRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gotransfer_transfer_requests_total",
				Help: "Total transfer requests by type and result",
			},
			[]string{"type", "result"},
		),
		TransferBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gotransfer_transfer_bytes_total",
				Help: "Total block data bytes transferred by direction",
			},
			[]string{"direction"},
		),
		CrcFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gotransfer_transfer_crc_failures_total",
				Help: "Total transfers rejected due to a CRC mismatch",
			},
		),
		ActiveTransfers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gotransfer_transfer_active",
				Help: "Current number of active transfers",
			},
		),
		UriRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gotransfer_uri_requests_total",
				Help: "Total URI requests by service and result",
			},
			[]string{"service", "result"},
		),
		UriRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gotransfer_uri_request_duration_seconds",
				Help:    "URI service handler duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
	}
	registerer.MustRegister(
		m.TransferRequests,
		m.TransferBytes,
		m.CrcFailures,
		m.ActiveTransfers,
		m.UriRequests,
		m.UriRequestDuration,
	)
	return m
}

// RecordTransferRequest records the outcome of a transfer request
func (m *Metrics) RecordTransferRequest(transferType string, result string) {
	if m == nil {
		return
	}
	m.TransferRequests.WithLabelValues(transferType, result).Inc()
}

// RecordTransferStart records a transfer becoming bound to a server session
func (m *Metrics) RecordTransferStart() {
	if m == nil {
		return
	}
	m.ActiveTransfers.Inc()
}

// RecordTransferEnd records a transfer being released by a server session
func (m *Metrics) RecordTransferEnd() {
	if m == nil {
		return
	}
	m.ActiveTransfers.Dec()
}

// AddTransferBytes records block data moved in the given direction
func (m *Metrics) AddTransferBytes(direction string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.TransferBytes.WithLabelValues(direction).Add(float64(count))
}

func (m *Metrics) RecordCrcFailure() {
	if m == nil {
		return
	}
	m.CrcFailures.Inc()
}

// RecordUriRequest records a dispatched URI request and its handler duration
func (m *Metrics) RecordUriRequest(service string, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.UriRequests.WithLabelValues(service, result).Inc()
	m.UriRequestDuration.WithLabelValues(service).Observe(duration.Seconds())
}
