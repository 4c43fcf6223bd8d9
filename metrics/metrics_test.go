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

package metrics_test

import (
	"testing"
	"time"

	"github.com/blinklabs-io/gotransfer/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.RecordTransferRequest("pull", "success")
		m.RecordTransferStart()
		m.RecordTransferEnd()
		m.AddTransferBytes(metrics.DirectionSent, 10)
		m.RecordCrcFailure()
		m.RecordUriRequest("info", "success", time.Millisecond)
	})
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordTransferRequest("pull", "success")
	m.RecordTransferRequest("pull", "success")
	m.RecordTransferRequest("push", "error")
	m.RecordTransferStart()
	m.RecordTransferStart()
	m.RecordTransferEnd()
	m.AddTransferBytes(metrics.DirectionSent, 1380)
	m.AddTransferBytes(metrics.DirectionSent, 20)
	m.AddTransferBytes(metrics.DirectionReceived, 0)
	m.RecordCrcFailure()
	m.RecordUriRequest("info", "success", time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransferRequests.WithLabelValues("pull", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransferRequests.WithLabelValues("push", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveTransfers))
	assert.Equal(t, 1400.0, testutil.ToFloat64(m.TransferBytes.WithLabelValues(metrics.DirectionSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CrcFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UriRequests.WithLabelValues("info", "success")))
	count, err := testutil.GatherAndCount(reg, "gotransfer_uri_request_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
