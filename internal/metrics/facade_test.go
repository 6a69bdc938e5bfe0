// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricFamily(t *testing.T, f *Facade, name string) *dto.MetricFamily {
	t.Helper()
	fams, err := f.Registry().Gather()
	require.NoError(t, err)
	for _, fam := range fams {
		if fam.GetName() == name {
			return fam
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func TestApplyCounterIncAndAdd(t *testing.T) {
	f := New()
	require.NoError(t, f.Apply(Sample{MetricType: "counter", MetricName: "reqs_total", Method: "inc"}))
	require.NoError(t, f.Apply(Sample{MetricType: "counter", MetricName: "reqs_total", Method: "add", Arguments: []interface{}{2.0}}))

	fam := metricFamily(t, f, "reqs_total")
	require.Len(t, fam.Metric, 1)
	assert.Equal(t, 3.0, fam.Metric[0].GetCounter().GetValue())
}

func TestApplyGaugeWithLabels(t *testing.T) {
	f := New()
	require.NoError(t, f.Apply(Sample{
		MetricType: "gauge", MetricName: "queue_depth", Method: "set",
		Labels: map[string]string{"dataset": "a"}, Arguments: []interface{}{5.0},
	}))
	require.NoError(t, f.Apply(Sample{
		MetricType: "gauge", MetricName: "queue_depth", Method: "set",
		Labels: map[string]string{"dataset": "b"}, Arguments: []interface{}{9.0},
	}))

	fam := metricFamily(t, f, "queue_depth")
	assert.Len(t, fam.Metric, 2)
}

func TestApplySummaryObserve(t *testing.T) {
	f := New()
	require.NoError(t, f.Apply(Sample{MetricType: "summary", MetricName: "latency", Arguments: []interface{}{0.25}}))

	fam := metricFamily(t, f, "latency")
	require.Len(t, fam.Metric, 1)
	assert.EqualValues(t, 1, fam.Metric[0].GetSummary().GetSampleCount())
}

func TestApplyUnknownMetricType(t *testing.T) {
	f := New()
	err := f.Apply(Sample{MetricType: "histogram", MetricName: "x"})
	assert.Error(t, err)
}

func TestApplyMissingArgumentForSet(t *testing.T) {
	f := New()
	err := f.Apply(Sample{MetricType: "gauge", MetricName: "y", Method: "set"})
	assert.Error(t, err)
}
