// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics is the Metric Facade (spec §4.7): a dynamic
// name→handle registry of Prometheus collectors, exposed locally over
// HTTP, plus the Metric Sender that forwards samples to a remote
// sink.
package metrics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Facade owns a Prometheus registry and lazily creates collectors by
// name on first use. The name→handle cache is protected by a
// sync.RWMutex with double-checked insertion (spec §5: "The metric
// registry uses a re-entrant lock around its name→handle cache with
// double-checked insertion"), so concurrent readers never block each
// other once a handle exists. Collectors are Vec types so a pushed
// sample's labels map (spec §6's `labels` field) selects a leaf series
// without the caller declaring label names up front.
type Facade struct {
	registry *prometheus.Registry

	mu        sync.RWMutex
	counters  map[string]*prometheus.CounterVec
	gauges    map[string]*prometheus.GaugeVec
	summaries map[string]*prometheus.SummaryVec
}

// New builds a Facade with its own private registry plus the standard
// process/Go collectors, matching the teacher-adjacent
// prometheus-engine examples' registration of `collectors.NewGoCollector()`.
func New() *Facade {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return &Facade{
		registry:  reg,
		counters:  make(map[string]*prometheus.CounterVec),
		gauges:    make(map[string]*prometheus.GaugeVec),
		summaries: make(map[string]*prometheus.SummaryVec),
	}
}

// Registry exposes the underlying *prometheus.Registry for promhttp.HandlerFor.
func (f *Facade) Registry() *prometheus.Registry { return f.registry }

// labelNames returns the sorted keys of labels, used as the fixed
// label-name set for a Vec collector created on first use.
func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// counterVec returns (creating if necessary) the named CounterVec.
func (f *Facade) counterVec(name, help string, labels map[string]string) *prometheus.CounterVec {
	f.mu.RLock()
	c, ok := f.counters[name]
	f.mu.RUnlock()
	if ok {
		return c
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.counters[name]; ok {
		return c
	}
	c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labelNames(labels))
	f.registry.MustRegister(c)
	f.counters[name] = c
	return c
}

// gaugeVec returns (creating if necessary) the named GaugeVec.
func (f *Facade) gaugeVec(name, help string, labels map[string]string) *prometheus.GaugeVec {
	f.mu.RLock()
	g, ok := f.gauges[name]
	f.mu.RUnlock()
	if ok {
		return g
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.gauges[name]; ok {
		return g
	}
	g = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labelNames(labels))
	f.registry.MustRegister(g)
	f.gauges[name] = g
	return g
}

// summaryVec returns (creating if necessary) the named SummaryVec.
func (f *Facade) summaryVec(name, help string, labels map[string]string) *prometheus.SummaryVec {
	f.mu.RLock()
	s, ok := f.summaries[name]
	f.mu.RUnlock()
	if ok {
		return s
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.summaries[name]; ok {
		return s
	}
	s = prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: name, Help: help}, labelNames(labels))
	f.registry.MustRegister(s)
	f.summaries[name] = s
	return s
}

// Apply executes a single named Sample against the matching handle,
// creating it on first use. method is one of "inc", "dec", "add",
// "set", "observe"; it mirrors the wire shape of a pushed metric sample
// (spec §6 "Metric push sink").
func (f *Facade) Apply(s Sample) error {
	switch s.MetricType {
	case "counter":
		c, err := f.counterVec(s.MetricName, s.Description, s.Labels).GetMetricWith(s.Labels)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		switch s.Method {
		case "inc", "":
			c.Inc()
		case "add":
			v, err := floatArg(s.Arguments)
			if err != nil {
				return err
			}
			c.Add(v)
		default:
			return fmt.Errorf("metrics: counter does not support method %q", s.Method)
		}
	case "gauge":
		g, err := f.gaugeVec(s.MetricName, s.Description, s.Labels).GetMetricWith(s.Labels)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		switch s.Method {
		case "set":
			v, err := floatArg(s.Arguments)
			if err != nil {
				return err
			}
			g.Set(v)
		case "inc":
			g.Inc()
		case "dec":
			g.Dec()
		case "add":
			v, err := floatArg(s.Arguments)
			if err != nil {
				return err
			}
			g.Add(v)
		default:
			return fmt.Errorf("metrics: gauge does not support method %q", s.Method)
		}
	case "summary":
		v, err := floatArg(s.Arguments)
		if err != nil {
			return err
		}
		sm, err := f.summaryVec(s.MetricName, s.Description, s.Labels).GetMetricWith(s.Labels)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		sm.Observe(v)
	default:
		return fmt.Errorf("metrics: unknown metric_type %q", s.MetricType)
	}
	return nil
}

func floatArg(args []interface{}) (float64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("metrics: method requires one numeric argument")
	}
	switch v := args[0].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("metrics: argument %v is not numeric", args[0])
	}
}
