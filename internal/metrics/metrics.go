// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package metrics exposes the thermometer readings to prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a registry with the go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics are the thermometer specific metrics.
type Metrics struct {
	Temperature *prometheus.GaugeVec   // labels: address
	Readings    *prometheus.CounterVec // labels: address, result=ok|error
	Errors      *prometheus.CounterVec // labels: kind
	Devices     prometheus.Gauge
}

// New registers and returns the thermometer metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ds18b20_temperature_celsius",
			Help: "Last temperature read from the sensor.",
		}, []string{"address"}),
		Readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ds18b20_readings_total",
			Help: "Temperature reading attempts.",
		}, []string{"address", "result"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ds18b20_errors_total",
			Help: "Errors by kind.",
		}, []string{"kind"}),
		Devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ds18b20_devices",
			Help: "Number of sensors being polled.",
		}),
	}
	reg.MustRegister(m.Temperature, m.Readings, m.Errors, m.Devices)
	return m
}
