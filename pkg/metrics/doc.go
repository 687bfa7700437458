// Package metrics exposes the cache's operational counters as Prometheus
// collectors.
//
// # Overview
//
// Stash tracks cache hits, misses, errors, admission skips, invalidations,
// and approximate byte usage internally in pkg/telemetry. This package
// mirrors those same numbers onto prometheus.Collector instances so that a
// host application that already scrapes Prometheus gets the cache's health
// for free, without polling pkg/telemetry's Recorder.TakeSnapshot directly.
//
// # Usage
//
//	http.Handle("/metrics", metrics.Handler())
//
// pkg/telemetry updates these collectors as a side effect of recording
// each event; callers never need to touch this package directly unless
// they want to mount the HTTP handler.
//
// # Timer
//
// Timer is a small helper for the common "start a clock, observe a
// histogram on the way out" pattern:
//
//	timer := metrics.NewTimer()
//	defer timer.ObserveDurationVec(metrics.CommandDuration, outcome)
package metrics
