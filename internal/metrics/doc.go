// Package metrics provides observability hooks for release history operations.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics never need nil checks at call sites:
//
//	mgr := releases.NewManager(st, rec, releases.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The daemon serves the registry over HTTP via HTTPHandler when a metrics
// address is configured.
package metrics
