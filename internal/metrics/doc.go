// Package metrics exposes Prometheus collectors for relay activity.
//
// All methods are safe on a nil *Metrics, so components take an optional
// collector set without branching.
package metrics
