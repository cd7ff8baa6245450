// Package metrics groups exporter sub-packages for goSession's in-process
// counters and histograms. The core counter implementation lives in the root
// package; exporters read immutable snapshots only.
package metrics
