// Package spectrum computes histograms of pairwise distances over point
// clouds and compares two of them while the computation is in progress.
//
// Responsibilities: fixed-range histograms, bounded point clouds that
// aggregate several point sources, distance metrics (Euclidean and
// Mahalanobis), exhaustive or sampled pair sweeps, background histogram
// fillers with cooperative cancellation, and the baseline/experimental
// diff collector.
// Key types: Histogram, BoundedCloud, Metric, Filler, DiffCollector.
//
// Dependency rule: spectrum never imports cluster, store or monitor.
// Rendering and persistence consume its outputs from the outside.
package spectrum
