// Package runner provides the common types shared by the executor, the
// verdict engine and the monitor.
//
// # Size
//
// Size defines size in bytes, underlying type is uint64 so it
// is effective to store up to EiB of size
//
// # Metric
//
// Metric wraps a measured value with a flag telling whether the platform was
// able to measure it. An unknown metric is never reported as zero.
//
// # Usage
//
// Usage carries the resource accounting of one run: CPU time, wall time,
// peak memory and output bytes.
//
// # Result
//
// Result is the raw termination of one run, including the termination kind,
// exit code or signal, the violated operation if the filter fired, and
// setup / running time measured by the executor.
package runner
