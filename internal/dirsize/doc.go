// Package dirsize computes the cumulative size of a directory tree.
//
// It walks the tree in parallel, either with fastwalk on the OS filesystem or
// with a bounded worker pool over any FileSystem, feeds every observation into
// an Aggregator that keeps per-directory totals, and produces a ranked
// breakdown of the root's direct children with their share of the total.
package dirsize
