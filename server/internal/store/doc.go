// Package store keeps received log batches in memory, grouped by source and
// kept in arrival order, with retention-based eviction.
package store
