// Package batch turns field-update requests into the fewest remote writes.
//
// The pipeline has three steps:
//
//	Normalize: resolve per-model field aliases to concrete field names
//	Group:     partition requests by model and identical value sets
//	Submit:    one multi-id write per group, falling back to per-record
//	           writes, with an optional read-back verification pass
//
// Submit never aborts on a single record's failure. Every outcome, good or
// bad, lands in the BatchReport.
package batch
