// Package news defines the record, source, and batch types shared by the
// fetchers, the validator, the worker pool, and the aggregator, together with
// the error taxonomy used to classify per-item, per-source, and configuration
// failures.
package news
