// Package picking implements stock.picking workflows on top of the façade:
// status updates with read-back verification, validation with the
// backorder wizard resolved, and model-level hook calls.
package picking
