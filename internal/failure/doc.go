// Package failure defines the error taxonomy shared by the ingestion components.
//
// Callers branch on the kind of a failure with errors.As or KindOf, never by
// matching message text:
//   - TransportError: network, HTTP, or exchange-level rejection
//   - DecodeError: a payload or a single candle could not be parsed
//   - StoreError: the storage layer rejected or failed a call
//   - ConsistencyWarning: out-of-order or irregular data, never persisted
package failure
