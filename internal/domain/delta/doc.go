// Package delta contains the incremental-sync vocabulary shared by every
// reconciliation run.
//
// Key concepts:
//   - SyncKind: which delta feed a run consumes (products from core, orders from
//     the marketplace, orders and returns from core)
//   - SyncCursor: per account and kind, the timestamp of the last successful run
//   - PageSource: port for a remote paged delta endpoint
//   - DeltaPage and the record types decoded from a page
package delta
