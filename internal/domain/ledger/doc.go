// Package ledger contains the inventory ledger bounded context as seen by the
// QuickBooks bridge.
//
// Key concepts:
//   - Event: an immutable inventory-moving work item (transfer or adjustment)
//   - Line: one item movement inside an Event, optionally carrying item-creation metadata
//   - Result: the terminal outcome reported back for one delivery attempt of an Event
//   - Queue: port interface for the ledger's work queue
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (Convex CLI, HTTP) are in the infrastructure layer
package ledger
