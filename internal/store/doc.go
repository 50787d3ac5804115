// Package store holds the set of tracked items and their status history.
//
// This package is internal to stockpulse. It keeps, per item, the current
// status and the status immediately before it; nothing older is retained.
//
// The main components are:
//
//   - [Store]: Interface defining item and status operations plus pub/sub
//   - [MemoryStore]: In-memory implementation of Store
//   - [Item]: Snapshot of a tracked item
//   - [Transition]: Result of recording a new status
//
// Items are identified by the (name, url) pair. Status updates are atomic:
// the previous and current status of an item always change together.
package store
