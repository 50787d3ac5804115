// Package poller drives periodic stock checks for stockpulse.
//
// This package is internal to stockpulse. A [Scheduler] counts ticks from a
// [TickSource] and, once per interval, walks the item store: each item is
// resolved to a status, written back with SetStatus, and the resulting
// transition is handed to an [Observer] (the alert coordinator).
//
// The main components are:
//
//   - [Scheduler]: Idle/Running state machine with drop-not-queue ticks
//   - [TickSource]: injectable tick driver, a 1s ticker by default
//   - [PassReport]: summary of one pass
//
// Users of the stockpulse library should not need to interact with this
// package directly. Configuration is done through the main stockpulse package.
package poller
