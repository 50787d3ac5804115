// Package state persists the tracked item list and the user settings
// between runs, either as a YAML file or in a SQLite database.
//
// Only the item identities are saved. Statuses are recomputed by the next
// polling pass.
package state
