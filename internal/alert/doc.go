// Package alert decides when an item has restocked and fans the resulting
// [Alert] out to notifiers.
package alert
