// Package fetch turns a product page URL into a stock status.
//
// The main components are:
//
//   - [Dispatcher]: selects a capability by URL host and enforces a deadline
//   - [Capability]: anything able to resolve a status for a URL
//   - [PageCapability]: fetch + parse + [Extractor], the common case
//   - [Client]: colly based page fetcher with size and time limits
//
// Nothing in this package returns an error to the poller. Every failure is
// reported as the FetchError status, with an [*Error] describing the cause for
// logs and metrics.
package fetch
