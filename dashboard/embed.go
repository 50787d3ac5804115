// Package dashboard provides the embedded web UI assets for StockPulse.
//
// The dashboard lists tracked items with their stock status, offers forms to
// add, edit and remove items and to change the refresh interval and email
// alert settings, and follows the server's SSE stream for live updates.
//
// The embedded assets are served by the server package at the root path ("/").
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Main dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
