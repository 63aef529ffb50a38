// Package stats tracks per-worker operator timing; it has no RPC API.
package stats
