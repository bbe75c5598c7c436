// Package ratelimit provides fixed-window admission gates keyed by identifier.
//
// Layers:
//
//   - Limiter: one window configuration and its per-identifier buckets
//   - Set: the four limiters the service runs (login, api, booking, slots)
//   - Middleware: gin adapter that derives the identifier and answers 429
//
// State is process-local and lost on restart.
package ratelimit
