// Package observability records task board activity as JSON Lines events,
// derives metrics from that log on demand and evaluates alert conditions
// against the current board.
package observability
