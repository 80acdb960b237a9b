// Package daemon runs the long-lived transcriber service: single-instance
// locking, disk preflight, and the HTTP API over the job registry.
package daemon
