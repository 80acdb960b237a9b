// Package api defines the JSON payloads exchanged over the HTTP surface
// and the conversions from registry state into those payloads.
package api
